package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/api/responses"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/export"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/implementations/redis"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/interfaces"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// Response headers set by the audit endpoints.
const (
	HeaderCache      = "X-Cache"
	HeaderArchiveKey = "X-Report-Archive-Key"
)

// Backends are the optional storage collaborators of the audit endpoints.
// Any of them may be nil.
type Backends struct {
	Source  interfaces.DatasetSource
	Store   interfaces.ReportStore
	Cache   interfaces.ReportCache
	Archive interfaces.ReportArchive
	Scores  interfaces.ScoreWriter
}

// AuditDefaults fill in whatever a request leaves out.
type AuditDefaults struct {
	Audit               privacy.AuditConfig
	QuasiIdentifiers    []string
	SensitiveAttributes []string
	EnforcementMethod   string
	DatasetQuery        string
	MaxBodyBytes        int64
}

// DatasetRequest carries either inline records or a warehouse query. With
// no records and no columns the dataset is loaded from the warehouse.
type DatasetRequest struct {
	Columns []string                 `json:"columns,omitempty"`
	Records []map[string]interface{} `json:"records,omitempty"`
	Query   string                   `json:"query,omitempty"`
}

// AuditRequest is the body of POST /audit.
type AuditRequest struct {
	DatasetRequest
	QuasiIdentifiers    []string `json:"quasi_identifiers,omitempty"`
	SensitiveAttributes []string `json:"sensitive_attributes,omitempty"`
	K                   *int     `json:"k,omitempty"`
	L                   *int     `json:"l,omitempty"`
	T                   *float64 `json:"t,omitempty"`
}

// EnforceRequest is the body of POST /enforce.
type EnforceRequest struct {
	DatasetRequest
	QuasiIdentifiers []string `json:"quasi_identifiers,omitempty"`
	K                *int     `json:"k,omitempty"`
	Method           string   `json:"method,omitempty"`
}

// EnforceResponse is the JSON and YAML rendering of an enforcement.
type EnforceResponse struct {
	Result  *privacy.EnforcementResult `json:"result" yaml:"result"`
	Records []map[string]models.Value  `json:"records" yaml:"records"`
}

// AuditHandler serves the audit and enforcement endpoints.
type AuditHandler struct {
	defaults AuditDefaults
	backends Backends
	sink     privacy.EventSink
	exporter *export.ExportEngine
	logger   *logrus.Logger
}

// NewAuditHandler creates the handler. A nil sink discards engine events.
func NewAuditHandler(defaults AuditDefaults, backends Backends, sink privacy.EventSink, logger *logrus.Logger) *AuditHandler {
	if logger == nil {
		logger = logrus.New()
	}
	if sink == nil {
		sink = privacy.NopSink{}
	}
	if defaults.MaxBodyBytes <= 0 {
		defaults.MaxBodyBytes = constants.MaxUploadSize
	}

	return &AuditHandler{
		defaults: defaults,
		backends: backends,
		sink:     sink,
		exporter: export.NewExportEngine(logger),
		logger:   logger,
	}
}

// Audit handles POST /api/v1/audit.
func (h *AuditHandler) Audit(w http.ResponseWriter, r *http.Request) {
	format, err := requestFormat(r)
	if err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	var req AuditRequest
	if err := h.decode(w, r, &req); err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	cfg := h.defaults.Audit
	if req.K != nil {
		cfg.K = *req.K
	}
	if req.L != nil {
		cfg.L = *req.L
	}
	if req.T != nil {
		cfg.T = *req.T
	}
	if err := cfg.Validate(); err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	qis := orDefault(req.QuasiIdentifiers, h.defaults.QuasiIdentifiers)
	attrs := orDefault(req.SensitiveAttributes, h.defaults.SensitiveAttributes)

	ctx := r.Context()
	cacheKey := ""
	if query, fromWarehouse := h.warehouseQuery(req.DatasetRequest); fromWarehouse && h.backends.Cache != nil {
		cacheKey = redis.CacheKey(query, qis, attrs, cfg)
		cached, found, err := h.backends.Cache.Get(ctx, cacheKey)
		if err != nil {
			h.logger.WithError(err).Warn("Report cache lookup failed")
		} else if found {
			w.Header().Set(HeaderCache, "HIT")
			h.write(w, r, format, cached)
			return
		}
		w.Header().Set(HeaderCache, "MISS")
	}

	ds, err := h.loadDataset(ctx, req.DatasetRequest)
	if err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	auditor, err := privacy.NewAuditor(&cfg, privacy.WithSink(h.sink))
	if err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	report, err := auditor.ComprehensiveAudit(ds, qis, attrs)
	if err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	if key := h.persist(ctx, report, cacheKey); key != "" {
		w.Header().Set(HeaderArchiveKey, key)
	}

	h.write(w, r, format, report)
}

// Enforce handles POST /api/v1/enforce.
func (h *AuditHandler) Enforce(w http.ResponseWriter, r *http.Request) {
	format, err := requestFormat(r)
	if err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	var req EnforceRequest
	if err := h.decode(w, r, &req); err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	method, err := privacy.ParseMethod(orDefaultString(req.Method, h.defaults.EnforcementMethod))
	if err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	cfg := h.defaults.Audit
	if req.K != nil {
		cfg.K = *req.K
	}

	ds, err := h.loadDataset(r.Context(), req.DatasetRequest)
	if err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	auditor, err := privacy.NewAuditor(&cfg, privacy.WithSink(h.sink))
	if err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	result, err := auditor.EnforceKAnonymity(ds, orDefault(req.QuasiIdentifiers, h.defaults.QuasiIdentifiers), method)
	if err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	if format == export.FormatCSV {
		h.write(w, r, format, result)
		return
	}
	h.write(w, r, format, &EnforceResponse{Result: result, Records: export.Records(result.Dataset)})
}

func (h *AuditHandler) decode(w http.ResponseWriter, r *http.Request, into interface{}) error {
	body := http.MaxBytesReader(w, r.Body, h.defaults.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(into); err != nil {
		return errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidInput, "Malformed request body")
	}
	return nil
}

// warehouseQuery reports the query a request will run, if it reads from
// the warehouse at all.
func (h *AuditHandler) warehouseQuery(req DatasetRequest) (string, bool) {
	if len(req.Records) > 0 || len(req.Columns) > 0 {
		return "", false
	}
	return orDefaultString(req.Query, h.defaults.DatasetQuery), true
}

func (h *AuditHandler) loadDataset(ctx context.Context, req DatasetRequest) (*models.Dataset, error) {
	query, fromWarehouse := h.warehouseQuery(req)
	if !fromWarehouse {
		columns := req.Columns
		if len(columns) == 0 {
			columns = recordColumns(req.Records)
		}
		return models.NewDatasetFromMaps(columns, req.Records)
	}

	if h.backends.Source == nil {
		return nil, errors.NewInvalidInputError("request has no records and no warehouse is configured")
	}
	return h.backends.Source.LoadDataset(ctx, query)
}

// persist fans a finished report out to the configured backends. Backend
// failures are logged and do not fail the request. It returns the archive
// key when the report was archived.
func (h *AuditHandler) persist(ctx context.Context, report *privacy.AuditReport, cacheKey string) string {
	log := h.logger.WithField("report_id", report.ID)

	if h.backends.Store != nil {
		if err := h.backends.Store.SaveAuditReport(ctx, report); err != nil {
			log.WithError(err).Warn("Failed to store audit report")
		}
	}

	if h.backends.Scores != nil {
		if err := h.backends.Scores.WriteReport(ctx, report); err != nil {
			log.WithError(err).Warn("Failed to write privacy scores")
		}
	}

	if cacheKey != "" && h.backends.Cache != nil {
		if err := h.backends.Cache.Set(ctx, cacheKey, report); err != nil {
			log.WithError(err).Warn("Failed to cache audit report")
		}
	}

	if h.backends.Archive == nil {
		return ""
	}
	key, err := h.backends.Archive.Upload(ctx, report)
	if err != nil {
		log.WithError(err).Warn("Failed to archive audit report")
		return ""
	}
	return key
}

func (h *AuditHandler) write(w http.ResponseWriter, r *http.Request, format export.ExportFormat, doc interface{}) {
	var buf bytes.Buffer
	if err := h.exporter.Export(r.Context(), format, &buf, doc, export.DefaultExportOptions()); err != nil {
		responses.Error(w, r, h.logger, err)
		return
	}

	w.Header().Set(constants.HeaderContentType, contentTypes[format])
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

var contentTypes = map[export.ExportFormat]string{
	export.FormatJSON: constants.ContentTypeJSON,
	export.FormatYAML: constants.ContentTypeYAML,
	export.FormatCSV:  constants.ContentTypeCSV,
}

func requestFormat(r *http.Request) (export.ExportFormat, error) {
	name := r.URL.Query().Get("format")
	if name == "" {
		return export.FormatJSON, nil
	}
	return export.ParseFormat(name)
}

// recordColumns returns the union of record keys in name order.
func recordColumns(records []map[string]interface{}) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, rec := range records {
		for key := range rec {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}
	sort.Strings(columns)
	return columns
}

func orDefault(values, fallback []string) []string {
	if len(values) > 0 {
		return values
	}
	return fallback
}

func orDefaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
