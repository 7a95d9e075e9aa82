package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

type fakeSource struct {
	ds      *models.Dataset
	queries []string
}

func (f *fakeSource) Ping(context.Context) error { return nil }

func (f *fakeSource) LoadDataset(_ context.Context, query string) (*models.Dataset, error) {
	f.queries = append(f.queries, query)
	return f.ds, nil
}

type fakeStore struct {
	reports []*privacy.AuditReport
	entries map[string][]privacy.BudgetEntry
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) SaveAuditReport(_ context.Context, r *privacy.AuditReport) error {
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeStore) SaveBudgetEntries(_ context.Context, session string, entries []privacy.BudgetEntry) error {
	if f.entries == nil {
		f.entries = map[string][]privacy.BudgetEntry{}
	}
	f.entries[session] = append(f.entries[session], entries...)
	return nil
}

type fakeCache struct {
	items map[string]*privacy.AuditReport
}

func (f *fakeCache) Ping(context.Context) error { return nil }

func (f *fakeCache) Get(_ context.Context, key string) (*privacy.AuditReport, bool, error) {
	r, ok := f.items[key]
	return r, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, r *privacy.AuditReport) error {
	if f.items == nil {
		f.items = map[string]*privacy.AuditReport{}
	}
	f.items[key] = r
	return nil
}

func (f *fakeCache) TTL(context.Context, string) (time.Duration, error) { return time.Minute, nil }

type fakeArchive struct {
	uploaded []string
	err      error
}

func (f *fakeArchive) Ping(context.Context) error { return nil }

func (f *fakeArchive) Upload(_ context.Context, r *privacy.AuditReport) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := "privacy-audits/" + r.ID + ".json"
	f.uploaded = append(f.uploaded, key)
	return key, nil
}

func (f *fakeArchive) Download(context.Context, string) (*privacy.AuditReport, error) {
	return nil, errors.NewStorageError(errors.CodeDataNotFound, "not found")
}

type fakeScores struct {
	written int
}

func (f *fakeScores) Ping(context.Context) error { return nil }

func (f *fakeScores) WriteReport(context.Context, *privacy.AuditReport) error {
	f.written++
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func testDefaults() AuditDefaults {
	cfg := privacy.DefaultAuditConfig()
	cfg.K = 2
	cfg.L = 1
	return AuditDefaults{
		Audit:               *cfg,
		QuasiIdentifiers:    []string{"age_group", "gender", "state"},
		SensitiveAttributes: []string{"diagnosis"},
		EnforcementMethod:   string(privacy.MethodSuppress),
		DatasetQuery:        "SELECT * FROM patient_dim",
	}
}

var sampleRecords = []map[string]interface{}{
	{"age_group": "18-30", "gender": "F", "state": "CA", "diagnosis": "flu"},
	{"age_group": "18-30", "gender": "F", "state": "CA", "diagnosis": "asthma"},
	{"age_group": "18-30", "gender": "F", "state": "CA", "diagnosis": "flu"},
	{"age_group": "61-75", "gender": "M", "state": "NY", "diagnosis": "diabetes"},
}

func sampleDataset(t *testing.T) *models.Dataset {
	t.Helper()
	ds, err := models.NewDatasetFromMaps([]string{"age_group", "gender", "state", "diagnosis"}, sampleRecords)
	require.NoError(t, err)
	return ds
}

func post(t *testing.T, handler http.HandlerFunc, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	apiErr, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "response has no error object: %s", rec.Body.String())
	return apiErr["code"].(string)
}

func TestAuditInlineRecords(t *testing.T) {
	store := &fakeStore{}
	scores := &fakeScores{}
	h := NewAuditHandler(testDefaults(), Backends{Store: store, Scores: scores}, nil, quietLogger())

	rec := post(t, h.Audit, "/api/v1/audit", AuditRequest{DatasetRequest: DatasetRequest{Records: sampleRecords}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, constants.ContentTypeJSON, rec.Header().Get(constants.HeaderContentType))
	assert.Empty(t, rec.Header().Get(HeaderCache))

	body := decodeBody(t, rec)
	assert.Equal(t, 4.0, body["record_count"])

	k := body["k_anonymity"].(map[string]interface{})
	assert.Equal(t, false, k["satisfies_k_anonymity"])
	assert.Equal(t, 2.0, k["k_value"])
	assert.Equal(t, 1.0, k["violating_groups"])

	require.Len(t, store.reports, 1)
	assert.Equal(t, 1, scores.written)
}

func TestAuditThresholdOverrides(t *testing.T) {
	h := NewAuditHandler(testDefaults(), Backends{}, nil, quietLogger())

	k := 1
	rec := post(t, h.Audit, "/api/v1/audit", AuditRequest{
		DatasetRequest: DatasetRequest{Records: sampleRecords},
		K:              &k,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decodeBody(t, rec)["k_anonymity"].(map[string]interface{})
	assert.Equal(t, true, report["satisfies_k_anonymity"])
}

func TestAuditRejectsInvalidThreshold(t *testing.T) {
	h := NewAuditHandler(testDefaults(), Backends{}, nil, quietLogger())

	tVal := 1.5
	rec := post(t, h.Audit, "/api/v1/audit", AuditRequest{
		DatasetRequest: DatasetRequest{Records: sampleRecords},
		T:              &tVal,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.CodeInvalidInput, errorCode(t, rec))
}

func TestAuditMissingQuasiIdentifierColumn(t *testing.T) {
	h := NewAuditHandler(testDefaults(), Backends{}, nil, quietLogger())

	rec := post(t, h.Audit, "/api/v1/audit", AuditRequest{
		DatasetRequest:   DatasetRequest{Records: sampleRecords},
		QuasiIdentifiers: []string{"zip_code"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditMalformedBody(t *testing.T) {
	h := NewAuditHandler(testDefaults(), Backends{}, nil, quietLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Audit(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.CodeInvalidInput, errorCode(t, rec))
}

func TestAuditWithoutWarehouse(t *testing.T) {
	h := NewAuditHandler(testDefaults(), Backends{}, nil, quietLogger())

	rec := post(t, h.Audit, "/api/v1/audit", AuditRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditWarehouseCaching(t *testing.T) {
	source := &fakeSource{ds: sampleDataset(t)}
	cache := &fakeCache{}
	archive := &fakeArchive{}
	h := NewAuditHandler(testDefaults(), Backends{Source: source, Cache: cache, Archive: archive}, nil, quietLogger())

	first := post(t, h.Audit, "/api/v1/audit", AuditRequest{})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "MISS", first.Header().Get(HeaderCache))
	assert.NotEmpty(t, first.Header().Get(HeaderArchiveKey))
	assert.Equal(t, []string{"SELECT * FROM patient_dim"}, source.queries)
	assert.Len(t, cache.items, 1)

	second := post(t, h.Audit, "/api/v1/audit", AuditRequest{})
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(HeaderCache))
	assert.Len(t, source.queries, 1)
	assert.Equal(t, decodeBody(t, first)["id"], decodeBody(t, second)["id"])

	// a different threshold is a different cache entry
	k := 3
	third := post(t, h.Audit, "/api/v1/audit", AuditRequest{K: &k})
	require.Equal(t, http.StatusOK, third.Code)
	assert.Equal(t, "MISS", third.Header().Get(HeaderCache))
	assert.Len(t, source.queries, 2)
}

func TestAuditArchiveFailureIsNotFatal(t *testing.T) {
	archive := &fakeArchive{err: errors.NewStorageError(errors.CodeWriteFailed, "s3 down")}
	h := NewAuditHandler(testDefaults(), Backends{Archive: archive}, nil, quietLogger())

	rec := post(t, h.Audit, "/api/v1/audit", AuditRequest{DatasetRequest: DatasetRequest{Records: sampleRecords}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderArchiveKey))
}

func TestAuditFormats(t *testing.T) {
	h := NewAuditHandler(testDefaults(), Backends{}, nil, quietLogger())
	body := AuditRequest{DatasetRequest: DatasetRequest{Records: sampleRecords}}

	yamlRec := post(t, h.Audit, "/api/v1/audit?format=yaml", body)
	require.Equal(t, http.StatusOK, yamlRec.Code)
	assert.Equal(t, constants.ContentTypeYAML, yamlRec.Header().Get(constants.HeaderContentType))
	assert.Contains(t, yamlRec.Body.String(), "record_count: 4")

	csvRec := post(t, h.Audit, "/api/v1/audit?format=csv", body)
	require.Equal(t, http.StatusOK, csvRec.Code)
	assert.Equal(t, constants.ContentTypeCSV, csvRec.Header().Get(constants.HeaderContentType))
	assert.True(t, strings.HasPrefix(csvRec.Body.String(), "check,attribute,threshold"))

	bad := post(t, h.Audit, "/api/v1/audit?format=xml", body)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestAuditSinkReceivesEvents(t *testing.T) {
	var events []privacy.EventType
	sink := sinkFunc(func(e privacy.Event) { events = append(events, e.Type) })
	h := NewAuditHandler(testDefaults(), Backends{}, sink, quietLogger())

	rec := post(t, h.Audit, "/api/v1/audit", AuditRequest{DatasetRequest: DatasetRequest{Records: sampleRecords}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, events, privacy.EventAuditCompleted)
}

type sinkFunc func(privacy.Event)

func (f sinkFunc) Emit(e privacy.Event) { f(e) }

func TestEnforceSuppress(t *testing.T) {
	h := NewAuditHandler(testDefaults(), Backends{}, nil, quietLogger())

	rec := post(t, h.Enforce, "/api/v1/enforce", EnforceRequest{DatasetRequest: DatasetRequest{Records: sampleRecords}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Result  privacy.EnforcementResult `json:"result"`
		Records []map[string]interface{}  `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, privacy.MethodSuppress, resp.Result.EffectiveMethod)
	assert.Equal(t, 4, resp.Result.InputRecords)
	assert.Equal(t, 3, resp.Result.OutputRecords)
	assert.Equal(t, 1, resp.Result.Suppressed)
	require.Len(t, resp.Records, 3)
	for _, r := range resp.Records {
		assert.Equal(t, "18-30", r["age_group"])
	}
}

func TestEnforceGeneralize(t *testing.T) {
	h := NewAuditHandler(testDefaults(), Backends{}, nil, quietLogger())

	rec := post(t, h.Enforce, "/api/v1/enforce", EnforceRequest{
		DatasetRequest: DatasetRequest{Records: sampleRecords},
		Method:         "generalize",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Result  privacy.EnforcementResult `json:"result"`
		Records []map[string]interface{}  `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 4, resp.Result.OutputRecords)
	assert.Equal(t, 1, resp.Result.Generalized)
	require.Len(t, resp.Records, 4)
	assert.Equal(t, privacy.SeniorBand, resp.Records[3]["age_group"])
}

func TestEnforceUnknownMethod(t *testing.T) {
	h := NewAuditHandler(testDefaults(), Backends{}, nil, quietLogger())

	rec := post(t, h.Enforce, "/api/v1/enforce", EnforceRequest{
		DatasetRequest: DatasetRequest{Records: sampleRecords},
		Method:         "shuffle",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.CodeUnknownMethod, errorCode(t, rec))
}

func TestEnforceCSV(t *testing.T) {
	h := NewAuditHandler(testDefaults(), Backends{}, nil, quietLogger())

	rec := post(t, h.Enforce, "/api/v1/enforce?format=csv", EnforceRequest{DatasetRequest: DatasetRequest{Records: sampleRecords}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "age_group,diagnosis,gender,state", lines[0])
}

func TestRecordColumns(t *testing.T) {
	cols := recordColumns([]map[string]interface{}{
		{"b": 1, "a": 2},
		{"c": nil},
	})
	assert.Equal(t, []string{"a", "b", "c"}, cols)
}
