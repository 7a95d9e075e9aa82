package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

// ExportFormat defines supported export formats
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatYAML ExportFormat = "yaml"
	FormatCSV  ExportFormat = "csv"
)

// ParseFormat maps a user supplied name onto an ExportFormat.
func ParseFormat(name string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", errors.NewInvalidInputError(fmt.Sprintf("unsupported export format %q", name))
	}
}

// ExportOptions contains export-specific options
type ExportOptions struct {
	IncludeHeaders bool        `json:"include_headers"`
	JSONOptions    JSONOptions `json:"json_options,omitempty"`
	CSVOptions     CSVOptions  `json:"csv_options,omitempty"`
}

// CSVOptions controls CSV reading and writing.
type CSVOptions struct {
	Delimiter string `json:"delimiter"`
	NullValue string `json:"null_value"`
}

// JSONOptions controls JSON output.
type JSONOptions struct {
	Pretty bool `json:"pretty"`
}

// DefaultExportOptions returns pretty JSON and comma separated CSV with a
// header row.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		IncludeHeaders: true,
		JSONOptions:    JSONOptions{Pretty: true},
		CSVOptions:     CSVOptions{Delimiter: ","},
	}
}

// Exporter writes audit documents (reports, enforcement results, budget
// reports, datasets) in one or more formats.
type Exporter interface {
	Name() string
	SupportedFormats() []ExportFormat
	Export(ctx context.Context, writer io.Writer, doc interface{}, options ExportOptions) error
	ValidateOptions(options ExportOptions) error
}

// ExportEngine dispatches documents to the exporter registered for a format
type ExportEngine struct {
	logger    *logrus.Logger
	mu        sync.RWMutex
	exporters map[ExportFormat]Exporter
}

// NewExportEngine creates an engine with the JSON, YAML and CSV exporters
// registered.
func NewExportEngine(logger *logrus.Logger) *ExportEngine {
	if logger == nil {
		logger = logrus.New()
	}

	engine := &ExportEngine{
		logger:    logger,
		exporters: make(map[ExportFormat]Exporter),
	}
	engine.RegisterExporter(&JSONExporter{})
	engine.RegisterExporter(&YAMLExporter{})
	engine.RegisterExporter(&CSVExporter{})

	return engine
}

// RegisterExporter registers exporter for every format it supports,
// replacing any previous registration.
func (ee *ExportEngine) RegisterExporter(exporter Exporter) {
	ee.mu.Lock()
	defer ee.mu.Unlock()

	for _, format := range exporter.SupportedFormats() {
		ee.exporters[format] = exporter
	}
	ee.logger.WithField("exporter", exporter.Name()).Debug("Registered exporter")
}

// Export writes doc to writer in format.
func (ee *ExportEngine) Export(ctx context.Context, format ExportFormat, writer io.Writer, doc interface{}, options ExportOptions) error {
	ee.mu.RLock()
	exporter, exists := ee.exporters[format]
	ee.mu.RUnlock()

	if !exists {
		return errors.NewInvalidInputError(fmt.Sprintf("no exporter found for format %s", format))
	}

	if err := exporter.ValidateOptions(options); err != nil {
		return err
	}

	start := time.Now()
	err := exporter.Export(ctx, writer, doc, options)

	ee.logger.WithFields(logrus.Fields{
		"format":   format,
		"doc_type": fmt.Sprintf("%T", doc),
		"duration": time.Since(start),
	}).Debug("Export completed")

	return err
}

// GetSupportedFormats returns all registered formats in name order
func (ee *ExportEngine) GetSupportedFormats() []ExportFormat {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	result := make([]ExportFormat, 0, len(ee.exporters))
	for format := range ee.exporters {
		result = append(result, format)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })

	return result
}
