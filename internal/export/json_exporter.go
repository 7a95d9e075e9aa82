package export

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// JSONExporter implements JSON export functionality
type JSONExporter struct{}

// Name returns the exporter name
func (je *JSONExporter) Name() string {
	return "json"
}

// SupportedFormats returns supported formats
func (je *JSONExporter) SupportedFormats() []ExportFormat {
	return []ExportFormat{FormatJSON}
}

// Export encodes doc as a single JSON document. Datasets are written as an
// array of column-keyed records.
func (je *JSONExporter) Export(ctx context.Context, writer io.Writer, doc interface{}, options ExportOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoder := json.NewEncoder(writer)
	if options.JSONOptions.Pretty {
		encoder.SetIndent("", "  ")
	}

	if ds, ok := doc.(*models.Dataset); ok {
		doc = Records(ds)
	}

	if err := encoder.Encode(doc); err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "Failed to encode JSON")
	}
	return nil
}

// ValidateOptions validates JSON export options
func (je *JSONExporter) ValidateOptions(options ExportOptions) error {
	return nil
}

// Records converts ds into column-keyed rows.
func Records(ds *models.Dataset) []map[string]models.Value {
	records := make([]map[string]models.Value, ds.Len())
	for i := range records {
		records[i] = ds.Record(i).Map()
	}
	return records
}
