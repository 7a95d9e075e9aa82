package export

import (
	"context"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// YAMLExporter writes documents as YAML.
type YAMLExporter struct{}

// Name returns the exporter name
func (ye *YAMLExporter) Name() string {
	return "yaml"
}

// SupportedFormats returns supported formats
func (ye *YAMLExporter) SupportedFormats() []ExportFormat {
	return []ExportFormat{FormatYAML}
}

// Export encodes doc with two-space indentation.
func (ye *YAMLExporter) Export(ctx context.Context, writer io.Writer, doc interface{}, options ExportOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ds, ok := doc.(*models.Dataset); ok {
		doc = Records(ds)
	}

	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "Failed to encode YAML")
	}
	if err := encoder.Close(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "Failed to flush YAML")
	}
	return nil
}

// ValidateOptions validates YAML export options
func (ye *YAMLExporter) ValidateOptions(options ExportOptions) error {
	return nil
}
