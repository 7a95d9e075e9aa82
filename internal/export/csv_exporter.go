package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// CSVExporter implements CSV export functionality. Datasets and enforcement
// results are written row for row; audit and budget reports are flattened
// into one row per check or query.
type CSVExporter struct{}

// Name returns the exporter name
func (ce *CSVExporter) Name() string {
	return "csv"
}

// SupportedFormats returns supported formats
func (ce *CSVExporter) SupportedFormats() []ExportFormat {
	return []ExportFormat{FormatCSV}
}

// Export exports doc to CSV
func (ce *CSVExporter) Export(ctx context.Context, writer io.Writer, doc interface{}, options ExportOptions) error {
	switch d := doc.(type) {
	case *models.Dataset:
		return WriteCSV(ctx, writer, d, options)
	case *privacy.EnforcementResult:
		if d.Dataset == nil {
			return errors.NewInvalidInputError("enforcement result carries no dataset")
		}
		return WriteCSV(ctx, writer, d.Dataset, options)
	case *privacy.AuditReport:
		return ce.writeTable(writer, options, auditSummaryHeaders, auditSummaryRows(d))
	case *privacy.BudgetReport:
		return ce.writeTable(writer, options, budgetHeaders, budgetRows(d))
	default:
		return errors.NewInvalidInputError(fmt.Sprintf("CSV export does not support %T", doc))
	}
}

// ValidateOptions validates CSV export options
func (ce *CSVExporter) ValidateOptions(options ExportOptions) error {
	_, err := delimiter(options.CSVOptions)
	return err
}

func (ce *CSVExporter) writeTable(writer io.Writer, options ExportOptions, headers []string, rows [][]string) error {
	comma, err := delimiter(options.CSVOptions)
	if err != nil {
		return err
	}

	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = comma

	if options.IncludeHeaders {
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}
	if err := csvWriter.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}

// WriteCSV writes ds with one column per dataset column. Nulls are written
// as options.CSVOptions.NullValue.
func WriteCSV(ctx context.Context, writer io.Writer, ds *models.Dataset, options ExportOptions) error {
	comma, err := delimiter(options.CSVOptions)
	if err != nil {
		return err
	}

	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = comma
	defer csvWriter.Flush()

	if options.IncludeHeaders {
		if err := csvWriter.Write(ds.Columns()); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	row := make([]string, len(ds.Columns()))
	for i := 0; i < ds.Len(); i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		for j := range row {
			v := ds.Value(i, j)
			if v.IsNull() {
				row[j] = options.CSVOptions.NullValue
			} else {
				row[j] = v.String()
			}
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// ReadCSV reads a dataset whose first row is the header. Empty cells, and
// cells equal to options.NullValue when it is set, become null. A column
// whose every non-null cell parses as a finite number is read as numeric;
// any other column is read as text.
func ReadCSV(reader io.Reader, options CSVOptions) (*models.Dataset, error) {
	comma, err := delimiter(options)
	if err != nil {
		return nil, err
	}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = comma

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidInput, "Failed to parse CSV")
	}
	if len(records) == 0 {
		return nil, errors.NewInvalidInputError("CSV input has no header row")
	}

	columns := records[0]
	body := records[1:]

	isNull := func(cell string) bool {
		return cell == "" || (options.NullValue != "" && cell == options.NullValue)
	}

	numeric := make([]bool, len(columns))
	for j := range columns {
		numeric[j] = true
		for _, rec := range body {
			if isNull(rec[j]) {
				continue
			}
			if _, ok := parseNumber(rec[j]); !ok {
				numeric[j] = false
				break
			}
		}
	}

	rows := make([][]models.Value, len(body))
	for i, rec := range body {
		row := make([]models.Value, len(columns))
		for j, cell := range rec {
			switch {
			case isNull(cell):
				row[j] = models.Null()
			case numeric[j]:
				f, _ := parseNumber(cell)
				row[j] = models.Num(f)
			default:
				row[j] = models.Str(cell)
			}
		}
		rows[i] = row
	}

	return models.NewDataset(columns, rows)
}

func parseNumber(cell string) (float64, bool) {
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func delimiter(options CSVOptions) (rune, error) {
	if options.Delimiter == "" {
		return ',', nil
	}
	if utf8.RuneCountInString(options.Delimiter) != 1 {
		return 0, errors.NewInvalidInputError("CSV delimiter must be a single character")
	}
	r, _ := utf8.DecodeRuneInString(options.Delimiter)
	return r, nil
}

var auditSummaryHeaders = []string{"check", "attribute", "threshold", "satisfied", "total_groups", "violating_groups"}

func auditSummaryRows(report *privacy.AuditReport) [][]string {
	var rows [][]string
	if k := report.KAnonymity; k != nil {
		rows = append(rows, []string{
			"k_anonymity", "", strconv.Itoa(k.K), strconv.FormatBool(k.Satisfies),
			strconv.Itoa(k.TotalGroups), strconv.Itoa(k.ViolatingGroups),
		})
	}

	for _, attr := range sortedAttributes(report.LDiversity) {
		l := report.LDiversity[attr]
		rows = append(rows, []string{
			"l_diversity", attr, strconv.Itoa(l.L), strconv.FormatBool(l.Satisfies),
			strconv.Itoa(l.TotalGroups), strconv.Itoa(l.ViolatingGroups),
		})
	}

	for _, attr := range sortedAttributes(report.TCloseness) {
		tc := report.TCloseness[attr]
		rows = append(rows, []string{
			"t_closeness", attr, strconv.FormatFloat(tc.T, 'f', -1, 64), strconv.FormatBool(tc.Satisfies),
			strconv.Itoa(tc.TotalGroups), strconv.Itoa(tc.ViolatingGroups),
		})
	}
	return rows
}

var budgetHeaders = []string{"query", "epsilon", "cumulative_epsilon", "timestamp"}

func budgetRows(report *privacy.BudgetReport) [][]string {
	rows := make([][]string, len(report.Queries))
	for i, q := range report.Queries {
		rows[i] = []string{
			q.Query,
			strconv.FormatFloat(q.Epsilon, 'f', -1, 64),
			strconv.FormatFloat(q.CumulativeEpsilon, 'f', -1, 64),
			q.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return rows
}

func sortedAttributes[V any](m map[string]*V) []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
