package privacy

import (
	"strings"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// Method selects how EnforceKAnonymity treats records in undersized classes.
type Method string

const (
	MethodSuppress   Method = "suppress"
	MethodGeneralize Method = "generalize"
)

// AgeGroupColumn is the only quasi-identifier generalize knows how to coarsen.
const AgeGroupColumn = "age_group"

const (
	AdultBand  = "Adult (18-60)"
	SeniorBand = "Senior (60+)"
)

var adultAgeGroups = map[string]bool{
	"18-30": true,
	"31-45": true,
	"46-60": true,
}

// ParseMethod maps a method name onto a Method. Unrecognised names are an
// UnknownMethodError.
func ParseMethod(name string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(name))) {
	case MethodSuppress:
		return MethodSuppress, nil
	case MethodGeneralize:
		return MethodGeneralize, nil
	default:
		return "", errors.NewUnknownMethodError(name)
	}
}

// EnforcementResult carries the transformed dataset and what was done to it.
type EnforcementResult struct {
	Dataset *models.Dataset `json:"-" yaml:"-"`

	K               int    `json:"k_value" yaml:"k_value"`
	Method          Method `json:"method" yaml:"method"`
	EffectiveMethod Method `json:"effective_method" yaml:"effective_method"`
	// FellBackToSuppress is set when generalize was requested but
	// age_group is not a quasi-identifier.
	FellBackToSuppress bool `json:"fell_back_to_suppress" yaml:"fell_back_to_suppress"`
	InputRecords       int  `json:"input_records" yaml:"input_records"`
	OutputRecords      int  `json:"output_records" yaml:"output_records"`
	Suppressed         int  `json:"suppressed_records" yaml:"suppressed_records"`
	Generalized        int  `json:"generalized_records" yaml:"generalized_records"`
}

// EnforceKAnonymity returns a new dataset in which undersized equivalence
// classes have been handled by method. The input dataset is not modified.
//
// suppress drops every record whose class has fewer than k members.
// generalize rewrites age_group of those records into two coarse bands and
// keeps all rows; it falls back to suppress when age_group is not among
// quasiIdentifiers.
func EnforceKAnonymity(ds *models.Dataset, quasiIdentifiers []string, k int, method Method) (*EnforcementResult, error) {
	if method != MethodSuppress && method != MethodGeneralize {
		return nil, errors.NewUnknownMethodError(string(method))
	}
	if err := validateK(k); err != nil {
		return nil, err
	}

	classes, err := Aggregate(ds, quasiIdentifiers, "")
	if err != nil {
		return nil, err
	}

	undersized := make(map[int]bool)
	for _, class := range classes {
		if class.Size < k {
			for _, row := range class.Rows {
				undersized[row] = true
			}
		}
	}

	result := &EnforcementResult{
		K:               k,
		Method:          method,
		EffectiveMethod: method,
		InputRecords:    ds.Len(),
	}

	if method == MethodGeneralize && !containsColumn(quasiIdentifiers, AgeGroupColumn) {
		result.EffectiveMethod = MethodSuppress
		result.FellBackToSuppress = true
	}

	switch result.EffectiveMethod {
	case MethodGeneralize:
		col, _ := ds.ColumnIndex(AgeGroupColumn)
		replace := make(map[int]models.Value, len(undersized))
		for row := range undersized {
			replace[row] = models.Str(generalizeAgeGroup(ds.Value(row, col)))
		}
		result.Dataset = ds.WithColumnValues(col, replace)
		result.Generalized = len(replace)
	default:
		result.Dataset = ds.Filter(func(i int) bool { return !undersized[i] })
		result.Suppressed = len(undersized)
	}

	result.OutputRecords = result.Dataset.Len()
	return result, nil
}

// generalizeAgeGroup maps the three adult bands onto AdultBand and every
// other value, null included, onto SeniorBand.
func generalizeAgeGroup(v models.Value) string {
	if !v.IsNull() && adultAgeGroups[v.String()] {
		return AdultBand
	}
	return SeniorBand
}

func containsColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}

func (r *EnforcementResult) fields() map[string]interface{} {
	return map[string]interface{}{
		"k_value":          r.K,
		"method":           string(r.Method),
		"effective_method": string(r.EffectiveMethod),
		"input_records":    r.InputRecords,
		"output_records":   r.OutputRecords,
		"suppressed":       r.Suppressed,
		"generalized":      r.Generalized,
	}
}
