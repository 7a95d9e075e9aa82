package privacy

import (
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// TClosenessViolation identifies one equivalence class whose sensitive
// distribution is further than t from the global distribution.
type TClosenessViolation struct {
	Group    GroupKey `json:"group" yaml:"group"`
	Distance float64  `json:"distance" yaml:"distance"`
	Size     int      `json:"size" yaml:"size"`
}

// TClosenessResult summarises class-to-global distances for one sensitive
// attribute. MaxDistance and AvgDistance are 0 when there are no classes.
type TClosenessResult struct {
	Satisfies          bool                  `json:"satisfies_t_closeness" yaml:"satisfies_t_closeness"`
	T                  float64               `json:"t_value" yaml:"t_value"`
	SensitiveAttribute string                `json:"sensitive_attribute" yaml:"sensitive_attribute"`
	TotalGroups        int                   `json:"total_groups" yaml:"total_groups"`
	ViolatingGroups    int                   `json:"violating_groups" yaml:"violating_groups"`
	MaxDistance        float64               `json:"max_distance" yaml:"max_distance"`
	AvgDistance        float64               `json:"avg_distance" yaml:"avg_distance"`
	Violations         []TClosenessViolation `json:"violations" yaml:"violations"`
}

// CheckTCloseness compares each class's distribution of sensitive against
// the whole-dataset distribution. A class violates when its distance is
// strictly greater than t. At most constants.MaxReportedViolations
// violations are listed, in discovery order.
func CheckTCloseness(ds *models.Dataset, quasiIdentifiers []string, sensitive string, t float64) (*TClosenessResult, error) {
	if err := validateT(t); err != nil {
		return nil, err
	}
	if sensitive == "" {
		return nil, errMissingSensitiveAttribute()
	}

	classes, err := Aggregate(ds, quasiIdentifiers, sensitive)
	if err != nil {
		return nil, err
	}

	result := &TClosenessResult{
		T:                  t,
		SensitiveAttribute: sensitive,
		TotalGroups:        len(classes),
		Violations:         make([]TClosenessViolation, 0),
	}

	if len(classes) == 0 {
		result.Satisfies = true
		return result, nil
	}

	global, err := ColumnDistribution(ds, sensitive)
	if err != nil {
		return nil, err
	}

	sum := 0.0
	for _, class := range classes {
		d, err := Distance(class.Distribution, global)
		if err != nil {
			return nil, err
		}

		if d > t {
			result.ViolatingGroups++
			if len(result.Violations) < constants.MaxReportedViolations {
				result.Violations = append(result.Violations, TClosenessViolation{
					Group:    class.Key,
					Distance: d,
					Size:     class.Size,
				})
			}
		}
		if d > result.MaxDistance {
			result.MaxDistance = d
		}
		sum += d
	}

	result.AvgDistance = sum / float64(len(classes))
	result.Satisfies = result.MaxDistance <= t

	return result, nil
}

func (r *TClosenessResult) fields() map[string]interface{} {
	return map[string]interface{}{
		"t_value":          r.T,
		"sensitive_attr":   r.SensitiveAttribute,
		"satisfied":        r.Satisfies,
		"total_groups":     r.TotalGroups,
		"violating_groups": r.ViolatingGroups,
		"max_distance":     r.MaxDistance,
	}
}

func errMissingSensitiveAttribute() error {
	return errors.NewInvalidInputError("sensitive attribute name is empty")
}
