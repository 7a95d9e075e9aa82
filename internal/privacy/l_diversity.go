package privacy

import (
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// LDiversityResult summarises distinct-value counts of one sensitive
// attribute across equivalence classes. The diversity statistics are nil
// for an empty dataset.
type LDiversityResult struct {
	Satisfies          bool     `json:"satisfies_l_diversity" yaml:"satisfies_l_diversity"`
	L                  int      `json:"l_value" yaml:"l_value"`
	SensitiveAttribute string   `json:"sensitive_attribute" yaml:"sensitive_attribute"`
	TotalGroups        int      `json:"total_groups" yaml:"total_groups"`
	ViolatingGroups    int      `json:"violating_groups" yaml:"violating_groups"`
	MinDiversity       *int     `json:"min_diversity" yaml:"min_diversity"`
	MaxDiversity       *int     `json:"max_diversity" yaml:"max_diversity"`
	AvgDiversity       *float64 `json:"avg_diversity" yaml:"avg_diversity"`
}

// CheckLDiversity reports whether every equivalence class holds at least l
// distinct non-null values of sensitive. A class whose sensitive values are
// all null has diversity 0.
func CheckLDiversity(ds *models.Dataset, quasiIdentifiers []string, sensitive string, l int) (*LDiversityResult, error) {
	if err := validateL(l); err != nil {
		return nil, err
	}
	if sensitive == "" {
		return nil, errMissingSensitiveAttribute()
	}

	classes, err := Aggregate(ds, quasiIdentifiers, sensitive)
	if err != nil {
		return nil, err
	}

	result := &LDiversityResult{
		L:                  l,
		SensitiveAttribute: sensitive,
		TotalGroups:        len(classes),
	}

	if len(classes) == 0 {
		result.Satisfies = true
		return result, nil
	}

	minDiv, maxDiv, total := -1, 0, 0
	for _, class := range classes {
		d := class.Distribution.DistinctNonNull()
		if d < l {
			result.ViolatingGroups++
		}
		if minDiv < 0 || d < minDiv {
			minDiv = d
		}
		if d > maxDiv {
			maxDiv = d
		}
		total += d
	}

	avg := float64(total) / float64(len(classes))
	result.Satisfies = minDiv >= l
	result.MinDiversity = &minDiv
	result.MaxDiversity = &maxDiv
	result.AvgDiversity = &avg

	return result, nil
}

func (r *LDiversityResult) fields() map[string]interface{} {
	fields := map[string]interface{}{
		"l_value":          r.L,
		"sensitive_attr":   r.SensitiveAttribute,
		"satisfied":        r.Satisfies,
		"total_groups":     r.TotalGroups,
		"violating_groups": r.ViolatingGroups,
	}
	if r.MinDiversity != nil {
		fields["min_diversity"] = *r.MinDiversity
	}
	return fields
}
