package privacy

import (
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// KAnonymityResult summarises the equivalence-class sizes of a dataset
// against a threshold k. The size statistics are nil for an empty dataset.
type KAnonymityResult struct {
	Satisfies         bool     `json:"satisfies_k_anonymity" yaml:"satisfies_k_anonymity"`
	K                 int      `json:"k_value" yaml:"k_value"`
	TotalGroups       int      `json:"total_groups" yaml:"total_groups"`
	ViolatingGroups   int      `json:"violating_groups" yaml:"violating_groups"`
	SmallestGroupSize *int     `json:"smallest_group_size" yaml:"smallest_group_size"`
	LargestGroupSize  *int     `json:"largest_group_size" yaml:"largest_group_size"`
	AverageGroupSize  *float64 `json:"average_group_size" yaml:"average_group_size"`
	RecordsAtRisk     int      `json:"records_at_risk" yaml:"records_at_risk"`
}

// CheckKAnonymity reports whether every equivalence class over
// quasiIdentifiers has at least k members.
func CheckKAnonymity(ds *models.Dataset, quasiIdentifiers []string, k int) (*KAnonymityResult, error) {
	if err := validateK(k); err != nil {
		return nil, err
	}

	classes, err := Aggregate(ds, quasiIdentifiers, "")
	if err != nil {
		return nil, err
	}

	return summarizeKAnonymity(classes, k), nil
}

func summarizeKAnonymity(classes []*EquivalenceClass, k int) *KAnonymityResult {
	result := &KAnonymityResult{
		K:           k,
		TotalGroups: len(classes),
	}

	if len(classes) == 0 {
		result.Satisfies = true
		return result
	}

	smallest, largest, total := classes[0].Size, classes[0].Size, 0
	for _, class := range classes {
		if class.Size < k {
			result.ViolatingGroups++
			result.RecordsAtRisk += class.Size
		}
		if class.Size < smallest {
			smallest = class.Size
		}
		if class.Size > largest {
			largest = class.Size
		}
		total += class.Size
	}

	average := float64(total) / float64(len(classes))
	result.Satisfies = smallest >= k
	result.SmallestGroupSize = &smallest
	result.LargestGroupSize = &largest
	result.AverageGroupSize = &average

	return result
}

func (r *KAnonymityResult) fields() map[string]interface{} {
	fields := map[string]interface{}{
		"k_value":          r.K,
		"satisfied":        r.Satisfies,
		"total_groups":     r.TotalGroups,
		"violating_groups": r.ViolatingGroups,
		"records_at_risk":  r.RecordsAtRisk,
	}
	if r.SmallestGroupSize != nil {
		fields["smallest_group_size"] = *r.SmallestGroupSize
	}
	return fields
}
