package privacy

import (
	"math"
	"sort"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// Counter maps a categorical value (by its grouping key) to its number of
// occurrences.
type Counter map[string]int

// Add counts one occurrence of v.
func (c Counter) Add(v models.Value) {
	c[v.Key()]++
}

// Total returns the number of counted occurrences.
func (c Counter) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Distinct returns the number of distinct values with a positive count.
func (c Counter) Distinct() int {
	distinct := 0
	for _, n := range c {
		if n > 0 {
			distinct++
		}
	}
	return distinct
}

// DistinctNonNull is Distinct without the null bucket.
func (c Counter) DistinctNonNull() int {
	distinct := c.Distinct()
	if c[models.Null().Key()] > 0 {
		distinct--
	}
	return distinct
}

// Distance is the Earth Mover's Distance between two categorical
// distributions under the equal ground distance: half the L1 distance
// between their relative frequencies. The result is in [0, 1], 0 for
// identical distributions and 1 for disjoint support. Either counter
// having a zero total is an EmptyDistributionError.
func Distance(a, b Counter) (float64, error) {
	totalA, totalB := a.Total(), b.Total()
	if totalA == 0 || totalB == 0 {
		return 0, errors.NewEmptyDistributionError("cannot compare an empty distribution").
			WithContext("total_a", totalA).
			WithContext("total_b", totalB)
	}

	// Sum over the sorted union so that Distance(a, b) and Distance(b, a)
	// add the same terms in the same order.
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, seen := a[k]; !seen {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	ta, tb := float64(totalA), float64(totalB)
	sum := 0.0
	for _, k := range keys {
		sum += math.Abs(float64(a[k])/ta - float64(b[k])/tb)
	}

	return math.Min(1, sum/2), nil
}
