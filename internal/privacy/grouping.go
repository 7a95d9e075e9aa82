package privacy

import (
	"strconv"
	"strings"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// GroupKey is the tuple of quasi-identifier values shared by an
// equivalence class, in quasi-identifier order.
type GroupKey []models.Value

// String renders the key as "(v1, v2, ...)"; nulls render as "null".
func (k GroupKey) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		if v.IsNull() {
			parts[i] = "null"
		} else {
			parts[i] = v.String()
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// EquivalenceClass is the set of records sharing identical
// quasi-identifier values.
type EquivalenceClass struct {
	Key  GroupKey
	Size int
	// Rows are dataset positions of the members, ascending.
	Rows []int
	// Distribution counts the sensitive attribute within the class. Nil
	// when the aggregation was run without a sensitive attribute.
	Distribution Counter
}

// Aggregate partitions ds into equivalence classes over quasiIdentifiers.
// Classes are returned in first-seen order. Nulls group together. When
// sensitive is non-empty each class also carries the frequency
// distribution of that column.
func Aggregate(ds *models.Dataset, quasiIdentifiers []string, sensitive string) ([]*EquivalenceClass, error) {
	cols, err := resolveQuasiIdentifiers(ds, quasiIdentifiers)
	if err != nil {
		return nil, err
	}

	sensitiveCol := -1
	if sensitive != "" {
		if err := ds.RequireColumns(sensitive); err != nil {
			return nil, err
		}
		sensitiveCol, _ = ds.ColumnIndex(sensitive)
	}

	index := make(map[string]*EquivalenceClass)
	classes := make([]*EquivalenceClass, 0)

	var sb strings.Builder
	for i := 0; i < ds.Len(); i++ {
		sb.Reset()
		for _, c := range cols {
			k := ds.Value(i, c).Key()
			sb.WriteString(strconv.Itoa(len(k)))
			sb.WriteByte(':')
			sb.WriteString(k)
		}
		id := sb.String()

		class, exists := index[id]
		if !exists {
			key := make(GroupKey, len(cols))
			for j, c := range cols {
				key[j] = ds.Value(i, c)
			}
			class = &EquivalenceClass{Key: key}
			if sensitiveCol >= 0 {
				class.Distribution = make(Counter)
			}
			index[id] = class
			classes = append(classes, class)
		}

		class.Size++
		class.Rows = append(class.Rows, i)
		if sensitiveCol >= 0 {
			class.Distribution.Add(ds.Value(i, sensitiveCol))
		}
	}

	return classes, nil
}

// ColumnDistribution counts every value of column across the whole dataset.
func ColumnDistribution(ds *models.Dataset, column string) (Counter, error) {
	if ds == nil {
		return nil, errors.NewInvalidInputError("dataset is nil")
	}
	if err := ds.RequireColumns(column); err != nil {
		return nil, err
	}
	col, _ := ds.ColumnIndex(column)

	dist := make(Counter)
	for i := 0; i < ds.Len(); i++ {
		dist.Add(ds.Value(i, col))
	}
	return dist, nil
}

func resolveQuasiIdentifiers(ds *models.Dataset, quasiIdentifiers []string) ([]int, error) {
	if ds == nil {
		return nil, errors.NewInvalidInputError("dataset is nil")
	}
	if len(quasiIdentifiers) == 0 {
		return nil, errors.NewInvalidInputError("quasi-identifier list is empty")
	}
	if err := ds.RequireColumns(quasiIdentifiers...); err != nil {
		return nil, err
	}

	cols := make([]int, len(quasiIdentifiers))
	for i, qi := range quasiIdentifiers {
		cols[i], _ = ds.ColumnIndex(qi)
	}
	return cols, nil
}
