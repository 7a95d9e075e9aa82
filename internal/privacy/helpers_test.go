package privacy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// nullCell marks a missing value in test fixtures.
const nullCell = "<null>"

func newTestDataset(t *testing.T, columns []string, rows ...[]string) *models.Dataset {
	t.Helper()

	values := make([][]models.Value, len(rows))
	for i, row := range rows {
		values[i] = make([]models.Value, len(row))
		for j, cell := range row {
			if cell == nullCell {
				values[i][j] = models.Null()
			} else {
				values[i][j] = models.Str(cell)
			}
		}
	}

	ds, err := models.NewDataset(columns, values)
	require.NoError(t, err)
	return ds
}

// repeatRows returns n copies of row.
func repeatRows(n int, row ...string) [][]string {
	out := make([][]string, n)
	for i := range out {
		out[i] = row
	}
	return out
}

func concatRows(groups ...[][]string) [][]string {
	var out [][]string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// visitsDataset has three (age_group, gender) classes of sizes 2, 4 and 6.
func visitsDataset(t *testing.T) *models.Dataset {
	rows := concatRows(
		repeatRows(2, "18-30", "F", "Flu"),
		repeatRows(4, "31-45", "M", "Asthma"),
		repeatRows(6, "61-75", "F", "Diabetes"),
	)
	return newTestDataset(t, []string{"age_group", "gender", "diagnosis"}, rows...)
}

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Emit(e Event) {
	r.events = append(r.events, e)
}

func (r *recordingSink) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
