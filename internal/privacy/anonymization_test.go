package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("suppress")
	require.NoError(t, err)
	assert.Equal(t, MethodSuppress, m)

	m, err = ParseMethod(" Generalize ")
	require.NoError(t, err)
	assert.Equal(t, MethodGeneralize, m)

	_, err = ParseMethod("perturb")
	require.Error(t, err)
	assert.True(t, errors.IsUnknownMethod(err))
}

func TestEnforceSuppress(t *testing.T) {
	ds := visitsDataset(t)
	qis := []string{"age_group", "gender"}

	result, err := EnforceKAnonymity(ds, qis, 5, MethodSuppress)
	require.NoError(t, err)

	assert.Equal(t, 12, result.InputRecords)
	assert.Equal(t, 6, result.OutputRecords)
	assert.Equal(t, 6, result.Suppressed)
	assert.Equal(t, 0, result.Generalized)
	assert.Equal(t, MethodSuppress, result.EffectiveMethod)
	assert.False(t, result.FellBackToSuppress)

	// caller's dataset is untouched
	assert.Equal(t, 12, ds.Len())

	check, err := CheckKAnonymity(result.Dataset, qis, 5)
	require.NoError(t, err)
	assert.True(t, check.Satisfies)
}

func TestEnforceSuppressNeverGrows(t *testing.T) {
	ds := visitsDataset(t)

	for k := 1; k <= 8; k++ {
		result, err := EnforceKAnonymity(ds, []string{"age_group", "gender"}, k, MethodSuppress)
		require.NoError(t, err)
		assert.LessOrEqual(t, result.OutputRecords, ds.Len())

		classes, err := Aggregate(result.Dataset, []string{"age_group", "gender"}, "")
		require.NoError(t, err)
		for _, c := range classes {
			assert.GreaterOrEqual(t, c.Size, k, "k=%d", k)
		}
	}
}

func TestEnforceGeneralize(t *testing.T) {
	ds := newTestDataset(t, []string{"age_group", "gender", "diagnosis"},
		concatRows(
			repeatRows(5, "18-30", "F", "Flu"),
			[][]string{
				{"31-45", "F", "Flu"},
				{"46-60", "M", "Asthma"},
				{"61-75", "M", "Asthma"},
				{nullCell, "M", "Asthma"},
			},
		)...,
	)

	result, err := EnforceKAnonymity(ds, []string{"age_group", "gender"}, 5, MethodGeneralize)
	require.NoError(t, err)

	assert.Equal(t, MethodGeneralize, result.EffectiveMethod)
	assert.Equal(t, 9, result.OutputRecords)
	assert.Equal(t, 4, result.Generalized)
	assert.Equal(t, 0, result.Suppressed)

	got := make([]string, result.Dataset.Len())
	for i := range got {
		v, _ := result.Dataset.Record(i).Get("age_group")
		got[i] = v.String()
	}
	assert.Equal(t, []string{
		"18-30", "18-30", "18-30", "18-30", "18-30",
		AdultBand, AdultBand, SeniorBand, SeniorBand,
	}, got)

	orig, _ := ds.Record(5).Get("age_group")
	assert.Equal(t, "31-45", orig.String())
}

func TestEnforceGeneralizeFallsBackWithoutAgeGroup(t *testing.T) {
	ds := visitsDataset(t)

	result, err := EnforceKAnonymity(ds, []string{"gender", "diagnosis"}, 5, MethodGeneralize)
	require.NoError(t, err)

	assert.True(t, result.FellBackToSuppress)
	assert.Equal(t, MethodGeneralize, result.Method)
	assert.Equal(t, MethodSuppress, result.EffectiveMethod)
	assert.Equal(t, 6, result.OutputRecords)
	assert.Equal(t, 0, result.Generalized)
}

func TestEnforceValidation(t *testing.T) {
	ds := visitsDataset(t)

	_, err := EnforceKAnonymity(ds, []string{"gender"}, 5, Method("shuffle"))
	require.Error(t, err)
	assert.True(t, errors.IsUnknownMethod(err))

	_, err = EnforceKAnonymity(ds, nil, 5, MethodSuppress)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))

	_, err = EnforceKAnonymity(ds, []string{"gender"}, 0, MethodSuppress)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}
