package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

func TestCheckKAnonymity(t *testing.T) {
	ds := visitsDataset(t)

	result, err := CheckKAnonymity(ds, []string{"age_group", "gender"}, 5)
	require.NoError(t, err)

	assert.False(t, result.Satisfies)
	assert.Equal(t, 5, result.K)
	assert.Equal(t, 3, result.TotalGroups)
	assert.Equal(t, 2, result.ViolatingGroups)
	assert.Equal(t, 6, result.RecordsAtRisk)
	require.NotNil(t, result.SmallestGroupSize)
	assert.Equal(t, 2, *result.SmallestGroupSize)
	require.NotNil(t, result.LargestGroupSize)
	assert.Equal(t, 6, *result.LargestGroupSize)
	require.NotNil(t, result.AverageGroupSize)
	assert.Equal(t, 4.0, *result.AverageGroupSize)
}

func TestCheckKAnonymitySatisfied(t *testing.T) {
	ds := visitsDataset(t)

	result, err := CheckKAnonymity(ds, []string{"gender"}, 4)
	require.NoError(t, err)

	assert.True(t, result.Satisfies)
	assert.Equal(t, 0, result.ViolatingGroups)
	assert.Equal(t, 0, result.RecordsAtRisk)
	assert.Equal(t, 4, *result.SmallestGroupSize)
}

func TestCheckKAnonymityThresholdBoundary(t *testing.T) {
	ds := visitsDataset(t)

	for k := 1; k <= 7; k++ {
		result, err := CheckKAnonymity(ds, []string{"age_group", "gender"}, k)
		require.NoError(t, err)
		assert.Equal(t, k <= 2, result.Satisfies, "k=%d", k)
		assert.Equal(t, result.ViolatingGroups == 0, result.Satisfies, "k=%d", k)
	}
}

func TestCheckKAnonymityEmptyDataset(t *testing.T) {
	ds := newTestDataset(t, []string{"age_group", "gender"})

	result, err := CheckKAnonymity(ds, []string{"age_group", "gender"}, 5)
	require.NoError(t, err)

	assert.True(t, result.Satisfies)
	assert.Equal(t, 0, result.TotalGroups)
	assert.Nil(t, result.SmallestGroupSize)
	assert.Nil(t, result.LargestGroupSize)
	assert.Nil(t, result.AverageGroupSize)
}

func TestCheckKAnonymityInvalidK(t *testing.T) {
	_, err := CheckKAnonymity(visitsDataset(t), []string{"gender"}, 0)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestCheckLDiversity(t *testing.T) {
	rows := concatRows(
		repeatRows(5, "18-30", "Flu"),
		repeatRows(5, "18-30", "Asthma"),
		[][]string{{"31-45", "Flu"}, {"31-45", "Asthma"}, {"31-45", "Diabetes"}, {"31-45", "Flu"}},
	)
	ds := newTestDataset(t, []string{"age_group", "diagnosis"}, rows...)

	result, err := CheckLDiversity(ds, []string{"age_group"}, "diagnosis", 3)
	require.NoError(t, err)

	assert.False(t, result.Satisfies)
	assert.Equal(t, "diagnosis", result.SensitiveAttribute)
	assert.Equal(t, 2, result.TotalGroups)
	assert.Equal(t, 1, result.ViolatingGroups)
	assert.Equal(t, 2, *result.MinDiversity)
	assert.Equal(t, 3, *result.MaxDiversity)
	assert.Equal(t, 2.5, *result.AvgDiversity)
}

func TestCheckLDiversitySingleValueGroups(t *testing.T) {
	ds := visitsDataset(t)

	one, err := CheckLDiversity(ds, []string{"age_group", "gender"}, "diagnosis", 1)
	require.NoError(t, err)
	assert.True(t, one.Satisfies)

	for l := 2; l <= 4; l++ {
		result, err := CheckLDiversity(ds, []string{"age_group", "gender"}, "diagnosis", l)
		require.NoError(t, err)
		assert.False(t, result.Satisfies, "l=%d", l)
		assert.Equal(t, 3, result.ViolatingGroups)
	}
}

func TestCheckLDiversityIgnoresNulls(t *testing.T) {
	ds := newTestDataset(t, []string{"age_group", "diagnosis"},
		[]string{"18-30", "Flu"},
		[]string{"18-30", nullCell},
		[]string{"31-45", nullCell},
		[]string{"31-45", nullCell},
	)

	result, err := CheckLDiversity(ds, []string{"age_group"}, "diagnosis", 2)
	require.NoError(t, err)
	assert.False(t, result.Satisfies)
	assert.Equal(t, 2, result.ViolatingGroups)
	assert.Equal(t, 0, *result.MinDiversity)
	assert.Equal(t, 1, *result.MaxDiversity)

	one, err := CheckLDiversity(ds, []string{"age_group"}, "diagnosis", 1)
	require.NoError(t, err)
	assert.False(t, one.Satisfies, "an all-null class has no diversity")
	assert.Equal(t, 1, one.ViolatingGroups)
}

func TestCheckTClosenessKeepsNulls(t *testing.T) {
	ds := newTestDataset(t, []string{"age_group", "diagnosis"},
		[]string{"18-30", "Flu"},
		[]string{"18-30", nullCell},
		[]string{"31-45", "Flu"},
		[]string{"31-45", "Flu"},
	)

	result, err := CheckTCloseness(ds, []string{"age_group"}, "diagnosis", 1)
	require.NoError(t, err)
	// global {Flu: 3/4, null: 1/4}; 18-30 is {1/2, 1/2} and 31-45 is {1, 0}
	assert.InDelta(t, 0.25, result.MaxDistance, 1e-12)
}

func TestCheckLDiversityEmptyDataset(t *testing.T) {
	ds := newTestDataset(t, []string{"gender", "diagnosis"})

	result, err := CheckLDiversity(ds, []string{"gender"}, "diagnosis", 3)
	require.NoError(t, err)
	assert.True(t, result.Satisfies)
	assert.Nil(t, result.MinDiversity)
	assert.Nil(t, result.AvgDiversity)
}

func TestCheckLDiversityMissingAttribute(t *testing.T) {
	ds := visitsDataset(t)

	_, err := CheckLDiversity(ds, []string{"gender"}, "visit_type", 3)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))

	_, err = CheckLDiversity(ds, []string{"gender"}, "", 3)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestCheckTCloseness(t *testing.T) {
	ds := visitsDataset(t)

	result, err := CheckTCloseness(ds, []string{"age_group", "gender"}, "diagnosis", 0.2)
	require.NoError(t, err)

	// global: Flu 2/12, Asthma 4/12, Diabetes 6/12
	assert.False(t, result.Satisfies)
	assert.Equal(t, 3, result.TotalGroups)
	assert.Equal(t, 3, result.ViolatingGroups)
	assert.InDelta(t, 10.0/12.0, result.MaxDistance, 1e-12)
	assert.InDelta(t, (10.0/12+8.0/12+6.0/12)/3, result.AvgDistance, 1e-12)

	require.Len(t, result.Violations, 3)
	assert.Equal(t, "(18-30, F)", result.Violations[0].Group.String())
	assert.Equal(t, 2, result.Violations[0].Size)
	assert.Equal(t, "(61-75, F)", result.Violations[2].Group.String())
}

func TestCheckTClosenessUniformGroups(t *testing.T) {
	rows := concatRows(
		[][]string{{"F", "Flu"}, {"F", "Asthma"}},
		[][]string{{"M", "Asthma"}, {"M", "Flu"}},
	)
	ds := newTestDataset(t, []string{"gender", "diagnosis"}, rows...)

	result, err := CheckTCloseness(ds, []string{"gender"}, "diagnosis", 0)
	require.NoError(t, err)
	assert.True(t, result.Satisfies)
	assert.Equal(t, 0.0, result.MaxDistance)
	assert.Empty(t, result.Violations)
	assert.NotNil(t, result.Violations)
}

func TestCheckTClosenessStrictThreshold(t *testing.T) {
	// each class is at distance exactly 0.5 from the global distribution
	ds := newTestDataset(t, []string{"gender", "diagnosis"},
		[]string{"F", "Flu"},
		[]string{"M", "Asthma"},
	)

	atThreshold, err := CheckTCloseness(ds, []string{"gender"}, "diagnosis", 0.5)
	require.NoError(t, err)
	assert.True(t, atThreshold.Satisfies)
	assert.Equal(t, 0, atThreshold.ViolatingGroups)

	below, err := CheckTCloseness(ds, []string{"gender"}, "diagnosis", 0.49)
	require.NoError(t, err)
	assert.False(t, below.Satisfies)
	assert.Equal(t, 2, below.ViolatingGroups)
}

func TestCheckTClosenessCapsViolations(t *testing.T) {
	var rows [][]string
	for i := 0; i < 15; i++ {
		rows = append(rows, []string{string(rune('a' + i)), string(rune('A' + i))})
	}
	ds := newTestDataset(t, []string{"state", "diagnosis"}, rows...)

	result, err := CheckTCloseness(ds, []string{"state"}, "diagnosis", 0.2)
	require.NoError(t, err)
	assert.Equal(t, 15, result.ViolatingGroups)
	require.Len(t, result.Violations, 10)
	for i, v := range result.Violations {
		assert.Equal(t, "("+string(rune('a'+i))+")", v.Group.String())
	}
}

func TestCheckTClosenessEmptyDataset(t *testing.T) {
	ds := newTestDataset(t, []string{"gender", "diagnosis"})

	result, err := CheckTCloseness(ds, []string{"gender"}, "diagnosis", 0.2)
	require.NoError(t, err)
	assert.True(t, result.Satisfies)
	assert.Equal(t, 0.0, result.MaxDistance)
	assert.Equal(t, 0.0, result.AvgDistance)
	assert.Equal(t, 0, result.TotalGroups)
}

func TestCheckTClosenessInvalidT(t *testing.T) {
	ds := visitsDataset(t)

	for _, tv := range []float64{-0.1, 1.5} {
		_, err := CheckTCloseness(ds, []string{"gender"}, "diagnosis", tv)
		require.Error(t, err)
		assert.True(t, errors.IsInvalidInput(err))
	}
}
