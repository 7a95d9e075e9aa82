package reporter

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
)

func plainOutput(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func intPtr(v int) *int { return &v }

func TestReportAudit(t *testing.T) {
	plainOutput(t)

	report := &privacy.AuditReport{
		RecordCount:         12,
		SensitiveAttributes: []string{"diagnosis", "diagnosis"},
		KAnonymity:          &privacy.KAnonymityResult{Satisfies: false, K: 5, ViolatingGroups: 1, SmallestGroupSize: intPtr(2)},
		LDiversity: map[string]*privacy.LDiversityResult{
			"diagnosis": {Satisfies: false, L: 3, MinDiversity: intPtr(1)},
		},
		TCloseness: map[string]*privacy.TClosenessResult{
			"diagnosis": {Satisfies: true, T: 0.2, MaxDistance: 0.125},
		},
		OverallPrivacyScore: 40,
	}

	var buf bytes.Buffer
	require.NoError(t, NewConsoleReporterTo(&buf).ReportAudit(report))
	out := buf.String()

	assert.Contains(t, out, "PRIVACY AUDIT SUMMARY")
	assert.Contains(t, out, "Records analyzed: 12")
	assert.Contains(t, out, "K-anonymity (k=5): ✘ FAIL")
	assert.Contains(t, out, "  - Smallest group: 2")
	assert.Contains(t, out, "  - Violating groups: 1")
	assert.Contains(t, out, "DIAGNOSIS:")
	assert.Contains(t, out, "  L-diversity (l=3): ✘ FAIL")
	assert.Contains(t, out, "    - Min diversity: 1")
	assert.Contains(t, out, "  T-closeness (t=0.2): ✔ PASS")
	assert.Contains(t, out, "    - Max distance: 0.1250")
	assert.Contains(t, out, "OVERALL PRIVACY SCORE: 40.0/100")
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("DIAGNOSIS:")))
}

func TestReportAuditEmptyDataset(t *testing.T) {
	plainOutput(t)

	report := &privacy.AuditReport{
		KAnonymity:          &privacy.KAnonymityResult{Satisfies: true, K: 5},
		OverallPrivacyScore: 100,
	}

	var buf bytes.Buffer
	require.NoError(t, NewConsoleReporterTo(&buf).ReportAudit(report))
	assert.Contains(t, buf.String(), "Smallest group: n/a")
	assert.Contains(t, buf.String(), "OVERALL PRIVACY SCORE: 100.0/100")
}

func TestReportEnforcement(t *testing.T) {
	plainOutput(t)

	var buf bytes.Buffer
	require.NoError(t, NewConsoleReporterTo(&buf).ReportEnforcement(&privacy.EnforcementResult{
		K:                  5,
		Method:             privacy.MethodGeneralize,
		EffectiveMethod:    privacy.MethodSuppress,
		FellBackToSuppress: true,
		InputRecords:       12,
		OutputRecords:      10,
		Suppressed:         2,
	}))

	out := buf.String()
	assert.Contains(t, out, "method=suppress")
	assert.Contains(t, out, "age_group is not a quasi-identifier")
	assert.Contains(t, out, "  - Suppressed: 2")
}

func TestReportBudget(t *testing.T) {
	plainOutput(t)

	var buf bytes.Buffer
	require.NoError(t, NewConsoleReporterTo(&buf).ReportBudget(&privacy.BudgetReport{
		TotalEpsilonUsed: 1.25,
		BudgetRemaining:  0,
		RecommendedMax:   1,
		Exceeded:         true,
	}))

	out := buf.String()
	assert.Contains(t, out, "Privacy Budget Used: ε=1.2500")
	assert.Contains(t, out, "Budget Remaining: ε=0.0000")
	assert.Contains(t, out, "exceeded")
}
