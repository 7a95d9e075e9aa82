package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
)

const rule = "================================================================================"

type ConsoleReporter struct {
	out io.Writer
}

func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// NewConsoleReporterTo writes to out instead of stdout.
func NewConsoleReporterTo(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// ReportAudit prints the pass/fail summary of an audit.
func (r *ConsoleReporter) ReportAudit(report *privacy.AuditReport) error {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, rule)
	fmt.Fprintln(r.out, color.New(color.Bold).Sprint("PRIVACY AUDIT SUMMARY"))
	fmt.Fprintln(r.out, rule)
	fmt.Fprintf(r.out, "Records analyzed: %d\n", report.RecordCount)

	if k := report.KAnonymity; k != nil {
		fmt.Fprintf(r.out, "K-anonymity (k=%d): %s\n", k.K, verdict(k.Satisfies))
		fmt.Fprintf(r.out, "  - Smallest group: %s\n", intOrNA(k.SmallestGroupSize))
		fmt.Fprintf(r.out, "  - Violating groups: %d\n", k.ViolatingGroups)
	}

	seen := make(map[string]bool)
	for _, attr := range report.SensitiveAttributes {
		if seen[attr] {
			continue
		}
		seen[attr] = true

		fmt.Fprintf(r.out, "\n%s:\n", color.CyanString(strings.ToUpper(attr)))
		if l := report.LDiversity[attr]; l != nil {
			fmt.Fprintf(r.out, "  L-diversity (l=%d): %s\n", l.L, verdict(l.Satisfies))
			fmt.Fprintf(r.out, "    - Min diversity: %s\n", intOrNA(l.MinDiversity))
		}
		if tc := report.TCloseness[attr]; tc != nil {
			fmt.Fprintf(r.out, "  T-closeness (t=%g): %s\n", tc.T, verdict(tc.Satisfies))
			fmt.Fprintf(r.out, "    - Max distance: %.4f\n", tc.MaxDistance)
		}
	}

	fmt.Fprintf(r.out, "\n%s\n", rule)
	fmt.Fprintf(r.out, "OVERALL PRIVACY SCORE: %s/100\n", scoreColor(report.OverallPrivacyScore).Sprintf("%.1f", report.OverallPrivacyScore))
	fmt.Fprintln(r.out, rule)
	return nil
}

// ReportEnforcement prints how many records an enforcement pass removed or
// rewrote.
func (r *ConsoleReporter) ReportEnforcement(result *privacy.EnforcementResult) error {
	fmt.Fprintf(r.out, "K-anonymity enforcement (k=%d, method=%s)\n", result.K, result.EffectiveMethod)
	if result.FellBackToSuppress {
		fmt.Fprintln(r.out, color.YellowString("  ! %s is not a quasi-identifier, suppressed instead of generalizing", privacy.AgeGroupColumn))
	}
	fmt.Fprintf(r.out, "  - Input records: %d\n", result.InputRecords)
	fmt.Fprintf(r.out, "  - Output records: %d\n", result.OutputRecords)
	fmt.Fprintf(r.out, "  - Suppressed: %d\n", result.Suppressed)
	fmt.Fprintf(r.out, "  - Generalized: %d\n", result.Generalized)
	return nil
}

// ReportBudget prints epsilon used and remaining.
func (r *ConsoleReporter) ReportBudget(report *privacy.BudgetReport) error {
	fmt.Fprintf(r.out, "\nPrivacy Budget Used: ε=%.4f\n", report.TotalEpsilonUsed)
	fmt.Fprintf(r.out, "Budget Remaining: ε=%.4f\n", report.BudgetRemaining)
	if report.Exceeded {
		fmt.Fprintln(r.out, color.RedString("✘ Recommended maximum ε=%.4f exceeded", report.RecommendedMax))
	}
	return nil
}

func verdict(pass bool) string {
	if pass {
		return color.GreenString("✔ PASS")
	}
	return color.RedString("✘ FAIL")
}

func scoreColor(score float64) *color.Color {
	switch {
	case score >= 100:
		return color.New(color.FgGreen, color.Bold)
	case score >= 50:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func intOrNA(v *int) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *v)
}
