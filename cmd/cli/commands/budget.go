package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/reporter"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

type BudgetOptions struct {
	Spend      []string
	MaxEpsilon float64
	Format     string
	OutputFile string
}

func NewBudgetCmd(globals *GlobalOptions) *cobra.Command {
	opts := &BudgetOptions{}

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Total the differential privacy budget of a series of queries",
		Long: `Record each query's epsilon in a ledger under sequential composition and
report the cumulative spend against the recommended maximum.`,
		Example: `  # Two queries against the default limit of 1.0
  privacy-cli budget --spend "count by state=0.3" --spend "mean cost=0.5"

  # Export the ledger as CSV
  privacy-cli budget --spend q1=0.2 --spend q2=0.9 --format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBudget(cmd.Context(), globals, opts, cmd.Flags().Changed, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVar(&opts.Spend, "spend", nil, "Query and epsilon as name=epsilon (repeatable, required)")
	cmd.Flags().Float64Var(&opts.MaxEpsilon, "max-epsilon", 0, "Recommended maximum cumulative epsilon (default from config)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", FormatConsole, "Output format (console, json, yaml, csv)")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "-", "Output file (- for stdout)")

	_ = cmd.MarkFlagRequired("spend")

	return cmd
}

func runBudget(ctx context.Context, globals *GlobalOptions, opts *BudgetOptions, changed func(string) bool, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, err := globals.load()
	if err != nil {
		return err
	}

	limit := cfg.Audit.RecommendedMaxEpsilon
	if changed("max-epsilon") {
		limit = opts.MaxEpsilon
	}

	ledger, err := privacy.NewLedger(limit, privacy.WithLedgerSink(privacy.NewLogrusSink(logger)))
	if err != nil {
		return err
	}

	for _, spend := range opts.Spend {
		query, epsilon, err := parseSpend(spend)
		if err != nil {
			return err
		}
		if _, err := ledger.RecordQuery(query, epsilon); err != nil {
			return err
		}
	}

	report := ledger.BudgetReport()

	if opts.Format == FormatConsole {
		out, closeOut, err := openOutput(opts.OutputFile, stdout)
		if err != nil {
			return err
		}
		if err := reporter.NewConsoleReporterTo(out).ReportBudget(report); err != nil {
			closeOut()
			return err
		}
		return closeOut()
	}

	return writeDocument(ctx, opts.Format, opts.OutputFile, stdout, report, logger)
}

// parseSpend splits "name=epsilon" at the last '=' so query text may
// itself contain '='.
func parseSpend(spend string) (string, float64, error) {
	idx := strings.LastIndex(spend, "=")
	if idx < 0 {
		return "", 0, errors.NewInvalidInputError(fmt.Sprintf("--spend %q is not name=epsilon", spend))
	}

	epsilon, err := strconv.ParseFloat(strings.TrimSpace(spend[idx+1:]), 64)
	if err != nil {
		return "", 0, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidInput,
			fmt.Sprintf("--spend %q has a malformed epsilon", spend))
	}
	return strings.TrimSpace(spend[:idx]), epsilon, nil
}
