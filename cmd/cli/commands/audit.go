package commands

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/reporter"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage"
)

type AuditOptions struct {
	InputOptions
	QuasiIdentifiers    []string
	SensitiveAttributes []string
	K                   int
	L                   int
	T                   float64
	Format              string
	OutputFile          string
	Persist             bool
}

func NewAuditCmd(globals *GlobalOptions) *cobra.Command {
	opts := &AuditOptions{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run a k-anonymity, l-diversity and t-closeness audit",
		Long: `Audit a dataset against the configured privacy thresholds and print a
pass/fail summary or export the full report.`,
		Example: `  # Audit a CSV extract with the default columns
  privacy-cli audit --input visits.csv

  # Override thresholds and export the report as JSON
  privacy-cli audit --input visits.csv --k 10 --t 0.15 --format json -o report.json

  # Audit the warehouse and persist the report to the configured backends
  privacy-cli audit --persist`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd.Context(), globals, opts, cmd.Flags().Changed, cmd.OutOrStdout())
		},
	}

	addInputFlags(&opts.InputOptions, cmd.Flags())
	cmd.Flags().StringSliceVarP(&opts.QuasiIdentifiers, "qi", "q", nil, "Quasi-identifier columns (default from config)")
	cmd.Flags().StringSliceVarP(&opts.SensitiveAttributes, "sensitive", "s", nil, "Sensitive attribute columns (default from config)")
	cmd.Flags().IntVar(&opts.K, "k", 0, "Minimum equivalence class size (default from config)")
	cmd.Flags().IntVar(&opts.L, "l", 0, "Minimum distinct sensitive values per class (default from config)")
	cmd.Flags().Float64Var(&opts.T, "t", 0, "Maximum distribution distance (default from config)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", FormatConsole, "Output format (console, json, yaml, csv)")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "-", "Output file (- for stdout)")
	cmd.Flags().BoolVar(&opts.Persist, "persist", false, "Store, archive and record the report in the enabled backends")

	return cmd
}

func runAudit(ctx context.Context, globals *GlobalOptions, opts *AuditOptions, changed func(string) bool, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, err := globals.load()
	if err != nil {
		return err
	}

	auditCfg := cfg.Audit
	if changed("k") {
		auditCfg.K = opts.K
	}
	if changed("l") {
		auditCfg.L = opts.L
	}
	if changed("t") {
		auditCfg.T = opts.T
	}

	qis := opts.QuasiIdentifiers
	if len(qis) == 0 {
		qis = cfg.QuasiIdentifiers
	}
	attrs := opts.SensitiveAttributes
	if len(attrs) == 0 {
		attrs = cfg.SensitiveAttributes
	}

	auditor, err := privacy.NewAuditor(&auditCfg, privacy.WithSink(privacy.NewLogrusSink(logger).WithLevel(logrus.DebugLevel)))
	if err != nil {
		return err
	}

	ds, err := loadDataset(ctx, opts.InputOptions, cfg, logger)
	if err != nil {
		return err
	}

	report, err := auditor.ComprehensiveAudit(ds, qis, attrs)
	if err != nil {
		return err
	}

	if opts.Persist {
		if err := persistReport(ctx, cfg.FactoryConfig(), report, logger); err != nil {
			return err
		}
	}

	if opts.Format == FormatConsole {
		out, closeOut, err := openOutput(opts.OutputFile, stdout)
		if err != nil {
			return err
		}
		if err := reporter.NewConsoleReporterTo(out).ReportAudit(report); err != nil {
			closeOut()
			return err
		}
		return closeOut()
	}

	return writeDocument(ctx, opts.Format, opts.OutputFile, stdout, report, logger)
}

func persistReport(ctx context.Context, fc storage.FactoryConfig, report *privacy.AuditReport, logger *logrus.Logger) error {
	backends, err := storage.Open(ctx, fc, nil, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	if backends.Store != nil {
		if err := backends.Store.SaveAuditReport(ctx, report); err != nil {
			return err
		}
	}
	if backends.Scores != nil {
		if err := backends.Scores.WriteReport(ctx, report); err != nil {
			return err
		}
	}
	if backends.Archive != nil {
		key, err := backends.Archive.Upload(ctx, report)
		if err != nil {
			return err
		}
		logger.WithField("key", key).Info("Archived audit report")
	}
	return nil
}
