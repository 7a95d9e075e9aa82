package commands

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/config"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/export"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// FormatConsole prints the human readable summary instead of a document.
const FormatConsole = constants.OutputFormatConsole

// GlobalOptions are the persistent flags of the root command.
type GlobalOptions struct {
	ConfigFile string
	Verbose    bool
}

// InputOptions select where a command reads its dataset from.
type InputOptions struct {
	InputFile string
	Query     string
	Delimiter string
	NullValue string
}

func (g *GlobalOptions) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(g.ConfigFile)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if g.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	return cfg, logger, nil
}

// loadDataset reads --input as CSV, or runs --query (or the configured
// default query) against the warehouse when no file is given.
func loadDataset(ctx context.Context, opts InputOptions, cfg *config.Config, logger *logrus.Logger) (*models.Dataset, error) {
	if opts.InputFile != "" {
		f, err := os.Open(opts.InputFile)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidInput, "Failed to open input file")
		}
		defer f.Close()

		return export.ReadCSV(f, export.CSVOptions{Delimiter: opts.Delimiter, NullValue: opts.NullValue})
	}

	if !cfg.Postgres.Enabled {
		return nil, errors.NewInvalidInputError("--input is required when postgres is not enabled")
	}

	backends, err := storage.Open(ctx, storage.FactoryConfig{Postgres: &cfg.Postgres.PostgresConfig}, nil, logger)
	if err != nil {
		return nil, err
	}
	defer backends.Close()

	query := opts.Query
	if query == "" {
		query = cfg.DatasetQuery
	}
	return backends.Source.LoadDataset(ctx, query)
}

// openOutput returns stdout for "-" or an empty path.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "Failed to create output file")
	}
	return f, f.Close, nil
}

// writeDocument renders doc in one of the export formats.
func writeDocument(ctx context.Context, format string, path string, stdout io.Writer, doc interface{}, logger *logrus.Logger) error {
	exportFormat, err := export.ParseFormat(format)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(path, stdout)
	if err != nil {
		return err
	}

	if err := export.NewExportEngine(logger).Export(ctx, exportFormat, out, doc, export.DefaultExportOptions()); err != nil {
		closeOut()
		return err
	}
	return closeOut()
}

func addInputFlags(opts *InputOptions, flags *pflag.FlagSet) {
	flags.StringVarP(&opts.InputFile, "input", "i", "", "CSV file to read (default: query the warehouse)")
	flags.StringVar(&opts.Query, "query", "", "Read-only SQL to run against the warehouse")
	flags.StringVar(&opts.Delimiter, "delimiter", ",", "CSV field delimiter")
	flags.StringVar(&opts.NullValue, "null-value", "", "CSV cell text read as null, in addition to empty cells")
}
