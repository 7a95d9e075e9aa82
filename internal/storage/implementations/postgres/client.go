package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/sqlguard"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// DefaultDatasetQuery joins visits to patient demographics, one row per visit.
const DefaultDatasetQuery = `SELECT p.age_group, p.gender, p.state, f.diagnosis, f.visit_type, f.cost
FROM public.fact_visits f
JOIN public.dim_patients p ON f.patient_key = p.patient_key
LIMIT 5000`

// PostgresConfig holds configuration for the warehouse connection
type PostgresConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	Database        string        `json:"database" mapstructure:"database"`
	Username        string        `json:"username" mapstructure:"username"`
	Password        string        `json:"password" mapstructure:"password"`
	SSLMode         string        `json:"ssl_mode" mapstructure:"ssl_mode"`
	ConnectTimeout  time.Duration `json:"connect_timeout" mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `json:"query_timeout" mapstructure:"query_timeout"`
	MaxConnections  int           `json:"max_connections" mapstructure:"max_connections"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ReportsTable    string        `json:"reports_table" mapstructure:"reports_table"`
	BudgetTable     string        `json:"budget_table" mapstructure:"budget_table"`
}

// DefaultPostgresConfig returns settings for a local warehouse.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		Database:        "healthcare_dw",
		Username:        "postgres",
		SSLMode:         "disable",
		ConnectTimeout:  constants.DefaultConnectionTimeout,
		QueryTimeout:    constants.DefaultStorageTimeout,
		MaxConnections:  constants.DefaultMaxConnections,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		ReportsTable:    "privacy_audit_reports",
		BudgetTable:     "privacy_budget_entries",
	}
}

// ConnectionString renders the lib/pq key/value DSN.
func (c *PostgresConfig) ConnectionString() string {
	parts := []string{
		fmt.Sprintf("host=%s", c.Host),
		fmt.Sprintf("port=%d", c.Port),
		fmt.Sprintf("user=%s", c.Username),
		fmt.Sprintf("dbname=%s", c.Database),
		fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	if c.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", c.Password))
	}
	if c.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(c.ConnectTimeout.Seconds())))
	}
	return strings.Join(parts, " ")
}

// PostgresStorage loads datasets from the warehouse and stores audit
// reports and budget entries next to it.
type PostgresStorage struct {
	config *PostgresConfig
	db     *sql.DB
	guard  *sqlguard.Guard
	logger *logrus.Logger
	mu     sync.RWMutex
	closed bool
}

// NewPostgresStorage creates a new, unconnected storage instance
func NewPostgresStorage(config *PostgresConfig, logger *logrus.Logger) (*PostgresStorage, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfiguration, "Postgres config cannot be nil")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &PostgresStorage{
		config: config,
		guard:  sqlguard.New(),
		logger: logger,
	}, nil
}

// Connect establishes the connection pool and creates the report tables
func (ps *PostgresStorage) Connect(ctx context.Context) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.db != nil {
		return nil
	}

	db, err := sql.Open("postgres", ps.config.ConnectionString())
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to open database connection")
	}

	db.SetMaxOpenConns(ps.config.MaxConnections)
	db.SetMaxIdleConns(ps.config.MaxIdleConns)
	db.SetConnMaxLifetime(ps.config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, ps.config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to ping database")
	}

	ps.db = db
	ps.closed = false

	if err := ps.initializeSchema(ctx); err != nil {
		db.Close()
		ps.db = nil
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError, "Failed to initialize schema")
	}

	ps.logger.WithFields(logrus.Fields{
		"host":     ps.config.Host,
		"port":     ps.config.Port,
		"database": ps.config.Database,
	}).Info("Connected to PostgreSQL")

	return nil
}

// Close closes the database connection
func (ps *PostgresStorage) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed || ps.db == nil {
		return nil
	}

	err := ps.db.Close()
	ps.db = nil
	ps.closed = true
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError, "Failed to close database connection")
	}

	ps.logger.Info("PostgreSQL connection closed")
	return nil
}

// Ping tests the database connection
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	db, err := ps.conn()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ps.config.QueryTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Database ping failed")
	}
	return nil
}

// LoadDataset vets query with the SQL guard, runs it and converts the
// result set into a Dataset. An empty query runs DefaultDatasetQuery.
func (ps *PostgresStorage) LoadDataset(ctx context.Context, query string) (*models.Dataset, error) {
	if strings.TrimSpace(query) == "" {
		query = DefaultDatasetQuery
	}
	if err := ps.guard.ValidateSelect(query); err != nil {
		return nil, err
	}

	db, err := ps.conn()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, ps.config.QueryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to run dataset query")
	}
	defer rows.Close()

	ds, err := scanDataset(rows)
	if err != nil {
		return nil, err
	}

	ps.logger.WithFields(logrus.Fields{
		"records":  ds.Len(),
		"columns":  len(ds.Columns()),
		"duration": time.Since(start),
	}).Info("Loaded dataset from warehouse")

	return ds, nil
}

// SaveAuditReport stores the report as a JSONB document keyed by its id.
func (ps *PostgresStorage) SaveAuditReport(ctx context.Context, report *privacy.AuditReport) error {
	if report == nil {
		return errors.NewInvalidInputError("report is nil")
	}

	db, err := ps.conn()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "Failed to encode audit report")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, created_at, record_count, overall_score, quasi_identifiers, sensitive_attributes, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET report = EXCLUDED.report, overall_score = EXCLUDED.overall_score`,
		pq.QuoteIdentifier(ps.config.ReportsTable))

	ctx, cancel := context.WithTimeout(ctx, ps.config.QueryTimeout)
	defer cancel()

	_, err = db.ExecContext(ctx, query,
		report.ID,
		report.Timestamp,
		report.RecordCount,
		report.OverallPrivacyScore,
		pq.Array(report.QuasiIdentifiers),
		pq.Array(report.SensitiveAttributes),
		payload,
	)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to save audit report").
			WithContext("report_id", report.ID)
	}

	ps.logger.WithFields(logrus.Fields{
		"report_id": report.ID,
		"score":     report.OverallPrivacyScore,
	}).Debug("Saved audit report")

	return nil
}

// SaveBudgetEntries bulk-loads ledger entries with COPY.
func (ps *PostgresStorage) SaveBudgetEntries(ctx context.Context, sessionID string, entries []privacy.BudgetEntry) error {
	if len(entries) == 0 {
		return nil
	}

	db, err := ps.conn()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, ps.config.QueryTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(ps.config.BudgetTable,
		"session_id", "query", "epsilon", "cumulative_epsilon", "recorded_at"))
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to prepare COPY")
	}

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, sessionID, e.Query, e.Epsilon, e.CumulativeEpsilon, e.Timestamp); err != nil {
			stmt.Close()
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to copy budget entry")
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to flush COPY")
	}
	if err := stmt.Close(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to close COPY")
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to commit transaction")
	}

	ps.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"entries":    len(entries),
	}).Debug("Saved budget entries")

	return nil
}

func (ps *PostgresStorage) conn() (*sql.DB, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if ps.closed || ps.db == nil {
		return nil, errors.NewStorageError(errors.CodeNotConnected, "Database not connected")
	}
	return ps.db, nil
}

func (ps *PostgresStorage) initializeSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			record_count INTEGER NOT NULL,
			overall_score DOUBLE PRECISION NOT NULL,
			quasi_identifiers TEXT[] NOT NULL,
			sensitive_attributes TEXT[] NOT NULL,
			report JSONB NOT NULL
		)`, pq.QuoteIdentifier(ps.config.ReportsTable)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			session_id TEXT NOT NULL,
			query TEXT NOT NULL,
			epsilon DOUBLE PRECISION NOT NULL,
			cumulative_epsilon DOUBLE PRECISION NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		)`, pq.QuoteIdentifier(ps.config.BudgetTable)),
	}

	for _, stmt := range statements {
		if _, err := ps.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rowScanner is the subset of *sql.Rows used to build a dataset.
type rowScanner interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanDataset(rows rowScanner) (*models.Dataset, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to read result columns")
	}

	var values [][]models.Value
	raw := make([]interface{}, len(columns))
	dest := make([]interface{}, len(columns))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to scan row")
		}

		row := make([]models.Value, len(columns))
		for i, v := range raw {
			row[i] = convertValue(v)
		}
		values = append(values, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to iterate rows")
	}

	return models.NewDataset(columns, values)
}

// convertValue maps a driver value onto a dataset cell. lib/pq returns
// NUMERIC as text, which is kept numeric when it parses.
func convertValue(v interface{}) models.Value {
	switch t := v.(type) {
	case nil:
		return models.Null()
	case []byte:
		s := string(t)
		if f, err := strconv.ParseFloat(s, 64); err == nil && looksNumeric(s) {
			return models.Num(f)
		}
		return models.Str(s)
	case time.Time:
		return models.Str(t.UTC().Format(time.RFC3339))
	default:
		val, err := models.FromAny(t)
		if err != nil {
			return models.Str(fmt.Sprint(t))
		}
		return val
	}
}

// looksNumeric rejects strings ParseFloat accepts but a warehouse would
// not store as numbers, such as "Inf" or "0x1p-2".
func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+', r == 'e', r == 'E':
		default:
			return false
		}
	}
	return true
}
