package interfaces

import (
	"context"
	"time"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// Pinger is implemented by every backend client.
type Pinger interface {
	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error
}

// DatasetSource loads audit datasets from the warehouse.
type DatasetSource interface {
	Pinger

	// LoadDataset runs a read-only query and returns its rows
	LoadDataset(ctx context.Context, query string) (*models.Dataset, error)
}

// ReportStore persists audit reports and budget ledgers.
type ReportStore interface {
	Pinger

	// SaveAuditReport stores one report
	SaveAuditReport(ctx context.Context, report *privacy.AuditReport) error

	// SaveBudgetEntries appends ledger entries under a session id
	SaveBudgetEntries(ctx context.Context, sessionID string, entries []privacy.BudgetEntry) error
}

// ReportCache caches audit reports by request key.
type ReportCache interface {
	Pinger

	// Get returns the cached report, or found=false on a miss
	Get(ctx context.Context, key string) (report *privacy.AuditReport, found bool, err error)

	// Set stores a report with the cache's default TTL
	Set(ctx context.Context, key string, report *privacy.AuditReport) error

	// TTL returns the remaining lifetime of a key
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// ReportArchive keeps long-term copies of audit reports in object storage.
type ReportArchive interface {
	Pinger

	// Upload stores the report and returns its object key
	Upload(ctx context.Context, report *privacy.AuditReport) (string, error)

	// Download fetches a report by object key
	Download(ctx context.Context, key string) (*privacy.AuditReport, error)
}

// ScoreWriter records privacy scores as a time series.
type ScoreWriter interface {
	Pinger

	// WriteReport writes the scores of one report
	WriteReport(ctx context.Context, report *privacy.AuditReport) error
}
