package storage

import (
	"context"
	"time"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/interfaces"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/models"
)

// The wrappers below time each call and report it to an OperationRecorder.

type instrumentedSource struct {
	next     interfaces.DatasetSource
	recorder OperationRecorder
}

func (s *instrumentedSource) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

func (s *instrumentedSource) LoadDataset(ctx context.Context, query string) (ds *models.Dataset, err error) {
	defer func(start time.Time) { record(s.recorder, BackendPostgres, "load_dataset", start, err) }(time.Now())
	return s.next.LoadDataset(ctx, query)
}

type instrumentedStore struct {
	next     interfaces.ReportStore
	recorder OperationRecorder
}

func (s *instrumentedStore) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

func (s *instrumentedStore) SaveAuditReport(ctx context.Context, report *privacy.AuditReport) (err error) {
	defer func(start time.Time) { record(s.recorder, BackendPostgres, "save_report", start, err) }(time.Now())
	return s.next.SaveAuditReport(ctx, report)
}

func (s *instrumentedStore) SaveBudgetEntries(ctx context.Context, sessionID string, entries []privacy.BudgetEntry) (err error) {
	defer func(start time.Time) { record(s.recorder, BackendPostgres, "save_budget", start, err) }(time.Now())
	return s.next.SaveBudgetEntries(ctx, sessionID, entries)
}

type instrumentedCache struct {
	next     interfaces.ReportCache
	recorder OperationRecorder
}

func (c *instrumentedCache) Ping(ctx context.Context) error { return c.next.Ping(ctx) }

func (c *instrumentedCache) Get(ctx context.Context, key string) (report *privacy.AuditReport, found bool, err error) {
	defer func(start time.Time) { record(c.recorder, BackendRedis, "get", start, err) }(time.Now())
	return c.next.Get(ctx, key)
}

func (c *instrumentedCache) Set(ctx context.Context, key string, report *privacy.AuditReport) (err error) {
	defer func(start time.Time) { record(c.recorder, BackendRedis, "set", start, err) }(time.Now())
	return c.next.Set(ctx, key, report)
}

func (c *instrumentedCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.next.TTL(ctx, key)
}

type instrumentedArchive struct {
	next     interfaces.ReportArchive
	recorder OperationRecorder
}

func (a *instrumentedArchive) Ping(ctx context.Context) error { return a.next.Ping(ctx) }

func (a *instrumentedArchive) Upload(ctx context.Context, report *privacy.AuditReport) (key string, err error) {
	defer func(start time.Time) { record(a.recorder, BackendS3, "upload", start, err) }(time.Now())
	return a.next.Upload(ctx, report)
}

func (a *instrumentedArchive) Download(ctx context.Context, key string) (report *privacy.AuditReport, err error) {
	defer func(start time.Time) { record(a.recorder, BackendS3, "download", start, err) }(time.Now())
	return a.next.Download(ctx, key)
}

type instrumentedScores struct {
	next     interfaces.ScoreWriter
	recorder OperationRecorder
}

func (s *instrumentedScores) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

func (s *instrumentedScores) WriteReport(ctx context.Context, report *privacy.AuditReport) (err error) {
	defer func(start time.Time) { record(s.recorder, BackendInfluxDB, "write_report", start, err) }(time.Now())
	return s.next.WriteReport(ctx, report)
}
