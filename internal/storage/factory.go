package storage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/implementations/influxdb"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/implementations/postgres"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/implementations/redis"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/implementations/s3"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/interfaces"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

// Backend names used in logs, health checks and metric labels.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendS3       = "s3"
	BackendInfluxDB = "influxdb"
)

// FactoryConfig selects the backends to open. A nil section is disabled.
type FactoryConfig struct {
	Postgres *postgres.PostgresConfig
	Redis    *redis.RedisConfig
	S3       *s3.S3Config
	InfluxDB *influxdb.InfluxDBConfig
}

// OperationRecorder receives the outcome of every backend call.
// metrics.PrometheusMetrics implements it.
type OperationRecorder interface {
	RecordStorageOperation(backend, operation, status string, duration time.Duration)
}

// Backends is the set of connected storage collaborators. Unconfigured
// members are nil.
type Backends struct {
	Source  interfaces.DatasetSource
	Store   interfaces.ReportStore
	Cache   interfaces.ReportCache
	Archive interfaces.ReportArchive
	Scores  interfaces.ScoreWriter

	pingers map[string]interfaces.Pinger
	closers []closer
	logger  *logrus.Logger
}

type closer struct {
	name  string
	close func() error
}

type connector interface {
	Connect(ctx context.Context) error
	Close() error
}

// Open creates and connects every configured backend. If any backend fails
// to connect, the ones already opened are closed and the error returned.
// recorder may be nil.
func Open(ctx context.Context, config FactoryConfig, recorder OperationRecorder, logger *logrus.Logger) (*Backends, error) {
	if logger == nil {
		logger = logrus.New()
	}

	b := &Backends{
		pingers: make(map[string]interfaces.Pinger),
		logger:  logger,
	}

	connect := func(name string, c connector) error {
		if err := c.Connect(ctx); err != nil {
			b.Close()
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to open "+name)
		}
		b.closers = append(b.closers, closer{name: name, close: c.Close})
		return nil
	}

	if config.Postgres != nil {
		pg, err := postgres.NewPostgresStorage(config.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if err := connect(BackendPostgres, pg); err != nil {
			return nil, err
		}
		b.Source = &instrumentedSource{pg, recorder}
		b.Store = &instrumentedStore{pg, recorder}
		b.pingers[BackendPostgres] = pg
	}

	if config.Redis != nil {
		cache, err := redis.NewReportCache(config.Redis, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
		if err := connect(BackendRedis, cache); err != nil {
			return nil, err
		}
		b.Cache = &instrumentedCache{cache, recorder}
		b.pingers[BackendRedis] = cache
	}

	if config.S3 != nil {
		archive, err := s3.NewReportArchive(config.S3, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
		if err := connect(BackendS3, archive); err != nil {
			return nil, err
		}
		b.Archive = &instrumentedArchive{archive, recorder}
		b.pingers[BackendS3] = archive
	}

	if config.InfluxDB != nil {
		scores, err := influxdb.NewScoreWriter(config.InfluxDB, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
		if err := connect(BackendInfluxDB, scores); err != nil {
			return nil, err
		}
		b.Scores = &instrumentedScores{scores, recorder}
		b.pingers[BackendInfluxDB] = scores
	}

	logger.WithField("backends", b.Names()).Info("Storage backends ready")
	return b, nil
}

// Pingers returns the opened backends by name.
func (b *Backends) Pingers() map[string]interfaces.Pinger {
	out := make(map[string]interfaces.Pinger, len(b.pingers))
	for name, p := range b.pingers {
		out[name] = p
	}
	return out
}

// Names lists the opened backends in the order they were opened.
func (b *Backends) Names() []string {
	names := make([]string, len(b.closers))
	for i, c := range b.closers {
		names[i] = c.name
	}
	return names
}

// Close closes every opened backend in reverse order. Errors are logged.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		c := b.closers[i]
		if err := c.close(); err != nil {
			b.logger.WithError(err).WithField("backend", c.name).Warn("Failed to close storage backend")
		}
	}
	b.closers = nil
}

func record(recorder OperationRecorder, backend, operation string, start time.Time, err error) {
	if recorder == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	recorder.RecordStorageOperation(backend, operation, status, time.Since(start))
}
