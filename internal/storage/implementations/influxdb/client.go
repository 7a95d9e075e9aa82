package influxdb

import (
	"context"
	"sort"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

// Measurement is the InfluxDB measurement audit scores are written to.
const Measurement = "privacy_audit"

// Check tag values.
const (
	CheckOverall    = "overall"
	CheckKAnonymity = "k_anonymity"
	CheckLDiversity = "l_diversity"
	CheckTCloseness = "t_closeness"
)

// InfluxDBConfig contains configuration for the score writer
type InfluxDBConfig struct {
	URL          string        `json:"url" yaml:"url" mapstructure:"url"`
	Token        string        `json:"token" yaml:"token" mapstructure:"token"`
	Organization string        `json:"organization" yaml:"organization" mapstructure:"organization"`
	Bucket       string        `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	UseGZip      bool          `json:"use_gzip" yaml:"use_gzip" mapstructure:"use_gzip"`
}

// DefaultInfluxDBConfig returns settings for a local InfluxDB 2.x.
func DefaultInfluxDBConfig() *InfluxDBConfig {
	return &InfluxDBConfig{
		URL:          "http://localhost:8086",
		Organization: "healthcare",
		Bucket:       "privacy_audits",
		Timeout:      10 * time.Second,
	}
}

// ScoreWriter records the outcome of every audit as InfluxDB points so
// privacy scores can be charted over time.
type ScoreWriter struct {
	config   *InfluxDBConfig
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *logrus.Logger
	mu       sync.RWMutex
}

// NewScoreWriter creates a new, unconnected writer
func NewScoreWriter(config *InfluxDBConfig, logger *logrus.Logger) (*ScoreWriter, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfiguration, "InfluxDB config cannot be nil")
	}
	if config.URL == "" || config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfiguration, "InfluxDB url and bucket are required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &ScoreWriter{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes connection to InfluxDB
func (w *ScoreWriter) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		return nil
	}

	options := influxdb2.DefaultOptions()
	options.SetUseGZip(w.config.UseGZip)
	options.SetHTTPRequestTimeout(uint(w.config.Timeout.Seconds()))
	options.SetPrecision(time.Second)

	client := influxdb2.NewClientWithOptions(w.config.URL, w.config.Token, options)

	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to connect to InfluxDB")
	}
	if !ok {
		client.Close()
		return errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB ping failed")
	}

	w.client = client
	w.writeAPI = client.WriteAPIBlocking(w.config.Organization, w.config.Bucket)

	w.logger.WithFields(logrus.Fields{
		"url":          w.config.URL,
		"organization": w.config.Organization,
		"bucket":       w.config.Bucket,
	}).Info("Connected to InfluxDB")

	return nil
}

// Close closes the connection to InfluxDB
func (w *ScoreWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client == nil {
		return nil
	}

	w.client.Close()
	w.client = nil
	w.writeAPI = nil

	w.logger.Info("Disconnected from InfluxDB")
	return nil
}

// Ping checks the InfluxDB server
func (w *ScoreWriter) Ping(ctx context.Context) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.client == nil {
		return errors.NewStorageError(errors.CodeNotConnected, "Not connected to InfluxDB")
	}

	ok, err := w.client.Ping(ctx)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "InfluxDB health check failed")
	}
	if !ok {
		return errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB ping returned false")
	}
	return nil
}

// WriteReport writes one point per check of report.
func (w *ScoreWriter) WriteReport(ctx context.Context, report *privacy.AuditReport) error {
	if report == nil {
		return errors.NewInvalidInputError("report is required")
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.writeAPI == nil {
		return errors.NewStorageError(errors.CodeNotConnected, "Not connected to InfluxDB")
	}

	points := ReportPoints(report)
	if err := w.writeAPI.WritePoint(ctx, points...); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to write to InfluxDB")
	}

	w.logger.WithFields(logrus.Fields{
		"report_id": report.ID,
		"points":    len(points),
	}).Debug("Wrote privacy scores to InfluxDB")

	return nil
}

// ReportPoints converts report into points of the privacy_audit
// measurement: one overall point, one for k-anonymity and one per
// sensitive attribute for each of l-diversity and t-closeness. Attribute
// points are ordered by name.
func ReportPoints(report *privacy.AuditReport) []*write.Point {
	ts := report.Timestamp
	points := []*write.Point{
		influxdb2.NewPoint(Measurement,
			map[string]string{"check": CheckOverall},
			map[string]interface{}{
				"score":        report.OverallPrivacyScore,
				"record_count": report.RecordCount,
				"pass":         report.OverallPrivacyScore == 100,
			}, ts),
	}

	if k := report.KAnonymity; k != nil {
		points = append(points, influxdb2.NewPoint(Measurement,
			map[string]string{"check": CheckKAnonymity},
			map[string]interface{}{
				"pass":             k.Satisfies,
				"threshold":        k.K,
				"violating_groups": k.ViolatingGroups,
				"records_at_risk":  k.RecordsAtRisk,
			}, ts))
	}

	for _, attr := range sortedKeys(report.LDiversity) {
		l := report.LDiversity[attr]
		if l == nil {
			continue
		}
		fields := map[string]interface{}{
			"pass":             l.Satisfies,
			"threshold":        l.L,
			"violating_groups": l.ViolatingGroups,
		}
		if l.MinDiversity != nil {
			fields["min_diversity"] = *l.MinDiversity
		}
		points = append(points, influxdb2.NewPoint(Measurement,
			map[string]string{"check": CheckLDiversity, "attribute": attr}, fields, ts))
	}

	for _, attr := range sortedKeys(report.TCloseness) {
		tc := report.TCloseness[attr]
		if tc == nil {
			continue
		}
		points = append(points, influxdb2.NewPoint(Measurement,
			map[string]string{"check": CheckTCloseness, "attribute": attr},
			map[string]interface{}{
				"pass":             tc.Satisfies,
				"threshold":        tc.T,
				"violating_groups": tc.ViolatingGroups,
				"max_distance":     tc.MaxDistance,
			}, ts))
	}

	return points
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
