package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

// S3Config holds configuration for the report archive
type S3Config struct {
	Region          string        `json:"region" mapstructure:"region"`
	Bucket          string        `json:"bucket" mapstructure:"bucket"`
	AccessKeyID     string        `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key" mapstructure:"secret_access_key"`
	SessionToken    string        `json:"session_token,omitempty" mapstructure:"session_token"`
	Endpoint        string        `json:"endpoint,omitempty" mapstructure:"endpoint"`
	ForcePathStyle  bool          `json:"force_path_style" mapstructure:"force_path_style"`
	DisableSSL      bool          `json:"disable_ssl" mapstructure:"disable_ssl"`
	Prefix          string        `json:"prefix" mapstructure:"prefix"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries      int           `json:"max_retries" mapstructure:"max_retries"`
	PartSize        int64         `json:"part_size" mapstructure:"part_size"`
	UseCompression  bool          `json:"use_compression" mapstructure:"use_compression"`
	StorageClass    string        `json:"storage_class" mapstructure:"storage_class"`
}

// DefaultS3Config returns archive settings without a bucket; callers must
// set one.
func DefaultS3Config() *S3Config {
	return &S3Config{
		Region:         "us-east-1",
		Prefix:         "privacy-audits",
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		UseCompression: true,
	}
}

// ReportArchive stores audit reports as JSON objects, one per report,
// partitioned by report date.
type ReportArchive struct {
	config     *S3Config
	s3Client   *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	logger     *logrus.Logger
	mu         sync.RWMutex
	metrics    *archiveMetrics
	closed     bool
}

type archiveMetrics struct {
	uploads      int64
	downloads    int64
	errorCount   int64
	bytesRead    int64
	bytesWritten int64
	mu           sync.Mutex
}

// ArchiveStats is a snapshot of archive counters.
type ArchiveStats struct {
	Uploads      int64 `json:"uploads"`
	Downloads    int64 `json:"downloads"`
	Errors       int64 `json:"errors"`
	BytesRead    int64 `json:"bytes_read"`
	BytesWritten int64 `json:"bytes_written"`
}

// NewReportArchive creates a new, unconnected archive
func NewReportArchive(config *S3Config, logger *logrus.Logger) (*ReportArchive, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfiguration, "S3 config cannot be nil")
	}

	if config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfiguration, "S3 bucket is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &ReportArchive{
		config:  config,
		logger:  logger,
		metrics: &archiveMetrics{},
	}, nil
}

// Connect establishes connection to S3
func (a *ReportArchive) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.s3Client != nil {
		return nil
	}

	awsConfig := &aws.Config{
		Region:     aws.String(a.config.Region),
		MaxRetries: aws.Int(a.config.MaxRetries),
	}

	if a.config.AccessKeyID != "" && a.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			a.config.AccessKeyID,
			a.config.SecretAccessKey,
			a.config.SessionToken,
		)
	}

	// S3-compatible services such as MinIO
	if a.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(a.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(a.config.ForcePathStyle)
	}

	if a.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "Failed to create AWS session")
	}

	client := s3.New(sess)
	if _, err := client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.config.Bucket),
	}); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("Failed to access bucket '%s'", a.config.Bucket))
	}

	a.s3Client = client
	a.uploader = s3manager.NewUploader(sess)
	a.downloader = s3manager.NewDownloader(sess)
	if a.config.PartSize > 0 {
		a.uploader.PartSize = a.config.PartSize
	}
	a.closed = false

	a.logger.WithFields(logrus.Fields{
		"region": a.config.Region,
		"bucket": a.config.Bucket,
		"prefix": a.config.Prefix,
	}).Info("Connected to S3")

	return nil
}

// Close releases the S3 clients
func (a *ReportArchive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	a.s3Client = nil
	a.uploader = nil
	a.downloader = nil
	a.closed = true

	a.logger.Info("S3 connection closed")
	return nil
}

// Ping tests the S3 connection
func (a *ReportArchive) Ping(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed || a.s3Client == nil {
		return errors.NewStorageError(errors.CodeNotConnected, "S3 not connected")
	}

	if _, err := a.s3Client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.config.Bucket),
	}); err != nil {
		a.metrics.record(func(m *archiveMetrics) { m.errorCount++ })
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "S3 ping failed")
	}

	return nil
}

// Upload writes report under a dated key and returns the key.
func (a *ReportArchive) Upload(ctx context.Context, report *privacy.AuditReport) (string, error) {
	if report == nil {
		return "", errors.NewInvalidInputError("report is required")
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed || a.uploader == nil {
		return "", errors.NewStorageError(errors.CodeNotConnected, "S3 not connected")
	}

	start := time.Now()

	payload, err := encodeReport(report, a.config.UseCompression)
	if err != nil {
		a.metrics.record(func(m *archiveMetrics) { m.errorCount++ })
		return "", err
	}

	key := a.generateKey(report)
	input := &s3manager.UploadInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]*string{
			"report-id":     aws.String(report.ID),
			"record-count":  aws.String(fmt.Sprintf("%d", report.RecordCount)),
			"privacy-score": aws.String(fmt.Sprintf("%.2f", report.OverallPrivacyScore)),
		},
	}
	if a.config.UseCompression {
		input.ContentEncoding = aws.String("gzip")
	}
	if a.config.StorageClass != "" {
		input.StorageClass = aws.String(a.config.StorageClass)
	}

	if _, err := a.uploader.UploadWithContext(ctx, input); err != nil {
		a.metrics.record(func(m *archiveMetrics) { m.errorCount++ })
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to upload report to S3")
	}

	a.metrics.record(func(m *archiveMetrics) {
		m.uploads++
		m.bytesWritten += int64(len(payload))
	})

	a.logger.WithFields(logrus.Fields{
		"report_id": report.ID,
		"key":       key,
		"bytes":     len(payload),
		"duration":  time.Since(start),
	}).Debug("Archived audit report")

	return key, nil
}

// Download fetches the report stored under key.
func (a *ReportArchive) Download(ctx context.Context, key string) (*privacy.AuditReport, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed || a.downloader == nil {
		return nil, errors.NewStorageError(errors.CodeNotConnected, "S3 not connected")
	}

	buf := aws.NewWriteAtBuffer([]byte{})
	_, err := a.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(a.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		a.metrics.record(func(m *archiveMetrics) { m.errorCount++ })
		if strings.Contains(err.Error(), s3.ErrCodeNoSuchKey) {
			return nil, errors.NewStorageError(errors.CodeDataNotFound, fmt.Sprintf("Report '%s' not found", key))
		}
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to download report from S3")
	}

	data := buf.Bytes()
	a.metrics.record(func(m *archiveMetrics) {
		m.downloads++
		m.bytesRead += int64(len(data))
	})

	report, err := decodeReport(data, strings.HasSuffix(key, ".gz"))
	if err != nil {
		a.metrics.record(func(m *archiveMetrics) { m.errorCount++ })
		return nil, err
	}
	return report, nil
}

// Stats returns archive counters since creation.
func (a *ReportArchive) Stats() ArchiveStats {
	a.metrics.mu.Lock()
	defer a.metrics.mu.Unlock()

	return ArchiveStats{
		Uploads:      a.metrics.uploads,
		Downloads:    a.metrics.downloads,
		Errors:       a.metrics.errorCount,
		BytesRead:    a.metrics.bytesRead,
		BytesWritten: a.metrics.bytesWritten,
	}
}

// generateKey builds prefix/yyyy/mm/dd/<id>.json[.gz] from the report
// timestamp in UTC.
func (a *ReportArchive) generateKey(report *privacy.AuditReport) string {
	name := report.ID + ".json"
	if a.config.UseCompression {
		name += ".gz"
	}
	return path.Join(a.config.Prefix, report.Timestamp.UTC().Format("2006/01/02"), name)
}

func encodeReport(report *privacy.AuditReport, compress bool) ([]byte, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "Failed to serialize report")
	}
	if !compress {
		return data, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to compress report")
	}
	if err := gz.Close(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to compress report")
	}
	return buf.Bytes(), nil
}

func decodeReport(data []byte, compressed bool) (*privacy.AuditReport, error) {
	if compressed {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to decompress report")
		}
		defer gz.Close()

		data, err = io.ReadAll(gz)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to read decompressed report")
		}
	}

	var report privacy.AuditReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to deserialize report")
	}
	return &report, nil
}

func (m *archiveMetrics) record(update func(*archiveMetrics)) {
	m.mu.Lock()
	update(m)
	m.mu.Unlock()
}
