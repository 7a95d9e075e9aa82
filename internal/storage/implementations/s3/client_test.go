package s3

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

func sampleReport() *privacy.AuditReport {
	return &privacy.AuditReport{
		ID:                  "6f1c2d34-audit",
		Timestamp:           time.Date(2024, 3, 7, 23, 30, 0, 0, time.UTC),
		RecordCount:         12,
		QuasiIdentifiers:    []string{"age_group", "gender"},
		SensitiveAttributes: []string{"diagnosis"},
		OverallPrivacyScore: 66.66666666666667,
	}
}

func TestNewReportArchive(t *testing.T) {
	config := &S3Config{Region: "us-east-1", Bucket: "audit-bucket"}
	logger := logrus.New()

	archive, err := NewReportArchive(config, logger)
	require.NoError(t, err)
	assert.Equal(t, config, archive.config)
	assert.Equal(t, logger, archive.logger)
	assert.Equal(t, ArchiveStats{}, archive.Stats())
}

func TestNewReportArchiveInvalidConfig(t *testing.T) {
	_, err := NewReportArchive(nil, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 config cannot be nil")

	_, err = NewReportArchive(DefaultS3Config(), logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 bucket is required")
}

func TestGenerateKey(t *testing.T) {
	config := DefaultS3Config()
	config.Bucket = "audit-bucket"

	archive, err := NewReportArchive(config, nil)
	require.NoError(t, err)
	assert.Equal(t, "privacy-audits/2024/03/07/6f1c2d34-audit.json.gz", archive.generateKey(sampleReport()))

	config.UseCompression = false
	config.Prefix = ""
	assert.Equal(t, "2024/03/07/6f1c2d34-audit.json", archive.generateKey(sampleReport()))
}

func TestGenerateKeyUsesUTCDate(t *testing.T) {
	archive, err := NewReportArchive(&S3Config{Bucket: "b", Prefix: "p"}, nil)
	require.NoError(t, err)

	report := sampleReport()
	report.Timestamp = time.Date(2024, 3, 8, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	assert.Equal(t, "p/2024/03/07/6f1c2d34-audit.json", archive.generateKey(report))
}

func TestEncodeDecodeReport(t *testing.T) {
	for _, compress := range []bool{false, true} {
		data, err := encodeReport(sampleReport(), compress)
		require.NoError(t, err)

		got, err := decodeReport(data, compress)
		require.NoError(t, err)
		assert.Equal(t, "6f1c2d34-audit", got.ID)
		assert.Equal(t, 12, got.RecordCount)
		assert.Equal(t, []string{"age_group", "gender"}, got.QuasiIdentifiers)
	}

	_, err := decodeReport([]byte("not gzip"), true)
	require.Error(t, err)
}

func TestReportArchiveNotConnected(t *testing.T) {
	archive, err := NewReportArchive(&S3Config{Bucket: "b"}, logrus.New())
	require.NoError(t, err)

	ctx := context.Background()
	err = archive.Ping(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), errors.CodeNotConnected)

	_, err = archive.Upload(ctx, sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), errors.CodeNotConnected)

	_, err = archive.Upload(ctx, nil)
	assert.True(t, errors.IsInvalidInput(err))

	_, err = archive.Download(ctx, "k")
	require.Error(t, err)

	require.NoError(t, archive.Close())
	require.NoError(t, archive.Close())
}

func TestReportArchiveIntegration(t *testing.T) {
	t.Skip("Integration test - requires S3 or MinIO endpoint")

	config := DefaultS3Config()
	config.Bucket = "privacy-audit-test"
	config.Endpoint = "http://localhost:9000"
	config.ForcePathStyle = true
	config.DisableSSL = true

	archive, err := NewReportArchive(config, logrus.New())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, archive.Connect(ctx))
	defer archive.Close()

	key, err := archive.Upload(ctx, sampleReport())
	require.NoError(t, err)

	got, err := archive.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "6f1c2d34-audit", got.ID)
}
