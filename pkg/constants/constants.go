package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "privacy-audit-server"
	AppDescription = "Healthcare Data Warehouse Privacy Auditing Engine"
	AppVersion     = "0.1.0"

	// API constants
	APIVersion = "v1"
	APIPrefix  = "/api/v1"

	// Default configuration values
	DefaultPort            = 8080
	DefaultHost            = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Privacy defaults
	DefaultK                     = 5
	DefaultL                     = 3
	DefaultT                     = 0.2
	DefaultRecommendedMaxEpsilon = 1.0
	MaxReportedViolations        = 10

	// Storage defaults
	DefaultStorageTimeout    = 30 * time.Second
	DefaultMaxConnections    = 10
	DefaultConnectionTimeout = 10 * time.Second

	// Cache defaults
	DefaultCacheTTL = 5 * time.Minute

	// File size limits
	MaxUploadSize = 100 * 1024 * 1024 // 100MB
)

// Default audit columns of the visits warehouse.
var (
	DefaultQuasiIdentifiers    = []string{"age_group", "gender", "state"}
	DefaultSensitiveAttributes = []string{"diagnosis", "visit_type"}
)

// HTTP headers
const (
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-ID"
)

// Content types
const (
	ContentTypeJSON = "application/json"
	ContentTypeYAML = "application/yaml"
	ContentTypeCSV  = "text/csv"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
)

// Log formats
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// OutputFormatConsole selects the human readable CLI summary.
const OutputFormatConsole = "console"
