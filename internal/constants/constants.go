package constants

// Application
const (
	AppName        = "cargohold"
	AppDisplayName = "CargoHold"
)

// Paths
const (
	ConfigDir   = ".config/cargohold"
	ConfigFile  = "config.yaml"
	InternalDir = ".internal"
	ServiceDB   = "cargohold.db"
	ObjectsDir  = "objects"
)

// Filesystem permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

// API
const (
	DefaultPort = 2371
)

// Storage
const (
	HashLength        = 64         // BLAKE3 hex string length (32 bytes = 64 hex chars)
	MaxUploadBytes    = 1073741824 // 1GB
	ObjectFanoutChars = 2          // objects/ab/abcdef... directory fanout
)

// Database pragmas. WAL keeps readers unblocked while the event sink appends.
var SQLitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Logging
const (
	DefaultLogLevel    = "debug"
	LogsDir            = "logs"
	LogFileExtension   = ".log"
	LogTimestampFormat = "2006-01-02 15:04:05"
)

// Shutdown
const (
	ShutdownTimeoutSecs = 10
)

// Pagination
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

const DefaultMimeType = "application/octet-stream"
