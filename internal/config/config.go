package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend names accepted by STORAGE_BACKEND and METADATA_BACKEND.
const (
	BackendMinIO    = "minio"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// StorageConfig selects and tunes the object store gateway.
type StorageConfig struct {
	Backend          string
	Timeout          time.Duration
	SignedURLTTL     time.Duration
	PresignCacheSize int
	PresignCacheTTL  time.Duration
	// Memory backend only.
	MemorySecret  string
	MemoryBaseURL string
}

// MetadataConfig selects the document record store.
type MetadataConfig struct {
	Backend      string
	QueryTimeout time.Duration
}

// UploadConfig limits accepted uploads.
type UploadConfig struct {
	MaxBytes int64
}

// ExportConfig tunes the batch export pipeline.
type ExportConfig struct {
	ArchiveEnabled  bool
	MaxArchiveBytes int64
	Workers         int
	FallbackDelay   time.Duration
	FetchTimeout    time.Duration
	PageSize        int
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level    string
	Timezone string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost  string
	Port     string
	Database DatabaseConfig
	MinIO    MinIOConfig
	Storage  StorageConfig
	Metadata MetadataConfig
	Upload   UploadConfig
	Export   ExportConfig
	Log      LogConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	port := getEnv("PORT", "8080")
	return &AppConfig{
		AppHost: getEnv("APP_HOST", "localhost:8080"),
		Port:    port,
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			Region:    getEnv("MINIO_REGION", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Storage: StorageConfig{
			Backend:          getEnv("STORAGE_BACKEND", BackendMinIO),
			Timeout:          getEnvDuration("STORAGE_TIMEOUT", 15*time.Second),
			SignedURLTTL:     getEnvDuration("SIGNED_URL_TTL", 10*time.Minute),
			PresignCacheSize: getEnvInt("PRESIGN_CACHE_SIZE", 1024),
			PresignCacheTTL:  getEnvDuration("PRESIGN_CACHE_TTL", 5*time.Minute),
			MemorySecret:     getEnv("MEMORY_STORE_SECRET", ""),
			MemoryBaseURL:    getEnv("MEMORY_STORE_BASE_URL", "http://localhost:"+port+"/objects"),
		},
		Metadata: MetadataConfig{
			Backend:      getEnv("METADATA_BACKEND", BackendPostgres),
			QueryTimeout: getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		},
		Upload: UploadConfig{
			MaxBytes: int64(getEnvInt("UPLOAD_MAX_BYTES", 50<<20)),
		},
		Export: ExportConfig{
			ArchiveEnabled:  getEnvBool("EXPORT_ARCHIVE_ENABLED", true),
			MaxArchiveBytes: int64(getEnvInt("EXPORT_MAX_ARCHIVE_BYTES", 512<<20)),
			Workers:         getEnvInt("EXPORT_WORKERS", 4),
			FallbackDelay:   getEnvDuration("EXPORT_FALLBACK_DELAY", 500*time.Millisecond),
			FetchTimeout:    getEnvDuration("EXPORT_FETCH_TIMEOUT", 30*time.Second),
			PageSize:        getEnvInt("EXPORT_PAGE_SIZE", 1000),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Timezone: getEnv("TZ", "UTC"),
		},
	}
}

// Validate rejects unknown backend names and settings the services cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Storage.Backend {
	case BackendMinIO:
	case BackendMemory:
		if c.Storage.MemorySecret == "" {
			return fmt.Errorf("MEMORY_STORE_SECRET is required for the memory storage backend")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}
	switch c.Metadata.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unsupported METADATA_BACKEND %q", c.Metadata.Backend)
	}
	if c.Storage.SignedURLTTL <= 0 {
		return fmt.Errorf("SIGNED_URL_TTL must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	if c.Export.Workers <= 0 {
		return fmt.Errorf("EXPORT_WORKERS must be positive")
	}
	if c.Export.PageSize <= 0 {
		return fmt.Errorf("EXPORT_PAGE_SIZE must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go duration strings ("750ms", "10m").
func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
