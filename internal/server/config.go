// config.go - Environment-driven configuration.
//
// Every knob is an SSR_* environment variable with a sensible default;
// only the master key (and the storage credentials when MinIO is
// selected) must be provided. Validation runs once at startup so a
// misconfigured deployment fails before it serves a request.
package server

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// BuildInfo identifies the running binary in logs, metrics and the
// health endpoint.
type BuildInfo struct {
	Version string
	Commit  string
}

// StorageKind selects the Content Store implementation.
type StorageKind string

const (
	StorageMinio  StorageKind = "minio"
	StorageMemory StorageKind = "memory"
)

// Config is the full runtime configuration.
type Config struct {
	Addr    string // e.g. ":8080"
	BaseURL string // public URL prefix used in download links
	Build   BuildInfo

	// Cryptography
	MasterKeyHex string // 64 hex chars, the deployment AES-256 key
	AddressSalt  string // salt for requester address fingerprints

	// Upload policy
	MaxUploadBytes  int64
	DefaultTTLHours int
	MaxTTLHours     int

	// Content store
	Storage     StorageKind
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	Bucket      string

	// Malware scanning
	ScanEnabled bool
	ClamdAddr   string
	ClamdWait   time.Duration

	// Rate limiting
	RateLimitEnabled    bool
	RedisURL            string
	GlobalRatePerMinute int
	UploadRatePerHour   int
	DownloadRatePerHour int

	// CORS
	CORSOrigins []string

	// Residual-ciphertext sweeper
	SweepEnabled  bool
	SweepInterval time.Duration
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() Config {
	return Config{
		Addr:    getenvDefault("SSR_ADDR", ":8080"),
		BaseURL: strings.TrimRight(getenvDefault("SSR_BASE_URL", "http://localhost:8080"), "/"),
		Build: BuildInfo{
			Version: getenvDefault("SSR_VERSION", "dev"),
			Commit:  getenvDefault("SSR_COMMIT", "unknown"),
		},

		MasterKeyHex: os.Getenv("SSR_MASTER_KEY"),
		AddressSalt:  getenvDefault("SSR_ADDRESS_SALT", "secureshare"),

		MaxUploadBytes:  getenvInt64("SSR_MAX_UPLOAD_BYTES", 100<<20),
		DefaultTTLHours: getenvInt("SSR_DEFAULT_TTL_HOURS", 24),
		MaxTTLHours:     getenvInt("SSR_MAX_TTL_HOURS", 48),

		Storage:     StorageKind(getenvDefault("SSR_STORAGE", string(StorageMinio))),
		S3Endpoint:  getenvDefault("SSR_S3_ENDPOINT", "localhost:9000"),
		S3AccessKey: os.Getenv("SSR_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("SSR_S3_SECRET_KEY"),
		Bucket:      getenvDefault("SSR_S3_BUCKET", "secureshare"),

		ScanEnabled: getenvDefault("SSR_SCAN_ENABLED", "true") == "true",
		ClamdAddr:   getenvDefault("SSR_CLAMD_ADDR", "localhost:3310"),
		ClamdWait:   getenvDuration("SSR_CLAMD_TIMEOUT", 60*time.Second),

		RateLimitEnabled:    getenvDefault("SSR_RATELIMIT_ENABLED", "true") == "true",
		RedisURL:            os.Getenv("SSR_REDIS_URL"),
		GlobalRatePerMinute: getenvInt("SSR_RATE_GLOBAL_PER_MINUTE", 100),
		UploadRatePerHour:   getenvInt("SSR_RATE_UPLOAD_PER_HOUR", 10),
		DownloadRatePerHour: getenvInt("SSR_RATE_DOWNLOAD_PER_HOUR", 50),

		CORSOrigins: splitList(getenvDefault("SSR_CORS_ORIGINS", "http://localhost:3000")),

		SweepEnabled:  getenvDefault("SSR_SWEEP_ENABLED", "false") == "true",
		SweepInterval: getenvDuration("SSR_SWEEP_INTERVAL", 15*time.Minute),
	}
}

// Validate checks that the configuration is internally consistent and
// that the required secrets are present.
func (c Config) Validate() error {
	key, err := hex.DecodeString(c.MasterKeyHex)
	if err != nil || len(key) != 32 {
		return fmt.Errorf("SSR_MASTER_KEY must be 64 hex characters (32 bytes)")
	}

	switch c.Storage {
	case StorageMinio:
		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			return fmt.Errorf("SSR_S3_ACCESS_KEY and SSR_S3_SECRET_KEY are required for minio storage")
		}
		if c.Bucket == "" {
			return fmt.Errorf("SSR_S3_BUCKET must not be empty")
		}
	case StorageMemory:
		// no external requirements
	default:
		return fmt.Errorf("SSR_STORAGE must be %q or %q, got %q", StorageMinio, StorageMemory, c.Storage)
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("SSR_MAX_UPLOAD_BYTES must be positive")
	}
	if c.DefaultTTLHours < 1 || c.MaxTTLHours < 1 {
		return fmt.Errorf("TTL hours must be at least 1")
	}
	if c.DefaultTTLHours > c.MaxTTLHours {
		return fmt.Errorf("SSR_DEFAULT_TTL_HOURS (%d) exceeds SSR_MAX_TTL_HOURS (%d)", c.DefaultTTLHours, c.MaxTTLHours)
	}

	if c.RateLimitEnabled {
		if c.GlobalRatePerMinute < 1 || c.UploadRatePerHour < 1 || c.DownloadRatePerHour < 1 {
			return fmt.Errorf("rate limits must be at least 1 when rate limiting is enabled")
		}
	}

	return nil
}

func getenvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getenvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getenvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getenvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
