package server

import (
	"strings"
	"testing"
	"time"
)

func validTestConfig() Config {
	return Config{
		Addr:            ":8080",
		BaseURL:         "http://localhost:8080",
		MasterKeyHex:    strings.Repeat("ab", 32),
		MaxUploadBytes:  100 << 20,
		DefaultTTLHours: 24,
		MaxTTLHours:     48,
		Storage:         StorageMemory,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid memory config", func(c *Config) {}, false},
		{"missing master key", func(c *Config) { c.MasterKeyHex = "" }, true},
		{"short master key", func(c *Config) { c.MasterKeyHex = "abcd" }, true},
		{"non-hex master key", func(c *Config) { c.MasterKeyHex = strings.Repeat("zz", 32) }, true},
		{"unknown storage", func(c *Config) { c.Storage = "s3" }, true},
		{"minio without credentials", func(c *Config) { c.Storage = StorageMinio }, true},
		{"minio with credentials", func(c *Config) {
			c.Storage = StorageMinio
			c.S3AccessKey = "access"
			c.S3SecretKey = "secret"
			c.Bucket = "bucket"
		}, false},
		{"zero max upload", func(c *Config) { c.MaxUploadBytes = 0 }, true},
		{"default ttl above max", func(c *Config) { c.DefaultTTLHours = 72 }, true},
		{"zero rate limit while enabled", func(c *Config) {
			c.RateLimitEnabled = true
			c.GlobalRatePerMinute = 0
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected a validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.Addr != ":8080" {
		t.Errorf("Expected default addr :8080, got %q", cfg.Addr)
	}
	if cfg.DefaultTTLHours != 24 || cfg.MaxTTLHours != 48 {
		t.Errorf("Unexpected TTL defaults: %d/%d", cfg.DefaultTTLHours, cfg.MaxTTLHours)
	}
	if cfg.ClamdWait != 60*time.Second {
		t.Errorf("Expected 60s clamd timeout, got %v", cfg.ClamdWait)
	}
	if !cfg.ScanEnabled {
		t.Error("Scanning should default to enabled")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SSR_ADDR", ":9090")
	t.Setenv("SSR_STORAGE", "memory")
	t.Setenv("SSR_MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("SSR_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg := LoadConfig()

	if cfg.Addr != ":9090" {
		t.Errorf("Expected :9090, got %q", cfg.Addr)
	}
	if cfg.Storage != StorageMemory {
		t.Errorf("Expected memory storage, got %q", cfg.Storage)
	}
	if cfg.MaxUploadBytes != 1<<20 {
		t.Errorf("Expected 1MiB, got %d", cfg.MaxUploadBytes)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != want[0] || cfg.CORSOrigins[1] != want[1] {
		t.Errorf("Unexpected origins %v", cfg.CORSOrigins)
	}
}
