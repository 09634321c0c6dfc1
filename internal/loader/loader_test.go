package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lexcache/lexcache/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lexcached.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Listen != config.DefaultListenAddress {
		t.Errorf("listen = %q, want %q", cfg.Listen, config.DefaultListenAddress)
	}
	if cfg.Redis.Addr != config.DefaultRedisAddr {
		t.Errorf("redis.addr = %q, want %q", cfg.Redis.Addr, config.DefaultRedisAddr)
	}
	if cfg.Redis.OpTimeout() != config.DefaultStoreOpTimeout {
		t.Errorf("op timeout = %v, want %v", cfg.Redis.OpTimeout(), config.DefaultStoreOpTimeout)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should default to enabled")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging.level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
listen: "127.0.0.1:9900"
redis:
  addr: "10.0.0.5:6380"
  db: 2
  op_timeout_ms: 250
retention:
  audio_cache_days: 7
logging:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Listen != "127.0.0.1:9900" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Redis.Addr != "10.0.0.5:6380" || cfg.Redis.DB != 2 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Redis.OpTimeoutMs != 250 {
		t.Errorf("op_timeout_ms = %d", cfg.Redis.OpTimeoutMs)
	}
	if cfg.Retention.AudioCacheDays != 7 {
		t.Errorf("audio_cache_days = %d", cfg.Retention.AudioCacheDays)
	}
	// Unset retention fields stay zero; the retention package fills
	// defaults when building the policy.
	if cfg.Retention.QuestionStatsDays != 0 {
		t.Errorf("question_stats_days = %d, want 0", cfg.Retention.QuestionStatsDays)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("LEXCACHE_TEST_REDIS_PASSWORD", "s3cret")

	path := writeConfig(t, `
redis:
  password: "${LEXCACHE_TEST_REDIS_PASSWORD}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.Password != "s3cret" {
		t.Errorf("password = %q, want s3cret", cfg.Redis.Password)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("empty path: %v", err)
	}
	if cfg.Listen != config.DefaultListenAddress {
		t.Errorf("listen = %q", cfg.Listen)
	}

	cfg, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if cfg.Redis.Addr != config.DefaultRedisAddr {
		t.Errorf("redis.addr = %q", cfg.Redis.Addr)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "listen: [not a string")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"empty listen", func(c *Config) { c.Listen = "" }, false},
		{"bad listen", func(c *Config) { c.Listen = "no-port" }, false},
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }, false},
		{"negative db", func(c *Config) { c.Redis.DB = -1 }, false},
		{"negative retention", func(c *Config) { c.Retention.AudioCacheDays = -1 }, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, false},
		{"bad accuracy", func(c *Config) { c.Metrics.Accuracy = 1.5 }, false},
		{"negative drain", func(c *Config) { c.Shutdown.DrainTimeoutSec = -5 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
