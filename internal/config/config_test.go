package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.APIBaseURL == "" || cfg.NotifyURL == "" {
		t.Fatalf("missing endpoint defaults: %+v", cfg)
	}
	if cfg.PollIntervalMs != 1000 {
		t.Fatalf("poll interval default = %d", cfg.PollIntervalMs)
	}
	if cfg.DebounceDelayMs != 500 {
		t.Fatalf("debounce delay default = %d", cfg.DebounceDelayMs)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level default = %q", cfg.LogLevel)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PIXSYNC_API_BASE_URL", "https://api.example.test")
	t.Setenv("PIXSYNC_POLL_INTERVAL_MS", "250")
	t.Setenv("PIXSYNC_LOCAL_PORT", "9000")
	cfg := LoadConfig()
	if cfg.APIBaseURL != "https://api.example.test" {
		t.Fatalf("base url = %q", cfg.APIBaseURL)
	}
	if cfg.PollIntervalMs != 250 {
		t.Fatalf("poll interval = %d", cfg.PollIntervalMs)
	}
	if cfg.LocalPort != 9000 {
		t.Fatalf("local port = %d", cfg.LocalPort)
	}
}

func TestGetConfig_UsesCacheWithinTTL(t *testing.T) {
	t.Setenv("PIXSYNC_LOCAL_PORT", "9100")
	base := time.Now()
	oldNow := nowFunc
	nowFunc = func() time.Time { return base }
	defer func() { nowFunc = oldNow }()

	LoadConfig()
	t.Setenv("PIXSYNC_LOCAL_PORT", "9200")

	if got := GetConfig().LocalPort; got != 9100 {
		t.Fatalf("expected cached port 9100, got %d", got)
	}

	nowFunc = func() time.Time { return base.Add(cacheTTL + time.Second) }
	if got := GetConfig().LocalPort; got != 9200 {
		t.Fatalf("expected reload after ttl, got %d", got)
	}
}

func TestAtoiOrDefault(t *testing.T) {
	if atoiOrDefault("abc", 7) != 7 {
		t.Fatal("malformed value should fall back")
	}
	if atoiOrDefault("0", 7) != 7 {
		t.Fatal("zero should fall back")
	}
	if atoiOrDefault("42", 7) != 42 {
		t.Fatal("plain number should parse")
	}
}
