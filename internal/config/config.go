package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Config struct {
	APIBaseURL      string
	NotifyURL       string
	LogLevel        string
	PollIntervalMs  int
	DebounceDelayMs int
	CacheDir        string
	LocalHost       string
	LocalPort       int
	MaxTrackedTasks int
}

var (
	cacheTTL   = 10 * time.Second
	nowFunc    = time.Now
	cacheMu    sync.RWMutex
	cachedCfg  Config
	cachedAt   time.Time
	cacheValid bool
)

func LoadConfig() Config {
	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = nowFunc()
	cacheValid = true
	cacheMu.Unlock()
	return cfg
}

func GetConfig() *Config {
	now := nowFunc()
	cacheMu.RLock()
	valid := cacheValid && now.Sub(cachedAt) < cacheTTL
	if valid {
		out := cachedCfg
		cacheMu.RUnlock()
		return &out
	}
	cacheMu.RUnlock()

	cfg := loadFromEnv()
	cacheMu.Lock()
	cachedCfg = cfg
	cachedAt = now
	cacheValid = true
	cacheMu.Unlock()

	out := cfg
	return &out
}

func loadFromEnv() Config {
	base := os.Getenv("PIXSYNC_API_BASE_URL")
	if base == "" {
		base = "http://127.0.0.1:8080"
	}

	notifyURL := os.Getenv("PIXSYNC_NOTIFY_URL")
	if notifyURL == "" {
		notifyURL = "ws://127.0.0.1:8080/api/notify/v1/stream"
	}

	level := os.Getenv("PIXSYNC_LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	pollIntervalMs := atoiOrDefault(os.Getenv("PIXSYNC_POLL_INTERVAL_MS"), 1000)
	debounceDelayMs := atoiOrDefault(os.Getenv("PIXSYNC_DEBOUNCE_DELAY_MS"), 500)
	maxTracked := atoiOrDefault(os.Getenv("PIXSYNC_MAX_TRACKED_TASKS"), 50)

	cacheDir := os.Getenv("PIXSYNC_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = defaultCacheDir()
	}

	localHost := os.Getenv("PIXSYNC_LOCAL_HOST")
	if localHost == "" {
		localHost = "127.0.0.1"
	}
	localPort := atoiOrDefault(os.Getenv("PIXSYNC_LOCAL_PORT"), 4792)

	return Config{
		APIBaseURL:      base,
		NotifyURL:       notifyURL,
		LogLevel:        level,
		PollIntervalMs:  pollIntervalMs,
		DebounceDelayMs: debounceDelayMs,
		CacheDir:        cacheDir,
		LocalHost:       localHost,
		LocalPort:       localPort,
		MaxTrackedTasks: maxTracked,
	}
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Clean(".pixsync")
	}
	return filepath.Join(home, ".pixsync")
}

func atoiOrDefault(v string, fallback int) int {
	n := 0
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return fallback
		}
		n = n*10 + int(v[i]-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}
