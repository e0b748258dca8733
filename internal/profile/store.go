package profile

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const profileFileName = "profile.toml"

// Profile holds the durable per-user settings that outlive a single run:
// which backend to talk to and who the observed tasks belong to. Transient
// tuning lives in env config, not here.
type Profile struct {
	APIBaseURL      string `toml:"api_base_url"`
	NotifyURL       string `toml:"notify_url"`
	UserID          string `toml:"user_id"`
	APIKey          string `toml:"api_key,omitempty"`
	PollIntervalMs  int    `toml:"poll_interval_ms"`
	DebounceDelayMs int    `toml:"debounce_delay_ms"`
}

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// LoadOrInit reads the profile, creating a normalized default file on first
// run.
func (s *Store) LoadOrInit() (Profile, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Profile{}, err
	}

	path := filepath.Join(s.dir, profileFileName)
	if b, err := os.ReadFile(path); err == nil {
		var p Profile
		if err := toml.Unmarshal(b, &p); err != nil {
			return Profile{}, err
		}
		return normalizeProfile(p), nil
	} else if !os.IsNotExist(err) {
		return Profile{}, err
	}

	p := normalizeProfile(Profile{})
	if err := writeTOMLAtomically(path, p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (s *Store) Save(p Profile) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeTOMLAtomically(filepath.Join(s.dir, profileFileName), normalizeProfile(p))
}

func normalizeProfile(p Profile) Profile {
	p.APIBaseURL = strings.TrimSpace(p.APIBaseURL)
	if p.APIBaseURL == "" {
		p.APIBaseURL = "http://127.0.0.1:8080"
	}
	p.NotifyURL = strings.TrimSpace(p.NotifyURL)
	if p.NotifyURL == "" {
		p.NotifyURL = deriveNotifyURL(p.APIBaseURL)
	}
	p.UserID = strings.TrimSpace(p.UserID)
	p.APIKey = strings.TrimSpace(p.APIKey)
	if p.PollIntervalMs <= 0 {
		p.PollIntervalMs = 1000
	}
	if p.DebounceDelayMs <= 0 {
		p.DebounceDelayMs = 500
	}
	return p
}

// deriveNotifyURL maps the REST base onto the websocket stream endpoint.
func deriveNotifyURL(apiBaseURL string) string {
	wsBase := apiBaseURL
	switch {
	case strings.HasPrefix(wsBase, "https://"):
		wsBase = "wss://" + strings.TrimPrefix(wsBase, "https://")
	case strings.HasPrefix(wsBase, "http://"):
		wsBase = "ws://" + strings.TrimPrefix(wsBase, "http://")
	}
	return strings.TrimRight(wsBase, "/") + "/api/notify/v1/stream"
}

func writeTOMLAtomically(path string, v any) error {
	b, err := toml.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
