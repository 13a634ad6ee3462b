package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig is the field client's settings blob. The JSON form is what gets
// persisted under the "config" key; YAML is accepted for seed files.
type ClientConfig struct {
	ServerURL    string   `json:"serverUrl" yaml:"server_url"`
	APIKey       string   `json:"apiKey" yaml:"api_key"`
	SyncInterval Duration `json:"syncInterval" yaml:"sync_interval"`
	OfflineMode  bool     `json:"offlineMode" yaml:"offline_mode"`

	// Not persisted in the blob.
	DBPath         string        `json:"-" yaml:"db_path"`
	MapsAPIKey     string        `json:"-" yaml:"maps_api_key"`
	RequestTimeout time.Duration `json:"-" yaml:"request_timeout"`
	GeocodeWorkers int           `json:"-" yaml:"geocode_workers"`
	LogEnv         string        `json:"-" yaml:"log_env"`
}

// Duration marshals as milliseconds in JSON and as a Go duration string in YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Milliseconds())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("syncInterval: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("syncInterval: %w", err)
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("sync_interval: %w", err)
	}
	*d = Duration(v)
	return nil
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL:      "http://localhost:3000",
		SyncInterval:   Duration(30 * time.Second),
		DBPath:         "locations.db",
		RequestTimeout: 10 * time.Second,
		GeocodeWorkers: 2,
		LogEnv:         "local",
	}
}

// LoadClientConfig layers defaults, an optional YAML file, then CLIENT_* env vars.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read client config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parse client config: %w", err)
			}
		}
	}

	cfg.ServerURL = getEnv("CLIENT_SERVER_URL", cfg.ServerURL)
	cfg.APIKey = getEnv("CLIENT_API_KEY", cfg.APIKey)
	cfg.SyncInterval = Duration(getEnvDuration("CLIENT_SYNC_INTERVAL", cfg.SyncInterval.Std()))
	cfg.OfflineMode = getEnvBool("CLIENT_OFFLINE_MODE", cfg.OfflineMode)
	cfg.DBPath = getEnv("CLIENT_DB_PATH", cfg.DBPath)
	cfg.MapsAPIKey = getEnv("GOOGLE_MAPS_API_KEY", cfg.MapsAPIKey)
	cfg.LogEnv = getEnv("LOG_ENV", cfg.LogEnv)

	return cfg, cfg.Validate()
}

func (c ClientConfig) Validate() error {
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return errors.New("server url must start with http:// or https://")
	}
	if c.SyncInterval.Std() < time.Second {
		return errors.New("sync interval must be at least 1s")
	}
	if c.DBPath == "" {
		return errors.New("db path required")
	}
	return nil
}

// Merge overlays the persisted blob fields onto c.
func (c ClientConfig) Merge(stored ClientConfig) ClientConfig {
	if stored.ServerURL != "" {
		c.ServerURL = stored.ServerURL
	}
	if stored.APIKey != "" {
		c.APIKey = stored.APIKey
	}
	if stored.SyncInterval > 0 {
		c.SyncInterval = stored.SyncInterval
	}
	c.OfflineMode = stored.OfflineMode
	return c
}
