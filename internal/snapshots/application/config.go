package application

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines snapshot scheduling configuration.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	DailyAt  string `yaml:"daily_at"`
	Timezone string `yaml:"timezone"`
}

// LoadConfig loads snapshot config from yaml or env. Env values fill
// whatever the yaml file leaves empty.
func LoadConfig() (Config, error) {
	cfg := Config{}

	if path := os.Getenv("SNAPSHOT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	} else {
		cfg.Enabled = parseBoolEnv("ENABLE_GESTION_SNAPSHOT_CRON")
	}

	if cfg.DailyAt == "" {
		cfg.DailyAt = getenvDefault("SNAPSHOT_DAILY_AT", "00:00")
	}
	if cfg.Timezone == "" {
		cfg.Timezone = getenvDefault("SNAPSHOT_TIMEZONE", "UTC")
	}
	return cfg, nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseBoolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
