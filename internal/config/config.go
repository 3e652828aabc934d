// Package config loads service configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseUrl"`
	RedisURL    string `yaml:"redisUrl"`

	Routing   RoutingConfig   `yaml:"routing"`
	OffRoute  OffRouteConfig  `yaml:"offRoute"`
	Hazards   HazardConfig    `yaml:"hazards"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	WS        WSConfig        `yaml:"ws"`
}

type RoutingConfig struct {
	BaseURL    string `yaml:"baseUrl"`
	APIKey     string `yaml:"apiKey"`
	Profile    string `yaml:"profile"`
	CacheSize  int    `yaml:"cacheSize"`
	CacheTTLMs int    `yaml:"cacheTtlMs"`
}

type OffRouteConfig struct {
	ThresholdM  float64 `yaml:"thresholdM"`
	StrikeLimit int     `yaml:"strikeLimit"`
	DebounceMs  int     `yaml:"debounceMs"`
}

type HazardConfig struct {
	RadiusM      float64 `yaml:"radiusM"`
	MaxAgeHours  int     `yaml:"maxAgeHours"`
	SweepMinutes int     `yaml:"sweepMinutes"`
}

type BroadcastConfig struct {
	MaxPerSecond int `yaml:"maxPerSecond"`
}

type WSConfig struct {
	PingIntervalSec int `yaml:"pingIntervalSec"`
	GraceMultiplier int `yaml:"graceMultiplier"`
	InboundPerSec   int `yaml:"inboundPerSec"`
	InboundBurst    int `yaml:"inboundBurst"`
}

// Default returns the built-in defaults, used when no config file or
// environment override is present.
func Default() Config {
	return Config{
		Port: "8080",
		Routing: RoutingConfig{
			BaseURL:    "https://graphhopper.com/api/1",
			Profile:    "car",
			CacheSize:  100,
			CacheTTLMs: 30000,
		},
		OffRoute: OffRouteConfig{
			ThresholdM:  50,
			StrikeLimit: 3,
			DebounceMs:  2000,
		},
		Hazards: HazardConfig{
			RadiusM:      1000,
			MaxAgeHours:  24,
			SweepMinutes: 10,
		},
		Broadcast: BroadcastConfig{MaxPerSecond: 5},
		WS: WSConfig{
			PingIntervalSec: 20,
			GraceMultiplier: 3,
			InboundPerSec:   20,
			InboundBurst:    40,
		},
	}
}

// Load reads the YAML file at path when it exists and overlays environment
// variables. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("ROUTING_BASE_URL"); v != "" {
		cfg.Routing.BaseURL = v
	}
	if v := os.Getenv("ROUTING_API_KEY"); v != "" {
		cfg.Routing.APIKey = v
	}
	return cfg, nil
}

func (c Config) Debounce() time.Duration { return time.Duration(c.OffRoute.DebounceMs) * time.Millisecond }
func (c Config) CacheTTL() time.Duration { return time.Duration(c.Routing.CacheTTLMs) * time.Millisecond }
func (c Config) HazardMaxAge() time.Duration {
	return time.Duration(c.Hazards.MaxAgeHours) * time.Hour
}
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Hazards.SweepMinutes) * time.Minute
}
func (c Config) PingInterval() time.Duration {
	return time.Duration(c.WS.PingIntervalSec) * time.Second
}
func (c Config) PongWait() time.Duration {
	return c.PingInterval() * time.Duration(c.WS.GraceMultiplier)
}
