// Package conf loads and validates the daemon configuration. A JSON file in
// the data dir is merged over schema defaults; zog owns validation so a bad
// config fails loudly at startup instead of surfacing mid-execution.
package conf

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	z "github.com/Oudwins/zog"

	"github.com/hatchery-io/hatchery/internals/version"
)

type Config struct {
	Version string        `json:"-"`
	Server  ServerConfig  `json:"server"`
	Store   StoreConfig   `json:"store"`
	Cache   CacheConfig   `json:"cache"`
	Execute ExecuteConfig `json:"execute"`
}

type ServerConfig struct {
	DataDir string `json:"data_dir"`
}

type StoreConfig struct {
	DatabaseURL string `json:"database_url"`
}

type CacheConfig struct {
	RedisAddr string `json:"redis_addr"`
}

type ExecuteConfig struct {
	Workers     int    `json:"workers"`
	MaxRetries  int    `json:"max_retries"`
	BackoffBase string `json:"backoff_base"`
	BackoffMax  string `json:"backoff_max"`
	AgentURL    string `json:"agent_url"`
	QueuePath   string `json:"queue_path"`
}

var serverSchema = z.Struct(z.Shape{
	"DataDir": z.String().Default("~/.hatchery").Transform(expandPathTransform),
})

var storeSchema = z.Struct(z.Shape{
	"DatabaseURL": z.String().Default("postgres://localhost:5432/hatchery?sslmode=disable"),
})

var cacheSchema = z.Struct(z.Shape{
	"RedisAddr": z.String().Default("localhost:6379"),
})

var executeSchema = z.Struct(z.Shape{
	"Workers":     z.Int().Default(4).GTE(1),
	"MaxRetries":  z.Int().Default(3).GTE(1),
	"BackoffBase": z.String().Default("1s"),
	"BackoffMax":  z.String().Default("2m"),
	"AgentURL":    z.String().Default("http://localhost:58121"),
	"QueuePath":   z.String().Optional().Transform(expandPathTransform),
})

var ConfigSchema = z.Struct(z.Shape{
	"server":  serverSchema,
	"store":   storeSchema,
	"cache":   cacheSchema,
	"execute": executeSchema,
})

var config *Config

func GetConfig() *Config {
	if config == nil {
		defaults := &Config{}
		if err := ConfigSchema.Parse(map[string]any{}, defaults); err != nil {
			log.Fatal("[hatchery] Failed to parse config defaults", err)
		}
		defaults.Version = version.Version()

		data, err := os.ReadFile(configPath(defaults.Server.DataDir))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				config = defaults
				return config
			}
			log.Fatal("[hatchery] Failed to read config file", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			config = defaults
			return config
		}

		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Fatal("[hatchery] Failed to parse config file", err)
		}
		parsed := &Config{}
		if err := ConfigSchema.Parse(payload, parsed); err != nil {
			log.Fatal("[hatchery] Failed to parse config", err)
		}
		parsed.Version = defaults.Version
		config = parsed
	}

	return config
}

func configPath(dataDir string) string {
	if override := os.Getenv("HATCHERY_CONFIG"); override != "" {
		return override
	}
	return filepath.Join(filepath.Clean(dataDir), "hatchery.json")
}

func expandPathTransform(ptr *string, c z.Ctx) error {
	expanded, err := ExpandPath(*ptr)
	*ptr = expanded
	return err
}

// ExpandPath resolves a leading ~ against the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}
