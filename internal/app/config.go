package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/shrimpsizemoose/trekker/logger"
)

// Environment variables that override the config file.
const (
	EnvDSN      = "MARKSHEET_DSN"
	EnvRedisURL = "MARKSHEET_REDIS_URL"
	EnvBotToken = "MARKSHEET_BOT_TOKEN"
)

type Config struct {
	Server struct {
		Port string `toml:"port" validate:"required"`
	} `toml:"server"`

	Database struct {
		DSN           string `toml:"dsn" validate:"required"`
		MigrationsDir string `toml:"migrations_dir"`
		// only used by the mongodb backend
		Name string `toml:"name"`
	} `toml:"database"`

	Cache struct {
		TTL       Duration `toml:"ttl"`
		RedisURL  string   `toml:"redis_url"`
		KeyPrefix string   `toml:"key_prefix"`
	} `toml:"cache"`

	Batch struct {
		ChunkSize int `toml:"chunk_size" validate:"gte=0,lte=500"`
	} `toml:"batch"`

	Classes struct {
		Standard []string `toml:"standard"`
		Custom   []string `toml:"custom"`
	} `toml:"classes"`

	Scheduler struct {
		RecomputeCron string `toml:"recompute_cron"`
	} `toml:"scheduler"`

	Bot struct {
		Token    string  `toml:"token"`
		AdminIDs []int64 `toml:"admin_ids"`
	} `toml:"bot"`
}

// Duration reads TOML strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s\n> Error: %w", path, err)
	}

	logger.Debug.Printf("Loaded config: store=%s cache ttl=%s chunk=%d",
		DetectDatabaseType(config.Database.DSN), config.Cache.TTL, config.Batch.ChunkSize)

	return config, nil
}

// ParseConfig decodes TOML, applies environment overrides and defaults, and
// validates the result.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	if v := os.Getenv(EnvDSN); v != "" {
		config.Database.DSN = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		config.Cache.RedisURL = v
	}
	if v := os.Getenv(EnvBotToken); v != "" {
		config.Bot.Token = v
	}

	if config.Database.MigrationsDir == "" {
		config.Database.MigrationsDir = "./migrations"
	}
	if config.Database.Name == "" {
		config.Database.Name = "marksheet"
	}
	if config.Cache.KeyPrefix == "" {
		config.Cache.KeyPrefix = "marksheet"
	}

	if err := validator.New().Struct(&config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("config field %s failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, err
	}
	return &config, nil
}
