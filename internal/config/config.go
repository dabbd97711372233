// Package config loads settings from resale.yaml, a .env file and the
// environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scope     ScopeConfig     `mapstructure:"scope"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"` // gemini, openai
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
}

type PipelineConfig struct {
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
}

type ScopeConfig struct {
	Mode string `mapstructure:"mode"` // llm, strict
}

type RetrievalConfig struct {
	Site     string   `mapstructure:"site"`
	Seeds    []string `mapstructure:"seeds"`
	MaxPages     int           `mapstructure:"max_pages"`
	Results      int           `mapstructure:"results"`
	CrawlTimeout time.Duration `mapstructure:"crawl_timeout"`
}

type DatasetConfig struct {
	CSV string `mapstructure:"csv"`
	DB  string `mapstructure:"db"`
}

type CacheConfig struct {
	Backend       string `mapstructure:"backend"` // memory, redis
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console, json
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			Temperature: 0.2,
		},
		Pipeline: PipelineConfig{StageTimeout: 90 * time.Second},
		Scope:    ScopeConfig{Mode: "llm"},
		Retrieval: RetrievalConfig{
			Site:         "https://www.hdb.gov.sg/cs/infoweb",
			MaxPages:     60,
			Results:      6,
			CrawlTimeout: 3 * time.Minute,
		},
		Dataset: DatasetConfig{CSV: "ResaleflatpricesbasedonregistrationdatefromJan2017onwards.csv"},
		Cache:   CacheConfig{Backend: "memory", RedisAddr: "localhost:6379"},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads configuration. An empty path searches for resale.yaml in the
// working directory; a missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RESALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.port", "RESALE_SERVER_PORT", "PORT")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("resale")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKey(cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// providerKey falls back to the provider's conventional variable.
func providerKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return os.Getenv("GEMINI_API_KEY")
	}
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("invalid llm provider: %s (must be gemini or openai)", c.LLM.Provider)
	}
	switch c.Scope.Mode {
	case "llm", "strict":
	default:
		return fmt.Errorf("invalid scope mode: %s (must be llm or strict)", c.Scope.Mode)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}
	if c.Pipeline.StageTimeout < 0 {
		return fmt.Errorf("invalid stage timeout: %s", c.Pipeline.StageTimeout)
	}
	return nil
}

// RequireAPIKey reports a missing key for the configured provider. Commands
// that never call the model skip it.
func (c *Config) RequireAPIKey() error {
	if c.LLM.APIKey != "" {
		return nil
	}
	if c.LLM.Provider == "openai" {
		return errors.New("OPENAI_API_KEY (or RESALE_LLM_API_KEY) environment variable is required")
	}
	return errors.New("GEMINI_API_KEY (or RESALE_LLM_API_KEY) environment variable is required")
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("pipeline.stage_timeout", d.Pipeline.StageTimeout)
	v.SetDefault("scope.mode", d.Scope.Mode)
	v.SetDefault("retrieval.site", d.Retrieval.Site)
	v.SetDefault("retrieval.seeds", d.Retrieval.Seeds)
	v.SetDefault("retrieval.max_pages", d.Retrieval.MaxPages)
	v.SetDefault("retrieval.results", d.Retrieval.Results)
	v.SetDefault("retrieval.crawl_timeout", d.Retrieval.CrawlTimeout)
	v.SetDefault("dataset.csv", d.Dataset.CSV)
	v.SetDefault("dataset.db", d.Dataset.DB)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}
