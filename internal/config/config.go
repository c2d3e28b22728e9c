// Package config handles Admit-Assist configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/n1dhiparate/admit-assist/internal/paths"
)

// Generation providers understood by [GenerationConfig.Provider].
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Store drivers understood by [StoreConfig.Driver].
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from --config) is checked first by [FindConfig].
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml", "config.toml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "admitassist", "config.yaml"))
	}

	paths = append(paths, "/etc/admitassist/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Admit-Assist configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen" toml:"listen"`
	LogLevel   string           `yaml:"log_level" toml:"log_level"`
	LogFormat  string           `yaml:"log_format" toml:"log_format"`
	DataDir    string           `yaml:"data_dir" toml:"data_dir"`
	StudentID  string           `yaml:"student_id" toml:"student_id"`
	Brochure   BrochureConfig   `yaml:"brochure" toml:"brochure"`
	Generation GenerationConfig `yaml:"generation" toml:"generation"`
	Store      StoreConfig      `yaml:"store" toml:"store"`
	CORS       CORSConfig       `yaml:"cors" toml:"cors"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" toml:"rate_limit"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address" toml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port" toml:"port"`
}

// BrochureConfig points at the reference document answers are grounded in.
type BrochureConfig struct {
	// Path is a .txt, .md or .pdf file. Passages are blank-line
	// separated paragraphs.
	Path string `yaml:"path" toml:"path"`
	// Watch reloads the brochure when the file changes on disk.
	Watch bool `yaml:"watch" toml:"watch"`
}

// GenerationConfig selects and configures the answer generator.
type GenerationConfig struct {
	Provider  string `yaml:"provider" toml:"provider"` // gemini, ollama, openai
	Model     string `yaml:"model" toml:"model"`
	APIKey    string `yaml:"api_key" toml:"api_key"`
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	TimeoutMS int    `yaml:"timeout_ms" toml:"timeout_ms"`
}

// Timeout returns the per-call generation timeout.
func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMS) * time.Millisecond
}

// StoreConfig selects where onboarding status is persisted.
type StoreConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // memory, sqlite, postgres, redis
	Path   string `yaml:"path" toml:"path"`     // sqlite database file
	DSN    string `yaml:"dsn" toml:"dsn"`       // postgres connection string
	URL    string `yaml:"url" toml:"url"`       // redis://host:port/db
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// RateLimitConfig throttles the chat endpoint. A non-positive
// RequestsPerSecond disables the limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// Load reads configuration from a YAML or TOML file, chosen by
// extension. Environment variables in the file are expanded before
// parsing, so secrets can stay out of the file (api_key: ${GEMINI_API_KEY}).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a runnable configuration: Gemini with the key taken
// from GEMINI_API_KEY, in-memory status, the bundled brochure path.
func Default() *Config {
	cfg := &Config{
		Generation: GenerationConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 10000
	}
	if c.DataDir == "" {
		c.DataDir = "./db"
	}
	if c.StudentID == "" {
		c.StudentID = "default"
	}
	if c.Brochure.Path == "" {
		c.Brochure.Path = filepath.Join("data", "admission_brochure.txt")
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = ProviderGemini
	}
	if c.Generation.Model == "" {
		switch c.Generation.Provider {
		case ProviderOllama:
			c.Generation.Model = "qwen3:4b"
		case ProviderOpenAI:
			c.Generation.Model = "gpt-4o-mini"
		default:
			c.Generation.Model = "gemini-2.5-flash"
		}
	}
	if c.Generation.TimeoutMS == 0 {
		c.Generation.TimeoutMS = 30000
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "onboarding.db")
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 1
	}

	c.DataDir = paths.ExpandHome(c.DataDir)
	c.Brochure.Path = paths.Resolve(c.Brochure.Path, c.DataDir)
	c.Store.Path = paths.Resolve(c.Store.Path, c.DataDir)
}

// Validate checks values that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat)
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	switch c.Generation.Provider {
	case ProviderGemini, ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown generation.provider %q (valid: gemini, ollama, openai)", c.Generation.Provider)
	}
	if c.Generation.TimeoutMS < 0 {
		return fmt.Errorf("generation.timeout_ms must not be negative")
	}
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	case DriverRedis:
		if c.Store.URL == "" {
			return fmt.Errorf("store.url is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (valid: memory, sqlite, postgres, redis)", c.Store.Driver)
	}
	return nil
}
