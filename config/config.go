// Package config loads gobox client settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
	"gopkg.in/yaml.v3"
)

type AuthType string

const (
	AuthDeveloper AuthType = "developer"
	AuthCCG       AuthType = "ccg"
	AuthJWT       AuthType = "jwt"
	AuthOAuth     AuthType = "oauth"
)

type StorageType string

const (
	StorageMemory   StorageType = "memory"
	StorageFile     StorageType = "file"
	StorageSQLite   StorageType = "sqlite"
	StoragePostgres StorageType = "postgres"
)

type AuthConfig struct {
	Type           AuthType `yaml:"type"`
	ClientID       string   `yaml:"client_id"`
	ClientSecret   string   `yaml:"client_secret"`
	EnterpriseID   string   `yaml:"enterprise_id"`
	UserID         string   `yaml:"user_id"`
	DeveloperToken string   `yaml:"developer_token"`
	// JWTConfigFile is the JSON file downloaded from the developer console
	JWTConfigFile string `yaml:"jwt_config_file"`
}

type TokenStorageConfig struct {
	Type StorageType `yaml:"type"`
	// Path of the token file for StorageFile and the database for StorageSQLite
	Path string `yaml:"path"`
	DSN  string `yaml:"dsn"`
	Key  string `yaml:"key"`
}

type RetryConfig struct {
	Disabled              bool          `yaml:"disabled"`
	MaxAttempts           int           `yaml:"max_attempts"`
	MaxRetriesOnException int           `yaml:"max_retries_on_exception"`
	BaseInterval          time.Duration `yaml:"base_interval"`
	RandomizationFactor   float64       `yaml:"randomization_factor"`
	MaxDelay              time.Duration `yaml:"max_delay"`
}

type ClientConfig struct {
	BaseURLs       network.BaseURLs     `yaml:"base_urls"`
	ExtraHeaders   dto.ExtraHeaders     `yaml:"extra_headers"`
	Proxy          *network.ProxyConfig `yaml:"proxy,omitempty"`
	RequestTimeout time.Duration        `yaml:"request_timeout"`
	Retry          RetryConfig          `yaml:"retry"`
	Auth           AuthConfig           `yaml:"auth"`
	TokenStorage   TokenStorageConfig   `yaml:"token_storage"`
	MetricsAddr    string               `yaml:"metrics_addr"`
	LogLevel       string               `yaml:"log_level"`
}

func DefaultClientConfig() ClientConfig {
	def := network.DefaultBoxRetryStrategy()
	return ClientConfig{
		BaseURLs:     network.DefaultBaseURLs(),
		ExtraHeaders: dto.ExtraHeaders{},
		Retry: RetryConfig{
			MaxAttempts:           def.MaxAttempts,
			MaxRetriesOnException: def.MaxRetriesOnException,
			BaseInterval:          def.BaseInterval,
			RandomizationFactor:   def.RandomizationFactor,
			MaxDelay:              def.MaxDelay,
		},
		Auth:         AuthConfig{Type: AuthDeveloper},
		TokenStorage: TokenStorageConfig{Type: StorageMemory},
		LogLevel:     "info",
	}
}

func (c *ClientConfig) WithBaseURLs(b network.BaseURLs) *ClientConfig {
	c.BaseURLs = b
	return c
}

func (c *ClientConfig) WithExtraHeaders(h dto.ExtraHeaders) *ClientConfig {
	c.ExtraHeaders = h
	return c
}

func (c *ClientConfig) WithProxy(p network.ProxyConfig) *ClientConfig {
	c.Proxy = &p
	return c
}

func (c *ClientConfig) WithRequestTimeout(d time.Duration) *ClientConfig {
	c.RequestTimeout = d
	return c
}

func (c *ClientConfig) WithAuth(a AuthConfig) *ClientConfig {
	c.Auth = a
	return c
}

func (c *ClientConfig) WithTokenStorage(s TokenStorageConfig) *ClientConfig {
	c.TokenStorage = s
	return c
}

func (c *ClientConfig) WithLogLevel(level string) *ClientConfig {
	c.LogLevel = level
	return c
}

// Load reads path (optional) over the defaults, then applies BOX_*
// environment variables. A .env file in the working directory is loaded
// first when present.
func Load(path string) (*ClientConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := DefaultClientConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := Parse(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML into cfg, keeping values the document does not set.
func Parse(raw []byte, cfg *ClientConfig) error {
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return err
	}
	if cfg.ExtraHeaders == nil {
		cfg.ExtraHeaders = dto.ExtraHeaders{}
	}
	return nil
}

func (c *ClientConfig) Validate() error {
	var errs []error
	if c.BaseURLs.BaseURL == "" {
		errs = append(errs, errors.New("base_urls.base_url is required"))
	}
	if c.Proxy != nil {
		if _, err := c.Proxy.ProxyURL(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout must not be negative"))
	}
	if !c.Retry.Disabled {
		if c.Retry.MaxAttempts < 1 {
			errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
		}
		if c.Retry.RandomizationFactor < 0 || c.Retry.RandomizationFactor > 1 {
			errs = append(errs, errors.New("retry.randomization_factor must be within [0, 1]"))
		}
	}

	switch c.Auth.Type {
	case AuthDeveloper:
		if c.Auth.DeveloperToken == "" {
			errs = append(errs, errors.New("auth.developer_token is required for developer auth"))
		}
	case AuthCCG:
		if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
			errs = append(errs, errors.New("auth.client_id and auth.client_secret are required for ccg auth"))
		}
		if c.Auth.EnterpriseID == "" && c.Auth.UserID == "" {
			errs = append(errs, errors.New("auth.enterprise_id or auth.user_id is required for ccg auth"))
		}
	case AuthJWT:
		if c.Auth.JWTConfigFile == "" {
			errs = append(errs, errors.New("auth.jwt_config_file is required for jwt auth"))
		}
	case AuthOAuth:
		if c.Auth.ClientID == "" || c.Auth.ClientSecret == "" {
			errs = append(errs, errors.New("auth.client_id and auth.client_secret are required for oauth"))
		}
		if c.TokenStorage.Type == StorageMemory || c.TokenStorage.Type == "" {
			errs = append(errs, errors.New("oauth needs a persistent token_storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth.type %q", c.Auth.Type))
	}

	switch c.TokenStorage.Type {
	case "", StorageMemory:
	case StorageFile, StorageSQLite:
		if c.TokenStorage.Path == "" {
			errs = append(errs, fmt.Errorf("token_storage.path is required for %s storage", c.TokenStorage.Type))
		}
	case StoragePostgres:
		if c.TokenStorage.DSN == "" {
			errs = append(errs, errors.New("token_storage.dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown token_storage.type %q", c.TokenStorage.Type))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
