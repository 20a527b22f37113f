package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joy-dx/gobox/dto"
	"github.com/joy-dx/gobox/network"
)

// ApplyEnv overrides fields from BOX_* variables. Unset or empty variables
// leave the current value alone.
func (c *ClientConfig) ApplyEnv() error {
	c.BaseURLs.BaseURL = getEnvWithDefault("BOX_BASE_URL", c.BaseURLs.BaseURL)
	c.BaseURLs.UploadURL = getEnvWithDefault("BOX_UPLOAD_URL", c.BaseURLs.UploadURL)
	c.BaseURLs.OAuth2URL = getEnvWithDefault("BOX_OAUTH2_URL", c.BaseURLs.OAuth2URL)

	if v := os.Getenv("BOX_EXTRA_HEADERS"); v != "" {
		if c.ExtraHeaders == nil {
			c.ExtraHeaders = dto.ExtraHeaders{}
		}
		if err := c.ExtraHeaders.Set(v); err != nil {
			return fmt.Errorf("BOX_EXTRA_HEADERS: %w", err)
		}
	}
	if v := os.Getenv("BOX_PROXY_URL"); v != "" {
		c.Proxy = &network.ProxyConfig{
			URL:      v,
			Username: os.Getenv("BOX_PROXY_USERNAME"),
			Password: os.Getenv("BOX_PROXY_PASSWORD"),
		}
	}

	var err error
	if c.RequestTimeout, err = getEnvDurationWithDefault("BOX_REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	if c.Retry.MaxAttempts, err = getEnvIntWithDefault("BOX_RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts); err != nil {
		return err
	}
	if c.Retry.Disabled, err = getEnvBoolWithDefault("BOX_RETRY_DISABLED", c.Retry.Disabled); err != nil {
		return err
	}

	c.Auth.Type = AuthType(getEnvWithDefault("BOX_AUTH_TYPE", string(c.Auth.Type)))
	c.Auth.ClientID = getEnvWithDefault("BOX_CLIENT_ID", c.Auth.ClientID)
	c.Auth.ClientSecret = getEnvWithDefault("BOX_CLIENT_SECRET", c.Auth.ClientSecret)
	c.Auth.EnterpriseID = getEnvWithDefault("BOX_ENTERPRISE_ID", c.Auth.EnterpriseID)
	c.Auth.UserID = getEnvWithDefault("BOX_USER_ID", c.Auth.UserID)
	c.Auth.DeveloperToken = getEnvWithDefault("BOX_DEVELOPER_TOKEN", c.Auth.DeveloperToken)
	c.Auth.JWTConfigFile = getEnvWithDefault("BOX_JWT_CONFIG_FILE", c.Auth.JWTConfigFile)

	c.TokenStorage.Type = StorageType(getEnvWithDefault("BOX_TOKEN_STORAGE", string(c.TokenStorage.Type)))
	c.TokenStorage.Path = getEnvWithDefault("BOX_TOKEN_STORAGE_PATH", c.TokenStorage.Path)
	c.TokenStorage.DSN = getEnvWithDefault("BOX_TOKEN_STORAGE_DSN", c.TokenStorage.DSN)
	c.TokenStorage.Key = getEnvWithDefault("BOX_TOKEN_STORAGE_KEY", c.TokenStorage.Key)

	c.MetricsAddr = getEnvWithDefault("BOX_METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnvWithDefault("BOX_LOG_LEVEL", c.LogLevel)
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getEnvIntWithDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getEnvBoolWithDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
