package driver

import (
	"strings"

	serrors "scraper/errors"
)

// Config is the Driver section of the configuration file.
type Config struct {
	HostNetwork       string   `koanf:"host_network"`
	OptionArgs        []string `koanf:"option_args"`
	Proxy             bool     `koanf:"proxy"`
	RetryAttempts     int      `koanf:"retry_attempts"`
	RetryInterval     float64  `koanf:"retry_interval"`
	UserAgent         string   `koanf:"user_agent"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
}

// Validate checks the driver configuration and fills in defaults.
func (c *Config) Validate() error {
	ve := serrors.ValidationErrs()

	c.HostNetwork = strings.TrimSpace(c.HostNetwork)
	if c.HostNetwork == "" {
		ve.Add("driver.host_network", "cannot be empty")
	}

	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryAttempts < 0 {
		ve.Add("driver.retry_attempts", "must be positive")
	}

	if c.RetryInterval == 0 {
		c.RetryInterval = 0.5
	}
	if c.RetryInterval < 0 {
		ve.Add("driver.retry_interval", "must be positive")
	}

	if c.RequestsPerSecond < 0 {
		ve.Add("driver.requests_per_second", "cannot be negative")
	}

	return ve.Err()
}
