package proxy

import (
	"os"
	"strings"

	serrors "scraper/errors"
)

// Authentication carries optional proxy credentials.
type Authentication struct {
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// Config is the Proxy section of the configuration file.
type Config struct {
	InputFile      string          `koanf:"input_file"`
	TestURL        string          `koanf:"test_url"`
	UsageLimit     int             `koanf:"usage_limit"`
	Validation     bool            `koanf:"validation"`
	ProxyType      string          `koanf:"proxy_type"`
	Authentication *Authentication `koanf:"authentication"`
}

var allowedProxyTypes = []string{"HTTP", "HTTPS", "SOCKS4", "SOCKS5"}

// Validate checks the proxy configuration.
func (c *Config) Validate() error {
	ve := serrors.ValidationErrs()

	c.InputFile = strings.TrimSpace(c.InputFile)
	if c.InputFile == "" {
		ve.Add("proxy.input_file", "cannot be empty")
	} else if info, err := os.Stat(c.InputFile); err != nil || info.IsDir() {
		ve.Add("proxy.input_file", "file not found")
	}

	c.TestURL = strings.TrimSpace(c.TestURL)
	if !strings.HasPrefix(c.TestURL, "http://") && !strings.HasPrefix(c.TestURL, "https://") {
		ve.Add("proxy.test_url", "must start with http:// or https://")
	}

	if c.UsageLimit <= 0 {
		ve.Add("proxy.usage_limit", "must be positive")
	}

	c.ProxyType = strings.ToUpper(strings.TrimSpace(c.ProxyType))
	valid := false
	for _, t := range allowedProxyTypes {
		if c.ProxyType == t {
			valid = true
			break
		}
	}
	if !valid {
		ve.Add("proxy.proxy_type", "must be one of "+strings.Join(allowedProxyTypes, ", "))
	}

	if c.Authentication != nil {
		if c.Authentication.Username == "" || c.Authentication.Password == "" {
			ve.Add("proxy.authentication", "must include both username and password")
		}
	}

	return ve.Err()
}
