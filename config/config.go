// Package config loads and validates the scraper's configuration file
// and runs the startup preflight checks.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	koanfjson "github.com/knadh/koanf/parsers/json"
	koanftoml "github.com/knadh/koanf/parsers/toml"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	serrors "scraper/errors"
	"scraper/etl/ocr"
	"scraper/etl/target"
	"scraper/logger"
	"scraper/web/controller"
	"scraper/web/docker"
	"scraper/web/driver"
	"scraper/web/proxy"
)

// Config composes every section of a target-type configuration file.
type Config struct {
	Docker  docker.Config   `koanf:"Docker"`
	Logging logger.Config   `koanf:"Logging"`
	Proxy   proxy.Config    `koanf:"Proxy"`
	Driver  driver.Config   `koanf:"Driver"`
	OCR     ocr.Config      `koanf:"OCR"`
	Targets []target.Config `koanf:"Target"`
}

// Path resolves the configuration file for a target type and format.
func Path(targetType, format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "yaml", "json", "toml":
	default:
		return "", fmt.Errorf("%w: unsupported config format %q", serrors.ErrConfig, format)
	}
	return filepath.Join("files", "configs", targetType+"."+format), nil
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	var parser koanf.Parser
	switch filepath.Ext(path) {
	case ".yaml":
		parser = koanfyaml.Parser()
	case ".json":
		parser = koanfjson.Parser()
	case ".toml":
		parser = koanftoml.Parser()
	default:
		return nil, fmt.Errorf("%w: unsupported file format %q", serrors.ErrConfig, filepath.Ext(path))
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("%w: %v", serrors.ErrConfig, err)
	}

	cfg := &Config{OCR: ocr.DefaultConfig()}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", serrors.ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and every target plan.
func (c *Config) Validate() error {
	if err := c.Docker.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Proxy.Validate(); err != nil {
		return err
	}
	if err := c.Driver.Validate(); err != nil {
		return err
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: no targets configured", serrors.ErrConfig)
	}
	for i := range c.Targets {
		if err := c.Targets[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Specs derives the controller's connection specs from the target list.
func (c *Config) Specs() []controller.TargetSpec {
	specs := make([]controller.TargetSpec, 0, len(c.Targets))
	for _, t := range c.Targets {
		specs = append(specs, controller.TargetSpec{Name: t.Name, Composite: t.Composite})
	}
	return specs
}
