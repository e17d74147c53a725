package logger

import (
	"os"
	"strconv"
	"strings"

	serrors "scraper/errors"
)

// Config is the Logging section of the configuration file.
type Config struct {
	LogDirectory string `koanf:"log_directory"`
	LogLevel     string `koanf:"log_level"`
	LogFormat    string `koanf:"log_format"`
	LogMaxSize   string `koanf:"log_max_size"`
}

var validLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// Validate checks the logging configuration.
func (c *Config) Validate() error {
	ve := serrors.ValidationErrs()

	c.LogDirectory = strings.TrimSpace(c.LogDirectory)
	if c.LogDirectory == "" {
		ve.Add("logging.log_directory", "cannot be empty")
	} else if info, err := os.Stat(c.LogDirectory); err != nil || !info.IsDir() {
		ve.Add("logging.log_directory", "directory not found")
	}

	c.LogLevel = strings.ToUpper(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		ve.Add("logging.log_level", "cannot be empty")
	} else {
		valid := false
		for _, l := range validLevels {
			if c.LogLevel == l {
				valid = true
				break
			}
		}
		if !valid {
			ve.Add("logging.log_level", "must be one of "+strings.Join(validLevels, ", "))
		}
	}

	c.LogMaxSize = strings.TrimSpace(c.LogMaxSize)
	if _, err := parseSize(c.LogMaxSize); err != nil {
		ve.Add("logging.log_max_size", err.Error())
	}

	return ve.Err()
}

// maxSizeMB converts the configured size limit to whole megabytes for the
// rotating writer, rounding up so small limits still rotate.
func (c *Config) maxSizeMB() int {
	bytes, err := parseSize(c.LogMaxSize)
	if err != nil || bytes <= 0 {
		return 10
	}
	mb := int((bytes + (1 << 20) - 1) >> 20)
	if mb < 1 {
		mb = 1
	}
	return mb
}

var sizeUnits = map[string]int64{
	"b":  1,
	"k":  1 << 10,
	"kb": 1 << 10,
	"m":  1 << 20,
	"mb": 1 << 20,
	"g":  1 << 30,
	"gb": 1 << 30,
}

// parseSize parses values like "500kb", "10m", "1gb" into bytes.
func parseSize(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, serrors.ErrConfig
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, serrors.ErrConfig
	}
	mult, ok := sizeUnits[strings.TrimSpace(s[i:])]
	if !ok {
		return 0, serrors.ErrConfig
	}
	return n * mult, nil
}
