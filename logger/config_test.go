package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"500b":  500,
		"10k":   10 << 10,
		"10kb":  10 << 10,
		"5m":    5 << 20,
		"5MB":   5 << 20,
		"1g":    1 << 30,
		"2 gb ": 2 << 30,
	}
	for in, want := range cases {
		got, err := parseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseSizeRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "mb", "10", "10tb", "x10mb"} {
		_, err := parseSize(in)
		assert.Error(t, err, in)
	}
}

func TestMaxSizeMBRoundsUp(t *testing.T) {
	cfg := Config{LogMaxSize: "500kb"}
	assert.Equal(t, 1, cfg.maxSizeMB())

	cfg.LogMaxSize = "10mb"
	assert.Equal(t, 10, cfg.maxSizeMB())

	cfg.LogMaxSize = "garbage"
	assert.Equal(t, 10, cfg.maxSizeMB(), "fallback on unparsable limit")
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		LogDirectory: dir,
		LogLevel:     "debug",
		LogFormat:    "json",
		LogMaxSize:   "10mb",
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "DEBUG", cfg.LogLevel)

	bad := Config{LogDirectory: dir + "/missing", LogLevel: "verbose", LogMaxSize: "1parsec"}
	assert.Error(t, bad.Validate())
}
