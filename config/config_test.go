package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "scraper/errors"
	"scraper/logger"
)

func TestMain(m *testing.M) {
	logger.InitConsole("error")
	os.Exit(m.Run())
}

// scaffold creates the files a minimal valid configuration refers to,
// writes the yaml, and returns its path and the temp directory.
func scaffold(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	logDir := filepath.Join(dir, "logs")
	require.NoError(t, os.MkdirAll(logDir, 0o755))

	proxyFile := filepath.Join(dir, "proxies.txt")
	require.NoError(t, os.WriteFile(proxyFile, []byte("1.2.3.4:8080\n"), 0o644))

	inputFile := filepath.Join(dir, "issuers.txt")
	require.NoError(t, os.WriteFile(inputFile, []byte("https://example.test/x,meta\n"), 0o644))

	content := fmt.Sprintf(`
Docker:
  ports: [4441, 4442]
  container_shm_size: "2g"
  container_image: "browserless/chromium:latest"
  remove_on_cleanup: true
  network_mode: "bridge"

Logging:
  log_directory: %q
  log_level: "error"
  log_format: "json"
  log_max_size: "10mb"

Proxy:
  input_file: %q
  test_url: "https://example.test"
  usage_limit: 5
  validation: false
  proxy_type: "http"

Driver:
  host_network: "http://localhost"
  proxy: true
  retry_attempts: 3
  retry_interval: 0.5

Target:
  - name: "issuers"
    domain: "https://example.test"
    composite: false
    input_file: %q
    extractions:
      - type: "issuer table"
        locator: "#results"
        locator_type: "css selector"
        output_type: "csv"
        output_file: "out/issuers.csv"
`, logDir, proxyFile, inputFile)

	path := filepath.Join(dir, "issuers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, dir
}

func TestLoadValidYAML(t *testing.T) {
	path, _ := scaffold(t)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []int{4441, 4442}, cfg.Docker.Ports)
	assert.Equal(t, "bridge", cfg.Docker.NetworkMode)
	assert.Equal(t, "ERROR", cfg.Logging.LogLevel)
	assert.Equal(t, "HTTP", cfg.Proxy.ProxyType)
	assert.Equal(t, 0.5, cfg.Driver.RetryInterval)
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "issuers", cfg.Targets[0].Name)
	require.Len(t, cfg.Targets[0].Extractions, 1)
	assert.Equal(t, "issuer table", string(cfg.Targets[0].Extractions[0].Type))

	// OCR crop boxes fall back to their defaults when the section is absent.
	assert.Equal(t, 960, cfg.OCR.CusipCrop.CenterX)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrConfig)
}

func TestLoadRejectsUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.ini")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrConfig)
}

func TestLoadRejectsEmptyTargets(t *testing.T) {
	path, _ := scaffold(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Cut the Target section off.
	trimmed := string(data[:len(data)-1])
	idx := strings.Index(trimmed, "Target:")
	require.Positive(t, idx)
	require.NoError(t, os.WriteFile(path, []byte(trimmed[:idx]), 0o644))

	_, err = Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrConfig)
}

func TestPath(t *testing.T) {
	p, err := Path("muni", "yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("files", "configs", "muni.yaml"), p)

	_, err = Path("muni", "ini")
	assert.Error(t, err)
}

func TestSpecs(t *testing.T) {
	path, _ := scaffold(t)
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.Targets[0].Composite = true
	specs := cfg.Specs()
	require.Len(t, specs, 1)
	assert.True(t, specs[0].Composite)
	assert.Equal(t, "issuers", specs[0].Name)
}
