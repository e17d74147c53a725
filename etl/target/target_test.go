package target

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "scraper/errors"
	"scraper/etl/extraction"
	"scraper/etl/interaction"
	"scraper/logger"
	"scraper/web/controller"
	"scraper/web/driver"
)

func TestMain(m *testing.M) {
	logger.InitConsole("error")
	os.Exit(m.Run())
}

func writeInputFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadInputSplitsLinksAndSupplemental(t *testing.T) {
	cfg := &Config{
		Name:      "issuers",
		InputFile: writeInputFile(t, "https://example.test/x,meta1\nhttps://example.test/y,a,b\n\n"),
	}
	links, supplemental, err := readInput(cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.test/x", "https://example.test/y"}, links)
	assert.Equal(t, [][]string{{"meta1"}, {"a", "b"}}, supplemental)
}

func TestReadInputLinkOnlyLines(t *testing.T) {
	cfg := &Config{Name: "t", InputFile: writeInputFile(t, "https://example.test/x\n")}
	links, supplemental, err := readInput(cfg)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Empty(t, supplemental[0])
}

func TestReadInputMissingFile(t *testing.T) {
	cfg := &Config{Name: "t", InputFile: filepath.Join(t.TempDir(), "absent.txt")}
	_, _, err := readInput(cfg)
	assert.Error(t, err)
}

func TestExecuteSkipsTargetWithMissingInput(t *testing.T) {
	good := writeInputFile(t, "https://example.test/x\n")

	ctrl, err := controller.New(nil, nil, nil, driver.Config{}, []controller.TargetSpec{
		{Name: "broken"},
		{Name: "alsobroken"},
	}, []int{4441, 4442})
	require.NoError(t, err)

	m := NewManager(ctrl, []Config{
		{Name: "broken", Domain: "https://example.test", InputFile: filepath.Join(t.TempDir(), "absent.txt")},
		{Name: "alsobroken", Domain: "https://example.test", InputFile: good},
	}, nil)

	// The first target's missing input and the second target's driver-less
	// connection are both absorbed; Execute must finish without panicking.
	assert.NotPanics(t, func() {
		m.Execute(context.Background())
	})
}

func TestScrapeLinkWithoutDriverIsHardError(t *testing.T) {
	ctrl, err := controller.New(nil, nil, nil, driver.Config{}, []controller.TargetSpec{
		{Name: "t"},
	}, []int{4441})
	require.NoError(t, err)

	m := NewManager(ctrl, nil, nil)
	err = m.scrapeLink(context.Background(), &Config{Name: "t"}, "https://example.test/x", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrDriverMissing)
}

func TestValidateChecksNestedPlan(t *testing.T) {
	cfg := Config{
		Name:      "issuers",
		Domain:    "https://example.test",
		InputFile: writeInputFile(t, "https://example.test/x\n"),
		Startup: []interaction.Interaction{
			{Type: interaction.Click, Locator: "#accept", LocatorType: "css selector"},
		},
		Extractions: []extraction.Extraction{
			{
				Type:        extraction.IssuerTable,
				Locator:     "#results",
				LocatorType: "css selector",
				OutputType:  extraction.CSV,
				OutputFile:  "out/issuers.csv",
			},
		},
	}
	require.NoError(t, cfg.Validate())

	cfg.Extractions[0].LocatorType = "nonsense"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBlankFields(t *testing.T) {
	cfg := Config{Name: "  ", Domain: "", InputFile: ""}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrConfig)
}
