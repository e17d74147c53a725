// Package target executes the declarative plan for each configured
// target: read the input URLs, run the startup interactions, then for
// every URL navigate, interact, extract, and append the results to each
// extraction's sink. This is the only layer that decides between
// skipping a URL, rotating the proxy, and abandoning a target.
package target

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	serrors "scraper/errors"
	"scraper/etl/extraction"
	"scraper/etl/interaction"
	"scraper/etl/ocr"
	"scraper/logger"
	"scraper/web/controller"
)

const retryLimit = 3

// Config is one entry of the Target section: a website plus its ETL
// plan. Plans are created at configuration load and never mutated.
type Config struct {
	Name         string                    `koanf:"name"`
	Domain       string                    `koanf:"domain"`
	Composite    bool                      `koanf:"composite"`
	InputFile    string                    `koanf:"input_file"`
	Startup      []interaction.Interaction `koanf:"startup"`
	Interactions []interaction.Interaction `koanf:"interactions"`
	Extractions  []extraction.Extraction   `koanf:"extractions"`
}

// Validate checks the target plan and everything nested in it.
func (c *Config) Validate() error {
	ve := serrors.ValidationErrs()

	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		ve.Add("target.name", "cannot be empty")
	}
	c.Domain = strings.TrimSpace(c.Domain)
	if c.Domain == "" {
		ve.Add("target.domain", "cannot be empty")
	}
	c.InputFile = strings.TrimSpace(c.InputFile)
	if c.InputFile == "" {
		ve.Add("target.input_file", "cannot be empty")
	} else if info, err := os.Stat(c.InputFile); err != nil || info.IsDir() {
		ve.Add("target.input_file", fmt.Sprintf("input file %q does not exist", c.InputFile))
	}

	for i := range c.Startup {
		if err := c.Startup[i].Validate(); err != nil {
			ve.Add(fmt.Sprintf("target.startup[%d]", i), err.Error())
		}
	}
	for i := range c.Interactions {
		if err := c.Interactions[i].Validate(); err != nil {
			ve.Add(fmt.Sprintf("target.interactions[%d]", i), err.Error())
		}
	}
	for i := range c.Extractions {
		if err := c.Extractions[i].Validate(); err != nil {
			ve.Add(fmt.Sprintf("target.extractions[%d]", i), err.Error())
		}
	}

	return ve.Err()
}

// Manager drives the plan for every target through the web controller.
type Manager struct {
	controller *controller.Controller
	targets    []Config
	recognizer *ocr.Recognizer
}

// NewManager creates the plan executor.
func NewManager(ctrl *controller.Controller, targets []Config, recognizer *ocr.Recognizer) *Manager {
	return &Manager{controller: ctrl, targets: targets, recognizer: recognizer}
}

// Execute runs every target in order. A failing target never stops the
// ones after it.
func (m *Manager) Execute(ctx context.Context) {
	for i := range m.targets {
		target := &m.targets[i]
		if ctx.Err() != nil {
			logger.Info("run interrupted, stopping target execution")
			return
		}
		links, supplemental, err := readInput(target)
		if err != nil {
			logger.Error("failed to read target input", zap.String("target", target.Name), zap.Error(err))
			continue
		}
		m.scrapeTarget(ctx, target, links, supplemental)
	}
}

// scrapeTarget runs startup once, then the per-URL loop. A startup
// failure abandons this target only.
func (m *Manager) scrapeTarget(ctx context.Context, target *Config, links []string, supplemental [][]string) {
	if err := m.startup(ctx, target); err != nil {
		logger.Error("startup failed", zap.String("target", target.Name), zap.Error(err))
		return
	}
	for i, link := range links {
		if ctx.Err() != nil {
			logger.Info("run interrupted, stopping url loop", zap.String("target", target.Name))
			return
		}
		if err := m.scrapeLink(ctx, target, link, supplemental[i]); err != nil {
			logger.Error("failed to scrape link",
				zap.String("target", target.Name),
				zap.String("link", link),
				zap.Error(err))
		}
	}
}

// scrapeLink handles one URL: fetch with rotation recovery, then the
// declared interactions and extractions.
func (m *Manager) scrapeLink(ctx context.Context, target *Config, link string, supplemental []string) error {
	if err := m.getTargetLink(ctx, target, link, 0); err != nil {
		return err
	}

	conn, err := m.controller.GetConnection(target.Name)
	if err != nil {
		return err
	}
	if conn.Driver == nil {
		return fmt.Errorf("%w: connection %q", serrors.ErrDriverMissing, target.Name)
	}
	pg := conn.Driver.Page

	if len(target.Interactions) > 0 {
		m.interactions(pg, target)
	}
	return m.extractions(pg, target, supplemental)
}

// getTargetLink fetches a URL, recovering from proxy exhaustion by
// rotating the connection's proxy, replaying the startup sequence on
// the refreshed session, and retrying — up to the retry limit.
func (m *Manager) getTargetLink(ctx context.Context, target *Config, link string, retryCount int) error {
	err := m.controller.Fetch(ctx, target.Name, link)
	if err == nil {
		return nil
	}
	if !errors.Is(err, serrors.ErrUsageLimit) {
		return err
	}
	if retryCount >= retryLimit {
		logger.Error("exceeded retry limit", zap.String("target", target.Name), zap.String("link", link))
		return fmt.Errorf("%w: exceeded retry limit for %q, link %q", serrors.ErrUsageLimit, target.Name, link)
	}

	logger.Info("proxy exhausted, rotating proxy and retrying", zap.String("target", target.Name))
	conn, cerr := m.controller.GetConnection(target.Name)
	if cerr != nil {
		return cerr
	}
	m.controller.RotateProxy(ctx, conn)
	if serr := m.startup(ctx, target); serr != nil {
		logger.Error("startup replay failed after rotation", zap.String("target", target.Name), zap.Error(serr))
	}
	return m.getTargetLink(ctx, target, link, retryCount+1)
}

// startup navigates to the target's domain and applies the startup
// interactions, reestablishing any pre-navigation session state.
func (m *Manager) startup(ctx context.Context, target *Config) error {
	if len(target.Startup) == 0 {
		logger.Info("no startup actions specified", zap.String("target", target.Name))
		return nil
	}
	if err := m.getTargetLink(ctx, target, target.Domain, 0); err != nil {
		return err
	}
	conn, err := m.controller.GetConnection(target.Name)
	if err != nil {
		return err
	}
	if conn.Driver == nil {
		return fmt.Errorf("%w: connection %q", serrors.ErrDriverMissing, target.Name)
	}
	im := interaction.NewManager(target.Name)
	for _, in := range target.Startup {
		if err := im.Perform(conn.Driver.Page, in); err != nil {
			return err
		}
	}
	return nil
}

// interactions applies the per-URL interactions; each failure is logged
// and the rest still run.
func (m *Manager) interactions(pg playwright.Page, target *Config) {
	im := interaction.NewManager(target.Name)
	for _, in := range target.Interactions {
		if err := im.Perform(pg, in); err != nil {
			logger.Error("failed to perform interaction",
				zap.String("target", target.Name),
				zap.String("locator", in.Locator),
				zap.Error(err))
		}
	}
}

// extractions runs every declared extraction and writes each one's rows
// to its sink.
func (m *Manager) extractions(pg playwright.Page, target *Config, supplemental []string) error {
	em := m.extractionManager(target)
	for _, ext := range target.Extractions {
		var (
			rows []extraction.Row
			err  error
		)
		if ext.PaginationLocator != "" {
			rows, err = em.PerformPaginated(pg, ext, supplemental)
		} else {
			rows, err = em.Perform(pg, ext, supplemental)
		}
		if err != nil {
			return fmt.Errorf("extraction %q failed: %w", ext.Type, err)
		}
		if err := extraction.WriteOutput(target.Name, rows, ext.OutputType, ext.OutputFile); err != nil {
			logger.Error("failed to write extraction output",
				zap.String("target", target.Name),
				zap.String("output_file", ext.OutputFile),
				zap.Error(err))
		}
	}
	return nil
}

// extractionManager resolves the composite OCR session when the target
// declares one.
func (m *Manager) extractionManager(target *Config) *extraction.Manager {
	if !target.Composite {
		return extraction.NewManager(target.Name)
	}
	conn, err := m.controller.GetConnection(controller.CompositeName(target.Name))
	if err != nil || conn.Driver == nil {
		logger.Warn("composite connection unavailable, recording raw image links",
			zap.String("target", target.Name))
		return extraction.NewManager(target.Name)
	}
	return extraction.NewCompositeManager(target.Name, conn.Driver.Page, m.recognizer)
}

// readInput loads the target's input file: the first comma-separated
// field of each line is a URL, the rest ride along as supplemental data.
func readInput(target *Config) ([]string, [][]string, error) {
	data, err := os.ReadFile(target.InputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read links from input file %q for %q: %w",
			target.InputFile, target.Name, err)
	}
	var (
		links        []string
		supplemental [][]string
	)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		links = append(links, fields[0])
		supplemental = append(supplemental, fields[1:])
	}
	return links, supplemental, nil
}
