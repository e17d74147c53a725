// Package extraction executes the declarative extractions of a target
// plan: single elements, the three table shapes, and raw page source,
// with pagination where the plan requests it.
package extraction

import (
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	serrors "scraper/errors"
	"scraper/etl/ocr"
	"scraper/etl/page"
	"scraper/logger"
)

// linkPrefix anchors the relative hrefs the target site emits.
const linkPrefix = "https://emma.msrb.org"

const (
	osTabSelector      = "li[data-cid='t-os']"
	osTabPanelSelector = "div#t-os[style='']"
	osTabWait          = 10 * time.Second
)

// OutputType enumerates the supported sink formats. Only CSV has a
// writer today; the rest are logged as unsupported.
type OutputType string

const (
	CSV  OutputType = "csv"
	JSON OutputType = "json"
	TXT  OutputType = "txt"
)

// Type discriminates the extraction variants.
type Type string

const (
	Element         Type = "element"
	IssuerTable     Type = "issuer table"
	IssueScaleTable Type = "issue scale table"
	IssueOSTable    Type = "issue os table"
	Source          Type = "source"
)

// Extraction is one declared extraction against the page.
type Extraction struct {
	Type                  Type                `koanf:"type"`
	Locator               string              `koanf:"locator"`
	LocatorType           string              `koanf:"locator_type"`
	WaitInterval          float64             `koanf:"wait_interval"`
	PaginationLocator     string              `koanf:"pagination_locator"`
	PaginationLocatorType string              `koanf:"pagination_locator_type"`
	ExcludeTags           map[string][]string `koanf:"exclude_tags"`
	OutputType            OutputType          `koanf:"output_type"`
	OutputFile            string              `koanf:"output_file"`
	InvalidOutput         []string            `koanf:"invalid_output"`
}

// Validate checks a declared extraction and fills in defaults.
func (e *Extraction) Validate() error {
	ve := serrors.ValidationErrs()

	switch e.Type {
	case Element, IssuerTable, IssueScaleTable, IssueOSTable, Source:
	default:
		ve.Add("extraction.type", fmt.Sprintf("undefined extraction %q", e.Type))
	}

	e.Locator = strings.TrimSpace(e.Locator)
	if e.Locator == "" {
		ve.Add("extraction.locator", "cannot be empty")
	}
	if _, err := page.ParseLocator(e.Locator, e.LocatorType); err != nil {
		ve.Add("extraction.locator_type", err.Error())
	}
	if e.WaitInterval == 0 {
		e.WaitInterval = 0.5
	}

	if e.PaginationLocator != "" {
		if _, err := page.ParseLocator(e.PaginationLocator, e.PaginationLocatorType); err != nil {
			ve.Add("extraction.pagination_locator_type", err.Error())
		}
	}

	e.OutputFile = strings.TrimSpace(e.OutputFile)
	if e.OutputFile == "" {
		ve.Add("extraction.output_file", "cannot be empty")
	}
	if e.OutputType == "" {
		ve.Add("extraction.output_type", "cannot be empty")
	}

	return ve.Err()
}

// Row is one extracted output record. Invalid marks a row that contained
// a cell mapped to an invalid sentinel; the sink drops it.
type Row struct {
	Cells   []string
	Invalid bool
}

func (r *Row) add(value string, ok bool) {
	r.Cells = append(r.Cells, value)
	if !ok {
		r.Invalid = true
	}
}

// Manager runs extractions for one target. For composite targets it
// carries the secondary OCR page and a recognizer; without them raw
// image URLs are recorded in place of recognized text.
type Manager struct {
	name       string
	ocrPage    playwright.Page
	recognizer *ocr.Recognizer
}

// NewManager creates an extraction manager for the named target.
func NewManager(targetName string) *Manager {
	return &Manager{name: targetName}
}

// NewCompositeManager creates an extraction manager that resolves image
// cells through the given OCR page.
func NewCompositeManager(targetName string, ocrPage playwright.Page, recognizer *ocr.Recognizer) *Manager {
	return &Manager{name: targetName, ocrPage: ocrPage, recognizer: recognizer}
}

// Perform runs a single extraction pass and returns its rows.
func (m *Manager) Perform(pg playwright.Page, ext Extraction, supplemental []string) ([]Row, error) {
	selector, err := page.ParseLocator(ext.Locator, ext.LocatorType)
	if err != nil {
		return nil, err
	}

	switch ext.Type {
	case Element:
		el, err := page.GetElement(pg, selector, ext.WaitInterval)
		if err != nil {
			return nil, err
		}
		html, err := el.InnerHTML()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", serrors.ErrParseElement, err)
		}
		return parseElement(html, ext, supplemental)

	case IssuerTable:
		el, err := page.GetElement(pg, selector, ext.WaitInterval)
		if err != nil {
			return nil, err
		}
		html, err := page.OuterHTML(el)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", serrors.ErrParseTable, err)
		}
		return parseIssuerTable(html, ext, supplemental)

	case IssueScaleTable:
		el, err := page.GetElement(pg, selector, ext.WaitInterval)
		if err != nil {
			return nil, err
		}
		html, err := page.OuterHTML(el)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", serrors.ErrParseTable, err)
		}
		return m.parseIssueScaleTable(html, ext, supplemental)

	case IssueOSTable:
		return m.issueOSTable(pg, supplemental)

	case Source:
		src, err := pg.Content()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", serrors.ErrParseElement, err)
		}
		return []Row{{Cells: []string{src}}}, nil

	default:
		return nil, fmt.Errorf("undefined extraction %q", ext.Type)
	}
}

// PerformPaginated walks the site's numbered pages: extract the current
// page, click "Next", repeat until the discovered page count is reached
// or the control disappears or goes disabled.
func (m *Manager) PerformPaginated(pg playwright.Page, ext Extraction, supplemental []string) ([]Row, error) {
	selector, err := page.ParseLocator(ext.PaginationLocator, ext.PaginationLocatorType)
	if err != nil {
		return nil, err
	}

	maxPages, next, err := page.Paginate(pg, selector, ext.WaitInterval)
	if err != nil {
		return nil, err
	}

	var all []Row
	for pageCount := 0; pageCount < maxPages; pageCount++ {
		rows, err := m.Perform(pg, ext, supplemental)
		if err != nil {
			return all, err
		}
		all = append(all, rows...)

		if next == nil {
			break
		}
		if err := next.Click(); err != nil {
			return all, fmt.Errorf("%w: pagination next: %v", serrors.ErrClick, err)
		}
		if _, next, err = page.Paginate(pg, selector, ext.WaitInterval); err != nil {
			return all, err
		}
		logger.Info("paginating", zap.String("target", m.name), zap.Int("page", pageCount+1))
	}
	return all, nil
}

// issueOSTable opens the official-statements tab and collects its link
// rows, paginating inside the tab until the "Next" control goes away.
func (m *Manager) issueOSTable(pg playwright.Page, supplemental []string) ([]Row, error) {
	panel, err := page.ClickAndWaitForTab(pg, osTabSelector, osTabPanelSelector, osTabWait)
	if err != nil {
		return nil, err
	}

	var all []Row
	for {
		html, err := page.OuterHTML(panel)
		if err != nil {
			return all, fmt.Errorf("%w: %v", serrors.ErrParseTable, err)
		}
		rows, err := parseOSTable(html, supplemental)
		if err != nil {
			return all, err
		}
		all = append(all, rows...)

		if !page.PaginateTab(panel) {
			break
		}
		logger.Info("paginating", zap.String("target", m.name))
	}
	return all, nil
}
