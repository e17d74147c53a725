// Package page holds the shared page-model primitives: locator parsing,
// element lookup with a bounded wait, cell sanitizing, and pagination
// discovery.
package page

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
	"github.com/samber/lo"

	serrors "scraper/errors"
)

const nextButtonSelector = "a.paginate_button.next"

// ParseLocator converts a locator string and kind into a playwright
// selector. The kind set is closed; kinds are normalized by trimming,
// upper-casing, and turning spaces into underscores before dispatch.
func ParseLocator(locator, kind string) (string, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(kind), " ", "_"))
	switch normalized {
	case "ID":
		return fmt.Sprintf(`[id=%q]`, locator), nil
	case "XPATH":
		return "xpath=" + locator, nil
	case "LINK_TEXT":
		return fmt.Sprintf(`a:text-is(%q)`, locator), nil
	case "PARTIAL_LINK_TEXT":
		return fmt.Sprintf(`a:has-text(%q)`, locator), nil
	case "NAME":
		return fmt.Sprintf(`[name=%q]`, locator), nil
	case "TAG_NAME":
		return locator, nil
	case "CLASS_NAME":
		return "." + locator, nil
	case "CSS_SELECTOR":
		return locator, nil
	default:
		return "", fmt.Errorf("%w: %q", serrors.ErrLocatorType, normalized)
	}
}

// GetElement tries a synchronous lookup first, then waits up to
// waitInterval seconds for the element to appear.
func GetElement(pg playwright.Page, selector string, waitInterval float64) (playwright.Locator, error) {
	loc := pg.Locator(selector).First()
	if count, err := loc.Count(); err == nil && count > 0 {
		return loc, nil
	}
	err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(waitInterval * 1000),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", serrors.ErrElementNotFound, selector, err)
	}
	return loc, nil
}

// Sanitize cleans a cell value: commas removed, tabs and newlines turned
// into spaces, carriage returns dropped. A value matching one of the
// configured invalid sentinels is reported as null (ok=false).
func Sanitize(data string, invalid []string) (string, bool) {
	cleaned := strings.NewReplacer(",", "", "\t", " ", "\n", " ", "\r", "").Replace(data)
	if lo.Contains(invalid, cleaned) {
		return "", false
	}
	return cleaned, true
}

// Timestamp returns today's date as MM/DD/YYYY, the suffix appended to
// every extracted row.
func Timestamp() string {
	return time.Now().Format("01/02/2006")
}

// MaxPages parses a pagination container's inner HTML and returns the
// largest numeric page link, defaulting to 1.
func MaxPages(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 1
	}
	maxPages := 1
	doc.Find("a.paginate_button").Each(func(_ int, s *goquery.Selection) {
		if n, err := strconv.Atoi(strings.TrimSpace(s.Text())); err == nil && n > maxPages {
			maxPages = n
		}
	})
	return maxPages
}

// Paginate inspects the pagination element: it returns the discovered
// page count and the "Next" control, or nil when the control is absent
// or disabled (last page).
func Paginate(pg playwright.Page, selector string, waitInterval float64) (int, playwright.Locator, error) {
	pagination, err := GetElement(pg, selector, waitInterval)
	if err != nil {
		return 0, nil, err
	}
	html, err := pagination.InnerHTML()
	if err != nil {
		return 0, nil, fmt.Errorf("pagination element html: %w", err)
	}
	maxPages := MaxPages(html)

	next := pagination.Locator(nextButtonSelector).First()
	count, err := next.Count()
	if err != nil || count == 0 {
		return maxPages, nil, nil
	}
	if class, err := next.GetAttribute("class"); err == nil && strings.Contains(class, "disabled") {
		return maxPages, nil, nil
	}
	return maxPages, next, nil
}

// PaginateTab clicks the "Next" control inside a tab container.
// It reports false when the control is missing or disabled, which ends
// the tab's pagination loop.
func PaginateTab(container playwright.Locator) bool {
	next := container.Locator(".paginate_button.next").First()
	count, err := next.Count()
	if err != nil || count == 0 {
		return false
	}
	if class, err := next.GetAttribute("class"); err == nil && strings.Contains(class, "disabled") {
		return false
	}
	return next.Click() == nil
}

// ClickAndWaitForTab clicks a tab control and waits for its panel to
// load.
func ClickAndWaitForTab(pg playwright.Page, tabSelector, panelSelector string, timeout time.Duration) (playwright.Locator, error) {
	tab := pg.Locator(tabSelector).First()
	if err := tab.Click(); err != nil {
		return nil, fmt.Errorf("%w: tab %q: %v", serrors.ErrClick, tabSelector, err)
	}
	panel := pg.Locator(panelSelector).First()
	err := panel.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: tab panel %q: %v", serrors.ErrElementNotFound, panelSelector, err)
	}
	return panel, nil
}

// OuterHTML reads an element's outer HTML.
func OuterHTML(loc playwright.Locator) (string, error) {
	out, err := loc.Evaluate("el => el.outerHTML", nil)
	if err != nil {
		return "", err
	}
	html, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("unexpected outerHTML result %T", out)
	}
	return html, nil
}
