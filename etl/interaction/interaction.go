// Package interaction executes the declarative page interactions of a
// target plan: clicks and dropdown selections, with an escalation ladder
// for elements that resist the first attempt.
package interaction

import (
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	serrors "scraper/errors"
	"scraper/etl/page"
	"scraper/logger"
)

// Type discriminates the interaction variants.
type Type string

const (
	Click    Type = "click"
	Dropdown Type = "dropdown"
)

// Interaction is one declared step against the page.
type Interaction struct {
	Type         Type    `koanf:"type"`
	Locator      string  `koanf:"locator"`
	LocatorType  string  `koanf:"locator_type"`
	WaitInterval float64 `koanf:"wait_interval"`
	OptionText   string  `koanf:"option_text"`
}

// Validate checks a declared interaction and fills in defaults.
func (i *Interaction) Validate() error {
	ve := serrors.ValidationErrs()
	i.Locator = strings.TrimSpace(i.Locator)
	if i.Locator == "" {
		ve.Add("interaction.locator", "cannot be empty")
	}
	if _, err := page.ParseLocator(i.Locator, i.LocatorType); err != nil {
		ve.Add("interaction.locator_type", err.Error())
	}
	if i.WaitInterval == 0 {
		i.WaitInterval = 0.5
	}
	switch i.Type {
	case Click:
	case Dropdown:
		if i.OptionText == "" {
			ve.Add("interaction.option_text", "required for dropdown interactions")
		}
	default:
		ve.Add("interaction.type", fmt.Sprintf("undefined interaction %q", i.Type))
	}
	return ve.Err()
}

// Manager runs interactions for one target.
type Manager struct {
	name string
}

// NewManager creates an interaction manager for the named target.
func NewManager(targetName string) *Manager {
	return &Manager{name: targetName}
}

// Perform executes a single interaction against the page.
func (m *Manager) Perform(pg playwright.Page, in Interaction) error {
	switch in.Type {
	case Click:
		if err := m.click(pg, in); err != nil {
			return err
		}
		logger.Info("clicked on element", zap.String("target", m.name), zap.String("locator", in.Locator))
	case Dropdown:
		if err := m.dropdown(pg, in); err != nil {
			return err
		}
		logger.Info("selected dropdown option",
			zap.String("target", m.name),
			zap.String("locator", in.Locator),
			zap.String("option", in.OptionText))
	default:
		return fmt.Errorf("undefined interaction %q", in.Type)
	}
	return nil
}

// click locates and clicks the element. When the plain click fails it
// waits for the element to become clickable, scrolls it into view, and
// clicks again; the last resort is a forced click at the element's
// position.
func (m *Manager) click(pg playwright.Page, in Interaction) error {
	selector, err := page.ParseLocator(in.Locator, in.LocatorType)
	if err != nil {
		return err
	}
	el, err := page.GetElement(pg, selector, in.WaitInterval)
	if err != nil {
		return err
	}

	timeout := playwright.Float(in.WaitInterval * 1000)
	if err := el.Click(playwright.LocatorClickOptions{Timeout: timeout}); err == nil {
		return nil
	}

	waitErr := el.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeout,
	})
	if waitErr == nil {
		if err := el.ScrollIntoViewIfNeeded(); err == nil {
			if err := el.Click(playwright.LocatorClickOptions{Timeout: timeout}); err == nil {
				return nil
			}
		}
	}

	if err := el.Hover(); err == nil {
		if err := el.Click(playwright.LocatorClickOptions{Timeout: timeout, Force: playwright.Bool(true)}); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: element %q", serrors.ErrClick, in.Locator)
}

// dropdown selects an option by its visible text, escalating the same
// way click does.
func (m *Manager) dropdown(pg playwright.Page, in Interaction) error {
	selector, err := page.ParseLocator(in.Locator, in.LocatorType)
	if err != nil {
		return err
	}
	el, err := page.GetElement(pg, selector, in.WaitInterval)
	if err != nil {
		return err
	}

	timeout := playwright.Float(in.WaitInterval * 1000)
	labels := playwright.SelectOptionValues{Labels: &[]string{in.OptionText}}

	if _, err := el.SelectOption(labels, playwright.LocatorSelectOptionOptions{Timeout: timeout}); err == nil {
		return nil
	}

	waitErr := el.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeout,
	})
	if waitErr == nil {
		if _, err := el.SelectOption(labels, playwright.LocatorSelectOptionOptions{Timeout: timeout}); err == nil {
			return nil
		}
	}

	if err := el.Hover(); err == nil {
		if err := el.Click(playwright.LocatorClickOptions{Timeout: timeout, Force: playwright.Bool(true)}); err == nil {
			if _, err := el.SelectOption(labels, playwright.LocatorSelectOptionOptions{Timeout: timeout}); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: option %q in dropdown %q", serrors.ErrDropdownSelection, in.OptionText, in.Locator)
}
