// Package errors holds the scraper's error taxonomy and the validation
// error accumulator used by configuration Validate methods.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the coordinator. Leaf packages wrap these with
// fmt.Errorf("...: %w", ...) and callers branch with errors.Is.
var (
	// Configuration
	ErrConfig = errors.New("configuration error")

	// Proxy pool
	ErrUsageLimit     = errors.New("proxy usage limit reached")
	ErrProxyExhausted = errors.New("proxy pool exhausted")
	ErrProxyReload    = errors.New("no new proxies available")

	// Resources
	ErrContainerStart = errors.New("container failed to start")
	ErrDriverCreate   = errors.New("driver session could not be created")
	ErrDriverMissing  = errors.New("no driver on connection")

	// Page model
	ErrElementNotFound   = errors.New("element not found")
	ErrLocatorType       = errors.New("unsupported locator type")
	ErrClick             = errors.New("click failed")
	ErrDropdownSelection = errors.New("dropdown selection failed")
	ErrParseElement      = errors.New("element parse failed")
	ErrParseTable        = errors.New("table parse failed")

	// OCR
	ErrOCR = errors.New("ocr failed")
)

// ValidationErrors collects field-level configuration problems so a
// Validate pass can report all of them at once.
type ValidationErrors struct {
	fields []string
}

// ValidationErrs returns an empty accumulator.
func ValidationErrs() *ValidationErrors {
	return &ValidationErrors{}
}

// Add records a problem with the named field.
func (v *ValidationErrors) Add(field, msg string) {
	v.fields = append(v.fields, fmt.Sprintf("%s: %s", field, msg))
}

// Err returns nil when no problems were recorded, otherwise a single
// error wrapping ErrConfig with every recorded field.
func (v *ValidationErrors) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConfig, strings.Join(v.fields, "; "))
}
