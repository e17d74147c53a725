package interaction

import (
	"os"
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

func TestValidateClick(t *testing.T) {
	in := Interaction{Type: Click, Locator: "#go", LocatorType: "css selector"}
	require.NoError(t, in.Validate())
	assert.Equal(t, 0.5, in.WaitInterval, "wait interval defaulted")
}

func TestValidateDropdownRequiresOptionText(t *testing.T) {
	in := Interaction{Type: Dropdown, Locator: "states", LocatorType: "name"}
	err := in.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrConfig)

	in.OptionText = "Vermont"
	require.NoError(t, in.Validate())
}

func TestValidateRejectsUnknownType(t *testing.T) {
	in := Interaction{Type: "hover", Locator: "#x", LocatorType: "css selector"}
	assert.Error(t, in.Validate())
}

func TestValidateRejectsEmptyLocator(t *testing.T) {
	in := Interaction{Type: Click, Locator: "   ", LocatorType: "id"}
	assert.Error(t, in.Validate())
}

func TestValidateRejectsBadLocatorType(t *testing.T) {
	in := Interaction{Type: Click, Locator: "#x", LocatorType: "shadow"}
	err := in.Validate()
	require.Error(t, err)
}
