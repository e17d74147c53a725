package page

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "scraper/errors"
)

func TestParseLocatorKinds(t *testing.T) {
	cases := []struct {
		kind, locator, want string
	}{
		{"id", "t", `[id="t"]`},
		{"  XPATH ", "//div[1]", "xpath=//div[1]"},
		{"link text", "More Info", `a:text-is("More Info")`},
		{"partial link text", "More", `a:has-text("More")`},
		{"name", "q", `[name="q"]`},
		{"tag name", "table", "table"},
		{"class name", "results", ".results"},
		{"css selector", "div#t > span", "div#t > span"},
	}
	for _, tc := range cases {
		got, err := ParseLocator(tc.locator, tc.kind)
		require.NoError(t, err, tc.kind)
		assert.Equal(t, tc.want, got, tc.kind)
	}
}

func TestParseLocatorRejectsUnknownKind(t *testing.T) {
	_, err := ParseLocator("x", "shadow dom")
	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrLocatorType)
}

func TestSanitize(t *testing.T) {
	got, ok := Sanitize("a,b\tc\nd\re", nil)
	require.True(t, ok)
	assert.Equal(t, "ab c de", got)
}

func TestSanitizeInvalidSentinel(t *testing.T) {
	_, ok := Sanitize("N/A", []string{"N/A", "--"})
	assert.False(t, ok)

	// The sentinel check runs on the cleaned value.
	_, ok = Sanitize("N/,A", []string{"N/A"})
	assert.False(t, ok)
}

func TestTimestampFormat(t *testing.T) {
	assert.Equal(t, time.Now().Format("01/02/2006"), Timestamp())
	assert.Len(t, Timestamp(), 10)
}

func TestMaxPages(t *testing.T) {
	html := `
		<a class="paginate_button" href="#">1</a>
		<a class="paginate_button" href="#">2</a>
		<a class="paginate_button" href="#">3</a>
		<a class="paginate_button next" href="#">Next</a>`
	assert.Equal(t, 3, MaxPages(html))
}

func TestMaxPagesDefaultsToOne(t *testing.T) {
	assert.Equal(t, 1, MaxPages("<span>no pagination here</span>"))
	assert.Equal(t, 1, MaxPages(`<a class="paginate_button next">Next</a>`))
}
