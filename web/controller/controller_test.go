package controller

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "scraper/errors"
	"scraper/logger"
	"scraper/web/driver"
)

func TestMain(m *testing.M) {
	logger.InitConsole("error")
	os.Exit(m.Run())
}

func TestNewAssignsPortsInDeclarationOrder(t *testing.T) {
	c, err := New(nil, nil, nil, driver.Config{}, []TargetSpec{
		{Name: "issuers"},
		{Name: "scales", Composite: true},
		{Name: "os_docs"},
	}, []int{4441, 4442, 4443, 4444})
	require.NoError(t, err)

	cases := map[string]string{
		"issuers":          "4441",
		"scales":           "4442",
		"scales_composite": "4443",
		"os_docs":          "4444",
	}
	for name, port := range cases {
		conn, err := c.GetConnection(name)
		require.NoError(t, err, name)
		assert.Equal(t, port, conn.Port, name)
	}
}

func TestNewPortsArePairwiseDistinct(t *testing.T) {
	c, err := New(nil, nil, nil, driver.Config{}, []TargetSpec{
		{Name: "a", Composite: true},
		{Name: "b", Composite: true},
	}, []int{1, 2, 3, 4})
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, name := range c.order {
		conn := c.connections[name]
		assert.False(t, seen[conn.Port], "port %s assigned twice", conn.Port)
		seen[conn.Port] = true
	}
}

func TestNewFailsWhenPortsRunOut(t *testing.T) {
	_, err := New(nil, nil, nil, driver.Config{}, []TargetSpec{
		{Name: "a", Composite: true},
	}, []int{4441})
	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrConfig)
}

func TestGetConnectionUnknownName(t *testing.T) {
	c, err := New(nil, nil, nil, driver.Config{}, []TargetSpec{{Name: "a"}}, []int{4441})
	require.NoError(t, err)

	_, err = c.GetConnection("missing")
	assert.Error(t, err)
}

func TestFetchWithoutDriverIsHardError(t *testing.T) {
	c, err := New(nil, nil, nil, driver.Config{}, []TargetSpec{{Name: "a"}}, []int{4441})
	require.NoError(t, err)

	err = c.Fetch(context.Background(), "a", "https://example.test")
	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrDriverMissing)
}

func TestCompositeName(t *testing.T) {
	assert.Equal(t, "scales_composite", CompositeName("scales"))
}

func TestDisconnectWithoutConnectIsNoop(t *testing.T) {
	c, err := New(nil, nil, nil, driver.Config{}, []TargetSpec{{Name: "a"}}, []int{4441})
	require.NoError(t, err)

	interrupt := make(chan struct{})
	assert.NotPanics(t, func() {
		c.Disconnect(interrupt)
	})
}
