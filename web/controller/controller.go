// Package controller composes the proxy pool, the container manager, and
// the driver manager. It owns every connection for a run: resources are
// acquired at scope entry and released, best effort, at scope exit on
// every path out.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	serrors "scraper/errors"
	"scraper/logger"
	"scraper/web/docker"
	"scraper/web/driver"
	"scraper/web/proxy"
)

const fetchRetries = 2 // allows three navigation attempts in total

// Connection is the ownership unit for one scraping slot: a name, a host
// port, and the proxy, container, and driver bound to it.
type Connection struct {
	Name        string
	Port        string
	Proxy       string
	ContainerID string
	Driver      *driver.Session

	limiter *rate.Limiter
}

// TargetSpec names a target and whether it needs the secondary OCR
// connection.
type TargetSpec struct {
	Name      string
	Composite bool
}

// CompositeName returns the name of a target's secondary OCR connection.
func CompositeName(target string) string {
	return target + "_composite"
}

// Controller wires the three resource managers together.
type Controller struct {
	proxies    *proxy.Manager
	containers *docker.Manager
	drivers    *driver.Manager
	driverCfg  driver.Config

	order       []string
	connections map[string]*Connection
	connected   bool
}

// New builds a connection for every target (plus a composite connection
// where declared), assigning host ports from the configured list in
// declaration order.
func New(proxies *proxy.Manager, containers *docker.Manager, drivers *driver.Manager,
	driverCfg driver.Config, specs []TargetSpec, ports []int) (*Controller, error) {

	c := &Controller{
		proxies:     proxies,
		containers:  containers,
		drivers:     drivers,
		driverCfg:   driverCfg,
		connections: make(map[string]*Connection),
	}

	next := 0
	take := func() (string, error) {
		if next >= len(ports) {
			return "", fmt.Errorf("%w: not enough ports configured for all targets", serrors.ErrConfig)
		}
		p := strconv.Itoa(ports[next])
		next++
		return p, nil
	}

	for _, spec := range specs {
		names := []string{spec.Name}
		if spec.Composite {
			names = append(names, CompositeName(spec.Name))
		}
		for _, name := range names {
			port, err := take()
			if err != nil {
				return nil, err
			}
			conn := &Connection{Name: name, Port: port}
			if driverCfg.RequestsPerSecond > 0 {
				conn.limiter = rate.NewLimiter(rate.Limit(driverCfg.RequestsPerSecond), 1)
			}
			c.order = append(c.order, name)
			c.connections[name] = conn
		}
	}
	return c, nil
}

// GetConnection looks up a connection by name. Lookup only, no mutation.
func (c *Controller) GetConnection(name string) (*Connection, error) {
	conn, ok := c.connections[name]
	if !ok {
		return nil, fmt.Errorf("no connection found for target %q", name)
	}
	return conn, nil
}

// Connect establishes resources for every connection. A connection whose
// proxy, container, or driver failed is left not-ready; the run goes on
// without it.
func (c *Controller) Connect(ctx context.Context) {
	for _, name := range c.order {
		conn := c.connections[name]
		if !c.connectResources(ctx, conn) {
			logger.Error("failed to fully establish resources", zap.String("connection", name))
		}
	}
	c.connected = true
}

// connectResources attempts each resource in order — proxy, container,
// driver — logging failures independently.
func (c *Controller) connectResources(ctx context.Context, conn *Connection) bool {
	ok := true

	p, err := c.proxies.Acquire()
	if err != nil {
		logger.Error("failed to assign proxy", zap.String("connection", conn.Name), zap.Error(err))
		ok = false
	} else {
		conn.Proxy = p
	}

	containerID, err := c.containers.Create(ctx, conn.Name, conn.Port, c.driverCfg.OptionArgs)
	if err != nil {
		logger.Error("failed to connect container", zap.String("connection", conn.Name), zap.Error(err))
		ok = false
	} else {
		conn.ContainerID = containerID
	}

	session, err := c.drivers.Create(ctx, conn.Name, conn.Port, c.proxyURL(conn))
	if err != nil {
		logger.Error("failed to connect driver", zap.String("connection", conn.Name), zap.Error(err))
		ok = false
	} else {
		conn.Driver = session
	}

	return ok
}

func (c *Controller) proxyURL(conn *Connection) string {
	if conn.Proxy == "" {
		return ""
	}
	return c.proxies.FormatProxyURL(conn.Proxy)
}

// Disconnect releases every connection's resources, best effort. A
// token on the interrupt channel skips the current connection's
// remaining release steps and moves on to the next.
func (c *Controller) Disconnect(interrupt <-chan struct{}) {
	if !c.connected {
		return
	}
	for _, name := range c.order {
		c.releaseResources(c.connections[name], interrupt)
	}
	c.connected = false
}

// releaseResources tears down one connection: driver, then container,
// then proxy. Errors are logged and swallowed so one failure cannot
// block another connection's release.
func (c *Controller) releaseResources(conn *Connection, interrupt <-chan struct{}) {
	interrupted := func() bool {
		select {
		case <-interrupt:
			logger.Error("interrupt during release, skipping connection", zap.String("connection", conn.Name))
			return true
		default:
			return false
		}
	}

	if conn.Driver != nil {
		if interrupted() {
			return
		}
		c.drivers.Quit(conn.Driver)
		conn.Driver = nil
	}

	if conn.ContainerID != "" {
		if interrupted() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		done, skip := make(chan struct{}), make(chan bool, 1)
		go func() {
			select {
			case <-interrupt: // cancelling the stop escalates it to a kill
				cancel()
				skip <- true
			case <-done:
				skip <- false
			}
		}()
		c.containers.Cleanup(ctx, conn.ContainerID)
		close(done)
		cancel()
		conn.ContainerID = ""
		if <-skip {
			return
		}
	}

	if conn.Proxy != "" {
		c.proxies.Release(conn.Proxy)
		conn.Proxy = ""
	}
}

// Fetch navigates the named connection's driver to url, incrementing the
// connection's proxy use count on success. Transient navigation timeouts
// are retried with progressive backoff; a proxy at its usage limit
// surfaces immediately so the engine can rotate.
func (c *Controller) Fetch(ctx context.Context, name, url string) error {
	conn, err := c.GetConnection(name)
	if err != nil {
		return err
	}
	if conn.Driver == nil {
		return fmt.Errorf("%w: connection %q", serrors.ErrDriverMissing, name)
	}

	if conn.limiter != nil {
		if err := conn.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		_, err := conn.Driver.Page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateLoad,
		})
		if err == nil {
			if err := c.proxies.Increment(conn.Proxy); err != nil {
				return err
			}
			return nil
		}

		if !errors.Is(err, playwright.ErrTimeout) {
			logger.Error("non-timeout error during navigation", zap.String("url", url), zap.Error(err))
			return err
		}

		logger.Warn("navigation timeout",
			zap.String("url", url),
			zap.Int("attempt", attempt+1))
		if attempt >= fetchRetries {
			logger.Error("final navigation attempt failed", zap.String("url", url), zap.Error(err))
			return fmt.Errorf("request to %q failed after %d attempts: %w", url, fetchRetries+1, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 2 * time.Second):
		}
	}
}

// RotateProxy borrows a fresh proxy for the connection, quits the
// current driver, and opens a new session against the same container and
// port. Partial failures are logged and the rotation continues.
func (c *Controller) RotateProxy(ctx context.Context, conn *Connection) {
	p, err := c.proxies.Acquire()
	if err != nil {
		logger.Error("failed to rotate proxy", zap.String("connection", conn.Name), zap.Error(err))
	} else {
		conn.Proxy = p
	}

	c.drivers.Quit(conn.Driver)
	conn.Driver = nil

	session, err := c.drivers.Create(ctx, conn.Name, conn.Port, c.proxyURL(conn))
	if err != nil {
		logger.Error("failed to assign new driver", zap.String("connection", conn.Name), zap.Error(err))
		return
	}
	conn.Driver = session
	logger.Info("rotated proxy", zap.String("connection", conn.Name))
}
