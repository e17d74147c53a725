// Package docker starts and tears down the isolated browser containers,
// one per scraping connection, each publishing the browser automation
// endpoint on the connection's host port.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
	"go.uber.org/zap"

	serrors "scraper/errors"
	"scraper/logger"
	"scraper/utils/recovery"
)

const (
	// browserPort is the automation port inside the container.
	browserPort = "4444/tcp"

	stopTimeout    = 10 * time.Second
	stopRetries    = 3
	stopRetryDelay = 2 * time.Second
)

// Manager wraps a Docker client. The client is stateless, so concurrent
// create/cleanup calls on distinct containers are safe.
type Manager struct {
	cfg    Config
	client *dockerclient.Client
}

// NewManager connects to the local Docker daemon.
func NewManager(cfg Config) (*Manager, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Manager{cfg: cfg, client: cli}, nil
}

// Close releases the Docker client.
func (m *Manager) Close() error {
	return m.client.Close()
}

// Ping verifies the daemon is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	_, err := m.client.Ping(ctx)
	return err
}

// HasImage reports whether the configured browser image is present.
func (m *Manager) HasImage(ctx context.Context) (bool, error) {
	list, err := m.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", m.cfg.ContainerImage)),
	})
	if err != nil {
		return false, err
	}
	return len(list) > 0, nil
}

// Create starts a browser container named after the connection,
// publishing the automation port on the given host port. launchArgs are
// handed to the containerized browser through its LAUNCH_ARGS variable.
func (m *Manager) Create(ctx context.Context, name, hostPort string, launchArgs []string) (string, error) {
	shmSize, err := units.RAMInBytes(m.cfg.ContainerShmSize)
	if err != nil {
		return "", fmt.Errorf("%w: invalid shm size %q", serrors.ErrContainerStart, m.cfg.ContainerShmSize)
	}

	var env []string
	for k, v := range m.cfg.Environment {
		env = append(env, k+"="+v)
	}
	if len(launchArgs) > 0 {
		encoded, err := json.Marshal(launchArgs)
		if err == nil {
			env = append(env, "LAUNCH_ARGS="+string(encoded))
		}
	}

	resp, err := m.client.ContainerCreate(ctx,
		&container.Config{
			Image: m.cfg.ContainerImage,
			Env:   env,
			ExposedPorts: nat.PortSet{
				browserPort: struct{}{},
			},
		},
		&container.HostConfig{
			NetworkMode: container.NetworkMode(m.cfg.NetworkMode),
			ShmSize:     shmSize,
			PortBindings: nat.PortMap{
				browserPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: hostPort}},
			},
		},
		nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("%w: create %q: %v", serrors.ErrContainerStart, name, err)
	}

	if err := m.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("%w: start %q: %v", serrors.ErrContainerStart, name, err)
	}

	logger.Info("browser container started",
		zap.String("name", name),
		zap.String("port", hostPort))
	return resp.ID, nil
}

// Cleanup gracefully stops a container, escalating to a kill when the
// stop keeps failing or the run is being interrupted, and removes it
// when configured to.
func (m *Manager) Cleanup(ctx context.Context, containerID string) {
	if err := m.stop(ctx, containerID); err != nil {
		logger.Error("container stop failed", zap.String("container", short(containerID)), zap.Error(err))
	}
	if m.cfg.RemoveOnCleanup {
		m.remove(containerID)
	}
}

// stop attempts a graceful stop with retries; the final attempt kills.
// An interrupt mid-stop escalates to a kill immediately.
func (m *Manager) stop(ctx context.Context, containerID string) error {
	retrier := recovery.NewRetrier(recovery.Config{
		MaxAttempts:  stopRetries,
		InitialDelay: stopRetryDelay,
		Strategy:     recovery.FixedDelay,
	})
	timeout := int(stopTimeout.Seconds())
	err := retrier.Do(ctx, func() error {
		return m.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	})
	if err == nil {
		logger.Info("container stopped", zap.String("container", short(containerID)))
		return nil
	}
	logger.Error("container did not stop, killing", zap.String("container", short(containerID)), zap.Error(err))
	return m.kill(containerID)
}

// kill forcefully terminates a container. Uses a fresh context so an
// interrupted run can still clean up.
func (m *Manager) kill(containerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := m.client.ContainerKill(ctx, containerID, "SIGKILL"); err != nil {
		return fmt.Errorf("kill container: %w", err)
	}
	logger.Info("container killed", zap.String("container", short(containerID)))
	return nil
}

// remove deletes a stopped container.
func (m *Manager) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := m.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if dockerclient.IsErrNotFound(err) {
			logger.Warn("container already removed", zap.String("container", short(containerID)))
			return
		}
		logger.Error("container remove failed", zap.String("container", short(containerID)), zap.Error(err))
		return
	}
	logger.Info("container removed", zap.String("container", short(containerID)))
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
