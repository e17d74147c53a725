package docker

import (
	"strings"

	"github.com/docker/go-units"

	serrors "scraper/errors"
)

// Config is the Docker section of the configuration file.
type Config struct {
	Ports            []int             `koanf:"ports"`
	ContainerShmSize string            `koanf:"container_shm_size"`
	ContainerImage   string            `koanf:"container_image"`
	RemoveOnCleanup  bool              `koanf:"remove_on_cleanup"`
	Environment      map[string]string `koanf:"environment"`
	NetworkMode      string            `koanf:"network_mode"`
}

var allowedNetworkModes = []string{"bridge", "host", "none"}

// Validate checks the Docker configuration.
func (c *Config) Validate() error {
	ve := serrors.ValidationErrs()

	if len(c.Ports) == 0 {
		ve.Add("docker.ports", "must specify at least one port value")
	}
	for _, p := range c.Ports {
		if p < 0 || p > 65535 {
			ve.Add("docker.ports", "port value out of valid range")
			break
		}
	}

	c.ContainerShmSize = strings.TrimSpace(c.ContainerShmSize)
	if c.ContainerShmSize == "" {
		ve.Add("docker.container_shm_size", "cannot be empty")
	} else if _, err := units.RAMInBytes(c.ContainerShmSize); err != nil {
		ve.Add("docker.container_shm_size", "invalid size")
	}

	c.ContainerImage = strings.TrimSpace(c.ContainerImage)
	if c.ContainerImage == "" {
		ve.Add("docker.container_image", "cannot be empty")
	}

	if c.NetworkMode == "" {
		c.NetworkMode = "bridge"
	}
	c.NetworkMode = strings.ToLower(strings.TrimSpace(c.NetworkMode))
	valid := false
	for _, m := range allowedNetworkModes {
		if c.NetworkMode == m {
			valid = true
			break
		}
	}
	if !valid {
		ve.Add("docker.network_mode", "must be one of "+strings.Join(allowedNetworkModes, ", "))
	}

	return ve.Err()
}
