package config

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"scraper/web/docker"
)

const (
	connectivityURL     = "https://www.google.com"
	connectivityTimeout = 5 * time.Second
	requiredDiskSpace   = 1 << 30 // 1 GiB
	usageThreshold      = 0.9
)

// Preflight verifies the environment before any resources are acquired:
// a reachable container runtime with the configured image, outbound
// network, free disk, and CPU/memory headroom. Any failure aborts the
// run.
func Preflight(ctx context.Context, containers *docker.Manager) error {
	if err := containers.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon is not running: %w", err)
	}
	ok, err := containers.HasImage(ctx)
	if err != nil {
		return fmt.Errorf("docker image lookup failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("configured docker image not found")
	}

	if err := checkNetworkConnectivity(); err != nil {
		return err
	}
	if err := checkDiskSpace("/"); err != nil {
		return err
	}
	if err := checkCPUUsage(); err != nil {
		return err
	}
	return checkMemoryUsage()
}

func checkNetworkConnectivity() error {
	client := &http.Client{Timeout: connectivityTimeout}
	resp, err := client.Get(connectivityURL)
	if err != nil {
		return fmt.Errorf("network connectivity issue detected, unable to reach %s: %w", connectivityURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("network connectivity issue detected, status code %d", resp.StatusCode)
	}
	return nil
}

func checkDiskSpace(path string) error {
	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("disk usage check failed: %w", err)
	}
	if usage.Free < requiredDiskSpace {
		return fmt.Errorf("insufficient disk space: required %d MB, free %d MB",
			requiredDiskSpace>>20, usage.Free>>20)
	}
	return nil
}

func checkCPUUsage() error {
	percents, err := cpu.Percent(500*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		return fmt.Errorf("cpu usage check failed: %w", err)
	}
	if percents[0]/100 > usageThreshold {
		return fmt.Errorf("cpu usage is too high: current %.1f%%, threshold %.0f%%",
			percents[0], usageThreshold*100)
	}
	return nil
}

func checkMemoryUsage() error {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("memory usage check failed: %w", err)
	}
	if vm.UsedPercent/100 > usageThreshold {
		return fmt.Errorf("memory usage is too high: current %.1f%%, threshold %.0f%%",
			vm.UsedPercent, usageThreshold*100)
	}
	return nil
}
