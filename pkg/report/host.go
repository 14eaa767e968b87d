package report

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// CollectHost gathers details about the machine running the tests.
func CollectHost(ctx context.Context) (*Host, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading host info: %w", err)
	}

	h := &Host{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		Arch:            info.KernelArch,
		GoVersion:       runtime.Version(),
	}

	if h.LogicalCPUs, err = cpu.CountsWithContext(ctx, true); err != nil {
		return nil, fmt.Errorf("counting logical cpus: %w", err)
	}

	// Physical core counts are unavailable in some containers.
	if physical, err := cpu.CountsWithContext(ctx, false); err == nil {
		h.PhysicalCPUs = physical
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.MemoryTotal = vm.Total
	}

	return h, nil
}
