package scheduler

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemHealth is a point-in-time host resource reading taken by the
// periodic health job.
type SystemHealth struct {
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryPercent float64   `json:"memoryPercent"`
	DiskPercent   float64   `json:"diskPercent"`
	Healthy       bool      `json:"healthy"`
	Issues        []string  `json:"issues,omitempty"`
	CheckedAt     time.Time `json:"checkedAt"`
}

// Resource thresholds above which the health job flags the host.
const (
	cpuWarnPercent  = 90.0
	memWarnPercent  = 90.0
	diskWarnPercent = 90.0
)

// ProbeSystemHealth samples host CPU, memory and disk usage. Probe
// failures degrade to zero readings rather than erroring out the health
// job.
func ProbeSystemHealth() *SystemHealth {
	h := &SystemHealth{Healthy: true, CheckedAt: time.Now()}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		h.CPUPercent = percents[0]
	} else if err != nil {
		log.Debug().Err(err).Msg("CPU probe failed")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		h.MemoryPercent = vm.UsedPercent
	} else {
		log.Debug().Err(err).Msg("Memory probe failed")
	}

	if du, err := disk.Usage("/"); err == nil {
		h.DiskPercent = du.UsedPercent
	} else {
		log.Debug().Err(err).Msg("Disk probe failed")
	}

	if h.CPUPercent > cpuWarnPercent {
		h.Healthy = false
		h.Issues = append(h.Issues, "cpu usage above 90%")
	}
	if h.MemoryPercent > memWarnPercent {
		h.Healthy = false
		h.Issues = append(h.Issues, "memory usage above 90%")
	}
	if h.DiskPercent > diskWarnPercent {
		h.Healthy = false
		h.Issues = append(h.Issues, "disk usage above 90%")
	}

	if !h.Healthy {
		log.Warn().
			Float64("cpu", h.CPUPercent).
			Float64("memory", h.MemoryPercent).
			Float64("disk", h.DiskPercent).
			Strs("issues", h.Issues).
			Msg("System health degraded")
	}
	return h
}
