package limiter

import (
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// LoadProbe samples host utilization for adaptive load shedding.
//
// Implementations must not block the hot path for long and must not fail:
// when a sample cannot be taken they report 0.0, which the adaptive
// algorithm treats as an unloaded host.
type LoadProbe interface {
	CPUPercent() float64
	MemoryPercent() float64
}

// SystemProbe reads host CPU and memory utilization via gopsutil.
type SystemProbe struct{}

// NewSystemProbe constructs a SystemProbe.
func NewSystemProbe() *SystemProbe {
	return &SystemProbe{}
}

// CPUPercent reports total CPU utilization since the previous call. The
// zero interval makes this a non-blocking delta sample; the very first call
// in a process may report 0.0 until a baseline exists.
func (p *SystemProbe) CPUPercent() float64 {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return 0.0
	}
	return percents[0]
}

// MemoryPercent reports host memory utilization.
func (p *SystemProbe) MemoryPercent() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm == nil {
		return 0.0
	}
	return vm.UsedPercent
}

// StaticProbe returns fixed readings, for tests and for pinning adaptive
// behavior in environments where sampling is unreliable.
type StaticProbe struct {
	CPU    float64
	Memory float64
}

func (p StaticProbe) CPUPercent() float64    { return p.CPU }
func (p StaticProbe) MemoryPercent() float64 { return p.Memory }
