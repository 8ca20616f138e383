// Package procstat reads resident memory and CPU usage of the current
// process for the metrics endpoint.
package procstat

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

type Snapshot struct {
	RAMMegabytes float64
	CPUPercent   float64
}

// Read returns best-effort process gauges; fields stay zero on error so
// the metrics endpoint never fails because of OS introspection.
func Read() Snapshot {
	var snap Snapshot
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return snap
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		snap.RAMMegabytes = float64(mem.RSS) / 1024 / 1024
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	}
	return snap
}
