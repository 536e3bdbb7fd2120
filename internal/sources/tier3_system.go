package sources

import (
	"encoding/json"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	gopsload "github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"statusline/internal/cachestore"
)

// systemValue replaces the teacher's hand-rolled /proc parsing
// (system/runtime/lib/system/info.go) with gopsutil/v3, which is what
// mrf-agent-racer/backend's monitor package uses for the same
// load/mem/disk triad (SPEC_FULL.md §11).
type systemValue struct {
	LoadAvg1      float64
	CPUCount      int
	MemUsedGB     float64
	MemTotalGB    float64
	DiskPercent   float64
	DiskAvailable string
}

func systemSource() Source {
	return Source{
		ID:       "system",
		Tier:     TierGlobal,
		Category: "git_status", // reuses the fast-refreshing category; system metrics are cheap and local
		Timeout:  800 * time.Millisecond,
		Fetch: func(g GatherContext) (any, error) {
			v := systemValue{CPUCount: runtime.NumCPU()}

			if avg, err := gopsload.AvgWithContext(g.Ctx); err == nil {
				v.LoadAvg1 = avg.Load1
			}
			if vm, err := mem.VirtualMemoryWithContext(g.Ctx); err == nil {
				v.MemTotalGB = float64(vm.Total) / (1 << 30)
				v.MemUsedGB = float64(vm.Used) / (1 << 30)
			}
			if usage, err := disk.UsageWithContext(g.Ctx, g.WorkingDir); err == nil {
				v.DiskPercent = usage.UsedPercent
			} else if usage, err := disk.UsageWithContext(g.Ctx, "/"); err == nil {
				v.DiskPercent = usage.UsedPercent
			}

			// cpu.PercentWithContext is sampled, not instantaneous; a
			// zero-duration call returns the percent since the last call
			// inside this process, which is good enough for a statusline
			// and costs nothing extra (no fixed sleep).
			if pcts, err := cpu.PercentWithContext(g.Ctx, 0, false); err == nil && len(pcts) > 0 && v.LoadAvg1 == 0 {
				v.LoadAvg1 = pcts[0] / 100 * float64(v.CPUCount)
			}
			return v, nil
		},
		Merge: func(h *cachestore.SessionHealth, value any, fetchedAt time.Time) {
			v, ok := decode[systemValue](value)
			if !ok {
				return
			}
			raw, _ := json.Marshal(v)
			h.Sources["system"] = cachestore.Entry{Value: raw, FetchedAt: fetchedAt}
		},
	}
}
