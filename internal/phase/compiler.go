package phase

import (
	"github.com/scanhead-sdk/scanhead-go/internal/config"
	"github.com/scanhead-sdk/scanhead-go/internal/model"
)

// headCameraKey identifies a (scan_head, camera_port) pair for the
// violation-pass accumulator.
type headCameraKey struct {
	head   model.ScanHeadID
	camera uint8
}

// HeadLookup resolves per-head scheduling facts the compiler needs but
// does not own: the head's minimum scan period and its negotiated default
// laser-on time, keyed by scan head id.
type HeadLookup interface {
	MinScanPeriodNs(head model.ScanHeadID) int64
	DefaultLaserOnTimeUs(head model.ScanHeadID) uint32
}

// Compiler computes per-phase durations for a PhaseTable.
type Compiler struct {
	table  model.PhaseTable
	heads  HeadLookup
	tuning *config.TuningConfig
}

// NewCompiler returns a Compiler for table, resolving per-head facts via
// heads and scheduling constants via tuning (nil tuning uses defaults).
func NewCompiler(table model.PhaseTable, heads HeadLookup, tuning *config.TuningConfig) *Compiler {
	return &Compiler{table: table, heads: heads, tuning: tuning}
}

func (c *Compiler) elementDurationNs(el model.PhaseElement) int64 {
	if el.Strobe {
		return el.StrobeDurationNs
	}
	if cfg, ok := el.OverrideConfig.Get(); ok {
		return int64(cfg.DefaultLaserOnTimeUs) * 1000
	}
	return int64(c.heads.DefaultLaserOnTimeUs(el.ScanHeadID)) * 1000
}

// maxElementDurationNs returns the longest element duration within the
// source data this compiler was given for phase i — in practice the
// session supplies the element's negotiated laser-on time via
// OverrideConfig or the head's default, already resolved by the caller.
func (c *Compiler) maxElementDurationNs(phaseElements []model.PhaseElement, perElementNs []int64) int64 {
	var max int64
	for _, d := range perElementNs {
		if d > max {
			max = d
		}
	}
	return max
}

// CalculatePhaseDurations implements the three-pass scheduling algorithm:
// initial per-phase max, a two-pass violation sweep enforcing min scan
// period and frame-overhead-time gaps between repeated (head, camera)
// exposures, and a maximum-throughput floor that distributes any deficit
// evenly across phases.
func (c *Compiler) CalculatePhaseDurations() []int64 {
	n := len(c.table.Phases)
	if n == 0 {
		return nil
	}

	durations := make([]int64, n)
	perPhaseElementNs := make([][]int64, n)
	for i, ph := range c.table.Phases {
		elNs := make([]int64, len(ph.Elements))
		for j, el := range ph.Elements {
			elNs[j] = c.elementDurationNs(el)
		}
		perPhaseElementNs[i] = elNs
		durations[i] = c.maxElementDurationNs(ph.Elements, elNs)
	}
	if n > 0 {
		durations[0] += c.tuning.GetCameraStartEarlyOffsetNs()
	}

	frameOverheadNs := c.tuning.GetFrameOverheadTimeNs()

	for pass := 0; pass < 2; pass++ {
		accum := make(map[headCameraKey]int64)
		seen := make(map[headCameraKey]bool)
		lastMaxLaserOnNs := make(map[headCameraKey]int64)

		for i, ph := range c.table.Phases {
			for k := range accum {
				accum[k] += durations[i]
			}

			for j, el := range ph.Elements {
				key := headCameraKey{head: el.ScanHeadID, camera: el.Pair.CameraPort}
				if el.Strobe {
					continue
				}
				if seen[key] {
					minPeriodNs := c.heads.MinScanPeriodNs(el.ScanHeadID)
					minPeriodAdj := minPeriodNs - accum[key]
					frameOverheadAdj := frameOverheadNs - (accum[key] - lastMaxLaserOnNs[key])
					adj := maxInt64(minPeriodAdj, frameOverheadAdj)
					if adj > 0 {
						durations[i] += adj
						for k := range accum {
							accum[k] += adj
						}
					}
				}
				seen[key] = true
				lastMaxLaserOnNs[key] = perPhaseElementNs[i][j]
				accum[key] = 0
			}
		}
	}

	var total int64
	for _, d := range durations {
		total += d
	}
	minTotalNs := c.tuning.GetMinScanPeriodPerElementUs() * 1000 * int64(c.tuning.GetMaxElementsPerHead())
	if total < minTotalNs {
		deficit := minTotalNs - total
		per := ceilDiv(deficit, int64(n))
		for i := range durations {
			durations[i] += per
		}
	}

	return durations
}

// GetMinScanPeriod returns ceil(sum(durations) / 1000) microseconds.
func (c *Compiler) GetMinScanPeriod() int64 {
	var total int64
	for _, d := range c.CalculatePhaseDurations() {
		total += d
	}
	return ceilDiv(total, 1000)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}
