package export

import (
	"math"
	"runtime/metrics"
)

// Memory pressure thresholds for [OptimalConcurrency].
const (
	highMemory     = 0.8
	elevatedMemory = 0.6
)

// OptimalConcurrency picks the worker cap from memory pressure: 4 normally,
// 3 above 60% usage and 2 above 80%. memUsage returns the used fraction and
// false when unknown.
func OptimalConcurrency(memUsage func() (float64, bool)) int {
	if memUsage == nil {
		return DefaultConcurrency
	}
	ratio, ok := memUsage()
	switch {
	case !ok:
		return DefaultConcurrency
	case ratio > highMemory:
		return 2
	case ratio > elevatedMemory:
		return 3
	default:
		return DefaultConcurrency
	}
}

var memorySamples = []metrics.Sample{
	{Name: "/memory/classes/total:bytes"},
	{Name: "/memory/classes/heap/released:bytes"},
	{Name: "/gc/gomemlimit:bytes"},
}

// MemoryUsage reports the Go runtime's mapped memory against the soft
// memory limit. It is unknown unless GOMEMLIMIT (or debug.SetMemoryLimit)
// set a limit.
func MemoryUsage() (float64, bool) {
	samples := make([]metrics.Sample, len(memorySamples))
	copy(samples, memorySamples)
	metrics.Read(samples)

	for _, s := range samples {
		if s.Value.Kind() != metrics.KindUint64 {
			return 0, false
		}
	}
	total := samples[0].Value.Uint64()
	released := samples[1].Value.Uint64()
	limit := samples[2].Value.Uint64()
	if limit == 0 || limit == math.MaxInt64 {
		return 0, false
	}
	return float64(total-released) / float64(limit), true
}
