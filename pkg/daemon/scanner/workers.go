package scanner

import "runtime"

// Walk worker limits.
const (
	// minWalkWorkers keeps directory traversal parallel even on small
	// systems; the walk is metadata-heavy and mostly waits on the disk.
	minWalkWorkers = 8

	// maxWalkWorkers avoids excessive context switching.
	maxWalkWorkers = 64
)

// Workers returns the number of fastwalk workers for a system with cpus
// logical cores: max(cpus, 8) capped at 64. An override greater than zero
// replaces the calculation, still respecting the cap.
func Workers(cpus, override int) int {
	if override > 0 {
		return min(override, maxWalkWorkers)
	}
	return min(max(cpus, minWalkWorkers), maxWalkWorkers)
}

func defaultWorkers() int {
	return Workers(runtime.NumCPU(), 0)
}
