// Package aggregate turns per-frame vehicle detections into counts, weights and
// the finalized per-signal aggregate.
package aggregate

import iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"

// DuplicateRadius is the per-axis pixel distance under which two centers in the
// same frame are treated as one vehicle.
const DuplicateRadius = 30

// Dedup drops every detection whose center lies within DuplicateRadius on both axes
// of an already accepted one. Input order is kept and the first detection wins, so
// two real vehicles closer than the radius collapse into whichever came first.
func Dedup(dets []iface.Detection) []iface.Detection {
	accepted := make([]iface.Detection, 0, len(dets))
	for _, d := range dets {
		if nearAny(d, accepted) {
			continue
		}
		accepted = append(accepted, d)
	}
	return accepted
}

func nearAny(d iface.Detection, accepted []iface.Detection) bool {
	for _, a := range accepted {
		if abs(d.Center.X-a.Center.X) < DuplicateRadius && abs(d.Center.Y-a.Center.Y) < DuplicateRadius {
			return true
		}
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
