package aggregate

import (
	"math"
	"strconv"
	"time"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
)

// Score tallies the accepted detections of one frame.
func Score(dets []iface.Detection) iface.FrameResult {
	res := iface.FrameResult{Detections: dets}
	for _, d := range dets {
		if !d.Class.Valid() {
			continue
		}
		res.VehicleCount++
		res.Weight += d.Class.Weight()
		res.PerClass[d.Class]++
	}
	return res
}

// Accumulator is the running sum over the frames of one video. It is a value:
// Merge and Skip return the next state and leave the receiver untouched.
type Accumulator struct {
	VehicleCount  int
	Weight        float64
	PerClass      iface.ClassCounts
	Frames        int
	SkippedFrames int
}

func (a Accumulator) Merge(fr iface.FrameResult) Accumulator {
	a.VehicleCount += fr.VehicleCount
	a.Weight += fr.Weight
	a.PerClass = a.PerClass.Add(fr.PerClass)
	a.Frames++
	return a
}

// Skip records a frame that produced no result.
func (a Accumulator) Skip() Accumulator {
	a.Frames++
	a.SkippedFrames++
	return a
}

func (a Accumulator) Finalize(id iface.SignalID, at time.Time) iface.SignalAggregate {
	return iface.SignalAggregate{
		SignalID:        id,
		VehicleCount:    a.VehicleCount,
		TrafficWeight:   a.Weight,
		PerClass:        a.PerClass,
		EfficiencyScore: EfficiencyScore(a.VehicleCount, a.Weight),
		Frames:          a.Frames,
		SkippedFrames:   a.SkippedFrames,
		FinalizedAt:     at,
	}
}

// EfficiencyScore is count / max(weight, 1) * 10 rounded to 2 decimals. The 1.0
// floor keeps the score defined for empty and lightweight traffic.
func EfficiencyScore(count int, weight float64) float64 {
	return round2(float64(count) / math.Max(weight, 1.0) * 10)
}

// round2 rounds the exact decimal value of v to 2 places, halves to even.
func round2(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}

// JunctionSummary combines the latest aggregates of several signals.
type JunctionSummary struct {
	Signals       int     `json:"signals"`
	TotalVehicles int     `json:"total_vehicles"`
	TotalWeight   float64 `json:"total_weight"`
	AvgEfficiency float64 `json:"avg_efficiency"`
}

func Summarize(aggs []iface.SignalAggregate) JunctionSummary {
	var s JunctionSummary
	var eff float64
	for _, a := range aggs {
		s.Signals++
		s.TotalVehicles += a.VehicleCount
		s.TotalWeight += a.TrafficWeight
		eff += a.EfficiencyScore
	}
	if s.Signals > 0 {
		s.AvgEfficiency = round2(eff / float64(s.Signals))
	}
	return s
}
