package monitor

import (
	"context"
	"math"
	"os"
	"time"

	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

var (
	PID      process.Process
	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})

	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "traffic_frames_total",
		Help: "Frames read per signal",
	}, []string{"signal"})
	FramesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "traffic_frames_skipped_total",
		Help: "Frames skipped per signal by reason",
	}, []string{"signal", "reason"})
	VehiclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "traffic_vehicles_total",
		Help: "Vehicles counted inside the region per signal and class",
	}, []string{"signal", "class"})
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "traffic_runs_total",
		Help: "Video runs per signal by outcome",
	}, []string{"signal", "outcome"})
	FrameSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "traffic_frame_seconds",
		Help:    "Time to detect, score and annotate one frame",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"signal"})
)

var registry = newRegistry()

func newRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(memUsage, cpuUsage, FramesTotal, FramesSkipped, VehiclesTotal, RunsTotal, FrameSeconds)
	return r
}

// Registry is the registry every analyzer metric is registered with.
func Registry() *prometheus.Registry {
	return registry
}

func CheckProcessInfo() {
	MemInfo, err := PID.MemoryInfo()
	if err != nil {
		logger.Log().Debug("read process memory", zap.Error(err))
		return
	}
	var MemMB = MemInfo.RSS / 1024 / 1024
	CPUPercent, _ := PID.CPUPercent()
	CPUPercentFloat := math.Round(CPUPercent*100) / 100
	memUsage.Set(float64(MemMB))
	cpuUsage.Set(CPUPercentFloat)
}

func GotPID() {
	pid := os.Getpid()
	i32Pid := int32(pid)
	PID.Pid = i32Pid
}

// StartMon samples this process's memory and CPU every interval until ctx is done.
func StartMon(ctx context.Context, interval time.Duration) {
	PID = process.Process{}
	GotPID()
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			CheckProcessInfo()
		}
	}
}
