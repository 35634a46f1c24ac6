package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/config"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/engine"
	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/logger"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/monitor"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/pipeline"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/publish"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/region"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/timing"
	"go.uber.org/zap"
)

// analyzer wires the signal pipelines to their downstream consumers.
type analyzer struct {
	cfg       *config.Config
	regions   *region.Store
	board     *monitor.Board
	timer     timing.GreenTimer
	publisher publish.Publisher
	factory   pipeline.BackendFactory
	params    iface.DetectParams

	mu      sync.Mutex
	running map[iface.SignalID]bool
	wg      sync.WaitGroup
}

func newAnalyzer(cfg *config.Config, regions *region.Store, timer timing.GreenTimer, pub publish.Publisher, factory pipeline.BackendFactory) *analyzer {
	return &analyzer{
		cfg:       cfg,
		regions:   regions,
		board:     monitor.NewBoard(),
		timer:     timer,
		publisher: pub,
		factory:   factory,
		params:    cfg.Detector.Params(),
		running:   map[iface.SignalID]bool{},
	}
}

// job resolves a configured signal into a pipeline job. A missing region is left
// empty so the run reports ErrInvalidRegion for that signal alone.
func (a *analyzer) job(sc config.SignalConfig) (pipeline.Job, error) {
	id, err := iface.ParseSignalID(sc.ID)
	if err != nil {
		return pipeline.Job{}, err
	}
	poly, err := a.regions.Get(id)
	if err != nil {
		logger.Log().Warn("signal has no usable region", zap.String("signal", string(id)), zap.Error(err))
	}
	return pipeline.Job{Signal: id, Region: poly, Input: sc.Video, Output: sc.Output}, nil
}

func (a *analyzer) jobs() []pipeline.Job {
	var jobs []pipeline.Job
	for _, sc := range a.cfg.Signals {
		j, err := a.job(sc)
		if err != nil {
			logger.Log().Error("skipping signal", zap.String("signal", sc.ID), zap.Error(err))
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs
}

// runAll processes every configured signal in parallel and hands each result on.
func (a *analyzer) runAll(ctx context.Context) []pipeline.Result {
	jobs := a.jobs()
	for _, j := range jobs {
		a.mark(j.Signal, true)
	}
	results := pipeline.RunAll(ctx, jobs, a.factory, a.params)
	for _, res := range results {
		a.mark(res.Signal, false)
		a.handle(ctx, res)
	}
	return results
}

// trigger starts a background run for one signal unless it is already running.
func (a *analyzer) trigger(ctx context.Context) monitor.TriggerFunc {
	return func(id iface.SignalID) error {
		sc, ok := a.cfg.Signal(id)
		if !ok {
			return fmt.Errorf("signal %s is not configured", id)
		}
		j, err := a.job(sc)
		if err != nil {
			return err
		}
		if !a.mark(id, true) {
			return fmt.Errorf("signal %s is already running", id)
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer a.mark(id, false)
			a.handle(ctx, pipeline.Run(ctx, j, a.factory, a.params))
		}()
		return nil
	}
}

// mark sets the running flag and reports whether it changed.
func (a *analyzer) mark(id iface.SignalID, on bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running[id] == on {
		return false
	}
	a.running[id] = on
	return true
}

// handle asks for a green time and records and publishes a finished run.
func (a *analyzer) handle(ctx context.Context, res pipeline.Result) {
	log := logger.ForSignal(string(res.Signal), res.RunID)
	if res.Err != nil {
		if !errors.Is(res.Err, context.Canceled) {
			log.Error("signal run failed", zap.Error(res.Err))
		}
		a.board.Fail(res.Signal, res.Err, time.Now())
		return
	}
	agg := res.Aggregate
	green, err := a.timer.ComputeGreenTime(ctx, agg.SignalID, agg.VehicleCount, agg.TrafficWeight, agg.FinalizedAt)
	if err != nil {
		log.Warn("green time unavailable, using default", zap.Error(err), zap.Duration("default", a.cfg.Timing.DefaultGreenTime))
		green = a.cfg.Timing.DefaultGreenTime
	}
	a.board.Record(agg, green)
	if err := a.publisher.Publish(ctx, publish.Record{
		Junction:  a.cfg.Junction,
		RunID:     res.RunID,
		Aggregate: agg,
		GreenTime: green,
	}); err != nil {
		log.Error("publish aggregate", zap.Error(err))
	}
	log.Info("signal result",
		zap.Int("vehicles", agg.VehicleCount),
		zap.Float64("weight", agg.TrafficWeight),
		zap.Float64("efficiency", agg.EfficiencyScore),
		zap.Duration("green_time", green))
}

// wait blocks until every triggered run is done.
func (a *analyzer) wait() {
	a.wg.Wait()
}

func backendFactory(opts engine.Options) pipeline.BackendFactory {
	return func(ctx context.Context) iface.Backend {
		return engine.Load(ctx, opts)
	}
}

func newTimer(cfg config.TimingConfig) timing.GreenTimer {
	if cfg.URL == "" {
		return timing.Fixed(cfg.DefaultGreenTime)
	}
	return timing.NewClient(cfg.URL, cfg.Timeout)
}

func newPublisher(cfg publish.Config) publish.Publisher {
	if !cfg.Enabled() {
		return publish.Nop{}
	}
	p, err := publish.NewKafkaPublisher(cfg)
	if err != nil {
		logger.Log().Error("kafka publisher unavailable, aggregates will not be published", zap.Error(err))
		return publish.Nop{}
	}
	return p
}

func GetOutboundIP() (string, error) {
	// no packet is sent; dialing UDP only resolves the outbound route
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
