package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/engine"
	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/logger"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/region"
	"go.uber.org/zap"
)

// Job is one signal's video to process.
type Job struct {
	Signal iface.SignalID
	Region iface.Polygon
	Input  string
	Output string
}

// Result is the outcome of one Job. Err is set when no aggregate was produced.
type Result struct {
	Signal    iface.SignalID
	RunID     string
	Aggregate iface.SignalAggregate
	Err       error
}

// BackendFactory builds a fresh backend for one pipeline. Backends are never
// shared between signals.
type BackendFactory func(ctx context.Context) iface.Backend

// Run processes a single job on its own backend.
func Run(ctx context.Context, job Job, factory BackendFactory, params iface.DetectParams) (res Result) {
	res.Signal = job.Signal
	defer func() {
		if r := recover(); r != nil {
			res.Aggregate = iface.SignalAggregate{}
			res.Err = fmt.Errorf("signal %s: pipeline panic: %v", job.Signal, r)
			logger.Log().Error("pipeline panic recovered", zap.String("signal", string(job.Signal)), zap.Any("panic", r))
		}
	}()
	if err := region.Validate(job.Region); err != nil {
		res.Err = fmt.Errorf("signal %s: %w", job.Signal, err)
		return res
	}
	backend := factory(ctx)
	defer backend.Destroy()
	p, err := NewSignalPipeline(job.Signal, job.Region, engine.NewAdapter(backend, params))
	if err != nil {
		res.Err = err
		return res
	}
	res.RunID = p.RunID()
	res.Aggregate, res.Err = p.RunVideo(ctx, job.Input, job.Output)
	return res
}

// RunAll processes every job in parallel, one goroutine and backend per signal, and
// returns the results in job order once all of them are done. A failing signal
// does not stop the others.
func RunAll(ctx context.Context, jobs []Job, factory BackendFactory, params iface.DetectParams) []Result {
	results := make([]Result, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			results[i] = Run(ctx, job, factory, params)
		}(i, job)
	}
	wg.Wait()
	return results
}
