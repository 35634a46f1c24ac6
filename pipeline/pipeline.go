package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/aggregate"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/engine"
	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/logger"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/monitor"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/region"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// State is the lifecycle position of a SignalPipeline.
type State int

const (
	Idle State = iota
	Opened
	Processing
	Finalized
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Opened:
		return "opened"
	case Processing:
		return "processing"
	case Finalized:
		return "finalized"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var errAlreadyRun = errors.New("pipeline already used")

// SignalPipeline processes one signal's video frame by frame. A pipeline runs once;
// build a new one for the next video.
type SignalPipeline struct {
	id       iface.SignalID
	region   iface.Polygon
	detector *engine.Adapter
	runID    string
	log      *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	state State
	acc   aggregate.Accumulator
}

// NewSignalPipeline checks the region and binds it with the detector for one run.
func NewSignalPipeline(id iface.SignalID, poly iface.Polygon, detector *engine.Adapter) (*SignalPipeline, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("invalid signal id %q", id)
	}
	if err := region.Validate(poly); err != nil {
		return nil, fmt.Errorf("signal %s: %w", id, err)
	}
	runID := uuid.NewString()
	return &SignalPipeline{
		id:       id,
		region:   append(iface.Polygon(nil), poly...),
		detector: detector,
		runID:    runID,
		log:      logger.ForSignal(string(id), runID),
		now:      time.Now,
	}, nil
}

func (p *SignalPipeline) RunID() string {
	return p.runID
}

func (p *SignalPipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *SignalPipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.log.Debug("pipeline state", zap.Stringer("state", s))
}

// RunVideo opens input, writes the annotated stream to output (skipped when
// output is empty) and returns the finalized aggregate.
func (p *SignalPipeline) RunVideo(ctx context.Context, input, output string) (iface.SignalAggregate, error) {
	if st := p.State(); st != Idle {
		return iface.SignalAggregate{}, fmt.Errorf("%w: state %s", errAlreadyRun, st)
	}
	src, err := OpenVideoFile(input)
	if err != nil {
		p.setState(Closed)
		monitor.RunsTotal.WithLabelValues(string(p.id), "source_unavailable").Inc()
		p.log.Error("cannot open video", zap.String("input", input), zap.Error(err))
		return iface.SignalAggregate{}, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			p.log.Warn("close video source", zap.Error(err))
		}
		p.setState(Closed)
	}()
	p.setState(Opened)

	var sink FrameSink = discardSink{}
	if output != "" {
		w, h := src.Size()
		fs, err := CreateVideoFile(output, src.FPS(), w, h)
		if err != nil {
			monitor.RunsTotal.WithLabelValues(string(p.id), "sink_unavailable").Inc()
			return iface.SignalAggregate{}, err
		}
		sink = fs
	}
	defer func() {
		if err := sink.Close(); err != nil {
			p.log.Warn("close video sink", zap.Error(err))
		}
	}()
	p.log.Info("video opened", zap.String("input", input), zap.String("output", output), zap.Float64("fps", src.FPS()))
	return p.Process(ctx, src, sink)
}

// Process drives the frame loop over an already opened source and sink. The caller
// keeps ownership of both.
func (p *SignalPipeline) Process(ctx context.Context, src FrameSource, sink FrameSink) (iface.SignalAggregate, error) {
	p.mu.Lock()
	if p.state != Idle && p.state != Opened {
		st := p.state
		p.mu.Unlock()
		return iface.SignalAggregate{}, fmt.Errorf("%w: state %s", errAlreadyRun, st)
	}
	p.state = Processing
	p.mu.Unlock()

	signal := string(p.id)
	frame := gocv.NewMat()
	defer frame.Close()
	start := p.now()

	for {
		if err := ctx.Err(); err != nil {
			return p.abort(err)
		}
		err := src.Read(&frame)
		if errors.Is(err, io.EOF) {
			break
		}
		monitor.FramesTotal.WithLabelValues(signal).Inc()
		frameNo := p.acc.Frames
		if err != nil {
			p.skip(frameNo, "decode", err)
			if err := p.writeSkipped(src, sink, &frame); err != nil {
				return p.fail(err)
			}
			continue
		}

		t0 := time.Now()
		fr, err := p.processFrame(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return p.abort(ctx.Err())
			}
			p.skip(frameNo, "detector", err)
			if err := p.writeSkipped(src, sink, &frame); err != nil {
				return p.fail(err)
			}
			continue
		}
		p.acc = p.acc.Merge(fr)
		annotate(&frame, p.region, fr.Detections, p.acc.VehicleCount, p.acc.Weight)
		if err := sink.Write(frame); err != nil {
			return p.fail(fmt.Errorf("write frame %d: %w", frameNo, err))
		}
		monitor.FrameSeconds.WithLabelValues(signal).Observe(time.Since(t0).Seconds())
		for _, c := range iface.AllClasses() {
			if n := fr.PerClass[c]; n > 0 {
				monitor.VehiclesTotal.WithLabelValues(signal, c.String()).Add(float64(n))
			}
		}
	}

	agg := p.acc.Finalize(p.id, p.now())
	p.setState(Finalized)
	monitor.RunsTotal.WithLabelValues(signal, "ok").Inc()
	p.log.Info("video finalized",
		zap.Int("frames", agg.Frames),
		zap.Int("skipped", agg.SkippedFrames),
		zap.Int("vehicles", agg.VehicleCount),
		zap.Float64("weight", agg.TrafficWeight),
		zap.Float64("efficiency", agg.EfficiencyScore),
		zap.Duration("elapsed", p.now().Sub(start)))
	return agg, nil
}

// processFrame runs detect, region filter, dedup and scoring for one frame.
func (p *SignalPipeline) processFrame(ctx context.Context, frame gocv.Mat) (iface.FrameResult, error) {
	dets, err := p.detector.Detect(ctx, frame)
	if err != nil {
		return iface.FrameResult{}, err
	}
	inside := make([]iface.Detection, 0, len(dets))
	for _, d := range dets {
		if region.Contains(d.Center, p.region) {
			inside = append(inside, d)
		}
	}
	fr := aggregate.Score(aggregate.Dedup(inside))
	fr.Annotated = frame
	return fr, nil
}

func (p *SignalPipeline) skip(frameNo int, reason string, err error) {
	p.acc = p.acc.Skip()
	monitor.FramesSkipped.WithLabelValues(string(p.id), reason).Inc()
	p.log.Warn("frame skipped", zap.Int("frame", frameNo), zap.String("reason", reason), zap.Error(err))
}

// writeSkipped keeps the output frame count in step with the input: the raw frame
// (or a blank one when nothing was decoded) goes out with the unchanged totals.
func (p *SignalPipeline) writeSkipped(src FrameSource, sink FrameSink, frame *gocv.Mat) error {
	if frame.Empty() {
		w, h := src.Size()
		if w <= 0 || h <= 0 {
			return nil
		}
		blank := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
		defer blank.Close()
		annotate(&blank, p.region, nil, p.acc.VehicleCount, p.acc.Weight)
		return sink.Write(blank)
	}
	annotate(frame, p.region, nil, p.acc.VehicleCount, p.acc.Weight)
	return sink.Write(*frame)
}

// abort discards the partial aggregate on cancellation.
func (p *SignalPipeline) abort(err error) (iface.SignalAggregate, error) {
	p.setState(Closed)
	monitor.RunsTotal.WithLabelValues(string(p.id), "cancelled").Inc()
	p.log.Warn("video cancelled, partial result discarded", zap.Int("frames", p.acc.Frames), zap.Error(err))
	return iface.SignalAggregate{}, err
}

func (p *SignalPipeline) fail(err error) (iface.SignalAggregate, error) {
	p.setState(Closed)
	monitor.RunsTotal.WithLabelValues(string(p.id), "failed").Inc()
	p.log.Error("video failed", zap.Int("frames", p.acc.Frames), zap.Error(err))
	return iface.SignalAggregate{}, err
}
