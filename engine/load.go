package engine

import (
	"context"
	"errors"
	"fmt"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/logger"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Load builds the backend named by opts. When it cannot be brought up the error is
// logged as ErrDetectorUnavailable and a StubDetector is returned in its place.
func Load(ctx context.Context, opts Options) iface.Backend {
	opts = opts.WithDefaults()
	b, err := open(ctx, opts)
	if err != nil {
		logger.Log().Warn("detector unavailable, falling back to stub",
			zap.String("backend", opts.Backend), zap.Error(err))
		return StubDetector{}
	}
	logger.Log().Info("detector loaded", zap.String("backend", opts.Backend),
		zap.String("model", opts.ModelPath), zap.Bool("gpu", opts.UseGPU))
	return b
}

func open(ctx context.Context, opts Options) (iface.Backend, error) {
	switch opts.Backend {
	case BackendStub:
		return StubDetector{}, nil
	case BackendRemote:
		if opts.RemoteURL == "" {
			return nil, fmt.Errorf("%w: remote backend needs remoteURL", iface.ErrDetectorUnavailable)
		}
		r := NewRemoteDetector(opts)
		if err := r.Ping(ctx); err != nil {
			return nil, err
		}
		return r, nil
	case BackendOnnx:
		var names []string
		if opts.NamesFile != "" {
			var err error
			if names, err = ReadLinesReadFile(opts.NamesFile); err != nil {
				return nil, fmt.Errorf("%w: names file: %v", iface.ErrDetectorUnavailable, err)
			}
		}
		d := &Detector{}
		d.New()
		if err := d.LoadModel(opts.ModelPath, names, opts.Conf, opts.Iou, opts.InputSize, opts.UseGPU); err != nil {
			return nil, err
		}
		if opts.UseGPU {
			if err := warmUp(d, opts.Params()); err != nil {
				d.Destroy()
				return nil, err
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("%w: unknown backend %q", iface.ErrDetectorUnavailable, opts.Backend)
}

// warmUp pushes a few small black frames through a GPU backend so the first real
// frame does not pay for CUDA initialisation.
func warmUp(d iface.Backend, params iface.DetectParams) error {
	warmMat := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
	defer warmMat.Close()
	var errs []error
	for i := 0; i < 3; i++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					errs = append(errs, fmt.Errorf("%w: panic during warmup: %v", iface.ErrDetectorUnavailable, r))
				}
			}()
			if _, err := d.Detect(context.Background(), warmMat, params); err != nil {
				errs = append(errs, err)
			}
		}()
	}
	if len(errs) == 3 {
		return errors.Join(errs...)
	}
	return nil
}
