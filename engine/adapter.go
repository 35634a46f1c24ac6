package engine

import (
	"context"
	"errors"
	"fmt"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"gocv.io/x/gocv"
)

// Adapter turns raw backend output into vehicle detections: allow-listed classes
// only, at or above the confidence threshold, at most MaxDet per frame in the
// order the backend emitted them.
type Adapter struct {
	backend iface.Backend
	params  iface.DetectParams
}

func NewAdapter(backend iface.Backend, params iface.DetectParams) *Adapter {
	if params.Conf <= 0 {
		params.Conf = DefaultConf
	}
	if params.Iou <= 0 {
		params.Iou = DefaultIou
	}
	if params.MaxDet <= 0 {
		params.MaxDet = DefaultMaxDet
	}
	if params.Classes == nil {
		params.Classes = VehicleClassIDs
	}
	return &Adapter{backend: backend, params: params}
}

func (a *Adapter) Backend() iface.Backend {
	return a.backend
}

func (a *Adapter) Params() iface.DetectParams {
	return a.params
}

// Detect runs the backend on one frame. Backend errors and panics come back as
// errors wrapping ErrDetectorUnavailable (or ErrFrameDecode for unusable frames).
func (a *Adapter) Detect(ctx context.Context, frame gocv.Mat) (dets []iface.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			dets = nil
			err = fmt.Errorf("%w: backend panic: %v", iface.ErrDetectorUnavailable, r)
		}
	}()
	raws, err := a.backend.Detect(ctx, frame, a.params)
	if err != nil {
		if errors.Is(err, iface.ErrDetectorUnavailable) || errors.Is(err, iface.ErrFrameDecode) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", iface.ErrDetectorUnavailable, err)
	}
	return a.Convert(raws), nil
}

// Convert applies the class mapping, confidence threshold and per-frame cap.
func (a *Adapter) Convert(raws []iface.RawDetection) []iface.Detection {
	dets := make([]iface.Detection, 0, min(len(raws), a.params.MaxDet))
	for _, r := range raws {
		if len(dets) >= a.params.MaxDet {
			break
		}
		class, ok := ClassFromCOCO(r.ClassID)
		if !ok || r.Confidence < a.params.Conf {
			continue
		}
		dets = append(dets, iface.NewDetection(class, r.Confidence, r.Box))
	}
	return dets
}
