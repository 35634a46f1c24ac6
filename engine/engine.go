package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"slices"
	"sync"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"gocv.io/x/gocv"
)

// nmsClassOffset separates boxes of different classes so NMS never merges a car
// into an overlapping truck.
const nmsClassOffset = 8192

// Detector runs a YOLOv8 ONNX export through OpenCV's DNN module.
// It is not safe for concurrent use: Detect on a BUSY detector fails.
type Detector struct {
	ModelPath string
	Names     []string
	Conf      float32
	Iou       float32
	InputSize int
	UseGPU    bool

	mu    sync.Mutex
	net   gocv.Net
	State int
}

func (d *Detector) New() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.State = REGISTERED
	return true
}

func (d *Detector) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{
		Backend:   BackendOnnx,
		UseGPU:    d.UseGPU,
		ModelPath: d.ModelPath,
		Names:     d.Names,
		InputSize: d.InputSize,
		Conf:      d.Conf,
		Iou:       d.Iou,
	}
}

// LoadModel reads an ONNX model. names may be empty; the class count is taken from
// the model output.
func (d *Detector) LoadModel(modelPath string, names []string, conf, iou float32, inputSize int, useGPU bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State != REGISTERED {
		return fmt.Errorf("detector not registered")
	}
	if modelPath == "" {
		return fmt.Errorf("%w: model path cannot be empty", iface.ErrDetectorUnavailable)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("%w: %v", iface.ErrDetectorUnavailable, err)
	}
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		_ = net.Close()
		return fmt.Errorf("%w: cannot load model %s", iface.ErrDetectorUnavailable, modelPath)
	}
	if useGPU {
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}
	d.net = net
	d.ModelPath = modelPath
	d.Names = names
	d.Conf = conf
	d.Iou = iou
	d.InputSize = inputSize
	d.UseGPU = useGPU
	d.State = IDLE
	return nil
}

func (d *Detector) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State == IDLE || d.State == BUSY {
		_ = d.net.Close()
	}
	d.ModelPath = ""
	d.Conf = 0
	d.Iou = 0
	d.UseGPU = false
	d.State = UNREGISTERED
}

func (d *Detector) acquire() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.State {
	case UNREGISTERED:
		return fmt.Errorf("%w: detector not registered", iface.ErrDetectorUnavailable)
	case REGISTERED:
		return fmt.Errorf("%w: model not loaded", iface.ErrDetectorUnavailable)
	case BUSY:
		return errors.New("detector is busy")
	}
	d.State = BUSY
	return nil
}

func (d *Detector) release() {
	d.mu.Lock()
	if d.State == BUSY {
		d.State = IDLE
	}
	d.mu.Unlock()
}

func (d *Detector) Detect(ctx context.Context, img gocv.Mat, params iface.DetectParams) ([]iface.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", iface.ErrFrameDecode)
	}
	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.release()

	size := d.InputSize
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("unexpected model output shape %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read model output: %w", err)
	}
	xf := float32(img.Cols()) / float32(size)
	yf := float32(img.Rows()) / float32(size)
	return decodeYolo(data, dims[1], dims[2], xf, yf, params), nil
}

// decodeYolo turns a YOLOv8 output tensor laid out as [4+classes][anchors] into
// boxes in frame coordinates, filtered by confidence and class list, then NMS'd.
// The result is ordered by descending confidence.
func decodeYolo(data []float32, rows, anchors int, xf, yf float32, params iface.DetectParams) []iface.RawDetection {
	var (
		cands  []iface.RawDetection
		rects  []image.Rectangle
		scores []float32
	)
	for i := 0; i < anchors; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < rows-4; c++ {
			if s := data[(4+c)*anchors+i]; s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || bestScore < params.Conf {
			continue
		}
		if len(params.Classes) > 0 && !slices.Contains(params.Classes, best) {
			continue
		}
		cx, cy := data[i], data[anchors+i]
		w, h := data[2*anchors+i], data[3*anchors+i]
		box := iface.NewBox((cx-w/2)*xf, (cy-h/2)*yf, (cx+w/2)*xf, (cy+h/2)*yf)
		cands = append(cands, iface.RawDetection{Box: box, ClassID: best, Confidence: bestScore})
		off := best * nmsClassOffset
		rects = append(rects, box.Rect().Add(image.Pt(off, off)))
		scores = append(scores, bestScore)
	}
	if len(cands) == 0 {
		return nil
	}
	keep := gocv.NMSBoxes(rects, scores, params.Conf, params.Iou)
	out := make([]iface.RawDetection, 0, len(keep))
	for _, k := range keep {
		if params.MaxDet > 0 && len(out) >= params.MaxDet {
			break
		}
		out = append(out, cands[k])
	}
	return out
}
