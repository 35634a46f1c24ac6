package iface

import (
	"context"

	"gocv.io/x/gocv"
)

// DetectParams are handed to a backend with every frame.
type DetectParams struct {
	Conf    float32 // minimum confidence, 0-1
	Iou     float32 // NMS IoU threshold, 0-1
	MaxDet  int     // maximum boxes per frame after NMS
	Classes []int   // raw class ids the backend may keep; empty keeps all
}

// EngineConfig describes a loaded backend.
type EngineConfig struct {
	Backend   string
	UseGPU    bool
	ModelPath string
	Names     []string
	InputSize int
	Conf      float32
	Iou       float32
}

// Backend is a black-box object detector. Implementations are not required to be
// safe for concurrent use; every pipeline owns its own Backend.
type Backend interface {
	// Detect runs inference on one BGR, 8-bit, 3-channel frame.
	Detect(ctx context.Context, image gocv.Mat, params DetectParams) ([]RawDetection, error)
	Destroy()
	CheckConfig() EngineConfig
}
