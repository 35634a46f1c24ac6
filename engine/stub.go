package engine

import (
	"context"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"gocv.io/x/gocv"
)

// StubDetector reports no vehicles for every frame. It stands in when no real
// backend can be loaded so that videos still produce an (empty) aggregate.
type StubDetector struct{}

func (StubDetector) Detect(ctx context.Context, img gocv.Mat, params iface.DetectParams) ([]iface.RawDetection, error) {
	return nil, ctx.Err()
}

func (StubDetector) Destroy() {}

func (StubDetector) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{Backend: BackendStub}
}
