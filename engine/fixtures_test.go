package engine

import (
	"context"
	"math/rand"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"gocv.io/x/gocv"
)

// MockBackend replays a fixed script of frame results.
type MockBackend struct {
	Frames [][]iface.RawDetection
	Err    error
	Panic  any
	Calls  int
	Params []iface.DetectParams
}

func (m *MockBackend) Detect(ctx context.Context, img gocv.Mat, params iface.DetectParams) ([]iface.RawDetection, error) {
	m.Calls++
	m.Params = append(m.Params, params)
	if m.Panic != nil {
		panic(m.Panic)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Frames) == 0 {
		return nil, nil
	}
	f := m.Frames[(m.Calls-1)%len(m.Frames)]
	return f, nil
}

func (m *MockBackend) Destroy() {}

func (m *MockBackend) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{Backend: "mock"}
}

// RandomBackend emits between 0 and max vehicle boxes per frame from a seeded
// source, so runs are reproducible.
type RandomBackend struct {
	rng *rand.Rand
	max int
}

func NewRandomBackend(seed int64, max int) *RandomBackend {
	return &RandomBackend{rng: rand.New(rand.NewSource(seed)), max: max}
}

func (r *RandomBackend) Detect(ctx context.Context, img gocv.Mat, params iface.DetectParams) ([]iface.RawDetection, error) {
	w, h := img.Cols(), img.Rows()
	if w < 60 || h < 60 {
		return nil, nil
	}
	n := r.rng.Intn(r.max + 1)
	out := make([]iface.RawDetection, 0, n)
	for i := 0; i < n; i++ {
		x := float32(r.rng.Intn(w - 50))
		y := float32(r.rng.Intn(h - 50))
		out = append(out, iface.RawDetection{
			Box:        iface.NewBox(x, y, x+50, y+50),
			ClassID:    VehicleClassIDs[r.rng.Intn(len(VehicleClassIDs))],
			Confidence: 0.3 + 0.7*r.rng.Float32(),
		})
	}
	return out, nil
}

func (r *RandomBackend) Destroy() {}

func (r *RandomBackend) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{Backend: "random"}
}
