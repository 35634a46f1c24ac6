package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"gocv.io/x/gocv"
)

// fakeSource yields n black frames; indices in bad fail to decode.
type fakeSource struct {
	n, w, h int
	bad     map[int]bool
	pos     int
	onRead  func(pos int)
	closed  bool
}

func newFakeSource(n int, bad ...int) *fakeSource {
	s := &fakeSource{n: n, w: 200, h: 200, bad: map[int]bool{}}
	for _, b := range bad {
		s.bad[b] = true
	}
	return s
}

func (s *fakeSource) Read(dst *gocv.Mat) error {
	if s.onRead != nil {
		s.onRead(s.pos)
	}
	if s.pos >= s.n {
		return io.EOF
	}
	pos := s.pos
	s.pos++
	if s.bad[pos] {
		blank := gocv.NewMat()
		blank.CopyTo(dst)
		blank.Close()
		return fmt.Errorf("%w: frame %d", iface.ErrFrameDecode, pos)
	}
	m := gocv.NewMatWithSize(s.h, s.w, gocv.MatTypeCV8UC3)
	defer m.Close()
	m.CopyTo(dst)
	return nil
}

func (s *fakeSource) Size() (int, int) { return s.w, s.h }
func (s *fakeSource) FPS() float64     { return 25 }
func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeSink struct {
	frames int
	sizes  [][2]int
	err    error
}

func (s *fakeSink) Write(frame gocv.Mat) error {
	if s.err != nil {
		return s.err
	}
	s.frames++
	s.sizes = append(s.sizes, [2]int{frame.Cols(), frame.Rows()})
	return nil
}

func (s *fakeSink) Close() error { return nil }

// scriptedBackend returns the same detections for every frame, failing or
// panicking on the listed call numbers (0-based).
type scriptedBackend struct {
	dets      []iface.RawDetection
	failOn    map[int]bool
	panicOn   map[int]bool
	calls     int
	destroyed atomic.Bool
}

func (b *scriptedBackend) Detect(ctx context.Context, img gocv.Mat, params iface.DetectParams) ([]iface.RawDetection, error) {
	call := b.calls
	b.calls++
	if b.panicOn[call] {
		panic("inference crashed")
	}
	if b.failOn[call] {
		return nil, errors.New("inference failed")
	}
	return b.dets, nil
}

func (b *scriptedBackend) Destroy() { b.destroyed.Store(true) }

func (b *scriptedBackend) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{Backend: "scripted"}
}

func box(cx, cy float32) iface.Box {
	return iface.NewBox(cx-10, cy-10, cx+10, cy+10)
}

// junctionFrame is one frame's detector output against squareRegion: a car and a
// near-duplicate truck inside, a bus outside, a person inside.
func junctionFrame() []iface.RawDetection {
	return []iface.RawDetection{
		{Box: box(50, 50), ClassID: 2, Confidence: 0.9},
		{Box: box(60, 55), ClassID: 7, Confidence: 0.8},
		{Box: box(150, 150), ClassID: 5, Confidence: 0.9},
		{Box: box(20, 80), ClassID: 0, Confidence: 0.9},
		{Box: box(80, 20), ClassID: 7, Confidence: 0.7},
	}
}
