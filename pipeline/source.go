package pipeline

import (
	"fmt"
	"io"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"gocv.io/x/gocv"
)

// FrameSource yields frames in order. Read fills dst and returns io.EOF at the end
// of the stream or an ErrFrameDecode-wrapped error for a single unreadable frame.
type FrameSource interface {
	Read(dst *gocv.Mat) error
	Size() (width, height int)
	FPS() float64
	Close() error
}

// FrameSink receives annotated frames at the source's size and rate.
type FrameSink interface {
	Write(frame gocv.Mat) error
	Close() error
}

const defaultFPS = 25

// maxDecodeFailures bounds consecutive failed reads before the stream is treated
// as ended. OpenCV reports both a corrupt frame and the end of a file as a failed
// read, so a file that only ever fails is exhausted rather than corrupt.
const maxDecodeFailures = 8

// VideoFileSource reads frames from a video file with OpenCV.
type VideoFileSource struct {
	path     string
	cap      *gocv.VideoCapture
	width    int
	height   int
	fps      float64
	total    int
	pos      int
	failures int
}

func OpenVideoFile(path string) (*VideoFileSource, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", iface.ErrSourceUnavailable, path, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("%w: %s: cannot open", iface.ErrSourceUnavailable, path)
	}
	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = defaultFPS
	}
	return &VideoFileSource{
		path:   path,
		cap:    vc,
		width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		fps:    fps,
		total:  int(vc.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

func (s *VideoFileSource) Read(dst *gocv.Mat) error {
	if s.total > 0 && s.pos >= s.total {
		return io.EOF
	}
	ok := s.cap.Read(dst)
	s.pos++
	if !ok || dst.Empty() {
		s.failures++
		// without a frame count a failed read is the end of the file
		if s.total <= 0 || s.failures >= maxDecodeFailures {
			return io.EOF
		}
		return fmt.Errorf("%w: %s frame %d", iface.ErrFrameDecode, s.path, s.pos-1)
	}
	s.failures = 0
	if dst.Channels() != 3 || dst.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("%w: %s frame %d has type %v", iface.ErrFrameDecode, s.path, s.pos-1, dst.Type())
	}
	return nil
}

func (s *VideoFileSource) Size() (int, int) {
	return s.width, s.height
}

func (s *VideoFileSource) FPS() float64 {
	return s.fps
}

func (s *VideoFileSource) Close() error {
	return s.cap.Close()
}

// VideoFileSink writes frames to an mp4v-encoded file.
type VideoFileSink struct {
	w *gocv.VideoWriter
}

func CreateVideoFile(path string, fps float64, width, height int) (*VideoFileSink, error) {
	w, err := gocv.VideoWriterFile(path, "mp4v", fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("create output %s: %w", path, err)
	}
	if !w.IsOpened() {
		_ = w.Close()
		return nil, fmt.Errorf("create output %s: writer not opened", path)
	}
	return &VideoFileSink{w: w}, nil
}

func (s *VideoFileSink) Write(frame gocv.Mat) error {
	return s.w.Write(frame)
}

func (s *VideoFileSink) Close() error {
	return s.w.Close()
}

// discardSink drops every frame. It is used when no output path is configured.
type discardSink struct{}

func (discardSink) Write(gocv.Mat) error { return nil }
func (discardSink) Close() error         { return nil }
