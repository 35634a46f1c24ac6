package iface

import "errors"

var (
	// ErrSourceUnavailable means the video for a signal could not be opened.
	ErrSourceUnavailable = errors.New("video source unavailable")
	// ErrFrameDecode means a single frame could not be read; the frame is skipped.
	ErrFrameDecode = errors.New("frame decode error")
	// ErrDetectorUnavailable means the detection backend is missing or failed.
	ErrDetectorUnavailable = errors.New("detector unavailable")
	// ErrInvalidRegion means a signal has no region or the region is not exactly 4 points.
	ErrInvalidRegion = errors.New("invalid region")
)
