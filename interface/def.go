package iface

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

// VehicleClass is the closed set of vehicle kinds the analyzer counts.
type VehicleClass int

const (
	Car VehicleClass = iota
	Truck
	Bus
	Motorcycle
	Bicycle
	NumVehicleClasses
)

var classNames = [NumVehicleClasses]string{"car", "truck", "bus", "motorcycle", "bicycle"}

// classWeights is the congestion contribution of one vehicle of each class.
var classWeights = [NumVehicleClasses]float64{
	Car:        1.0,
	Truck:      2.5,
	Bus:        2.0,
	Motorcycle: 0.5,
	Bicycle:    0.3,
}

// ClassStyle is how a class is drawn on the annotated stream.
type ClassStyle struct {
	Label string
	Color color.RGBA
}

var classStyles = [NumVehicleClasses]ClassStyle{
	Car:        {Label: "car", Color: color.RGBA{R: 0, G: 255, B: 0, A: 0}},
	Truck:      {Label: "truck", Color: color.RGBA{R: 0, G: 0, B: 255, A: 0}},
	Bus:        {Label: "bus", Color: color.RGBA{R: 0, G: 165, B: 255, A: 0}},
	Motorcycle: {Label: "motorcycle", Color: color.RGBA{R: 255, G: 255, B: 0, A: 0}},
	Bicycle:    {Label: "bicycle", Color: color.RGBA{R: 255, G: 0, B: 255, A: 0}},
}

// AllClasses lists every VehicleClass in declaration order.
func AllClasses() []VehicleClass {
	return []VehicleClass{Car, Truck, Bus, Motorcycle, Bicycle}
}

func (c VehicleClass) Valid() bool {
	return c >= 0 && c < NumVehicleClasses
}

func (c VehicleClass) String() string {
	if !c.Valid() {
		return fmt.Sprintf("VehicleClass(%d)", int(c))
	}
	return classNames[c]
}

// Weight returns the fixed class weight. Invalid classes weigh nothing.
func (c VehicleClass) Weight() float64 {
	if !c.Valid() {
		return 0
	}
	return classWeights[c]
}

func (c VehicleClass) Style() ClassStyle {
	if !c.Valid() {
		return ClassStyle{Label: "unknown", Color: color.RGBA{R: 255, G: 255, B: 255, A: 0}}
	}
	return classStyles[c]
}

// Position is a sub-pixel frame coordinate as reported by a detector.
type Position struct {
	X, Y float32
}

// Box is an axis-aligned bounding box given by its left-top and right-bottom corners.
type Box struct {
	LT Position
	RB Position
}

func NewBox(x1, y1, x2, y2 float32) Box {
	return Box{LT: Position{X: x1, Y: y1}, RB: Position{X: x2, Y: y2}}
}

// Center is the integer midpoint of the box, truncated toward zero.
func (b Box) Center() image.Point {
	return image.Pt(int((b.LT.X+b.RB.X)/2), int((b.LT.Y+b.RB.Y)/2))
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.LT.X), int(b.LT.Y), int(b.RB.X), int(b.RB.Y))
}

// Polygon is a closed region of interest in frame pixel coordinates.
type Polygon []image.Point

// RawDetection is one box as emitted by a detector backend, before class mapping.
type RawDetection struct {
	Box        Box
	ClassID    int
	Confidence float32
}

// Detection is a vehicle detection with its center computed once.
type Detection struct {
	Class      VehicleClass
	Confidence float32
	Box        Box
	Center     image.Point
}

func NewDetection(class VehicleClass, conf float32, box Box) Detection {
	return Detection{
		Class:      class,
		Confidence: conf,
		Box:        box,
		Center:     box.Center(),
	}
}

// ClassCounts tallies detections per VehicleClass.
type ClassCounts [NumVehicleClasses]int

func (c ClassCounts) Add(o ClassCounts) ClassCounts {
	for i := range c {
		c[i] += o[i]
	}
	return c
}

func (c ClassCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

func (c ClassCounts) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, NumVehicleClasses)
	for i, v := range c {
		m[classNames[i]] = v
	}
	return json.Marshal(m)
}

func (c *ClassCounts) UnmarshalJSON(b []byte) error {
	m := map[string]int{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*c = ClassCounts{}
	for i, name := range classNames {
		c[i] = m[name]
	}
	return nil
}

// FrameResult is the outcome of one processed frame. Annotated is owned by the
// pipeline and is only valid until the frame has been written to the sink.
type FrameResult struct {
	VehicleCount int
	Weight       float64
	PerClass     ClassCounts
	Detections   []Detection
	Annotated    gocv.Mat
}

// SignalAggregate is the finalized per-video summary for one signal.
type SignalAggregate struct {
	SignalID        SignalID    `json:"signal_id"`
	VehicleCount    int         `json:"vehicle_count"`
	TrafficWeight   float64     `json:"traffic_weight"`
	PerClass        ClassCounts `json:"per_class_counts"`
	EfficiencyScore float64     `json:"efficiency_score"`
	Frames          int         `json:"frames"`
	SkippedFrames   int         `json:"skipped_frames"`
	FinalizedAt     time.Time   `json:"finalized_at"`
}
