package engine

import (
	"os"
	"strings"
	"time"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
)

// Detector lifecycle states.
const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

// Backend names accepted by Load.
const (
	BackendOnnx   = "onnx"
	BackendRemote = "remote"
	BackendStub   = "stub"
)

const (
	DefaultConf      = 0.25
	DefaultIou       = 0.45
	DefaultMaxDet    = 50
	DefaultInputSize = 640
	DefaultTimeout   = 10 * time.Second
)

// COCO class ids of the vehicles we count.
const (
	cocoBicycle    = 1
	cocoCar        = 2
	cocoMotorcycle = 3
	cocoBus        = 5
	cocoTruck      = 7
)

// VehicleClassIDs is the raw class allow-list handed to backends.
var VehicleClassIDs = []int{cocoBicycle, cocoCar, cocoMotorcycle, cocoBus, cocoTruck}

// ClassFromCOCO maps a raw COCO class id to a VehicleClass.
func ClassFromCOCO(id int) (iface.VehicleClass, bool) {
	switch id {
	case cocoBicycle:
		return iface.Bicycle, true
	case cocoCar:
		return iface.Car, true
	case cocoMotorcycle:
		return iface.Motorcycle, true
	case cocoBus:
		return iface.Bus, true
	case cocoTruck:
		return iface.Truck, true
	}
	return 0, false
}

// Options selects and configures the detection backend.
type Options struct {
	Backend   string        `yaml:"backend"`
	ModelPath string        `yaml:"modelPath"`
	NamesFile string        `yaml:"namesFile"`
	InputSize int           `yaml:"inputSize"`
	UseGPU    bool          `yaml:"useGPU"`
	RemoteURL string        `yaml:"remoteURL"`
	Timeout   time.Duration `yaml:"timeout"`
	Conf      float32       `yaml:"conf"`
	Iou       float32       `yaml:"iou"`
	MaxDet    int           `yaml:"maxDet"`
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	if o.Backend == "" {
		o.Backend = BackendOnnx
	}
	if o.InputSize <= 0 {
		o.InputSize = DefaultInputSize
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Conf <= 0 {
		o.Conf = DefaultConf
	}
	if o.Iou <= 0 {
		o.Iou = DefaultIou
	}
	if o.MaxDet <= 0 {
		o.MaxDet = DefaultMaxDet
	}
	return o
}

// Params returns the per-frame detection parameters for these options.
func (o Options) Params() iface.DetectParams {
	o = o.WithDefaults()
	return iface.DetectParams{
		Conf:    o.Conf,
		Iou:     o.Iou,
		MaxDet:  o.MaxDet,
		Classes: VehicleClassIDs,
	}
}

// DefaultParams are the vehicle detection parameters used when nothing is configured.
func DefaultParams() iface.DetectParams {
	return Options{}.Params()
}

// ReadLinesReadFile reads a class-names file, one name per line, CRLF tolerant.
// Blank lines are dropped.
func ReadLinesReadFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := strings.Split(string(b), "\n")
	var lines []string
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}
