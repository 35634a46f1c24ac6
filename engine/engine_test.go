package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestDetector_All(t *testing.T) {
	d := &Detector{}

	t.Run("Test New", func(t *testing.T) {
		if !d.New() {
			t.Errorf("Detector.New() failed, expected true, got false")
		}
		assert.Equal(t, REGISTERED, d.State)
	})

	t.Run("Test LoadModel empty path", func(t *testing.T) {
		err := d.LoadModel("", nil, 0.25, 0.45, 640, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, iface.ErrDetectorUnavailable)
		assert.Equal(t, REGISTERED, d.State)
	})

	t.Run("Test LoadModel missing file", func(t *testing.T) {
		err := d.LoadModel(filepath.Join(t.TempDir(), "missing.onnx"), nil, 0.25, 0.45, 640, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, iface.ErrDetectorUnavailable)
	})

	t.Run("Test Detect before load", func(t *testing.T) {
		img := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
		defer img.Close()
		_, err := d.Detect(context.Background(), img, DefaultParams())
		assert.ErrorIs(t, err, iface.ErrDetectorUnavailable)
	})

	t.Run("Test Detect empty frame", func(t *testing.T) {
		img := gocv.NewMat()
		defer img.Close()
		_, err := d.Detect(context.Background(), img, DefaultParams())
		assert.ErrorIs(t, err, iface.ErrFrameDecode)
	})

	t.Run("Test Destroy", func(t *testing.T) {
		d.Destroy()
		assert.Equal(t, d.ModelPath, "")
		assert.Equal(t, d.Conf, float32(0))
		assert.Equal(t, d.Iou, float32(0))
		assert.Equal(t, d.UseGPU, false)
		assert.Equal(t, d.State, UNREGISTERED)
	})

	t.Run("Test LoadModel unregistered", func(t *testing.T) {
		assert.Error(t, d.LoadModel("model.onnx", nil, 0.25, 0.45, 640, false))
	})
}

func TestDetector_Cancelled(t *testing.T) {
	d := &Detector{}
	d.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	img := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	defer img.Close()
	_, err := d.Detect(ctx, img, DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}

// yoloTensor lays boxes out as the [4+classes][anchors] tensor a YOLOv8 export emits.
func yoloTensor(classes int, anchors [][]float32) []float32 {
	rows := 4 + classes
	n := len(anchors)
	data := make([]float32, rows*n)
	for i, a := range anchors {
		for r := 0; r < rows; r++ {
			data[r*n+i] = a[r]
		}
	}
	return data
}

func anchor(classes int, cx, cy, w, h float32, class int, score float32) []float32 {
	a := make([]float32, 4+classes)
	a[0], a[1], a[2], a[3] = cx, cy, w, h
	a[4+class] = score
	return a
}

func TestDecodeYolo(t *testing.T) {
	const classes = 8
	data := yoloTensor(classes, [][]float32{
		anchor(classes, 100, 100, 20, 20, cocoCar, 0.9),
		anchor(classes, 101, 101, 20, 20, cocoCar, 0.6),  // suppressed by the first
		anchor(classes, 100, 100, 20, 20, cocoTruck, 0.8), // same place, other class
		anchor(classes, 300, 300, 40, 40, 0, 0.95),        // person, not allow-listed
		anchor(classes, 400, 400, 10, 10, cocoBus, 0.1),   // below threshold
	})

	out := decodeYolo(data, 4+classes, 5, 2, 1, DefaultParams())
	require.Len(t, out, 2)

	assert.Equal(t, cocoCar, out[0].ClassID)
	assert.InDelta(t, 0.9, out[0].Confidence, 1e-6)
	assert.Equal(t, iface.NewBox(180, 90, 220, 110), out[0].Box)
	assert.Equal(t, cocoTruck, out[1].ClassID)
}

func TestDecodeYolo_MaxDet(t *testing.T) {
	const classes = 8
	var anchors [][]float32
	for i := 0; i < 10; i++ {
		anchors = append(anchors, anchor(classes, float32(50*i+20), 20, 10, 10, cocoCar, 0.5))
	}
	params := DefaultParams()
	params.MaxDet = 3
	out := decodeYolo(yoloTensor(classes, anchors), 4+classes, len(anchors), 1, 1, params)
	assert.Len(t, out, 3)
}

func TestDecodeYolo_Empty(t *testing.T) {
	assert.Nil(t, decodeYolo(yoloTensor(8, nil), 12, 0, 1, 1, DefaultParams()))
}

func TestClassFromCOCO(t *testing.T) {
	cases := map[int]iface.VehicleClass{
		1: iface.Bicycle,
		2: iface.Car,
		3: iface.Motorcycle,
		5: iface.Bus,
		7: iface.Truck,
	}
	for id, want := range cases {
		got, ok := ClassFromCOCO(id)
		assert.True(t, ok, "id %d", id)
		assert.Equal(t, want, got, "id %d", id)
	}
	for _, id := range []int{0, 4, 6, 8, 79, -1} {
		_, ok := ClassFromCOCO(id)
		assert.False(t, ok, "id %d", id)
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{}.WithDefaults()
	assert.Equal(t, BackendOnnx, o.Backend)
	assert.Equal(t, 640, o.InputSize)
	assert.Equal(t, 10*time.Second, o.Timeout)
	assert.Equal(t, float32(0.25), o.Conf)
	assert.Equal(t, float32(0.45), o.Iou)
	assert.Equal(t, 50, o.MaxDet)

	kept := Options{Backend: BackendRemote, Conf: 0.4, MaxDet: 10}.WithDefaults()
	assert.Equal(t, BackendRemote, kept.Backend)
	assert.Equal(t, float32(0.4), kept.Conf)
	assert.Equal(t, 10, kept.MaxDet)

	p := Options{}.Params()
	assert.Equal(t, VehicleClassIDs, p.Classes)
}

func TestReadLinesReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coco.names")
	require.NoError(t, os.WriteFile(path, []byte("person\r\nbicycle\r\n\r\ncar\n"), 0o644))
	lines, err := ReadLinesReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"person", "bicycle", "car"}, lines)

	_, err = ReadLinesReadFile(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoad_FallsBackToStub(t *testing.T) {
	b := Load(context.Background(), Options{Backend: BackendOnnx, ModelPath: filepath.Join(t.TempDir(), "none.onnx")})
	assert.IsType(t, StubDetector{}, b)

	b = Load(context.Background(), Options{Backend: "tensorrt"})
	assert.IsType(t, StubDetector{}, b)

	b = Load(context.Background(), Options{Backend: BackendRemote})
	assert.IsType(t, StubDetector{}, b)

	b = Load(context.Background(), Options{Backend: BackendStub})
	assert.Equal(t, BackendStub, b.CheckConfig().Backend)
}

func TestStubDetector(t *testing.T) {
	img := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	defer img.Close()
	dets, err := StubDetector{}.Detect(context.Background(), img, DefaultParams())
	assert.NoError(t, err)
	assert.Empty(t, dets)
}
