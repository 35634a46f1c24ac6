package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func newDetectServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"pong"}`))
	})
	mux.HandleFunc("/api/detect", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteDetector_Detect(t *testing.T) {
	var gotQuery map[string]string
	var gotType string
	var gotBody int
	srv := newDetectServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"conf":    r.URL.Query().Get("conf"),
			"iou":     r.URL.Query().Get("iou"),
			"max_det": r.URL.Query().Get("max_det"),
			"classes": r.URL.Query().Get("classes"),
		}
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = len(b)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"results": []map[string]any{
				{"box": []float32{10, 20, 30, 40}, "class_id": 2, "confidence": 0.8},
			},
		})
	})

	r := NewRemoteDetector(Options{RemoteURL: srv.URL + "/"})
	require.NoError(t, r.Ping(context.Background()))

	img := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	defer img.Close()
	dets, err := r.Detect(context.Background(), img, DefaultParams())
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, iface.NewBox(10, 20, 30, 40), dets[0].Box)
	assert.Equal(t, 2, dets[0].ClassID)

	assert.Equal(t, "image/jpeg", gotType)
	assert.Greater(t, gotBody, 0)
	assert.Equal(t, map[string]string{
		"conf": "0.25", "iou": "0.45", "max_det": "50", "classes": "1,2,3,5,7",
	}, gotQuery)
	assert.Equal(t, BackendRemote, r.CheckConfig().Backend)
}

func TestRemoteDetector_Failures(t *testing.T) {
	img := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	defer img.Close()

	t.Run("server error", func(t *testing.T) {
		srv := newDetectServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		_, err := NewRemoteDetector(Options{RemoteURL: srv.URL}).Detect(context.Background(), img, DefaultParams())
		assert.ErrorIs(t, err, iface.ErrDetectorUnavailable)
	})

	t.Run("inference error", func(t *testing.T) {
		srv := newDetectServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":false,"message":"model not loaded"}`))
		})
		_, err := NewRemoteDetector(Options{RemoteURL: srv.URL}).Detect(context.Background(), img, DefaultParams())
		assert.ErrorIs(t, err, iface.ErrDetectorUnavailable)
		assert.Contains(t, err.Error(), "model not loaded")
	})

	t.Run("empty frame", func(t *testing.T) {
		empty := gocv.NewMat()
		defer empty.Close()
		_, err := NewRemoteDetector(Options{RemoteURL: "http://127.0.0.1:1"}).Detect(context.Background(), empty, DefaultParams())
		assert.ErrorIs(t, err, iface.ErrFrameDecode)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		r := NewRemoteDetector(Options{RemoteURL: url})
		assert.ErrorIs(t, r.Ping(context.Background()), iface.ErrDetectorUnavailable)
		assert.IsType(t, StubDetector{}, Load(context.Background(), Options{Backend: BackendRemote, RemoteURL: url}))
	})
}

func TestLoad_Remote(t *testing.T) {
	srv := newDetectServer(t, func(w http.ResponseWriter, r *http.Request) {})
	b := Load(context.Background(), Options{Backend: BackendRemote, RemoteURL: srv.URL})
	assert.IsType(t, &RemoteDetector{}, b)
}
