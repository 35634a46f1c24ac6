package monitor

import (
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/region"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, trigger TriggerFunc) (*Server, *Board, *region.Store) {
	t.Helper()
	store := region.NewStore(filepath.Join(t.TempDir(), "areas.json"))
	require.NoError(t, store.Load())
	board := NewBoard()
	return NewServer(0, board, store, trigger), board, store
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Ping(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	w := do(t, s, http.MethodGet, "/api/ping", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	FramesTotal.WithLabelValues("A").Inc()
	w := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "traffic_frames_total")
	assert.Contains(t, w.Body.String(), "memory_usage_Megabytes")
}

func TestServer_Signals(t *testing.T) {
	s, board, _ := newTestServer(t, nil)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	board.Record(iface.SignalAggregate{SignalID: iface.SignalB, VehicleCount: 9, TrafficWeight: 12.5, EfficiencyScore: 7.2, FinalizedAt: at}, 0)
	board.Record(iface.SignalAggregate{SignalID: iface.SignalA, VehicleCount: 3, TrafficWeight: 2.5, EfficiencyScore: 12, FinalizedAt: at}, 15*time.Second)
	board.Fail(iface.SignalC, errors.New("video source unavailable"), at)

	w := do(t, s, http.MethodGet, "/api/signals", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Signals map[string]SignalStatus `json:"signals"`
			Summary struct {
				Signals       int     `json:"signals"`
				TotalVehicles int     `json:"total_vehicles"`
				AvgEfficiency float64 `json:"avg_efficiency"`
			} `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Signals, 3)
	assert.Equal(t, "video source unavailable", resp.Data.Signals["C"].Error)
	assert.Equal(t, 2, resp.Data.Summary.Signals)
	assert.Equal(t, 12, resp.Data.Summary.TotalVehicles)
	assert.Equal(t, 9.6, resp.Data.Summary.AvgEfficiency)

	w = do(t, s, http.MethodGet, "/api/signals/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"vehicle_count":3`)
	assert.Contains(t, w.Body.String(), `"green_time_seconds":15`)
	assert.NotContains(t, w.Body.String(), `"green_time":`)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/signals/D", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/signals/Z", "").Code)
}

func TestServer_Regions(t *testing.T) {
	s, _, store := newTestServer(t, nil)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/regions/A", "").Code)

	w := do(t, s, http.MethodPut, "/api/regions/a", `{"area":[[0,0],[100,0],[100,100],[0,100]]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	poly, err := store.Get(iface.SignalA)
	require.NoError(t, err)
	assert.Equal(t, iface.Polygon{image.Pt(0, 0), image.Pt(100, 0), image.Pt(100, 100), image.Pt(0, 100)}, poly)

	w = do(t, s, http.MethodGet, "/api/regions/A", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"signal_id":"A","area":[[0,0],[100,0],[100,100],[0,100]]}`, w.Body.String())

	w = do(t, s, http.MethodPut, "/api/regions/B", `{"area":[[0,0],[1,1],[2,2]]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodPut, "/api/regions/B", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_Run(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodPost, "/api/signals/A/run", "").Code)

	var got []iface.SignalID
	s, _, _ = newTestServer(t, func(id iface.SignalID) error {
		if id == iface.SignalD {
			return errors.New("signal D is already running")
		}
		got = append(got, id)
		return nil
	})
	assert.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/signals/2/run", "").Code)
	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodPost, "/api/signals/D/run", "").Code)
	assert.Equal(t, []iface.SignalID{iface.SignalB}, got)
}

func TestBoard_LatestOrdered(t *testing.T) {
	b := NewBoard()
	for _, id := range []iface.SignalID{iface.SignalD, iface.SignalA, iface.SignalC} {
		b.Record(iface.SignalAggregate{SignalID: id}, 0)
	}
	latest := b.Latest()
	require.Len(t, latest, 3)
	assert.Equal(t, iface.SignalA, latest[0].SignalID)
	assert.Equal(t, iface.SignalC, latest[1].SignalID)
	assert.Equal(t, iface.SignalD, latest[2].SignalID)

	b.Fail(iface.SignalA, errors.New("boom"), time.Now())
	st, ok := b.Get(iface.SignalA)
	require.True(t, ok)
	assert.NotNil(t, st.Aggregate)
	assert.Equal(t, "boom", st.Error)
}

func TestCheckProcessInfo(t *testing.T) {
	GotPID()
	assert.NotZero(t, PID.Pid)
	assert.NotPanics(t, CheckProcessInfo)
}
