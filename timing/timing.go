package timing

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"time"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/logger"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultGreenTime = 10 * time.Second
	DefaultTimeout   = 5 * time.Second
)

// GreenTimer turns a signal's latest load into a green phase duration.
type GreenTimer interface {
	ComputeGreenTime(ctx context.Context, signal iface.SignalID, vehicleCount int, trafficWeight float64, observedAt time.Time) (time.Duration, error)
}

// Fixed answers every request with the same duration. It is used when no timing
// service is configured.
type Fixed time.Duration

func (f Fixed) ComputeGreenTime(context.Context, iface.SignalID, int, float64, time.Time) (time.Duration, error) {
	return time.Duration(f), nil
}

type GreenTimeRequest struct {
	SignalID      int     `json:"signal_id"`
	Signal        string  `json:"signal"`
	VehicleCount  int     `json:"vehicle_count"`
	TrafficWeight float64 `json:"traffic_weight"`
	ObservedAt    string  `json:"observed_at"`
}

type GreenTimeResponse struct {
	SignalID            int     `json:"signal_id"`
	CalculatedGreenTime float64 `json:"calculated_green_time"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client asks an external timing controller for green times over HTTP.
type Client struct {
	baseURL string
	client  *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  resty.New().SetTimeout(timeout),
	}
}

// ComputeGreenTime posts the load to {base}/api/green-time. The controller answers
// in seconds.
func (c *Client) ComputeGreenTime(ctx context.Context, signal iface.SignalID, vehicleCount int, trafficWeight float64, observedAt time.Time) (time.Duration, error) {
	var respBody GreenTimeResponse
	var errBody errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(GreenTimeRequest{
			SignalID:      signal.Number(),
			Signal:        string(signal),
			VehicleCount:  vehicleCount,
			TrafficWeight: trafficWeight,
			ObservedAt:    observedAt.UTC().Format(time.RFC3339),
		}).
		SetResult(&respBody).
		SetError(&errBody).
		Post(c.baseURL + "/api/green-time")
	if err != nil {
		return 0, fmt.Errorf("green time request: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("green time: server returned %s: %s", resp.Status(), errBody.Error)
	}
	if respBody.CalculatedGreenTime < 0 || math.IsNaN(respBody.CalculatedGreenTime) {
		return 0, fmt.Errorf("green time: invalid value %v", respBody.CalculatedGreenTime)
	}
	return time.Duration(respBody.CalculatedGreenTime * float64(time.Second)), nil
}

type RegisterRequest struct {
	Id        string   `json:"id"`
	Host      string   `json:"host"`
	Port      int      `json:"port"`
	Junction  string   `json:"junction"`
	Signals   []string `json:"signals"`
	TimeStamp int64    `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

// Announcement is what the analyzer tells the controller about itself.
type Announcement struct {
	Host     string
	Port     int
	Junction string
	Signals  []iface.SignalID
}

// SendAliveMessage registers this analyzer with the controller every interval
// until ctx is done. Failures are logged and retried on the next tick.
func (c *Client) SendAliveMessage(ctx context.Context, wg *sync.WaitGroup, a Announcement, interval time.Duration) {
	defer wg.Done()
	if interval <= 0 {
		interval = DefaultTimeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	id := uuid.NewString()
	signals := make([]string, len(a.Signals))
	for i, s := range a.Signals {
		signals[i] = string(s)
	}
	safeDoRequest := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log().Error("SendAliveMessage panic recovered", zap.Any("panic", r))
			}
		}()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		var respBody RegisterResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(RegisterRequest{
				Id:        id,
				Host:      a.Host,
				Port:      a.Port,
				Junction:  a.Junction,
				Signals:   signals,
				TimeStamp: time.Now().Unix(),
			}).
			SetResult(&respBody).
			Post(c.baseURL + "/api/register")
		if err != nil {
			logger.Log().Error("register request error", zap.Error(err))
			return
		}
		if resp.IsError() {
			logger.Log().Error("register: server returned error", zap.String("status", resp.Status()), zap.String("body", resp.String()))
		}
	}
	safeDoRequest()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("SendAliveMessage context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			safeDoRequest()
		}
	}
}
