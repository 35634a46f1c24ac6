package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/go-resty/resty/v2"
	"gocv.io/x/gocv"
)

type remoteResult struct {
	Box        [4]float32 `json:"box"`
	ClassID    int        `json:"class_id"`
	Confidence float32    `json:"confidence"`
}

type remoteResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Results []remoteResult `json:"results"`
}

// RemoteDetector sends JPEG-encoded frames to an HTTP detection service:
//
//	GET  {base}/api/ping
//	POST {base}/api/detect?conf=&iou=&max_det=&classes=  (body: image/jpeg)
//
// and expects {"success":true,"results":[{"box":[x1,y1,x2,y2],"class_id":2,"confidence":0.9}]}.
type RemoteDetector struct {
	baseURL string
	client  *resty.Client
}

func NewRemoteDetector(opts Options) *RemoteDetector {
	opts = opts.WithDefaults()
	return &RemoteDetector{
		baseURL: strings.TrimRight(opts.RemoteURL, "/"),
		client:  resty.New().SetTimeout(opts.Timeout),
	}
}

// Ping checks that the service answers.
func (r *RemoteDetector) Ping(ctx context.Context) error {
	resp, err := r.client.R().SetContext(ctx).Get(r.baseURL + "/api/ping")
	if err != nil {
		return fmt.Errorf("%w: %v", iface.ErrDetectorUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: ping returned %s", iface.ErrDetectorUnavailable, resp.Status())
	}
	return nil
}

func (r *RemoteDetector) Detect(ctx context.Context, img gocv.Mat, params iface.DetectParams) ([]iface.RawDetection, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", iface.ErrFrameDecode)
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	var body remoteResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "image/jpeg").
		SetQueryParams(queryParams(params)).
		SetBody(buf.GetBytes()).
		SetResult(&body).
		Post(r.baseURL + "/api/detect")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", iface.ErrDetectorUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: server returned %s: %s", iface.ErrDetectorUnavailable, resp.Status(), resp.String())
	}
	if !body.Success {
		return nil, fmt.Errorf("%w: inference error: %s", iface.ErrDetectorUnavailable, body.Message)
	}
	out := make([]iface.RawDetection, 0, len(body.Results))
	for _, res := range body.Results {
		out = append(out, iface.RawDetection{
			Box:        iface.NewBox(res.Box[0], res.Box[1], res.Box[2], res.Box[3]),
			ClassID:    res.ClassID,
			Confidence: res.Confidence,
		})
	}
	return out, nil
}

func (r *RemoteDetector) Destroy() {}

func (r *RemoteDetector) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{Backend: BackendRemote, ModelPath: r.baseURL}
}

func queryParams(p iface.DetectParams) map[string]string {
	q := map[string]string{
		"conf":    strconv.FormatFloat(float64(p.Conf), 'f', -1, 32),
		"iou":     strconv.FormatFloat(float64(p.Iou), 'f', -1, 32),
		"max_det": strconv.Itoa(p.MaxDet),
	}
	if len(p.Classes) > 0 {
		ids := make([]string, len(p.Classes))
		for i, c := range p.Classes {
			ids[i] = strconv.Itoa(c)
		}
		q["classes"] = strings.Join(ids, ",")
	}
	return q
}
