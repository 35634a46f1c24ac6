package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/aggregate"
	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/logger"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/region"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TriggerFunc starts a new run for one signal in the background.
type TriggerFunc func(id iface.SignalID) error

// Server is the admin HTTP surface: health, metrics, latest aggregates and
// region editing.
type Server struct {
	board   *Board
	regions *region.Store
	trigger TriggerFunc
	router  *gin.Engine
	srv     *http.Server
}

type areaRequest struct {
	Area [][2]int `json:"area" binding:"required"`
}

func NewServer(port int, board *Board, regions *region.Store, trigger TriggerFunc) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{board: board, regions: regions, trigger: trigger}
	r := gin.New()
	r.Use(gin.Recovery(), accessLog())
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{Registry: Registry()})))
	r.GET("/api/signals", s.listSignals)
	r.GET("/api/signals/:id", s.getSignal)
	r.POST("/api/signals/:id/run", s.runSignal)
	r.GET("/api/regions/:id", s.getRegion)
	r.PUT("/api/regions/:id", s.putRegion)
	s.router = r
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		logger.Log().Info("monitor server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("monitor server ListenAndServe error", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) listSignals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"signals": s.board.Snapshot(),
		"summary": aggregate.Summarize(s.board.Latest()),
	}})
}

func (s *Server) getSignal(c *gin.Context) {
	id, ok := signalParam(c)
	if !ok {
		return
	}
	st, found := s.board.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no results for signal %s yet", id)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": st})
}

func (s *Server) runSignal(c *gin.Context) {
	id, ok := signalParam(c)
	if !ok {
		return
	}
	if s.trigger == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "runs cannot be triggered on this instance"})
		return
	}
	if err := s.trigger(id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"signal_id": id, "status": "started"}})
}

func (s *Server) getRegion(c *gin.Context) {
	id, ok := signalParam(c)
	if !ok {
		return
	}
	poly, err := s.regions.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signal_id": id, "area": region.ToPairs(poly)})
}

func (s *Server) putRegion(c *gin.Context) {
	id, ok := signalParam(c)
	if !ok {
		return
	}
	var req areaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.regions.Upsert(id, region.FromPairs(req.Area)); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, iface.ErrInvalidRegion) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	logger.Log().Info("region updated", zap.String("signal", string(id)))
	c.JSON(http.StatusOK, gin.H{"signal_id": id, "area": req.Area})
}

func signalParam(c *gin.Context) (iface.SignalID, bool) {
	id, err := iface.ParseSignalID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return id, true
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log().Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
