package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/aggregate"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/config"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/logger"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/monitor"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/region"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/timing"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default $TRAFFIC_CONFIG or ./config.yaml)")
	serve := flag.Bool("serve", false, "keep the monitor server running after the initial runs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Mode, cfg.Log.Level); err != nil {
		fmt.Println("Failed to init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	fmt.Println(strings.Repeat("#", 64))
	CPUNum := runtime.NumCPU()
	fmt.Printf("CPU Cores: %d\n", CPUNum)
	fmt.Println("Junction:", cfg.Junction)
	fmt.Println("Signals:", len(cfg.Signals))
	fmt.Println("Detector backend:", cfg.Detector.Backend)
	fmt.Println(strings.Repeat("#", 64))
	if cfg.Detector.UseGPU && len(cfg.Signals) > 1 {
		fmt.Println("Every signal loads its own model; make sure the GPU has memory for", len(cfg.Signals), "instances.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	regions := region.NewStore(cfg.RegionsFile)
	if err := regions.Load(); err != nil {
		logger.Log().Error("failed to load regions", zap.Error(err))
		os.Exit(1)
	}

	publisher := newPublisher(cfg.Kafka)
	defer publisher.Close()
	a := newAnalyzer(cfg, regions, newTimer(cfg.Timing), publisher, backendFactory(cfg.Detector))

	var wg sync.WaitGroup
	monCtx, cancelMon := context.WithCancel(ctx)
	defer cancelMon()
	go monitor.StartMon(monCtx, cfg.Monitor.SampleInterval)

	var server *monitor.Server
	if cfg.Monitor.Enabled {
		server = monitor.NewServer(cfg.Monitor.Port, a.board, regions, a.trigger(ctx))
		server.Start()
	}
	if cfg.Timing.Register {
		host := cfg.Timing.AdvertiseHost
		if host == "" {
			if host, err = GetOutboundIP(); err != nil {
				logger.Log().Warn("failed to get outbound IP", zap.Error(err))
			}
		}
		wg.Add(1)
		go timing.NewClient(cfg.Timing.URL, cfg.Timing.Timeout).SendAliveMessage(monCtx, &wg, timing.Announcement{
			Host:     host,
			Port:     cfg.Monitor.Port,
			Junction: cfg.Junction,
			Signals:  cfg.SignalIDs(),
		}, cfg.Timing.RegisterInterval)
	}

	results := a.runAll(ctx)
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	summary := aggregate.Summarize(a.board.Latest())
	out, _ := json.MarshalIndent(map[string]any{
		"signals": a.board.Latest(),
		"summary": summary,
	}, "", "  ")
	fmt.Println(string(out))

	if *serve && server != nil && ctx.Err() == nil {
		logger.Log().Info("serving until interrupted")
		<-ctx.Done()
	}
	a.wait()
	cancelMon()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log().Warn("monitor server shutdown", zap.Error(err))
		}
		cancel()
	}
	wg.Wait()
	if failed > 0 {
		logger.S().Warnf("%d of %d signals failed", failed, len(results))
	}
	fmt.Println("Done")
}
