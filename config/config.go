package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/engine"
	iface "github.com/animeshchandra-121/Smart-Traffic-Analyzer/interface"
	"github.com/animeshchandra-121/Smart-Traffic-Analyzer/publish"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath        = "config.yaml"
	DefaultRegionsFile = "areas.json"
	DefaultMonitorPort = 8090
)

// Environment overrides, applied after the file is read.
const (
	EnvConfig          = "TRAFFIC_CONFIG"
	EnvMonitorPort     = "TRAFFIC_MONITOR_PORT"
	EnvDetectorBackend = "TRAFFIC_DETECTOR_BACKEND"
	EnvDetectorURL     = "TRAFFIC_DETECTOR_URL"
	EnvKafkaBrokers    = "TRAFFIC_KAFKA_BROKERS"
	EnvTimingURL       = "TRAFFIC_TIMING_URL"
	EnvLogLevel        = "TRAFFIC_LOG_LEVEL"
)

type SignalConfig struct {
	ID     string `yaml:"id"`
	Video  string `yaml:"video"`
	Output string `yaml:"output"`
}

type MonitorConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Port           int           `yaml:"port"`
	SampleInterval time.Duration `yaml:"sampleInterval"`
}

type TimingConfig struct {
	URL              string        `yaml:"url"`
	Timeout          time.Duration `yaml:"timeout"`
	DefaultGreenTime time.Duration `yaml:"defaultGreenTime"`
	Register         bool          `yaml:"register"`
	RegisterInterval time.Duration `yaml:"registerInterval"`
	AdvertiseHost    string        `yaml:"advertiseHost"`
}

type LogConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

// Config is the whole analyzer configuration as read from config.yaml.
type Config struct {
	Junction    string         `yaml:"junction"`
	RegionsFile string         `yaml:"regionsFile"`
	Signals     []SignalConfig `yaml:"signals"`
	Detector    engine.Options `yaml:"detector"`
	Monitor     MonitorConfig  `yaml:"monitor"`
	Timing      TimingConfig   `yaml:"timing"`
	Kafka       publish.Config `yaml:"kafka"`
	Log         LogConfig      `yaml:"log"`
}

// Load reads .env (if present), then the YAML file at path (or $TRAFFIC_CONFIG
// when path is empty), applies environment overrides and defaults, and validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document and finishes it like Load does.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvMonitorPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMonitorPort, err)
		}
		c.Monitor.Port = port
		c.Monitor.Enabled = true
	}
	if v := os.Getenv(EnvDetectorBackend); v != "" {
		c.Detector.Backend = v
	}
	if v := os.Getenv(EnvDetectorURL); v != "" {
		c.Detector.RemoteURL = v
	}
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv(EnvTimingURL); v != "" {
		c.Timing.URL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.RegionsFile == "" {
		c.RegionsFile = DefaultRegionsFile
	}
	if c.Monitor.Port == 0 {
		c.Monitor.Port = DefaultMonitorPort
	}
	if c.Monitor.SampleInterval <= 0 {
		c.Monitor.SampleInterval = 500 * time.Millisecond
	}
	if c.Timing.DefaultGreenTime <= 0 {
		c.Timing.DefaultGreenTime = 10 * time.Second
	}
	if c.Timing.Timeout <= 0 {
		c.Timing.Timeout = 5 * time.Second
	}
	if c.Timing.RegisterInterval <= 0 {
		c.Timing.RegisterInterval = 5 * time.Second
	}
	c.Detector = c.Detector.WithDefaults()
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	seen := map[iface.SignalID]bool{}
	for i, s := range c.Signals {
		id, err := iface.ParseSignalID(s.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("signals[%d]: %w", i, err))
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("signals[%d]: signal %s listed twice", i, id))
		}
		seen[id] = true
		if s.Video == "" {
			errs = append(errs, fmt.Errorf("signals[%d]: video is required", i))
		}
	}
	switch c.Detector.Backend {
	case engine.BackendOnnx, engine.BackendRemote, engine.BackendStub:
	default:
		errs = append(errs, fmt.Errorf("detector.backend %q must be one of onnx, remote, stub", c.Detector.Backend))
	}
	if c.Detector.Conf < 0 || c.Detector.Conf > 1 {
		errs = append(errs, fmt.Errorf("detector.conf must be between 0.0 and 1.0, got %f", c.Detector.Conf))
	}
	if c.Detector.Iou < 0 || c.Detector.Iou > 1 {
		errs = append(errs, fmt.Errorf("detector.iou must be between 0.0 and 1.0, got %f", c.Detector.Iou))
	}
	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		errs = append(errs, fmt.Errorf("monitor.port %d out of range", c.Monitor.Port))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if c.Timing.Register && c.Timing.URL == "" {
		errs = append(errs, errors.New("timing.register needs timing.url"))
	}
	switch c.Log.Mode {
	case "", "production", "development":
	default:
		errs = append(errs, fmt.Errorf("log.mode %q must be production or development", c.Log.Mode))
	}
	return errors.Join(errs...)
}

// SignalIDs returns the parsed ids of the configured signals, in file order.
func (c *Config) SignalIDs() []iface.SignalID {
	ids := make([]iface.SignalID, 0, len(c.Signals))
	for _, s := range c.Signals {
		if id, err := iface.ParseSignalID(s.ID); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Signal looks up the configuration of one signal.
func (c *Config) Signal(id iface.SignalID) (SignalConfig, bool) {
	for _, s := range c.Signals {
		if parsed, err := iface.ParseSignalID(s.ID); err == nil && parsed == id {
			return s, true
		}
	}
	return SignalConfig{}, false
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
