// Package config loads guestsyncd's runtime configuration.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DaemonConfig holds daemon-wide settings.
type DaemonConfig struct {
	HTTPAddr string `json:"http_addr" yaml:"http_addr"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// UnitConfig controls how guest domains map onto systemd units.
type UnitConfig struct {
	TemplatePrefix string `json:"template_prefix" yaml:"template_prefix"`
	TemplateSuffix string `json:"template_suffix" yaml:"template_suffix"`
}

// ActuatorConfig controls the domain-side convergence-poll actuator and
// its worker pool.
type ActuatorConfig struct {
	CheckDelay time.Duration `json:"check_delay" yaml:"check_delay"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	Workers    int           `json:"workers" yaml:"workers"`
}

// VirtConfig controls the connection to the virtualization host.
type VirtConfig struct {
	SocketPath string `json:"socket_path" yaml:"socket_path"`
}

// LedgerConfig controls the action-history ledger used for echo suppression.
type LedgerConfig struct {
	Window            time.Duration `json:"window" yaml:"window"`
	CoalesceThreshold time.Duration `json:"coalesce_threshold" yaml:"coalesce_threshold"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Exporter    string  `json:"exporter" yaml:"exporter"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled          bool      `json:"enabled" yaml:"enabled"`
	Namespace        string    `json:"namespace" yaml:"namespace"`
	HistogramBuckets []float64 `json:"histogram_buckets" yaml:"histogram_buckets"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level          string `json:"level" yaml:"level"`
	Format         string `json:"format" yaml:"format"`
	IncludeTraceID bool   `json:"include_trace_id" yaml:"include_trace_id"`
}

// ObservabilityConfig groups all observability-related settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// Config is the central configuration struct for guestsyncd.
type Config struct {
	Daemon        DaemonConfig        `json:"daemon" yaml:"daemon"`
	Unit          UnitConfig          `json:"unit" yaml:"unit"`
	Actuator      ActuatorConfig      `json:"actuator" yaml:"actuator"`
	Virt          VirtConfig          `json:"virt" yaml:"virt"`
	Ledger        LedgerConfig        `json:"ledger" yaml:"ledger"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// DefaultConfig returns a Config with sensible defaults matching the
// original action tunables (120s timeout, 1s poll delay, 3s coalesce
// threshold, 60s ledger idle window, 5 workers).
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			HTTPAddr: ":9102",
			LogLevel: "info",
		},
		Unit: UnitConfig{
			TemplatePrefix: "libvirt-guest",
			TemplateSuffix: "service",
		},
		Actuator: ActuatorConfig{
			CheckDelay: time.Second,
			Timeout:    120 * time.Second,
			Workers:    5,
		},
		Virt: VirtConfig{
			SocketPath: "/var/run/libvirt/libvirt-sock",
		},
		Ledger: LedgerConfig{
			Window:            60 * time.Second,
			CoalesceThreshold: 3 * time.Second,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "guestsyncd",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:          true,
				Namespace:        "guestsyncd",
				HistogramBuckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
			},
			Logging: LoggingConfig{
				Level:          "info",
				Format:         "text",
				IncludeTraceID: true,
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file, selecting
// the decoder by extension (.json uses JSON, anything else YAML).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("GUESTSYNCD_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
	if v := os.Getenv("GUESTSYNCD_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("GUESTSYNCD_UNIT_PREFIX"); v != "" {
		cfg.Unit.TemplatePrefix = v
	}
	if v := os.Getenv("GUESTSYNCD_UNIT_SUFFIX"); v != "" {
		cfg.Unit.TemplateSuffix = v
	}
	if v := os.Getenv("WAIT_ACTION_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Actuator.Timeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("WAIT_CHECK_DELAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Actuator.CheckDelay = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("GUESTSYNCD_ACTUATOR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Actuator.Workers = n
		}
	}
	if v := os.Getenv("GUESTSYNCD_VIRT_SOCKET"); v != "" {
		cfg.Virt.SocketPath = v
	}
	if v := os.Getenv("GUESTSYNCD_LEDGER_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ledger.Window = d
		}
	}
	if v := os.Getenv("GUESTSYNCD_COALESCE_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ledger.CoalesceThreshold = d
		}
	}
	if v := os.Getenv("GUESTSYNCD_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("GUESTSYNCD_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("GUESTSYNCD_TRACING_EXPORTER"); v != "" {
		cfg.Observability.Tracing.Exporter = v
	}
	if v := os.Getenv("GUESTSYNCD_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("GUESTSYNCD_METRICS_NAMESPACE"); v != "" {
		cfg.Observability.Metrics.Namespace = v
	}
	if v := os.Getenv("GUESTSYNCD_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
