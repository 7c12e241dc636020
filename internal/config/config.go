package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string

	ServiceName string
	InstanceID  string
	Environment string

	PushgatewayURL string
	PublishTimeout time.Duration

	LogSinkURL       string
	LogSinkStream    string
	LogSinkBatchSize int
	LogSinkInterval  time.Duration
	FlushTimeout     time.Duration
	FlushGraceDelay  time.Duration

	WatchdogTimeout    time.Duration
	DrainTimeout       time.Duration
	DrainCheckInterval time.Duration

	TriggerRateRPS   int
	TriggerRateBurst int
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Service struct {
		Name        string `yaml:"name"`
		InstanceID  string `yaml:"instance_id"`
		Environment string `yaml:"environment"`
	} `yaml:"service"`

	Telemetry struct {
		PushgatewayURL string `yaml:"pushgateway_url"`
		PublishTimeout string `yaml:"publish_timeout"`
		LogSink        struct {
			URL           string `yaml:"url"`
			Stream        string `yaml:"stream"`
			BatchSize     int    `yaml:"batch_size"`
			FlushInterval string `yaml:"flush_interval"`
		} `yaml:"log_sink"`
		FlushTimeout    string `yaml:"flush_timeout"`
		FlushGraceDelay string `yaml:"flush_grace_delay"`
	} `yaml:"telemetry"`

	Shutdown struct {
		WatchdogTimeout    string `yaml:"watchdog_timeout"`
		DrainTimeout       string `yaml:"drain_timeout"`
		DrainCheckInterval string `yaml:"drain_check_interval"`
	} `yaml:"shutdown"`

	Reliability struct {
		TriggerRateRPS   int `yaml:"trigger_rate_rps"`
		TriggerRateBurst int `yaml:"trigger_rate_burst"`
	} `yaml:"reliability"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), with
// env overrides for identity and endpoints. A missing file is not an error;
// defaults apply. Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults + env only.
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.ServiceName = firstNonEmpty(os.Getenv("SERVICE_NAME"), fc.Service.Name, "crash-telemetry-service")
	cfg.InstanceID = firstNonEmpty(os.Getenv("INSTANCE_ID"), fc.Service.InstanceID, uuid.New().String())
	cfg.Environment = firstNonEmpty(os.Getenv("ENVIRONMENT"), fc.Service.Environment, env)

	cfg.PushgatewayURL = firstNonEmpty(os.Getenv("PUSHGATEWAY_URL"), fc.Telemetry.PushgatewayURL, "http://localhost:9091")
	cfg.PublishTimeout = parseDuration(fc.Telemetry.PublishTimeout, 3*time.Second)

	cfg.LogSinkURL = firstNonEmpty(os.Getenv("LOG_SINK_URL"), fc.Telemetry.LogSink.URL)
	cfg.LogSinkStream = firstNonEmpty(fc.Telemetry.LogSink.Stream, "app")
	cfg.LogSinkBatchSize = fc.Telemetry.LogSink.BatchSize
	if cfg.LogSinkBatchSize <= 0 {
		cfg.LogSinkBatchSize = 100
	}
	cfg.LogSinkInterval = parseDuration(fc.Telemetry.LogSink.FlushInterval, 2*time.Second)
	cfg.FlushTimeout = parseDuration(fc.Telemetry.FlushTimeout, 3*time.Second)
	cfg.FlushGraceDelay = parseDuration(fc.Telemetry.FlushGraceDelay, 500*time.Millisecond)

	cfg.WatchdogTimeout = parseDurationOrZero(fc.Shutdown.WatchdogTimeout, 0)
	cfg.DrainTimeout = parseDuration(fc.Shutdown.DrainTimeout, 5*time.Second)
	cfg.DrainCheckInterval = parseDuration(fc.Shutdown.DrainCheckInterval, 100*time.Millisecond)

	cfg.TriggerRateRPS = fc.Reliability.TriggerRateRPS
	if cfg.TriggerRateRPS <= 0 {
		cfg.TriggerRateRPS = 5
	}
	cfg.TriggerRateBurst = fc.Reliability.TriggerRateBurst
	if cfg.TriggerRateBurst <= 0 {
		cfg.TriggerRateBurst = 10
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// firstNonEmpty returns the first non-empty trimmed value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty
// string or parse error. Zero or negative durations come back as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. An explicit watchdog must cover the
// per-step budgets or the sequence can never finish in time.
func validate(cfg *Config) error {
	if cfg.ServiceName == "" {
		return fmt.Errorf("service.name must not be empty")
	}
	if cfg.InstanceID == "" {
		return fmt.Errorf("service.instance_id must not be empty")
	}
	if cfg.FlushGraceDelay >= cfg.FlushTimeout {
		return fmt.Errorf("telemetry.flush_grace_delay (%s) must be below telemetry.flush_timeout (%s)",
			cfg.FlushGraceDelay, cfg.FlushTimeout)
	}
	if cfg.WatchdogTimeout > 0 && cfg.WatchdogTimeout < cfg.PublishTimeout+cfg.FlushTimeout {
		return fmt.Errorf("shutdown.watchdog_timeout (%s) must cover publish (%s) + flush (%s) budgets",
			cfg.WatchdogTimeout, cfg.PublishTimeout, cfg.FlushTimeout)
	}
	return nil
}
