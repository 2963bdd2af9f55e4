// Package config loads the runtime configuration: viper-backed, with a
// config file, CYNIC_-prefixed environment overrides, and defaults in
// that precedence order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cynic/internal/observability"
)

// ConfigName is the config file base name searched in $HOME and the
// working directory ("cynic-config.yaml").
const ConfigName = "cynic-config"

// Config is the full runtime configuration.
type Config struct {
	Orchestrator OrchestratorConfig          `yaml:"orchestrator" mapstructure:"orchestrator"`
	Policy       PolicyConfig                `yaml:"policy" mapstructure:"policy"`
	Server       ServerConfig                `yaml:"server" mapstructure:"server"`
	Metrics      observability.MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Tracing      observability.TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// OrchestratorConfig tunes the judgment cycle.
type OrchestratorConfig struct {
	AnalyzerTimeout time.Duration `yaml:"analyzer_timeout" mapstructure:"analyzer_timeout"`
	MaxConcurrent   int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	Planning        bool          `yaml:"planning" mapstructure:"planning"`
}

// PolicyConfig tunes Q-table persistence.
type PolicyConfig struct {
	SnapshotPath  string        `yaml:"snapshot_path" mapstructure:"snapshot_path"`
	AuditPath     string        `yaml:"audit_path" mapstructure:"audit_path"`
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
	WarmStart     bool          `yaml:"warm_start" mapstructure:"warm_start"`
}

// ServerConfig tunes the HTTP adapter.
type ServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	EnableCORS   bool          `yaml:"enable_cors" mapstructure:"enable_cors"`
	Debug        bool          `yaml:"debug" mapstructure:"debug"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Orchestrator: OrchestratorConfig{
			AnalyzerTimeout: 10 * time.Second,
			MaxConcurrent:   11,
			Planning:        true,
		},
		Policy: PolicyConfig{
			SnapshotPath:  filepath.Join(home, ".cynic", "qtable.json"),
			AuditPath:     filepath.Join(home, ".cynic", "judgments.jsonl"),
			FlushInterval: 55 * time.Second,
			WarmStart:     true,
		},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			EnableCORS:   true,
			Debug:        false,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Metrics: observability.MetricsConfig{
			Enabled:        true,
			PrometheusPort: 9090,
		},
		Tracing: observability.TracingConfig{
			Enabled:        false,
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
			ServiceName:    "cynic",
			ServiceVersion: "1.0.0",
		},
	}
}

// Load reads the configuration. Precedence: explicit file (if given) or
// the first ConfigName file found, then CYNIC_ environment variables,
// then defaults. A missing config file is not an error.
func Load(configFile string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CYNIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if configFile != "" {
			return Config{}, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the runtime cannot work with.
func (c Config) Validate() error {
	if c.Orchestrator.AnalyzerTimeout <= 0 {
		return fmt.Errorf("invalid configuration: analyzer_timeout must be positive")
	}
	if c.Orchestrator.MaxConcurrent <= 0 {
		return fmt.Errorf("invalid configuration: max_concurrent must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid configuration: server port %d out of range", c.Server.Port)
	}
	if c.Policy.FlushInterval <= 0 {
		return fmt.Errorf("invalid configuration: flush_interval must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("orchestrator.analyzer_timeout", d.Orchestrator.AnalyzerTimeout)
	v.SetDefault("orchestrator.max_concurrent", d.Orchestrator.MaxConcurrent)
	v.SetDefault("orchestrator.planning", d.Orchestrator.Planning)
	v.SetDefault("policy.snapshot_path", d.Policy.SnapshotPath)
	v.SetDefault("policy.audit_path", d.Policy.AuditPath)
	v.SetDefault("policy.flush_interval", d.Policy.FlushInterval)
	v.SetDefault("policy.warm_start", d.Policy.WarmStart)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.enable_cors", d.Server.EnableCORS)
	v.SetDefault("server.debug", d.Server.Debug)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.prometheus_port", d.Metrics.PrometheusPort)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.zipkin_endpoint", d.Tracing.ZipkinEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.service_version", d.Tracing.ServiceVersion)
}
