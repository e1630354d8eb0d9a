package observability

import (
	"strings"

	"github.com/smallbiznis/soarecon/internal/config"
	"github.com/smallbiznis/soarecon/internal/observability/logger"
	"github.com/smallbiznis/soarecon/internal/observability/metrics"
	"github.com/smallbiznis/soarecon/internal/observability/tracing"
)

// Config is the observability view of the service configuration.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	OTLPEndpoint string
	Settings     config.ObservabilityConfig
}

func ConfigFrom(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "soarecon"
	}
	return Config{
		ServiceName:  name,
		Environment:  strings.TrimSpace(cfg.Environment),
		Version:      strings.TrimSpace(cfg.AppVersion),
		OTLPEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		Settings:     cfg.Observability,
	}
}

// Debug is true for debug logging and for non-production environments other
// than staging.
func (c Config) Debug() bool {
	if c.Settings.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.Settings.LogLevel,
		Format:              c.Settings.LogFormat,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.Settings.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OTLPEndpoint,
		ExporterProtocol: c.Settings.OtelProtocol,
		SamplingRatio:    c.Settings.OtelSamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.Settings.OtelEnabled,
		ExporterEndpoint: c.OTLPEndpoint,
		ExporterProtocol: c.Settings.OtelProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
