package config

import (
	"time"

	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/validation"
)

// TelemetryConfig selects where traces and metrics are exported. Telemetry is
// off while Endpoint is empty.
type TelemetryConfig struct {
	Endpoint       string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate     float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	MetricInterval time.Duration `yaml:"metric_interval" mapstructure:"metric_interval" validate:"gte=0"`
}

// ApplyDefaults applies default values.
func (c *TelemetryConfig) ApplyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = 15 * time.Second
	}
}

// Validate validates the telemetry fields.
func (c *TelemetryConfig) Validate() error {
	return validation.Validate(c)
}

// Enabled reports whether an exporter endpoint is configured.
func (c *TelemetryConfig) Enabled() bool {
	return c.Endpoint != ""
}

// TracerConfig builds the tracer settings for the service described by svc.
func (c *TelemetryConfig) TracerConfig(svc *ServiceConfig) observability.TracerConfig {
	return observability.TracerConfig{
		ServiceName:    svc.Name,
		ServiceVersion: svc.Version,
		Environment:    svc.Environment,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		SampleRate:     c.SampleRate,
	}
}

// MeterConfig builds the meter settings for the service described by svc.
func (c *TelemetryConfig) MeterConfig(svc *ServiceConfig) observability.MeterConfig {
	return observability.MeterConfig{
		ServiceName:    svc.Name,
		ServiceVersion: svc.Version,
		Environment:    svc.Environment,
		Endpoint:       c.Endpoint,
		Insecure:       c.Insecure,
		Interval:       c.MetricInterval,
	}
}
