package observability

import (
	"testing"

	"github.com/smallbiznis/ledgercore/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "")

	cfg := LoadConfig(config.Config{AppName: "", Environment: "production", AppVersion: "1.2.3"})

	assert.Equal(t, "ledgercore", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.False(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestDevelopmentDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "")

	cfg := LoadConfig(config.Config{AppName: "ledgercore", Environment: "development"})

	assert.True(t, cfg.Debug())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
}

func TestPrefixedOverridesWin(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LEDGERCORE_LOG_LEVEL", "warn")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("LEDGERCORE_OTEL_ENABLED", "on")
	t.Setenv("LEDGERCORE_OTEL_SAMPLING_RATIO", "7")

	cfg := LoadConfig(config.Config{AppName: "ledgercore", Environment: "staging"})

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
}

func TestProductionForcesJSONLogs(t *testing.T) {
	t.Setenv("LOG_FORMAT", "console")
	cfg := LoadConfig(config.Config{AppName: "ledgercore", Environment: "production"})
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestTracesProtocolOverride(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP/protobuf")
	cfg := LoadConfig(config.Config{AppName: "ledgercore"})
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
}
