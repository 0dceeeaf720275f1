package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/ledgercore/internal/config"
)

// envPrefix marks ledgercore-specific overrides. They win over the plain
// OTEL_* and LOG_* names so a shared collector environment can be narrowed
// for this service alone.
const envPrefix = "LEDGERCORE_"

// Config is the observability view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig derives the observability settings from the application config.
// Outside production logs default to debug level on the console encoder and
// every trace is sampled; production forces JSON logs and samples a tenth.
func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName:          firstNonEmpty(lookup("SERVICE_NAME"), cfg.AppName, "ledgercore"),
		Environment:          firstNonEmpty(lookup("DEPLOYMENT_ENV"), cfg.Environment),
		Version:              firstNonEmpty(lookup("SERVICE_VERSION"), cfg.AppVersion),
		LogLevel:             strings.ToLower(lookup("LOG_LEVEL")),
		LogFormat:            strings.ToLower(lookup("LOG_FORMAT")),
		OtelEnabled:          parseBool(lookup("OTEL_ENABLED")),
		OtelExporterEndpoint: firstNonEmpty(lookup("OTEL_EXPORTER_OTLP_ENDPOINT"), cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(firstNonEmpty(lookup("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"), lookup("OTEL_EXPORTER_OTLP_PROTOCOL"))),
		OtelSamplingRatio:    -1,
	}
	if raw := lookup("OTEL_SAMPLING_RATIO"); raw != "" {
		if ratio, err := strconv.ParseFloat(raw, 64); err == nil {
			out.OtelSamplingRatio = ratio
		}
	}
	return out.normalize()
}

func (c Config) normalize() Config {
	dev := isDevEnv(c.Environment)
	production := strings.EqualFold(c.Environment, "production")

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		c.LogLevel = "info"
		if dev {
			c.LogLevel = "debug"
		}
	}

	if c.LogFormat != "console" && c.LogFormat != "json" {
		c.LogFormat = "json"
		if dev {
			c.LogFormat = "console"
		}
	}
	if production {
		c.LogFormat = "json"
	}

	switch c.OtelExporterProtocol {
	case "", "grpc", "grpc/protobuf":
		c.OtelExporterProtocol = "grpc"
	case "http", "http/protobuf":
		c.OtelExporterProtocol = "http"
	}

	switch {
	case c.OtelSamplingRatio < 0 && production:
		c.OtelSamplingRatio = 0.1
	case c.OtelSamplingRatio < 0:
		c.OtelSamplingRatio = 1
	case c.OtelSamplingRatio > 1:
		c.OtelSamplingRatio = 1
	}
	return c
}

// Debug switches gin into debug mode and adds stack traces to error logs.
func (c Config) Debug() bool {
	return c.LogLevel == "debug" || isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// lookup reads LEDGERCORE_<key> and falls back to <key>.
func lookup(key string) string {
	if value := strings.TrimSpace(os.Getenv(envPrefix + key)); value != "" {
		return value
	}
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
