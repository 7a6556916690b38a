package observability

import (
	"strings"

	"github.com/smallbiznis/adbilling/internal/config"
	"github.com/spf13/viper"
)

// Config holds the logging, tracing and metrics switches for one process.
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

	MetricsEnabled bool
}

func LoadConfig(cfg config.Config) Config {
	return loadConfig(cfg, newEnv())
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)
	return v
}

func loadConfig(cfg config.Config, v *viper.Viper) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "adbilling"
	}

	protocol := lower(v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL"))
	// the traces-specific variable wins over the shared one
	if traces := lower(v.GetString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          firstNonEmpty(v.GetString("DEPLOYMENT_ENV"), cfg.Environment),
		Version:              firstNonEmpty(v.GetString("SERVICE_VERSION"), cfg.AppVersion),
		LogLevel:             lower(v.GetString("LOG_LEVEL")),
		LogFormat:            lower(v.GetString("LOG_FORMAT")),
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: firstNonEmpty(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"), cfg.OTLPEndpoint),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    v.GetFloat64("OTEL_SAMPLING_RATIO"),
		MetricsEnabled:       cfg.MetricsEnabled,
	}
}

// Debug reports whether verbose request logging should be on.
func (c Config) Debug() bool {
	if lower(c.LogLevel) == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func lower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
