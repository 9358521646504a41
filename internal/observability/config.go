package observability

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/mystictxt/internal/config"
	"github.com/smallbiznis/mystictxt/internal/observability/logger"
	"github.com/smallbiznis/mystictxt/internal/observability/metrics"
	"github.com/smallbiznis/mystictxt/internal/observability/tracing"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds logging, tracing and metrics settings for every mystictxt process.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	// SQLLogLevel is one of silent, error, warn or info.
	SQLLogLevel        string
	SlowQueryThreshold time.Duration
	DBDialect          string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName: firstNonEmpty(cfg.AppName, "mystictxt"),
		Environment: envString("DEPLOYMENT_ENV", cfg.Environment),
		Version:     envString("SERVICE_VERSION", cfg.AppVersion),

		LogLevel:  strings.ToLower(envString("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envString("LOG_FORMAT", "json")),

		SQLLogLevel:        strings.ToLower(envString("LOG_SQL_LEVEL", "warn")),
		SlowQueryThreshold: time.Duration(envInt("LOG_SLOW_QUERY_MS", 200)) * time.Millisecond,
		DBDialect:          strings.ToLower(strings.TrimSpace(cfg.DBType)),

		OtelEnabled:          envBool("OTEL_ENABLED", true),
		OtelExporterEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		OtelSamplingRatio:    envFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
	if traces := envString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", ""); traces != "" {
		out.OtelExporterProtocol = strings.ToLower(traces)
	}
	if out.OtelSamplingRatio < 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = 0.1
	}
	return out
}

// Debug is true for debug logging or any non-production environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// QueryLogger returns the GORM logger settings.
func (c Config) QueryLogger() logger.QueryLoggerConfig {
	qcfg := logger.DefaultQueryLoggerConfig(c.DBDialect)
	qcfg.Level = parseSQLLevel(c.SQLLogLevel)
	if c.SlowQueryThreshold > 0 {
		qcfg.SlowThreshold = c.SlowQueryThreshold
	}
	qcfg.LogRecordNotFound = qcfg.Level >= gormlogger.Info
	return qcfg
}

func (c Config) Logger() logger.Config {
	debug := c.Debug()
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               debug,
		IncludeCaller:       debug,
		IncludeStackOnError: debug,
	}
}

// Tracing and Metrics share one OTLP exporter setting.
func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}

func parseSQLLevel(raw string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "silent", "off":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envString(key, def string) string {
	return firstNonEmpty(os.Getenv(key), def)
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envInt(key string, def int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return parsed
}

func envFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return parsed
}
