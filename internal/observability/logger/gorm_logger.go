package logger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// QueryLoggerConfig configures the GORM query logger.
type QueryLoggerConfig struct {
	Level         gormlogger.LogLevel
	Dialect       string
	SlowThreshold time.Duration
	// LogRecordNotFound reports misses; repositories treat them as nil results.
	LogRecordNotFound bool
}

func DefaultQueryLoggerConfig(dialect string) QueryLoggerConfig {
	return QueryLoggerConfig{
		Level:         gormlogger.Warn,
		Dialect:       dialect,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// QueryLogger routes GORM output through the request-scoped zap logger.
type QueryLogger struct {
	cfg QueryLoggerConfig
}

func NewQueryLogger(cfg QueryLoggerConfig) *QueryLogger {
	return &QueryLogger{cfg: cfg}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, msg, data)
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, msg, data)
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, msg, data)
}

func (l *QueryLogger) message(ctx context.Context, level gormlogger.LogLevel, msg string, data []interface{}) {
	if l.cfg.Level < level {
		return
	}
	log := l.base(ctx)
	if len(data) > 0 {
		log = log.With(zap.Any("data", data))
	}
	switch level {
	case gormlogger.Error:
		log.Error(msg)
	case gormlogger.Warn:
		log.Warn(msg)
	default:
		log.Info(msg)
	}
}

// Trace classifies each statement: failures and lock contention first, then slow queries.
func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && errors.Is(err, gormlogger.ErrRecordNotFound):
		if l.cfg.LogRecordNotFound && l.cfg.Level >= gormlogger.Info {
			l.query(ctx, fc, elapsed).Debug("db.query.miss")
		}
	case err != nil && IsLockContention(err):
		if l.cfg.Level >= gormlogger.Warn {
			l.query(ctx, fc, elapsed).Warn("db.query.contention", zap.Error(err))
		}
	case err != nil:
		if l.cfg.Level >= gormlogger.Error {
			l.query(ctx, fc, elapsed).Error("db.query.failed", zap.Error(err))
		}
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold:
		if l.cfg.Level >= gormlogger.Warn {
			l.query(ctx, fc, elapsed).Warn("db.query.slow", zap.Duration("threshold", l.cfg.SlowThreshold))
		}
	case l.cfg.Level >= gormlogger.Info:
		l.query(ctx, fc, elapsed).Debug("db.query")
	}
}

// ParamsFilter drops bound values; message content and customer ids stay out of logs.
func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *QueryLogger) base(ctx context.Context) *zap.Logger {
	log := FromContext(ctx).With(zap.String("component", "gorm"))
	if l.cfg.Dialect != "" {
		log = log.With(zap.String("db.system", l.cfg.Dialect))
	}
	return log
}

func (l *QueryLogger) query(ctx context.Context, fc func() (string, int64), elapsed time.Duration) *zap.Logger {
	sql, rows := fc()
	op, table := describeSQL(sql)
	fields := []zap.Field{
		zap.String("db.operation", op),
		zap.String("db.table", table),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.String("sql", strings.TrimSpace(sql)),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	return l.base(ctx).With(fields...)
}

var tablePattern = regexp.MustCompile(`(?i)\b(?:from|into|update|join)\s+["` + "`" + `]?([a-z_][a-z0-9_]*)`)

// describeSQL returns the statement verb and the first table it touches.
func describeSQL(sql string) (string, string) {
	op := "UNKNOWN"
scan:
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		switch token = strings.Trim(token, "();"); token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			op = token
			break scan
		}
	}

	table := ""
	if match := tablePattern.FindStringSubmatch(sql); len(match) == 2 {
		table = strings.ToLower(match[1])
	}
	return op, table
}

// IsLockContention reports busy or serialization errors from sqlite and postgres.
func IsLockContention(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"database is locked", "sqlite_busy", "could not serialize", "deadlock detected", "lock timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
