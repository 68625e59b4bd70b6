// Package logger provides structured logging for the grid engine and its
// server. Every entry can carry the request trace, the calling user and the
// grid region it concerns, so one page with several grids still yields logs
// that can be filtered per region.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "querygrid/internal/core/context"
)

// Component names attached with WithComponent. The client-side pieces of a
// page log under the same names on every page, so a region's state change,
// its refresh and its selection calls can be followed together.
const (
	ComponentRegion      = "region"
	ComponentRender      = "render"
	ComponentSelection   = "selection"
	ComponentHeaderLock  = "headerlock"
	ComponentPage        = "page"
	ComponentQueryClient = "query-client"
	ComponentViewCache   = "view-cache"
	ComponentJanitor     = "janitor"
)

// Logger wraps zap.SugaredLogger with context-aware logging.
type Logger struct {
	*zap.SugaredLogger

	// region is set by ForRegion; WithContext then skips a matching region
	// from the context instead of writing the field twice.
	region string
}

type loggerKey struct{}

// Config holds logger configuration.
type Config struct {
	Level       string // debug, info, warn, error
	Development bool   // colored console output
	OutputPaths []string
}

// New creates a Logger from configuration. An unknown level means info.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var config zap.Config
	if cfg.Development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	config.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		config.OutputPaths = cfg.OutputPaths
	}

	zapLogger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return FromZap(zapLogger), nil
}

// FromZap wraps an existing zap logger, e.g. one built on an observer core.
func FromZap(l *zap.Logger) *Logger {
	return &Logger{SugaredLogger: l.Sugar()}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return FromZap(zap.NewNop())
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// Default returns the process-wide production logger writing to stdout.
func Default() *Logger {
	defaultOnce.Do(func() {
		config := zap.NewProductionConfig()
		config.OutputPaths = []string{"stdout"}
		zapLogger, err := config.Build(zap.AddCallerSkip(1))
		if err != nil {
			zapLogger = zap.NewNop()
		}
		defaultLogger = FromZap(zapLogger)
	})
	return defaultLogger
}

// WithContext adds trace, user and region fields found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sugar := l.SugaredLogger

	if trace := appctx.GetTrace(ctx); trace != nil {
		sugar = sugar.With(
			"trace_id", trace.TraceID,
			"request_id", trace.RequestID,
		)
	}
	if user := appctx.GetUser(ctx); user != nil {
		sugar = sugar.With("user_id", user.UserID)
	}
	if region := appctx.GetRegion(ctx); region != "" && region != l.region {
		sugar = sugar.With("region", region)
	}

	return &Logger{SugaredLogger: sugar, region: l.region}
}

// With adds key-value pairs to the logger.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...), region: l.region}
}

// WithComponent tags entries with one of the Component names.
func (l *Logger) WithComponent(name string) *Logger {
	return l.With("component", name)
}

// ForRegion returns the logger a region uses for its own lifetime.
func (l *Logger) ForRegion(name string) *Logger {
	out := l.WithComponent(ComponentRegion).With("region", name)
	out.region = name
	return out
}

// --- Context-based logger access ---

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or Default, with ctx fields added.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l.WithContext(ctx)
	}
	return Default().WithContext(ctx)
}

func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Debugw(msg, keysAndValues...)
}

func Info(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Infow(msg, keysAndValues...)
}

func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Warnw(msg, keysAndValues...)
}

func Error(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Errorw(msg, keysAndValues...)
}
