package core

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

var baseLogger = zap.Must(zap.NewProduction()).Sugar()

// InitLogger replaces the process base logger. Meant for main and tests.
func InitLogger(l *zap.Logger) {
	baseLogger = l.Sugar()
}

// WithDefaultLogger returns a context carrying a request-scoped logger
// tagged with the given request id.
func WithDefaultLogger(parent context.Context, reqID string) context.Context {
	return context.WithValue(parent, loggerKey{}, baseLogger.With("request_id", reqID))
}

func fromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return baseLogger
}

func Debugf(ctx context.Context, tpl string, args ...any) {
	fromContext(ctx).Debugf(tpl, args...)
}

func Infof(ctx context.Context, tpl string, args ...any) {
	fromContext(ctx).Infof(tpl, args...)
}

func Warnf(ctx context.Context, tpl string, args ...any) {
	fromContext(ctx).Warnf(tpl, args...)
}

func Errorf(ctx context.Context, tpl string, args ...any) {
	fromContext(ctx).Errorf(tpl, args...)
}
