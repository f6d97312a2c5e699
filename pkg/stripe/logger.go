package stripe

import (
	"context"
	"fmt"

	"github.com/alphacut/alphacut-backend/pkg/logger"
)

// LeveledLogger routes the Stripe SDK's internal logging through the service logger.
type LeveledLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

// NewLeveledLogger binds the SDK logger to the provided base context.
func NewLeveledLogger(ctx context.Context, logg *logger.Logger) *LeveledLogger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &LeveledLogger{
		ctx:  logg.WithField(ctx, "component", "stripe-sdk"),
		logg: logg,
	}
}

func (l *LeveledLogger) Debugf(format string, v ...interface{}) {
	l.logg.Debug(l.ctx, fmt.Sprintf(format, v...))
}

func (l *LeveledLogger) Infof(format string, v ...interface{}) {
	l.logg.Info(l.ctx, fmt.Sprintf(format, v...))
}

func (l *LeveledLogger) Warnf(format string, v ...interface{}) {
	l.logg.Warn(l.ctx, fmt.Sprintf(format, v...))
}

func (l *LeveledLogger) Errorf(format string, v ...interface{}) {
	l.logg.Error(l.ctx, fmt.Sprintf(format, v...), nil)
}
