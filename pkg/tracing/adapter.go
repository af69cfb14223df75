package tracing

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// jaegerLogger writes jaeger reporter messages to the application log.
type jaegerLogger struct {
	logger hclog.Logger
}

func newJaegerLogger(logger hclog.Logger) *jaegerLogger {
	return &jaegerLogger{logger: logger.Named("jaeger")}
}

// Error implements jaeger.Logger.
func (l *jaegerLogger) Error(msg string) {
	l.logger.Error("tracer error", "reason", msg)
}

// Infof implements jaeger.Logger.
func (l *jaegerLogger) Infof(msg string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(msg, args...))
}

// Debugf implements jaeger.DebugLogger.
func (l *jaegerLogger) Debugf(msg string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}
