package bus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/okian/huddle/pkg/logger"
)

// loggerAdapter bridges watermill's logging contract onto ours. Trace is
// mapped to debug; watermill has no counterpart for fatal.
type loggerAdapter struct {
	log   logger.Logger
	bound []logger.Field
}

func newLoggerAdapter(log logger.Logger) watermill.LoggerAdapter {
	return &loggerAdapter{log: log}
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(context.Background(), msg, append(a.toFields(fields), logger.Error(err))...)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.log.Info(context.Background(), msg, a.toFields(fields)...)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.log.Debug(context.Background(), msg, a.toFields(fields)...)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.log.Debug(context.Background(), msg, a.toFields(fields)...)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{log: a.log, bound: a.toFields(fields)}
}

func (a *loggerAdapter) toFields(fields watermill.LogFields) []logger.Field {
	out := make([]logger.Field, 0, len(a.bound)+len(fields))
	out = append(out, a.bound...)
	for k, v := range fields {
		out = append(out, logger.Any(k, v))
	}
	return out
}
