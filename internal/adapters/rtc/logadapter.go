package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// implements logging.LoggerFactory
type loggerFactory struct {
	logger zerolog.Logger
}

func NewLoggerFactory(logger zerolog.Logger) logging.LoggerFactory {
	return &loggerFactory{logger: logger}
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &logAdapter{logger: f.logger.With().Str("module", "pion").Str("scope", scope).Logger()}
}

// implements logging.LeveledLogger; pion info is logged as debug
type logAdapter struct {
	logger zerolog.Logger
}

func (l *logAdapter) Trace(msg string) { l.logger.Trace().Msg(msg) }

func (l *logAdapter) Tracef(format string, args ...interface{}) {
	l.logger.Trace().Msg(fmt.Sprintf(format, args...))
}

func (l *logAdapter) Debug(msg string) { l.logger.Debug().Msg(msg) }

func (l *logAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (l *logAdapter) Info(msg string) { l.logger.Debug().Msg(msg) }

func (l *logAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (l *logAdapter) Warn(msg string) { l.logger.Warn().Msg(msg) }

func (l *logAdapter) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *logAdapter) Error(msg string) { l.logger.Error().Msg(msg) }

func (l *logAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(fmt.Sprintf(format, args...))
}
