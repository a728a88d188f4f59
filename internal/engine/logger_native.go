//go:build !js

package engine

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

func newLoggerFactory(log zerolog.Logger) logging.LoggerFactory {
	return &loggerFactory{log: log}
}

type loggerFactory struct {
	log zerolog.Logger
}

func (lf *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &logger{log: lf.log, scope: scope}
}

type logger struct {
	log   zerolog.Logger
	scope string
}

func (l *logger) Trace(msg string) {
	l.log.Trace().Msgf("[%s] %s", l.scope, msg)
}

func (l *logger) Tracef(format string, args ...interface{}) {
	l.log.Trace().Msgf("[%s] %s", l.scope, fmt.Sprintf(format, args...))
}

func (l *logger) Debug(msg string) {
	l.log.Debug().Msgf("[%s] %s", l.scope, msg)
}

func (l *logger) Debugf(format string, args ...interface{}) {
	l.log.Debug().Msgf("[%s] %s", l.scope, fmt.Sprintf(format, args...))
}

func (l *logger) Info(msg string) {
	l.log.Info().Msgf("[%s] %s", l.scope, msg)
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.log.Info().Msgf("[%s] %s", l.scope, fmt.Sprintf(format, args...))
}

func (l *logger) Warn(msg string) {
	l.log.Warn().Msgf("[%s] %s", l.scope, msg)
}

func (l *logger) Warnf(format string, args ...interface{}) {
	l.log.Warn().Msgf("[%s] %s", l.scope, fmt.Sprintf(format, args...))
}

func (l *logger) Error(msg string) {
	l.log.Error().Msgf("[%s] %s", l.scope, msg)
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf("[%s] %s", l.scope, fmt.Sprintf(format, args...))
}
