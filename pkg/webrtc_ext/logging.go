package webrtc_ext

import (
	"github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

// LoggerFactory hands out pion loggers that write to logrus, one per pion subsystem (`ice`, `dtls`, ...).
type LoggerFactory struct {
	logger *logrus.Entry
}

func NewLoggerFactory(logger *logrus.Entry) *LoggerFactory {
	return &LoggerFactory{logger: logger}
}

func (f *LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{f.logger.WithField("pion", scope)}
}

// pion is chatty, so everything below warnings is shifted one level down.
type leveledLogger struct {
	entry *logrus.Entry
}

func (l *leveledLogger) Trace(msg string)                          { l.entry.Trace(msg) }
func (l *leveledLogger) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }
func (l *leveledLogger) Debug(msg string)                          { l.entry.Trace(msg) }
func (l *leveledLogger) Debugf(format string, args ...interface{}) { l.entry.Tracef(format, args...) }
func (l *leveledLogger) Info(msg string)                           { l.entry.Debug(msg) }
func (l *leveledLogger) Infof(format string, args ...interface{})  { l.entry.Debugf(format, args...) }
func (l *leveledLogger) Warn(msg string)                           { l.entry.Warn(msg) }
func (l *leveledLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *leveledLogger) Error(msg string)                          { l.entry.Error(msg) }
func (l *leveledLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
