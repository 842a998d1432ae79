// Package log is a small structured logger writing one JSON object per line.
//
//	log.Info().Str("addr", addr).Uint32("cid", cid).Msg("request handled")
//
// Levels that are disabled return a nil *LogEvent; every LogEvent method
// accepts a nil receiver, so disabled statements cost almost nothing.
package log

import (
	"sync/atomic"

	"github.com/lcx/flightrpc/config"
)

type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	Fatal() *LogEvent
	IgnoreCheckLevel() bool
	GetAppender() []LogAppender
	AddAppender(appender LogAppender)
	OnEventEnd(e *LogEvent)
}

var _defaultLogger atomic.Pointer[BaseLogger]

func init() {
	_defaultLogger.Store(NewLogger(nil))
}

func defaultLogger() *BaseLogger {
	return _defaultLogger.Load()
}

// AddAppender adds an appender to the default logger.
func AddAppender(appender LogAppender) {
	defaultLogger().AddAppender(appender)
}

// Refresh flushes the default logger.
func Refresh() {
	defaultLogger().Refresh()
}

// SetDefaultLogger replaces the logger behind the package-level functions.
func SetDefaultLogger(logger *BaseLogger) {
	if logger != nil {
		_defaultLogger.Store(logger)
	}
}

// SetLevel changes the minimum level of the default logger.
func SetLevel(level Level) {
	defaultLogger().SetLevel(level)
}

// InitializeWithConfigManager loads the "logger" configuration and installs a
// hot-reloading default logger. A missing file keeps the built-in defaults.
func InitializeWithConfigManager(configManager config.ConfigManager) error {
	if configManager == nil {
		return nil
	}

	logCfg := &LogCfg{}
	if err := configManager.LoadConfig("logger", logCfg); err != nil {
		if !config.IsNotFound(err) {
			return err
		}
		copied := *getDefaultCfg()
		logCfg = &copied
	}

	SetDefaultLogger(NewLoggerWithConfigManager(logCfg, configManager))
	return nil
}

// Initialize is InitializeWithConfigManager on the process wide manager.
func Initialize() error {
	return InitializeWithConfigManager(config.GetInstance())
}

// Debug starts a debug event on the default logger.
func Debug() *LogEvent {
	return defaultLogger().Debug()
}

// Info starts an info event on the default logger.
func Info() *LogEvent {
	return defaultLogger().Info()
}

// Warn starts a warn event on the default logger.
func Warn() *LogEvent {
	return defaultLogger().Warn()
}

// Error starts an error event on the default logger.
func Error() *LogEvent {
	return defaultLogger().Error()
}

// Fatal starts a fatal event on the default logger. Msg panics.
func Fatal() *LogEvent {
	return defaultLogger().Fatal()
}
