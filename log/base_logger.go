package log

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcx/flightrpc/config"
)

// BaseLogger writes JSON lines to its appenders. Events come from a sync.Pool
// and the level check is lock-free, so disabled levels cost one atomic load.
//
// Example usage:
//
//	logger := NewLogger(&LogCfg{
//	    LogLevel:        InfoLevel,
//	    ConsoleAppender: true,
//	})
//	logger.Info().Str("addr", "0.0.0.0:7878").Msg("server started")
type BaseLogger struct {
	appenders         []LogAppender
	minLevel          atomic.Uint32
	callerSkip        atomic.Int32
	eventPool         *sync.Pool
	levelChange       *levelChange
	callerCache       sync.Map
	enabledCallerInfo atomic.Bool
	configMutex       sync.RWMutex
	currentConfig     *LogCfg
}

// NewLogger creates a logger for cfg, or for the default configuration when cfg is nil.
func NewLogger(cfg *LogCfg) *BaseLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	logger := newBaseLogger(cfg)

	if cfg.FileAppender {
		logger.AddAppender(NewFileAppender(cfg))
	}
	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}

	return logger
}

func newBaseLogger(cfg *LogCfg) *BaseLogger {
	logger := &BaseLogger{
		levelChange:   newLevelChange(cfg.LevelChange),
		currentConfig: cfg,
	}
	logger.minLevel.Store(uint32(cfg.LogLevel))
	logger.callerSkip.Store(int32(cfg.CallerSkip))
	logger.enabledCallerInfo.Store(cfg.EnabledCallerInfo)

	logger.eventPool = &sync.Pool{
		New: func() any {
			return newEvent(logger)
		},
	}
	return logger
}

// NewLoggerWithConfigManager creates a logger whose level, caller settings and
// file appender follow reloads of the "logger" configuration.
func NewLoggerWithConfigManager(cfg *LogCfg, configManager config.ConfigManager) *BaseLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}
	if configManager == nil {
		return NewLogger(cfg)
	}

	logger := newBaseLogger(cfg)
	if cfg.FileAppender {
		fa := NewFileAppender(cfg)
		logger.AddAppender(fa)
	}
	if cfg.ConsoleAppender {
		logger.AddAppender(NewConsoleAppender())
	}
	configManager.AddChangeListener(logger)
	return logger
}

// OnConfigChanged implements config.ConfigChangeListener.
func (x *BaseLogger) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "logger" {
		return nil
	}

	newLogCfg, ok := newConfig.(*LogCfg)
	if !ok {
		return nil
	}

	x.updateConfig(newLogCfg)

	for _, appender := range x.appenders {
		if listener, ok := appender.(config.ConfigChangeListener); ok {
			if err := listener.OnConfigChanged(configName, newConfig, oldConfig); err != nil {
				x.Error().Err(err).Msg("Failed to notify appender about config change")
			}
		}
	}

	return nil
}

func (x *BaseLogger) updateConfig(newCfg *LogCfg) {
	x.configMutex.Lock()
	defer x.configMutex.Unlock()

	x.minLevel.Store(uint32(newCfg.LogLevel))
	x.callerSkip.Store(int32(newCfg.CallerSkip))
	x.enabledCallerInfo.Store(newCfg.EnabledCallerInfo)
	x.levelChange = newLevelChange(newCfg.LevelChange)
	x.currentConfig = newCfg
}

// GetCurrentConfig returns the configuration currently applied.
func (x *BaseLogger) GetCurrentConfig() *LogCfg {
	x.configMutex.RLock()
	defer x.configMutex.RUnlock()
	return x.currentConfig
}

// SetLevel changes the minimum level.
func (x *BaseLogger) SetLevel(level Level) {
	x.minLevel.Store(uint32(level))
}

func (x *BaseLogger) checkLevel(level Level) bool {
	return Level(x.minLevel.Load()) <= level
}

// AddAppender adds an output destination.
func (x *BaseLogger) AddAppender(appender LogAppender) {
	x.appenders = append(x.appenders, appender)
}

// GetAppender returns the registered appenders.
func (x *BaseLogger) GetAppender() []LogAppender {
	return x.appenders
}

// Refresh flushes every appender.
func (x *BaseLogger) Refresh() {
	for _, appender := range x.appenders {
		appender.Refresh()
	}
}

// IgnoreCheckLevel is always false for BaseLogger.
func (x *BaseLogger) IgnoreCheckLevel() bool {
	return false
}

func (x *BaseLogger) newEvent() *LogEvent {
	e := x.eventPool.Get().(*LogEvent)
	e.Reset()
	return e
}

// OnEventEnd writes e to every appender and returns it to the pool.
// A fatal event panics after it was written.
func (x *BaseLogger) OnEventEnd(e *LogEvent) {
	for _, appender := range x.appenders {
		_, _ = appender.Write(e.buf.Bytes())
	}

	if e.level == FatalLevel {
		x.Refresh()
		panic(e.buf.String())
	}

	x.eventPool.Put(e)
}

func (x *BaseLogger) Debug() *LogEvent {
	return x.log(DebugLevel)
}

func (x *BaseLogger) Info() *LogEvent {
	return x.log(InfoLevel)
}

func (x *BaseLogger) Warn() *LogEvent {
	return x.log(WarnLevel)
}

func (x *BaseLogger) Error() *LogEvent {
	return x.log(ErrorLevel)
}

// Fatal logs and then panics.
func (x *BaseLogger) Fatal() *LogEvent {
	return x.log(FatalLevel)
}

// getCallerInfo resolves the caller of the public logging function, caching per pc.
func (x *BaseLogger) getCallerInfo() *callerInfo {
	pc, file, line, ok := runtime.Caller(4 + int(x.callerSkip.Load()))
	if !ok {
		return _UnknownCallerInfo
	}

	if cached, found := x.callerCache.Load(pc); found {
		return cached.(*callerInfo)
	}

	funcName := runtime.FuncForPC(pc).Name()
	function := funcName
	if dotIdx := strings.LastIndexByte(funcName, '.'); dotIdx != -1 {
		function = funcName[dotIdx+1:]
	}

	// keep only "dir/file.go"
	if lastSlash := strings.LastIndexByte(file, '/'); lastSlash > 0 {
		if secondLastSlash := strings.LastIndexByte(file[:lastSlash], '/'); secondLastSlash >= 0 {
			file = file[secondLastSlash+1:]
		}
	}

	c := newCallerInfo(file, function, line)
	x.callerCache.Store(pc, c)
	return c
}

// log starts an event at level, or returns nil when the level is disabled and
// no per-statement override enables it.
func (x *BaseLogger) log(level Level) *LogEvent {
	return x.logWith(level, x.IgnoreCheckLevel())
}

func (x *BaseLogger) logWith(level Level, ignoreLevel bool) *LogEvent {
	var info *callerInfo
	if !ignoreLevel && !x.checkLevel(level) {
		x.configMutex.RLock()
		lc := x.levelChange
		x.configMutex.RUnlock()
		if lc.Empty() {
			return nil
		}
		info = x.getCallerInfo()
		level = lc.GetLevel(info.file, info.line, level)
		if !x.checkLevel(level) {
			return nil
		}
	}

	e := x.newEvent()
	e.level = level

	t := time.Now()
	e.Time("time", &t)
	e.Str("level", level.String())

	if x.enabledCallerInfo.Load() {
		if info == nil {
			info = x.getCallerInfo()
		}
		e.Str("caller", info.String())
	}

	return e
}
