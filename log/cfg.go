package log

import "fmt"

// LogCfg is the "logger" configuration.
type LogCfg struct {
	// LogPath is the file written by the file appender. Parent directories are created.
	LogPath string `mapstructure:"path"`

	// LogLevel is the minimum level written. Hot-reloadable.
	LogLevel Level `mapstructure:"level"`

	// FileSplitMB rotates the log file once it would grow past this size. 0 disables rotation.
	FileSplitMB int `mapstructure:"splitmb"`

	// IsAsync queues lines and writes them from a background goroutine.
	IsAsync bool `mapstructure:"isasync"`

	// AsyncCacheSize bounds the async queue. Default 1024.
	AsyncCacheSize int `mapstructure:"asynccachesize"`

	// AsyncWriteMillSec is the async flush interval. Default 200ms.
	AsyncWriteMillSec int `mapstructure:"asyncwritemillsec"`

	// CallerSkip is the number of extra stack frames skipped when resolving the caller.
	CallerSkip int `mapstructure:"callerSkip"`

	FileAppender    bool `mapstructure:"fileAppender"`
	ConsoleAppender bool `mapstructure:"consoleAppender"`

	// LevelChange overrides the level of individual log statements by file and line.
	LevelChange []LevelChangeEntry `mapstructure:"levelChange"`

	// ClientWhiteList lists client ids whose loggers bypass level filtering.
	ClientWhiteList []string `mapstructure:"clientWhiteList"`

	// ClientFileLog additionally writes each client logger to <path>_<client id><ext>.
	ClientFileLog bool `mapstructure:"clientFileLog"`

	EnabledCallerInfo bool `mapstructure:"enabledCallerInfo"`
}

// GetName returns the configuration name for LogCfg
func (cfg *LogCfg) GetName() string {
	return "logger"
}

// Validate validates the LogCfg parameters
func (cfg *LogCfg) Validate() error {
	if cfg.FileAppender && cfg.LogPath == "" {
		return fmt.Errorf("path is required when fileAppender is enabled")
	}
	if cfg.LogLevel > FatalLevel {
		return fmt.Errorf("invalid level %d", cfg.LogLevel)
	}
	if cfg.FileSplitMB < 0 || cfg.AsyncCacheSize < 0 || cfg.AsyncWriteMillSec < 0 {
		return fmt.Errorf("size and interval settings cannot be negative")
	}
	return nil
}

// IsInWhiteList reports whether clientID is whitelisted for unfiltered logging.
func (cfg *LogCfg) IsInWhiteList(clientID string) bool {
	for _, id := range cfg.ClientWhiteList {
		if id == clientID {
			return true
		}
	}
	return false
}

var _defaultCfg = &LogCfg{
	LogPath:         "./flightrpc.log",
	LogLevel:        InfoLevel,
	FileSplitMB:     50,
	CallerSkip:      1,
	ConsoleAppender: true,
}

func getDefaultCfg() *LogCfg {
	return _defaultCfg
}
