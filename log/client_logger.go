package log

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ClientLogger tags every event with a client id. Whitelisted clients log at
// every level regardless of the configured minimum, and with ClientFileLog
// each client also gets its own file next to the main log.
type ClientLogger struct {
	*BaseLogger
	clientID    string
	inWhiteList bool
}

// NewClientLogger creates a logger for clientID.
func NewClientLogger(cfg *LogCfg, clientID string) *ClientLogger {
	if cfg == nil {
		cfg = getDefaultCfg()
	}

	logger := NewLogger(cfg)
	cl := &ClientLogger{
		BaseLogger:  logger,
		clientID:    clientID,
		inWhiteList: cfg.IsInWhiteList(clientID),
	}

	if cfg.ClientFileLog && cfg.LogPath != "" {
		clientCfg := *cfg
		clientCfg.LogPath = ClientLogPath(cfg.LogPath, clientID)
		cl.AddAppender(NewFileAppender(&clientCfg))
	}

	return cl
}

// ClientLogPath derives the per-client file name: "a/b.log" becomes "a/b_<id>.log".
func ClientLogPath(path, clientID string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_%s%s", base, clientID, ext)
}

// ClientID returns the id added to every event.
func (x *ClientLogger) ClientID() string {
	return x.clientID
}

func (x *ClientLogger) log(level Level) *LogEvent {
	e := x.logWith(level, x.IgnoreCheckLevel())
	if e == nil {
		return nil
	}
	return e.Str("client", x.clientID)
}

// IgnoreCheckLevel is true for whitelisted clients.
func (x *ClientLogger) IgnoreCheckLevel() bool {
	return x.inWhiteList
}

func (x *ClientLogger) Debug() *LogEvent {
	return x.log(DebugLevel)
}

func (x *ClientLogger) Info() *LogEvent {
	return x.log(InfoLevel)
}

func (x *ClientLogger) Warn() *LogEvent {
	return x.log(WarnLevel)
}

func (x *ClientLogger) Error() *LogEvent {
	return x.log(ErrorLevel)
}

func (x *ClientLogger) Fatal() *LogEvent {
	return x.log(FatalLevel)
}
