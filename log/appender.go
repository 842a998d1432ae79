package log

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lcx/flightrpc/config"
)

// LogAppender is an output destination for encoded log lines.
type LogAppender interface {
	Write(p []byte) (int, error)
	// Refresh flushes anything buffered.
	Refresh()
}

// ConsoleAppender writes to stderr so that stdout stays free for program output.
type ConsoleAppender struct {
	mu sync.Mutex
}

// NewConsoleAppender creates a console appender.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{}
}

func (c *ConsoleAppender) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.Stderr.Write(p)
}

func (c *ConsoleAppender) Refresh() {}

const (
	defaultAsyncCacheSize    = 1024
	defaultAsyncWriteMillSec = 200
)

// FileAppender writes log lines to LogPath, rotating when the file grows past
// FileSplitMB. In async mode lines are queued and a background goroutine
// writes them out every AsyncWriteMillSec; a full queue writes through.
// Refresh drains whatever is queued at the time of the call.
type FileAppender struct {
	mu      sync.Mutex
	qmu     sync.RWMutex
	cfg     *LogCfg
	file    *os.File
	size    int64
	queue   chan []byte
	stop    chan struct{}
	stopped sync.WaitGroup
	dmu     sync.Mutex
}

// NewFileAppender creates a file appender for cfg.
func NewFileAppender(cfg *LogCfg) *FileAppender {
	fa := &FileAppender{}
	fa.apply(cfg)
	return fa
}

// NewFileAppenderWithConfigManager creates a file appender configured from the
// "logger" configuration and keeps it in sync with reloads.
func NewFileAppenderWithConfigManager(configManager config.ConfigManager) *FileAppender {
	cfg := getDefaultCfg()
	if configManager != nil {
		if c, err := configManager.GetConfig("logger"); err == nil {
			if logCfg, ok := c.(*LogCfg); ok {
				cfg = logCfg
			}
		}
	}
	fa := NewFileAppender(cfg)
	if configManager != nil {
		configManager.AddChangeListener(fa)
	}
	return fa
}

// apply (re)configures the appender. 切换同步/异步时先把队列刷干净
func (fa *FileAppender) apply(cfg *LogCfg) {
	fa.qmu.Lock()
	defer fa.qmu.Unlock()
	fa.stopAsync()

	fa.mu.Lock()
	old := fa.cfg
	fa.cfg = cfg
	if old != nil && old.LogPath != cfg.LogPath && fa.file != nil {
		_ = fa.file.Close()
		fa.file = nil
	}
	fa.mu.Unlock()

	if cfg.IsAsync {
		size := cfg.AsyncCacheSize
		if size <= 0 {
			size = defaultAsyncCacheSize
		}
		fa.queue = make(chan []byte, size)
		fa.stop = make(chan struct{})
		fa.stopped.Add(1)
		go fa.loop(fa.queue, fa.stop, cfg.AsyncWriteMillSec)
	}
}

func (fa *FileAppender) stopAsync() {
	if fa.queue == nil {
		return
	}
	close(fa.stop)
	fa.stopped.Wait()
	fa.drain(fa.queue)
	fa.queue = nil
	fa.stop = nil
}

// OnConfigChanged implements config.ConfigChangeListener.
func (fa *FileAppender) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != "logger" {
		return nil
	}
	cfg, ok := newConfig.(*LogCfg)
	if !ok {
		return fmt.Errorf("invalid configuration type for FileAppender")
	}
	fa.apply(cfg)
	return nil
}

func (fa *FileAppender) Write(p []byte) (int, error) {
	fa.qmu.RLock()
	defer fa.qmu.RUnlock()
	if q := fa.queue; q != nil {
		line := append([]byte(nil), p...)
		select {
		case q <- line:
		default:
			// queue full, write through rather than lose the line
			return fa.writeFile(line)
		}
		return len(p), nil
	}
	return fa.writeFile(p)
}

// Refresh writes out everything queued so far.
func (fa *FileAppender) Refresh() {
	fa.qmu.RLock()
	if q := fa.queue; q != nil {
		fa.drain(q)
	}
	fa.qmu.RUnlock()
	fa.mu.Lock()
	if fa.file != nil {
		_ = fa.file.Sync()
	}
	fa.mu.Unlock()
}

// Close stops the background writer and closes the file.
func (fa *FileAppender) Close() error {
	fa.qmu.Lock()
	fa.stopAsync()
	fa.qmu.Unlock()
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if fa.file == nil {
		return nil
	}
	err := fa.file.Close()
	fa.file = nil
	return err
}

// drain writes the lines queued at the time of the call. Concurrent drains are
// serialized so a returning Refresh never races a half finished batch.
func (fa *FileAppender) drain(q chan []byte) {
	fa.dmu.Lock()
	defer fa.dmu.Unlock()
	n := len(q)
	for i := 0; i < n; i++ {
		select {
		case line := <-q:
			_, _ = fa.writeFile(line)
		default:
			return
		}
	}
}

func (fa *FileAppender) loop(q chan []byte, stop chan struct{}, intervalMs int) {
	defer fa.stopped.Done()
	if intervalMs <= 0 {
		intervalMs = defaultAsyncWriteMillSec
	}
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fa.drain(q)
		case <-stop:
			return
		}
	}
}

func (fa *FileAppender) writeFile(p []byte) (int, error) {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.file == nil {
		if err := fa.open(); err != nil {
			return 0, err
		}
	}
	if limit := int64(fa.cfg.FileSplitMB) << 20; limit > 0 && fa.size+int64(len(p)) > limit && fa.size > 0 {
		if err := fa.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := fa.file.Write(p)
	fa.size += int64(n)
	return n, err
}

func (fa *FileAppender) open() error {
	if fa.cfg == nil || fa.cfg.LogPath == "" {
		return errors.New("log path is empty")
	}
	if dir := filepath.Dir(fa.cfg.LogPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(fa.cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	fa.file = f
	fa.size = info.Size()
	return nil
}

// rotate renames the current file with a timestamp suffix and opens a fresh one.
func (fa *FileAppender) rotate() error {
	if err := fa.file.Close(); err != nil {
		return err
	}
	fa.file = nil
	rotated := fmt.Sprintf("%s.%s", fa.cfg.LogPath, time.Now().Format("20060102-150405.000000"))
	if err := os.Rename(fa.cfg.LogPath, rotated); err != nil {
		return err
	}
	return fa.open()
}

// GetCurrentConfig returns the configuration the appender currently writes with.
func (fa *FileAppender) GetCurrentConfig() *LogCfg {
	fa.mu.Lock()
	defer fa.mu.Unlock()
	return fa.cfg
}
