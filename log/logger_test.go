package log

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lcx/flightrpc/config"
)

// memAppender keeps written lines in memory.
type memAppender struct {
	mu    sync.Mutex
	lines []string
}

func (m *memAppender) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, string(p))
	return len(p), nil
}

func (m *memAppender) Refresh() {}

func (m *memAppender) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}

func newMemLogger(cfg *LogCfg) (*BaseLogger, *memAppender) {
	logger := NewLogger(cfg)
	mem := &memAppender{}
	logger.AddAppender(mem)
	return logger, mem
}

func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("line not newline terminated: %q", line)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("line is not valid JSON: %v: %q", err, line)
	}
	return m
}

// TestConsoleAppender_WriteDirect 直接使用 ConsoleAppender.Write
func TestConsoleAppender_WriteDirect(t *testing.T) {
	ca := NewConsoleAppender()
	msg := []byte("hello-console-direct\n")
	n, err := ca.Write(msg)
	if err != nil {
		t.Fatalf("ConsoleAppender.Write returned error: %v", err)
	}
	if n != len(msg) {
		t.Fatalf("ConsoleAppender.Write wrote %d bytes, want %d", n, len(msg))
	}
}

type testObj struct{ cid uint32 }

func (o testObj) MarshalLogObj(e *LogEvent) { e.Uint32("cid", o.cid) }

// TestLogEvent_JSONFields 每个字段都编码为合法 JSON
func TestLogEvent_JSONFields(t *testing.T) {
	logger, mem := newMemLogger(&LogCfg{LogLevel: DebugLevel})

	logger.Info().
		Str("s", "quote\" backslash\\ newline\n tab\t ctrl\x01 bad\xff").
		Int("i", -3).
		Int32("i32", 7).
		Uint64("u64", 1<<40).
		Float64("f", 249.5).
		Bool("b", true).
		Dur("d", 1500*time.Millisecond).
		Bytes("raw", []byte("AB")).
		Err(errors.New("boom")).
		Err(nil).
		Any("list", []int{1, 2}).
		Object(testObj{cid: 9}).
		Msgf("hello %s", "world")

	lines := mem.all()
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	m := decodeLine(t, lines[0])

	expect := map[string]any{
		"level": "info",
		"s":     "quote\" backslash\\ newline\n tab\t ctrl\x01 bad�",
		"i":     float64(-3),
		"i32":   float64(7),
		"u64":   float64(1 << 40),
		"f":     249.5,
		"b":     true,
		"d":     "1.5s",
		"raw":   "AB",
		"error": "boom",
		"cid":   float64(9),
		"msg":   "hello world",
	}
	for k, v := range expect {
		if m[k] != v {
			t.Errorf("field %s = %#v, want %#v", k, m[k], v)
		}
	}
	if fmt.Sprint(m["list"]) != "[1 2]" {
		t.Errorf("list = %v", m["list"])
	}
	if _, ok := m["time"]; !ok {
		t.Errorf("missing time field")
	}
}

// TestLogEvent_NilSafe 关闭的等级返回 nil，链式调用不能 panic
func TestLogEvent_NilSafe(t *testing.T) {
	logger, mem := newMemLogger(&LogCfg{LogLevel: ErrorLevel})

	e := logger.Debug()
	if e != nil {
		t.Fatalf("expected nil event for disabled level")
	}
	e.Str("a", "b").Int("c", 1).Object(testObj{}).Err(errors.New("x")).Msg("dropped")
	e.Msgf("%d", 1)

	if got := len(mem.all()); got != 0 {
		t.Fatalf("expected nothing written, got %d lines", got)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	logger, mem := newMemLogger(&LogCfg{LogLevel: WarnLevel})

	logger.Debug().Msg("debug")
	logger.Info().Msg("info")
	logger.Warn().Msg("warn")
	logger.Error().Msg("error")

	lines := mem.all()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}

	logger.SetLevel(DebugLevel)
	logger.Debug().Msg("debug2")
	if len(mem.all()) != 3 {
		t.Fatalf("expected debug after SetLevel")
	}
}

func TestLogger_FatalPanics(t *testing.T) {
	logger, mem := newMemLogger(&LogCfg{LogLevel: InfoLevel})
	defer func() {
		if recover() == nil {
			t.Fatal("expected Fatal to panic")
		}
		if len(mem.all()) != 1 {
			t.Fatal("fatal line must be written before panicking")
		}
	}()
	logger.Fatal().Msg("fatal")
}

func TestLogger_CallerInfo(t *testing.T) {
	logger, mem := newMemLogger(&LogCfg{LogLevel: InfoLevel, EnabledCallerInfo: true})
	logger.Info().Msg("with caller")

	m := decodeLine(t, mem.all()[0])
	caller, _ := m["caller"].(string)
	if !strings.Contains(caller, "log/logger_test.go:") || !strings.Contains(caller, "TestLogger_CallerInfo") {
		t.Fatalf("unexpected caller %q", caller)
	}
}

// TestLogger_LevelChange 按文件行号提升单条日志的等级
func TestLogger_LevelChange(t *testing.T) {
	logger, mem := newMemLogger(&LogCfg{LogLevel: InfoLevel})

	logger.Debug().Msg("untargeted")
	if len(mem.all()) != 0 {
		t.Fatalf("debug must be filtered without override")
	}

	_, file, line, _ := runtime.Caller(0)
	short := filepath.Base(filepath.Dir(file)) + "/" + filepath.Base(file)
	logger.updateConfig(&LogCfg{LogLevel: InfoLevel, LevelChange: []LevelChangeEntry{{File: short, Line: line + 3, Level: WarnLevel}}})
	logger.Debug().Msg("targeted")
	logger.Debug().Msg("still filtered")

	lines := mem.all()
	if len(lines) != 1 {
		t.Fatalf("expected only the targeted statement, got %v", lines)
	}
	m := decodeLine(t, lines[0])
	if m["msg"] != "targeted" || m["level"] != "warn" {
		t.Fatalf("unexpected line %v", m)
	}

	lc := newLevelChange([]LevelChangeEntry{{File: "log/x.go", Line: 10, Level: ErrorLevel}})
	if got := lc.GetLevel("log/x.go", 11, DebugLevel); got != DebugLevel {
		t.Fatalf("unmatched level = %v", got)
	}
	if !newLevelChange(nil).Empty() {
		t.Fatal("nil entries must be empty")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"fatal", FatalLevel, false},
		{"verbose", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	var lv Level
	if err := lv.UnmarshalText([]byte("warn")); err != nil || lv != WarnLevel {
		t.Errorf("UnmarshalText: %v %v", lv, err)
	}
	if WarnLevel.String() != "warn" || Level(9).String() != "level(9)" {
		t.Errorf("unexpected String output")
	}
}

func TestLogCfg_Validate(t *testing.T) {
	if err := (&LogCfg{FileAppender: true}).Validate(); err == nil {
		t.Error("file appender without path must fail")
	}
	if err := (&LogCfg{LogLevel: Level(7)}).Validate(); err == nil {
		t.Error("invalid level must fail")
	}
	if err := (&LogCfg{FileSplitMB: -1}).Validate(); err == nil {
		t.Error("negative split must fail")
	}
	if err := getDefaultCfg().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if (&LogCfg{}).GetName() != "logger" {
		t.Error("unexpected config name")
	}
}

func TestFileAppender_WriteAndLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	logger := NewLogger(&LogCfg{LogLevel: InfoLevel, FileAppender: true, LogPath: path})

	logger.Info().Msg("logger-file-test")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file failed: %v", err)
	}
	if !strings.Contains(string(data), "logger-file-test") {
		t.Fatalf("expected file to contain message, got: %q", string(data))
	}
}

// TestFileAppender_Concurrency 高并发写入下异步 FileAppender 不丢日志
func TestFileAppender_Concurrency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.log")
	logger := NewLogger(&LogCfg{LogLevel: InfoLevel, FileAppender: true, LogPath: path, IsAsync: true, AsyncCacheSize: 64})

	var wg sync.WaitGroup
	goroutines, perG := 8, 200
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				logger.Info().Int("g", id).Int("j", j).Msg("concurrent-file-test")
			}
		}(i)
	}
	wg.Wait()
	logger.Refresh()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file failed: %v", err)
	}
	if occ := strings.Count(string(data), "concurrent-file-test"); occ != goroutines*perG {
		t.Fatalf("expected %d occurrences, got %d", goroutines*perG, occ)
	}
}

// TestRefresh_DrainsOnlyQueued Refresh 只落盘当前队列，不会阻塞
func TestRefresh_DrainsOnlyQueued(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresh.log")
	logger := NewLogger(&LogCfg{LogLevel: InfoLevel, FileAppender: true, LogPath: path, IsAsync: true, AsyncWriteMillSec: 10000})

	for i := 0; i < 5; i++ {
		logger.Info().Msg("refresh-test")
	}
	start := time.Now()
	logger.Refresh()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Refresh took too long: %v", elapsed)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file failed: %v", err)
	}
	if strings.Count(string(data), "refresh-test") != 5 {
		t.Fatalf("expected 5 lines after refresh, got %q", string(data))
	}
}

// TestRotateBySize 日志文件按大小轮转
func TestRotateBySize(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")
	logger := NewLogger(&LogCfg{LogLevel: InfoLevel, FileAppender: true, LogPath: logPath, FileSplitMB: 1})

	payload := strings.Repeat("A", 1024)
	for i := 0; i < 1100; i++ {
		logger.Info().Msg(payload)
	}
	logger.Refresh()

	files, err := filepath.Glob(filepath.Join(dir, "test.log*"))
	if err != nil {
		t.Fatalf("failed to list log files: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("expected rotation, got files %v", files)
	}
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			t.Fatalf("stat %s: %v", file, err)
		}
		if info.Size() > 1<<20 {
			t.Fatalf("log file %s exceeds 1MB: %d bytes", file, info.Size())
		}
	}
}

func TestClientLogger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.log")
	cfg := &LogCfg{
		LogLevel:        WarnLevel,
		FileAppender:    true,
		LogPath:         path,
		ClientFileLog:   true,
		ClientWhiteList: []string{"vip"},
	}

	vip := NewClientLogger(cfg, "vip")
	other := NewClientLogger(cfg, "other")
	if !vip.IgnoreCheckLevel() || other.IgnoreCheckLevel() {
		t.Fatal("whitelist not applied")
	}
	if vip.ClientID() != "vip" {
		t.Fatal("unexpected client id")
	}

	vip.Debug().Msg("vip-debug")
	other.Debug().Msg("other-debug")
	other.Warn().Msg("other-warn")
	vip.Refresh()
	other.Refresh()

	main, _ := os.ReadFile(path)
	if !strings.Contains(string(main), "vip-debug") || strings.Contains(string(main), "other-debug") {
		t.Fatalf("main log content unexpected: %q", main)
	}
	if !strings.Contains(string(main), `"client":"other"`) {
		t.Fatalf("client field missing: %q", main)
	}

	own, err := os.ReadFile(ClientLogPath(path, "other"))
	if err != nil {
		t.Fatalf("client file missing: %v", err)
	}
	if !strings.Contains(string(own), "other-warn") {
		t.Fatalf("client file content unexpected: %q", own)
	}

	if got := ClientLogPath("/var/log/app.log", "abc"); got != "/var/log/app_abc.log" {
		t.Fatalf("ClientLogPath = %s", got)
	}
}

// MockConfigManager is a minimal config.ConfigManager for hot reload tests.
type MockConfigManager struct {
	mu        sync.Mutex
	configs   map[string]config.Config
	listeners []config.ConfigChangeListener
}

func NewMockConfigManager() *MockConfigManager {
	return &MockConfigManager{configs: make(map[string]config.Config)}
}

func (m *MockConfigManager) GetConfig(name string) (config.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.configs[name]; ok {
		return cfg, nil
	}
	return nil, fmt.Errorf("config %s not found", name)
}

func (m *MockConfigManager) AddChangeListener(l config.ConfigChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *MockConfigManager) RemoveChangeListener(config.ConfigChangeListener) {}

func (m *MockConfigManager) NotifyConfigChanged(name string, newConfig, oldConfig config.Config) {
	m.mu.Lock()
	m.configs[name] = newConfig
	listeners := append([]config.ConfigChangeListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		_ = l.OnConfigChanged(name, newConfig, oldConfig)
	}
}

func (m *MockConfigManager) LoadConfig(name string, cfg config.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.configs[name]
	if !ok {
		return config.ErrNotFound
	}
	if src, ok := stored.(*LogCfg); ok {
		if dst, ok := cfg.(*LogCfg); ok {
			*dst = *src
		}
	}
	return nil
}

func (m *MockConfigManager) SetConfig(name string, cfg config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[name] = cfg
}

func (m *MockConfigManager) SetBasePath(string)    {}
func (m *MockConfigManager) SetEnvironment(string) {}
func (m *MockConfigManager) Close() error          { return nil }

func TestLoggerHotReload(t *testing.T) {
	mgr := NewMockConfigManager()
	logger := NewLoggerWithConfigManager(&LogCfg{LogLevel: InfoLevel}, mgr)
	mem := &memAppender{}
	logger.AddAppender(mem)

	logger.Debug().Msg("before")
	mgr.NotifyConfigChanged("logger", &LogCfg{LogLevel: DebugLevel}, logger.GetCurrentConfig())
	logger.Debug().Msg("after")

	if logger.GetCurrentConfig().LogLevel != DebugLevel {
		t.Fatalf("level not reloaded")
	}
	lines := mem.all()
	if len(lines) != 1 || !strings.Contains(lines[0], "after") {
		t.Fatalf("unexpected lines %v", lines)
	}

	// other configuration names are ignored
	if err := logger.OnConfigChanged("dispatcher", &LogCfg{LogLevel: ErrorLevel}, nil); err != nil {
		t.Fatal(err)
	}
	if logger.GetCurrentConfig().LogLevel != DebugLevel {
		t.Fatal("unrelated config must not apply")
	}
}

func TestLoggerHotReloadConcurrent(t *testing.T) {
	logger := NewLoggerWithConfigManager(&LogCfg{LogLevel: InfoLevel}, NewMockConfigManager())
	logger.AddAppender(&memAppender{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(level Level) {
			defer wg.Done()
			_ = logger.OnConfigChanged("logger", &LogCfg{LogLevel: level, EnabledCallerInfo: level == DebugLevel}, nil)
		}(Level(i % 3))
		go func() {
			defer wg.Done()
			logger.Warn().Msg("during reload")
		}()
	}
	wg.Wait()

	if logger.GetCurrentConfig() == nil {
		t.Error("config must not be nil after concurrent updates")
	}
}

func TestFileAppenderConfigChange(t *testing.T) {
	dir := t.TempDir()
	mgr := NewMockConfigManager()
	initial := &LogCfg{LogPath: filepath.Join(dir, "initial.log"), FileAppender: true}
	mgr.SetConfig("logger", initial)

	appender := NewFileAppenderWithConfigManager(mgr)
	defer appender.Close()

	if appender.GetCurrentConfig().LogPath != initial.LogPath {
		t.Fatalf("unexpected initial path")
	}
	if _, err := appender.Write([]byte("first\n")); err != nil {
		t.Fatal(err)
	}

	next := &LogCfg{LogPath: filepath.Join(dir, "next.log"), FileAppender: true, IsAsync: true}
	mgr.NotifyConfigChanged("logger", next, initial)
	if _, err := appender.Write([]byte("second\n")); err != nil {
		t.Fatal(err)
	}
	appender.Refresh()

	first, _ := os.ReadFile(initial.LogPath)
	second, _ := os.ReadFile(next.LogPath)
	if string(first) != "first\n" || string(second) != "second\n" {
		t.Fatalf("unexpected contents %q / %q", first, second)
	}

	if err := appender.OnConfigChanged("logger", &DispatcherLikeCfg{}, nil); err == nil {
		t.Fatal("expected type error")
	}
}

// DispatcherLikeCfg is some other configuration type.
type DispatcherLikeCfg struct{}

func (c *DispatcherLikeCfg) GetName() string { return "logger" }
func (c *DispatcherLikeCfg) Validate() error { return nil }

func TestInitializeWithConfigManager(t *testing.T) {
	prev := defaultLogger()
	defer SetDefaultLogger(prev)

	// missing file keeps defaults
	mgr := NewMockConfigManager()
	if err := InitializeWithConfigManager(mgr); err != nil {
		t.Fatalf("missing logger config should not fail: %v", err)
	}
	if defaultLogger().GetCurrentConfig().LogLevel != getDefaultCfg().LogLevel {
		t.Fatal("expected default level")
	}

	mgr.SetConfig("logger", &LogCfg{LogLevel: ErrorLevel})
	if err := InitializeWithConfigManager(mgr); err != nil {
		t.Fatal(err)
	}
	if defaultLogger().GetCurrentConfig().LogLevel != ErrorLevel {
		t.Fatal("expected loaded level")
	}
	if Info() != nil {
		t.Fatal("info must be disabled at error level")
	}
	if err := InitializeWithConfigManager(nil); err != nil {
		t.Fatal(err)
	}
}
