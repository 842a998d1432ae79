package log

import "strconv"

type callerInfo struct {
	file     string
	function string
	line     int
	str      string
}

var _UnknownCallerInfo = newCallerInfo("???", "???", 0)

func newCallerInfo(file, function string, line int) *callerInfo {
	return &callerInfo{
		file:     file,
		function: function,
		line:     line,
		str:      file + ":" + strconv.Itoa(line) + " " + function,
	}
}

func (c *callerInfo) String() string {
	return c.str
}

// LevelChangeEntry raises or lowers the level of the log statement at File:Line.
type LevelChangeEntry struct {
	File  string `mapstructure:"file"`
	Line  int    `mapstructure:"line"`
	Level Level  `mapstructure:"level"`
}

type levelKey struct {
	file string
	line int
}

// levelChange holds per-statement level overrides. 按文件+行号覆盖日志等级
type levelChange struct {
	m map[levelKey]Level
}

func newLevelChange(entries []LevelChangeEntry) *levelChange {
	lc := &levelChange{m: make(map[levelKey]Level, len(entries))}
	for _, e := range entries {
		lc.m[levelKey{file: e.File, line: e.Line}] = e.Level
	}
	return lc
}

// Empty reports whether no overrides are configured.
func (lc *levelChange) Empty() bool {
	return lc == nil || len(lc.m) == 0
}

// GetLevel returns the overridden level for file:line, or level when there is none.
func (lc *levelChange) GetLevel(file string, line int, level Level) Level {
	if lc.Empty() {
		return level
	}
	if lv, ok := lc.m[levelKey{file: file, line: line}]; ok {
		return lv
	}
	return level
}
