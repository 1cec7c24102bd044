package logger

import (
	"log"
	"strings"
)

// 中文说明：
// 轻量日志封装：支持设置全局级别，便于减少刷屏。
// 级别与 TLOG_LEVEL 对齐，透传给回测子进程时用 CurrentLevel()。

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var current = LevelInfo

// SetLevel 解析级别字符串并设置全局级别，未知值回落到 info。
func SetLevel(s string) {
	current = ParseLevel(s)
}

// ParseLevel 兼容 DEBUG/INFO/WARN(ING)/ERROR/CRITICAL 等写法。
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error", "critical":
		return LevelError
	default:
		return LevelInfo
	}
}

// CurrentLevel 返回当前全局级别的大写名称（用于 --log-level 透传）。
func CurrentLevel() string {
	switch current {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func Debugf(format string, v ...any) {
	if current <= LevelDebug {
		log.Printf("[DEBUG] "+format, v...)
	}
}
func Infof(format string, v ...any) {
	if current <= LevelInfo {
		log.Printf("[INFO] "+format, v...)
	}
}
func Warnf(format string, v ...any) {
	if current <= LevelWarn {
		log.Printf("[WARN] "+format, v...)
	}
}
func Errorf(format string, v ...any) {
	if current <= LevelError {
		log.Printf("[ERROR] "+format, v...)
	}
}
