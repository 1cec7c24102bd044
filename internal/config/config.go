package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// 诊断与修复链路追踪的三个核心环境变量。
const (
	EnvDSN          = "DSN"
	EnvTradeplanDir = "TRADEPLAN_DIR"
	EnvLogLevel     = "TLOG_LEVEL"
)

// 仪表盘展示相关的辅助变量。
const (
	EnvRefreshMS = "REFRESH_INTERVAL_MS"
	EnvMaxRows   = "MAX_ROWS"
)

// TrackedVars 是快照固定采集的变量名集合（顺序即展示顺序）。
var TrackedVars = []string{EnvDSN, EnvTradeplanDir, EnvLogLevel, EnvRefreshMS, EnvMaxRows}

// EnvSnapshot 一次诊断运行开始时对环境变量的只读快照。
// 未设置的变量统一映射为空字符串，下游检查据此判定"未配置"。
type EnvSnapshot struct {
	values map[string]string
}

// CaptureEnv 采集快照。只读取固定集合，永不失败。
func CaptureEnv() EnvSnapshot {
	values := make(map[string]string, len(TrackedVars))
	for _, name := range TrackedVars {
		values[name] = os.Getenv(name)
	}
	return EnvSnapshot{values: values}
}

// SnapshotFromMap 从既有映射构造快照（测试与报告回放用）。
func SnapshotFromMap(values map[string]string) EnvSnapshot {
	out := make(map[string]string, len(TrackedVars))
	for _, name := range TrackedVars {
		out[name] = values[name]
	}
	return EnvSnapshot{values: out}
}

// Get 返回变量值，未采集时为空字符串。
func (s EnvSnapshot) Get(name string) string {
	if s.values == nil {
		return ""
	}
	return s.values[name]
}

func (s EnvSnapshot) DSN() string          { return s.Get(EnvDSN) }
func (s EnvSnapshot) TradeplanDir() string { return s.Get(EnvTradeplanDir) }
func (s EnvSnapshot) LogLevel() string     { return s.Get(EnvLogLevel) }

// RefreshInterval 仪表盘刷新周期，默认 5s。
func (s EnvSnapshot) RefreshInterval() time.Duration {
	ms, err := strconv.Atoi(s.Get(EnvRefreshMS))
	if err != nil || ms <= 0 {
		ms = 5000
	}
	return time.Duration(ms) * time.Millisecond
}

// MaxRows 表格/图表最多展示行数，默认 50。
func (s EnvSnapshot) MaxRows() int {
	n, err := strconv.Atoi(s.Get(EnvMaxRows))
	if err != nil || n <= 0 {
		return 50
	}
	return n
}

// Map 返回快照的副本（按固定变量顺序补空）。
func (s EnvSnapshot) Map() map[string]string {
	out := make(map[string]string, len(TrackedVars))
	for _, name := range TrackedVars {
		out[name] = s.Get(name)
	}
	return out
}

// LoadDotEnv 尝试加载 .env（不存在时静默忽略），需在 CaptureEnv 之前调用。
func LoadDotEnv() {
	_ = godotenv.Load()
}
