package diagnose

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"liuops/internal/gateway/database"
)

// ErrNoReport 表示报告文件尚不存在——调用方应提示"先运行诊断"，而非按故障处理。
var ErrNoReport = errors.New("diagnostics report not found")

// Report 是一次完整诊断的不可变产物，按原样持久化。
// issues 在单次收集中只追加，报告建成后不再变更。
type Report struct {
	Env       map[string]string          `json:"env"`
	Issues    []string                   `json:"issues"`
	Batches   []database.BatchSummary    `json:"batches"`
	Backtests []database.BacktestSummary `json:"backtests"`
	Timestamp time.Time                  `json:"timestamp"`
}

// NewReport 在构造时归一化：切片非 nil、时间取 UTC 并截断到秒，
// 保证 save/load 往返逐字段一致。
func NewReport(env map[string]string, issues []string, batches []database.BatchSummary, backtests []database.BacktestSummary, ts time.Time) *Report {
	if env == nil {
		env = map[string]string{}
	}
	if issues == nil {
		issues = []string{}
	}
	if batches == nil {
		batches = []database.BatchSummary{}
	}
	if backtests == nil {
		backtests = []database.BacktestSummary{}
	}
	return &Report{
		Env:       env,
		Issues:    issues,
		Batches:   batches,
		Backtests: backtests,
		Timestamp: ts.UTC().Truncate(time.Second),
	}
}

// Healthy 无任何问题时为真。
func (r *Report) Healthy() bool { return len(r.Issues) == 0 }

// DuplicateBatches 返回 run_count>1 的批次（修复页候选）。
func (r *Report) DuplicateBatches() []database.BatchSummary {
	var out []database.BatchSummary
	for _, b := range r.Batches {
		if b.RunCount > 1 {
			out = append(out, b)
		}
	}
	return out
}

// SaveReport 将报告序列化为带缩进的 JSON 写入 path。
func SaveReport(r *Report, path string) error {
	if r == nil {
		return fmt.Errorf("report 为空")
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化报告失败: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("写入报告失败: %w", err)
	}
	return nil
}

// LoadReport 读取并解析报告；文件缺失时返回 ErrNoReport。
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoReport, path)
		}
		return nil, fmt.Errorf("读取报告失败: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("解析报告失败: %w", err)
	}
	return NewReport(r.Env, r.Issues, r.Batches, r.Backtests, r.Timestamp), nil
}
