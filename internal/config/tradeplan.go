package config

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// TradeplanFile 是 tradeplan 目录内约定的配置文件名。
const TradeplanFile = "tradeplan.toml"

// Tradeplan 对应 tradeplan.toml 的结构（保留引擎关心的字段，其余透传）。
type Tradeplan struct {
	Data struct {
		Source string `toml:"source"`
	} `toml:"data"`

	Strategies []Strategy `toml:"strategies"`
}

// Strategy 表示一个 [[strategies]] 条目。
type Strategy struct {
	Name     string         `toml:"name"`
	Module   string         `toml:"module"`
	Settings map[string]any `toml:"settings"`
	Schedule []struct {
		Start    int `toml:"start"`
		Duration int `toml:"duration"`
	} `toml:"schedule"`
}

// TradeplanPath 返回目录下配置文件的完整路径。
func TradeplanPath(dir string) string {
	return filepath.Join(dir, TradeplanFile)
}

// ParseTradeplan 读取并解析 tradeplan.toml。
func ParseTradeplan(path string) (*Tradeplan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tp Tradeplan
	if err := toml.Unmarshal(data, &tp); err != nil {
		return nil, err
	}
	return &tp, nil
}

// ValidateTradeplan 按固定顺序校验 tradeplan 目录，首个失败即停：
// 1) 目录变量为空 2) 目录不存在 3) 文件缺失 4) TOML 解析失败。
// 成功时返回解析结果，失败时返回问题描述（供诊断报告收集）。
func ValidateTradeplan(dir string) (*Tradeplan, []string) {
	if dir == "" {
		return nil, []string{fmt.Sprintf("%s not set", EnvTradeplanDir)}
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, []string{fmt.Sprintf("%s does not exist: %s", EnvTradeplanDir, dir)}
	}
	path := TradeplanPath(dir)
	if _, err := os.Stat(path); err != nil {
		return nil, []string{fmt.Sprintf("%s not found in %s", TradeplanFile, dir)}
	}
	tp, err := ParseTradeplan(path)
	if err != nil {
		return nil, []string{fmt.Sprintf("Error parsing %s: %v", TradeplanFile, err)}
	}
	return tp, nil
}
