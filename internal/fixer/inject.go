package fixer

import (
	"fmt"
	"os"
	"strings"

	"liuops/internal/logger"
)

// 默认注入块：缺 [data] 时补数据源，缺默认策略时补均值回归。
// 标记文本已存在时跳过，注入只追加、绝不重复。

const (
	dataMarker     = "[data]"
	strategyMarker = "mean_reversion_auto"
)

const dataBlock = `[data]
source = "yahoo"   # no API key required
`

const strategyBlock = `[[strategies]]
name   = "mean_reversion_auto"
module = "liualgotrader.strategies.mean_reversion"
  [strategies.settings]
  lookback       = 20
  threshold      = 1.5
  allocation_pct = 0.2

[[strategies.schedule]]
start    = 0
duration = 390
`

// InjectDefaults 向 tradeplan 追加缺失的默认块，返回是否发生写入。
// 两个标记均已存在时文件保持原样（幂等）。
func InjectDefaults(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("读取 tradeplan 失败: %w", err)
	}
	text := string(data)

	var toAdd string
	if !strings.Contains(text, dataMarker) {
		logger.Infof("✨ 注入 [data] 块")
		toAdd += "\n" + dataBlock
	} else {
		logger.Debugf("[data] 已存在，跳过")
	}
	if !strings.Contains(text, strategyMarker) {
		logger.Infof("✨ 追加默认策略块")
		toAdd += "\n" + strategyBlock
	} else {
		logger.Debugf("策略 %s 已存在，跳过", strategyMarker)
	}
	if toAdd == "" {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(text+toAdd), 0o644); err != nil {
		return false, fmt.Errorf("写入 tradeplan 失败: %w", err)
	}
	return true, nil
}
