package fixer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"liuops/internal/config"
	"liuops/internal/diagnose"
	"liuops/internal/gateway/database"
	"liuops/internal/logger"
)

// 中文说明：
// 修复引擎：读取已持久化的诊断报告，执行三类修复动作——
// 环境变量持久化改写、重复批次清理、tradeplan 内容覆写。

// Deduper 是去重动作对仓库的最小依赖。
type Deduper interface {
	CleanupDuplicateBatch(ctx context.Context, batchID string) (database.CleanupResult, error)
}

// EnvEdit 是环境编辑器提交的新值。
type EnvEdit struct {
	DSN          string
	TradeplanDir string
	LogLevel     string
}

// 追踪变量在 shell profile 中的行前缀（用于安全识别与替换）。
var exportPrefixes = []string{
	"export " + config.EnvDSN + "=",
	"export " + config.EnvTradeplanDir + "=",
	"export " + config.EnvLogLevel + "=",
}

// WriteEnvExports 把三个追踪变量持久化到 shell profile：
// 先移除同名变量的旧 export 行，再统一追加新行。profile 不存在时新建。
func WriteEnvExports(profilePath string, edit EnvEdit) error {
	var lines []string
	data, err := os.ReadFile(profilePath)
	switch {
	case err == nil:
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	case os.IsNotExist(err):
		// 新建空 profile
	default:
		return fmt.Errorf("读取 %s 失败: %w", profilePath, err)
	}

	kept := lines[:0]
	for _, line := range lines {
		if hasExportPrefix(line) {
			continue
		}
		kept = append(kept, line)
	}
	kept = append(kept,
		fmt.Sprintf(`export %s="%s"`, config.EnvDSN, edit.DSN),
		fmt.Sprintf(`export %s="%s"`, config.EnvTradeplanDir, edit.TradeplanDir),
		fmt.Sprintf(`export %s="%s"`, config.EnvLogLevel, edit.LogLevel),
	)

	out := strings.Join(kept, "\n") + "\n"
	if err := os.WriteFile(profilePath, []byte(out), 0o644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", profilePath, err)
	}
	logger.Infof("✓ 环境变量已写入 %s（新开 shell 生效）", profilePath)
	return nil
}

func hasExportPrefix(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, p := range exportPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// CleanupDuplicateBatch 校验报告中该批次确有重复后执行清理事务。
// 事务语义由仓库保证：任一步失败即整体回滚，不会留下孤儿 trades。
func CleanupDuplicateBatch(ctx context.Context, report *diagnose.Report, store Deduper, batchID string) (database.CleanupResult, error) {
	if report == nil {
		return database.CleanupResult{}, fmt.Errorf("诊断报告为空——请先运行诊断")
	}
	var found *database.BatchSummary
	for i := range report.Batches {
		if report.Batches[i].BatchID == batchID {
			found = &report.Batches[i]
			break
		}
	}
	if found == nil {
		return database.CleanupResult{}, fmt.Errorf("报告中不存在 batch_id '%s'", batchID)
	}
	if found.RunCount <= 1 {
		return database.CleanupResult{}, fmt.Errorf("batch_id '%s' 无重复（run_count=%d）", batchID, found.RunCount)
	}
	result, err := store.CleanupDuplicateBatch(ctx, batchID)
	if err != nil {
		return database.CleanupResult{}, fmt.Errorf("清理 batch_id '%s' 失败: %w", batchID, err)
	}
	logger.Infof("✓ 已清理 batch_id '%s'：删除 %d 个 run、%d 条 trade", batchID, result.RunsDeleted, result.TradesDeleted)
	return result, nil
}

// ReadTradeplan 读取 tradeplan.toml 原文（编辑页回显用）。
func ReadTradeplan(dir string) (string, error) {
	data, err := os.ReadFile(config.TradeplanPath(dir))
	if err != nil {
		return "", fmt.Errorf("读取 tradeplan 失败: %w", err)
	}
	return string(data), nil
}

// SaveTradeplan 用用户提交的原文覆写 tradeplan.toml。
// 写入前不做语义校验（已知风险，由下一轮诊断兜底）。
func SaveTradeplan(dir, content string) error {
	if err := os.WriteFile(config.TradeplanPath(dir), []byte(content), 0o644); err != nil {
		return fmt.Errorf("保存 tradeplan 失败: %w", err)
	}
	return nil
}
