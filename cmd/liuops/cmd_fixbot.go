package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"liuops/internal/config"
	"liuops/internal/diagnose"
	"liuops/internal/executor/backtest"
	"liuops/internal/fixer"
	"liuops/internal/gateway/database"
	"liuops/internal/logger"
)

var (
	fixbotSymbols   string
	fixbotStartDate string
	fixbotEndDate   string
	fixbotReport    string
)

// fixbotCmd 无人值守修复流程：
// 1) tradeplan 缺失 → 退出码 1
// 2) 注入缺省 [data]/策略块
// 3) 诊断并自动清理重复批次
// 4) 跑一次回测，引擎非零退出码原样透传
// 5) 复诊仍有问题 → 退出码 3，否则 0
var fixbotCmd = &cobra.Command{
	Use:   "fixbot",
	Short: "Unattended fix-and-verify loop",
	Long: `Run the whole remediation pipeline without prompts: ensure the
tradeplan has the default sections, clean up every duplicated batch,
run a verification backtest and re-check diagnostics.

Exit codes: 0 healthy, 1 tradeplan missing, 3 issues remain after
remediation; a failing engine run exits with the engine's own code.`,
	Run: runFixbot,
}

func init() {
	rootCmd.AddCommand(fixbotCmd)

	fixbotCmd.Flags().StringVar(&fixbotSymbols, "symbols", "AAPL", "Comma separated symbol list for the verification backtest")
	fixbotCmd.Flags().StringVar(&fixbotStartDate, "start-date", "", "Backtest window start (default 30 days ago)")
	fixbotCmd.Flags().StringVar(&fixbotEndDate, "end-date", "", "Backtest window end (default today)")
	fixbotCmd.Flags().StringVar(&fixbotReport, "report", "diagnostics.json", "Diagnostics report path")
}

func runFixbot(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	env := config.CaptureEnv()
	dir := env.TradeplanDir()
	if dir == "" {
		fmt.Fprintln(os.Stderr, "Error: TRADEPLAN_DIR not set")
		os.Exit(1)
	}
	path := config.TradeplanPath(dir)
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: tradeplan.toml not found in %s\n", dir)
		os.Exit(1)
	}

	if changed, err := fixer.InjectDefaults(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	} else if changed {
		logger.Infof("✓ 已补全 tradeplan 缺省段")
	}

	collector := newCollector()
	report := collector.Collect(ctx, true)
	saveFixbotReport(report)
	cleanupDuplicates(ctx, env, report)

	start, end := fixbotStartDate, fixbotEndDate
	if start == "" || end == "" {
		defStart, defEnd := defaultDates()
		if start == "" {
			start = defStart
		}
		if end == "" {
			end = defEnd
		}
	}
	invoker := backtest.NewInvoker(nil)
	result, err := invoker.Run(ctx, backtest.Params{
		Tradeplan:   path,
		Symbols:     fixbotSymbols,
		StartDate:   start,
		EndDate:     end,
		Diagnostics: fixbotReport,
		LogLevel:    engineLogLevel(env),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if result.ExitCode != 0 {
		if result.Stderr != "" {
			fmt.Fprint(os.Stderr, result.Stderr)
		}
		logger.Errorf("验证回测失败，引擎退出码 %d", result.ExitCode)
		os.Exit(result.ExitCode)
	}
	logger.Infof("✓ 验证回测通过")

	report = collector.Collect(ctx, true)
	saveFixbotReport(report)
	if !report.Healthy() {
		fmt.Printf("Found %d remaining issue(s):\n", len(report.Issues))
		for i, issue := range report.Issues {
			fmt.Printf("  %d. %s\n", i+1, issue)
		}
		os.Exit(3)
	}
	fmt.Println("No issues detected! 🎉")
}

func saveFixbotReport(report *diagnose.Report) {
	if err := diagnose.SaveReport(report, fixbotReport); err != nil {
		logger.Warnf("落盘诊断报告失败: %v", err)
	}
}

// cleanupDuplicates 尽力清理，单个批次失败不阻断流程（复诊会再暴露）。
func cleanupDuplicates(ctx context.Context, env config.EnvSnapshot, report *diagnose.Report) {
	dupes := report.DuplicateBatches()
	if len(dupes) == 0 {
		return
	}
	dsn := env.DSN()
	if dsn == "" {
		logger.Warnf("存在重复批次但 DSN 未配置，跳过清理")
		return
	}
	store, err := database.Open(dsn)
	if err != nil {
		logger.Warnf("打开数据库失败，跳过清理: %v", err)
		return
	}
	defer store.Close()
	for _, b := range dupes {
		result, err := fixer.CleanupDuplicateBatch(ctx, report, store, b.BatchID)
		if err != nil {
			logger.Warnf("清理批次 %s 失败: %v", b.BatchID, err)
			continue
		}
		logger.Infof("✓ 已清理批次 %s（run −%d，trade −%d）", b.BatchID, result.RunsDeleted, result.TradesDeleted)
	}
}
