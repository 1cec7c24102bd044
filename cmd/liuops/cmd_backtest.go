package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"liuops/internal/config"
	"liuops/internal/executor/backtest"
	"liuops/internal/logger"
	"liuops/internal/symbols"
)

var (
	backtestSymbols     string
	backtestStartDate   string
	backtestEndDate     string
	backtestBatchID     string
	backtestDiagnostics string
)

// backtestCmd 组装并执行一次引擎回测，引擎退出码原样透传。
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Invoke the backtest engine against the current tradeplan",
	Long: `Invoke the external backtest engine with the tradeplan from
TRADEPLAN_DIR. The engine's stdout/stderr are streamed through and its
exit code becomes this command's exit code.

Example:
  liuops backtest --symbols AAPL,TSLA --start-date 2026-07-01 --end-date 2026-07-31`,
	Run: runBacktest,
}

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&backtestSymbols, "symbols", "AAPL", "Comma separated symbol list")
	backtestCmd.Flags().StringVar(&backtestStartDate, "start-date", "", "Backtest window start (YYYY-MM-DD, default 30 days ago)")
	backtestCmd.Flags().StringVar(&backtestEndDate, "end-date", "", "Backtest window end (YYYY-MM-DD, default today)")
	backtestCmd.Flags().StringVar(&backtestBatchID, "batch-id", "", "Batch identifier (generated when empty)")
	backtestCmd.Flags().StringVar(&backtestDiagnostics, "diagnostics", "", "Diagnostics report to forward to the engine")
}

func defaultDates() (string, string) {
	now := time.Now().UTC()
	return now.AddDate(0, 0, -30).Format("2006-01-02"), now.Format("2006-01-02")
}

func runBacktest(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	env := config.CaptureEnv()
	dir := env.TradeplanDir()
	if dir == "" {
		fmt.Fprintln(os.Stderr, "Error: TRADEPLAN_DIR not set")
		os.Exit(1)
	}

	syms, err := symbols.Normalize(backtestSymbols)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	start, end := backtestStartDate, backtestEndDate
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
	params := backtest.Params{
		Tradeplan:   config.TradeplanPath(dir),
		Symbols:     strings.Join(syms, ","),
		StartDate:   start,
		EndDate:     end,
		BatchID:     backtestBatchID,
		Diagnostics: backtestDiagnostics,
		LogLevel:    engineLogLevel(env),
	}
	result, err := invoker.Run(ctx, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if result.Stdout != "" {
		fmt.Fprint(os.Stdout, result.Stdout)
	}
	if result.Stderr != "" {
		fmt.Fprint(os.Stderr, result.Stderr)
	}
	if result.ExitCode != 0 {
		logger.Warnf("回测引擎退出码 %d", result.ExitCode)
		os.Exit(result.ExitCode)
	}
}
