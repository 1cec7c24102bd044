package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"liuops/internal/config"
	"liuops/internal/logger"
)

// 入口程序：
// 1) 加载 .env（可选）并快照环境变量
// 2) 按 TLOG_LEVEL 设置日志级别
// 3) 分发到 diagnose / fix / backtest / fixbot / serve 子命令
var rootCmd = &cobra.Command{
	Use:   "liuops",
	Short: "LiuAlgoTrader diagnostics and remediation toolkit",
	Long: `liuops inspects a LiuAlgoTrader deployment (environment, database,
tradeplan, engine importability), persists a JSON report, and applies
targeted fixes: environment exports, duplicate batch cleanup and
tradeplan defaults.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadDotEnv()
		logger.SetLevel(os.Getenv(config.EnvLogLevel))
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext 返回 Ctrl+C / SIGTERM 可取消的上下文。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// engineLogLevel 透传给回测子进程的级别：优先 TLOG_LEVEL，缺省跟随本进程。
func engineLogLevel(env config.EnvSnapshot) string {
	if lvl := env.LogLevel(); lvl != "" {
		return lvl
	}
	return logger.CurrentLevel()
}
