package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"liuops/internal/config"
	"liuops/internal/diagnose"
	"liuops/internal/fixer"
	"liuops/internal/gateway/database"
	"liuops/internal/logger"
)

var (
	fixReportPath  string
	fixProfilePath string

	fixEnvDSN          string
	fixEnvTradeplanDir string
	fixEnvLogLevel     string
)

// fixCmd 下挂具体修复动作，全部以最近一次诊断报告为准。
var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Apply targeted fixes from the latest diagnostics report",
}

var fixEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "Rewrite environment variable exports in the shell profile",
	Long: `Replace the managed export lines (DSN, TRADEPLAN_DIR, TLOG_LEVEL) in the
shell profile with the given values. Unrelated lines are preserved.

Example:
  liuops fix env --dsn postgresql://localhost/tradedb --tradeplan-dir ~/plans`,
	RunE: runFixEnv,
}

var fixDedupeCmd = &cobra.Command{
	Use:   "dedupe <batch-id>",
	Short: "Delete superseded runs of a duplicated batch",
	Long: `Remove every run of the batch except the most recent one, together with
the trades attached to the removed runs. The batch must appear as a
duplicate in the latest diagnostics report.`,
	Args: cobra.ExactArgs(1),
	RunE: runFixDedupe,
}

var fixTradeplanCmd = &cobra.Command{
	Use:   "tradeplan",
	Short: "Append missing default sections to tradeplan.toml",
	Long: `Append the default [data] source and a mean-reversion strategy block to
tradeplan.toml when they are missing. Existing content is never touched;
running twice is a no-op.`,
	RunE: runFixTradeplan,
}

func init() {
	rootCmd.AddCommand(fixCmd)
	fixCmd.AddCommand(fixEnvCmd)
	fixCmd.AddCommand(fixDedupeCmd)
	fixCmd.AddCommand(fixTradeplanCmd)

	fixCmd.PersistentFlags().StringVar(&fixReportPath, "report", "diagnostics.json", "Diagnostics report path")
	fixEnvCmd.Flags().StringVar(&fixProfilePath, "profile", "", "Shell profile to edit (default ~/.bashrc)")
	fixEnvCmd.Flags().StringVar(&fixEnvDSN, "dsn", "", "Database connection string")
	fixEnvCmd.Flags().StringVar(&fixEnvTradeplanDir, "tradeplan-dir", "", "Directory containing tradeplan.toml")
	fixEnvCmd.Flags().StringVar(&fixEnvLogLevel, "log-level", "INFO", "Engine log level")
}

func loadLatestReport() (*diagnose.Report, error) {
	report, err := diagnose.LoadReport(fixReportPath)
	if err != nil {
		return nil, fmt.Errorf("load %s (run 'liuops diagnose' first): %w", fixReportPath, err)
	}
	return report, nil
}

func runFixEnv(cmd *cobra.Command, args []string) error {
	profile := fixProfilePath
	if profile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		profile = home + "/.bashrc"
	}
	edit := fixer.EnvEdit{
		DSN:          fixEnvDSN,
		TradeplanDir: fixEnvTradeplanDir,
		LogLevel:     fixEnvLogLevel,
	}
	if err := fixer.WriteEnvExports(profile, edit); err != nil {
		return err
	}
	fmt.Printf("✅ Updated %s — open a new shell (or 'source %s') to apply.\n", profile, profile)
	return nil
}

func runFixDedupe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	report, err := loadLatestReport()
	if err != nil {
		return err
	}
	dsn := config.CaptureEnv().DSN()
	if dsn == "" {
		return fmt.Errorf("DSN not set")
	}
	store, err := database.Open(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	batchID := args[0]
	result, err := fixer.CleanupDuplicateBatch(ctx, report, store, batchID)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Cleaned up '%s': removed %d run(s) and %d trade(s). Re-run diagnose to confirm.\n",
		batchID, result.RunsDeleted, result.TradesDeleted)
	return nil
}

func runFixTradeplan(cmd *cobra.Command, args []string) error {
	dir := config.CaptureEnv().TradeplanDir()
	if dir == "" {
		return fmt.Errorf("TRADEPLAN_DIR not set")
	}
	path := config.TradeplanPath(dir)
	changed, err := fixer.InjectDefaults(path)
	if err != nil {
		return err
	}
	if !changed {
		logger.Infof("tradeplan.toml 已齐备，无需修改")
		fmt.Println("tradeplan.toml already has the default sections.")
		return nil
	}
	fmt.Printf("✅ Appended default sections to %s.\n", path)
	return nil
}
