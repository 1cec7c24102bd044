package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"liuops/internal/config"
	"liuops/internal/diagnose"
	"liuops/internal/executor/backtest"
	"liuops/internal/logger"
	"liuops/internal/pkg/jsonutil"
)

var (
	diagnoseForce  bool
	diagnoseOutput string
	diagnoseJSON   bool
)

// diagnoseCmd 采集一次完整诊断并落盘 JSON 报告。
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Collect environment, database and tradeplan diagnostics",
	Long: `Collect a full diagnostics snapshot: tracked environment variables,
database connectivity and schema, duplicate/empty batches, tradeplan
validation and engine importability. The report is written to a JSON
file consumed by 'liuops fix' and the dashboard.

Examples:
  liuops diagnose
  liuops diagnose --force --output /tmp/diagnostics.json
  liuops diagnose --json`,
	RunE: runDiagnose,
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)

	diagnoseCmd.Flags().BoolVar(&diagnoseForce, "force", false, "Bypass the collection cache")
	diagnoseCmd.Flags().StringVar(&diagnoseOutput, "output", "diagnostics.json", "Report destination path")
	diagnoseCmd.Flags().BoolVar(&diagnoseJSON, "json", false, "Print the report as JSON instead of a summary")
}

func newCollector() *diagnose.Collector {
	return diagnose.NewCollector(config.CaptureEnv(), diagnose.Options{
		Importer: backtest.NewInvoker(nil),
	})
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	report := newCollector().Collect(ctx, diagnoseForce)
	if err := diagnose.SaveReport(report, diagnoseOutput); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Infof("✓ 报告已写入 %s", diagnoseOutput)

	if diagnoseJSON {
		fmt.Fprintln(os.Stdout, jsonutil.Pretty(jsonutil.MustMarshal(report)))
		return nil
	}
	printReportSummary(report)
	return nil
}

func printReportSummary(report *diagnose.Report) {
	fmt.Printf("Diagnostics @ %s\n\n", report.Timestamp.Format(time.RFC3339))
	fmt.Println("Environment:")
	for _, name := range config.TrackedVars {
		val := report.Env[name]
		if val == "" {
			val = "(not set)"
		}
		fmt.Printf("  %-14s %s\n", name, val)
	}
	fmt.Println()
	if len(report.Batches) > 0 {
		fmt.Println("Batches:")
		for _, b := range report.Batches {
			fmt.Printf("  %-40s runs=%d trades=%d\n", b.BatchID, b.RunCount, b.TradeCount)
		}
		fmt.Println()
	}
	if report.Healthy() {
		fmt.Println("No issues detected! 🎉")
		return
	}
	fmt.Printf("Found %d issue(s):\n", len(report.Issues))
	for i, issue := range report.Issues {
		fmt.Printf("  %d. %s\n", i+1, issue)
	}
}
