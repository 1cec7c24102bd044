package main

import (
	"time"

	"github.com/spf13/cobra"

	"liuops/internal/app"
)

var (
	serveAddr       string
	serveReport     string
	serveProfile    string
	serveSymbolsURL string
	serveCacheTTL   time.Duration
)

// serveCmd 启动 Web 仪表盘（诊断 / 修复 / 实时执行三页 + JSON 接口）。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the diagnostics dashboard",
	Long: `Serve the web dashboard: a diagnostics page, a fixer page for
environment/duplicate-batch/tradeplan remediation, and a live trades
page with auto-refresh and charts. JSON APIs are exposed under /api.

Example:
  liuops serve --addr :8501`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8501", "Listen address")
	serveCmd.Flags().StringVar(&serveReport, "report", "diagnostics.json", "Diagnostics report path")
	serveCmd.Flags().StringVar(&serveProfile, "profile", "", "Shell profile edited by the fixer page (default ~/.bashrc)")
	serveCmd.Flags().StringVar(&serveSymbolsURL, "symbols-url", "", "Optional HTTP endpoint providing the default symbol list")
	serveCmd.Flags().DurationVar(&serveCacheTTL, "cache-ttl", 30*time.Second, "Diagnostics collection cache TTL")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	application, err := app.NewApp(app.Options{
		Addr:        serveAddr,
		ReportPath:  serveReport,
		ProfilePath: serveProfile,
		SymbolsURL:  serveSymbolsURL,
		CacheTTL:    serveCacheTTL,
	})
	if err != nil {
		return err
	}
	return application.Run(ctx)
}
