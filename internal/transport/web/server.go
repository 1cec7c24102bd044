package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"liuops/internal/config"
	"liuops/internal/diagnose"
	"liuops/internal/executor/backtest"
	"liuops/internal/fixer"
	"liuops/internal/gateway/database"
	"liuops/internal/logger"
	"liuops/internal/pkg/format"
	"liuops/internal/symbols"
)

// 中文说明：
// 仪表盘服务：诊断页、修复页、实时执行页与对应的 JSON 接口。
// 页面只做展示与转发，全部业务逻辑在 diagnose/fixer/executor 内。

var logLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR"}

// ServerConfig 汇集服务依赖。
type ServerConfig struct {
	Addr        string
	Env         config.EnvSnapshot
	Collector   *diagnose.Collector
	Invoker     *backtest.Invoker
	Store       *database.Store // DSN 未配置时为 nil
	ReportPath  string
	ProfilePath string
	Symbols     symbols.Provider
}

// Server 包装 gin 路由与 http.Server。
type Server struct {
	cfg  ServerConfig
	http *http.Server
}

// NewServer 组装路由与模板。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = ":8501"
	}
	if cfg.Collector == nil {
		return nil, fmt.Errorf("collector 未初始化")
	}
	if cfg.ReportPath == "" {
		cfg.ReportPath = "diagnostics.json"
	}
	if cfg.ProfilePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("定位 home 目录失败: %w", err)
		}
		cfg.ProfilePath = home + "/.bashrc"
	}

	funcs := template.FuncMap{
		"timestamp": format.Timestamp,
		"percent":   format.Percent,
		"money":     format.Money,
		"float":     func(v float64) string { return format.Float(v, 2) },
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(Templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("解析模板失败: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.SetHTMLTemplate(tmpl)

	s := &Server{cfg: cfg}
	s.routes(router)
	s.http = &http.Server{Addr: cfg.Addr, Handler: router}
	return s, nil
}

// Addr 返回监听地址。
func (s *Server) Addr() string { return s.cfg.Addr }

// Start 启动服务并在 ctx 取消时优雅退出。
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.ListenAndServe() }()
	logger.Infof("✓ 仪表盘监听 %s", s.cfg.Addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/", func(c *gin.Context) { c.HTML(http.StatusOK, "index.html", nil) })
	r.GET("/diagnostics", s.handleDiagnosticsPage)
	r.GET("/fixer", s.handleFixerPage)
	r.POST("/fix/env", s.handleFixEnv)
	r.POST("/fix/dedupe", s.handleFixDedupe)
	r.POST("/fix/tradeplan", s.handleFixTradeplan)
	r.GET("/trades", s.handleTradesPage)
	r.GET("/trades/charts", s.handleTradeCharts)
	r.GET("/report/download", s.handleReportDownload)

	api := r.Group("/api")
	api.GET("/diagnostics", s.handleDiagnosticsJSON)
	api.GET("/report", s.handleReportJSON)
	api.GET("/trades", s.handleTradesJSON)
	api.POST("/fix/env", s.handleFixEnvJSON)
	api.POST("/fix/dedupe", s.handleFixDedupeJSON)
	api.GET("/tradeplan", s.handleTradeplanGet)
	api.PUT("/tradeplan", s.handleTradeplanPut)
	api.POST("/backtest", s.handleBacktest)
	api.POST("/portfolio", s.handlePortfolio)
}

// collect 统一入口："Run Health Check" 始终强制全新收集，
// 普通页面加载允许命中短 TTL 缓存。收集后总是落盘。
func (s *Server) collect(c *gin.Context) *diagnose.Report {
	force := c.Query("force") == "1"
	report := s.cfg.Collector.Collect(c.Request.Context(), force)
	if err := diagnose.SaveReport(report, s.cfg.ReportPath); err != nil {
		logger.Warnf("落盘诊断报告失败: %v", err)
	}
	return report
}

func (s *Server) handleDiagnosticsPage(c *gin.Context) {
	report := s.collect(c)
	c.HTML(http.StatusOK, "diagnostics.html", gin.H{
		"Report":     report,
		"ReportPath": s.cfg.ReportPath,
	})
}

func (s *Server) handleDiagnosticsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, s.collect(c))
}

func (s *Server) handleFixerPage(c *gin.Context) {
	data := gin.H{
		"ProfilePath": s.cfg.ProfilePath,
		"LogLevels":   logLevels,
		"Message":     c.Query("msg"),
	}
	report, err := diagnose.LoadReport(s.cfg.ReportPath)
	if err != nil {
		data["Missing"] = true
		c.HTML(http.StatusOK, "fixer.html", data)
		return
	}
	data["Report"] = report
	data["Duplicates"] = report.DuplicateBatches()
	if dir := report.Env[config.EnvTradeplanDir]; dir != "" {
		if content, err := fixer.ReadTradeplan(dir); err == nil {
			data["Tradeplan"] = content
		} else {
			data["Tradeplan"] = fmt.Sprintf("# %v", err)
		}
	}
	c.HTML(http.StatusOK, "fixer.html", data)
}

func (s *Server) handleFixEnv(c *gin.Context) {
	edit := fixer.EnvEdit{
		DSN:          c.PostForm("dsn"),
		TradeplanDir: c.PostForm("tradeplan_dir"),
		LogLevel:     c.PostForm("tlog_level"),
	}
	if err := fixer.WriteEnvExports(s.cfg.ProfilePath, edit); err != nil {
		s.redirectFixer(c, fmt.Sprintf("保存失败: %v", err))
		return
	}
	s.redirectFixer(c, "✅ 已写入 "+s.cfg.ProfilePath+"，新开 shell 生效")
}

func (s *Server) handleFixDedupe(c *gin.Context) {
	batchID := c.PostForm("batch_id")
	report, err := diagnose.LoadReport(s.cfg.ReportPath)
	if err != nil {
		s.redirectFixer(c, "请先运行诊断")
		return
	}
	if s.cfg.Store == nil {
		s.redirectFixer(c, "DSN 未配置，无法清理")
		return
	}
	result, err := fixer.CleanupDuplicateBatch(c.Request.Context(), report, s.cfg.Store, batchID)
	if err != nil {
		s.redirectFixer(c, fmt.Sprintf("清理失败: %v", err))
		return
	}
	s.redirectFixer(c, fmt.Sprintf("✅ 已清理 %s（run −%d，trade −%d），请重新运行诊断确认", batchID, result.RunsDeleted, result.TradesDeleted))
}

func (s *Server) handleFixTradeplan(c *gin.Context) {
	report, err := diagnose.LoadReport(s.cfg.ReportPath)
	if err != nil {
		s.redirectFixer(c, "请先运行诊断")
		return
	}
	dir := report.Env[config.EnvTradeplanDir]
	if dir == "" {
		s.redirectFixer(c, "TRADEPLAN_DIR 未配置")
		return
	}
	if err := fixer.SaveTradeplan(dir, c.PostForm("content")); err != nil {
		s.redirectFixer(c, fmt.Sprintf("保存失败: %v", err))
		return
	}
	s.redirectFixer(c, "✅ tradeplan.toml 已保存")
}

type envEditRequest struct {
	DSN          string `json:"dsn"`
	TradeplanDir string `json:"tradeplan_dir"`
	LogLevel     string `json:"tlog_level"`
}

func (s *Server) handleFixEnvJSON(c *gin.Context) {
	var req envEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	edit := fixer.EnvEdit{DSN: req.DSN, TradeplanDir: req.TradeplanDir, LogLevel: req.LogLevel}
	if err := fixer.WriteEnvExports(s.cfg.ProfilePath, edit); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": s.cfg.ProfilePath})
}

type dedupeRequest struct {
	BatchID string `json:"batch_id"`
}

func (s *Server) handleFixDedupeJSON(c *gin.Context) {
	var req dedupeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := diagnose.LoadReport(s.cfg.ReportPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "diagnostics have never been run"})
		return
	}
	if s.cfg.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "DSN not set"})
		return
	}
	result, err := fixer.CleanupDuplicateBatch(c.Request.Context(), report, s.cfg.Store, req.BatchID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleTradeplanGet(c *gin.Context) {
	dir := s.cfg.Env.TradeplanDir()
	if dir == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": config.EnvTradeplanDir + " not set"})
		return
	}
	content, err := fixer.ReadTradeplan(dir)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}

func (s *Server) handleTradeplanPut(c *gin.Context) {
	dir := s.cfg.Env.TradeplanDir()
	if dir == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": config.EnvTradeplanDir + " not set"})
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := fixer.SaveTradeplan(dir, req.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": config.TradeplanPath(dir)})
}

func (s *Server) redirectFixer(c *gin.Context, msg string) {
	c.Redirect(http.StatusSeeOther, "/fixer?msg="+template.URLQueryEscaper(msg))
}

func (s *Server) executions(ctx context.Context) ([]database.Execution, error) {
	if s.cfg.Store == nil {
		return nil, fmt.Errorf("DSN 未配置")
	}
	return s.cfg.Store.RecentExecutions(ctx, s.cfg.Env.MaxRows())
}

func (s *Server) handleTradesPage(c *gin.Context) {
	seconds := int(s.cfg.Env.RefreshInterval().Seconds())
	if seconds < 1 {
		seconds = 1
	}
	data := gin.H{"RefreshSeconds": seconds}
	execs, err := s.executions(c.Request.Context())
	if err != nil {
		data["Error"] = err.Error()
	}
	data["Executions"] = execs
	c.HTML(http.StatusOK, "trades.html", data)
}

func (s *Server) handleTradeCharts(c *gin.Context) {
	execs, err := s.executions(c.Request.Context())
	if err != nil {
		c.String(http.StatusServiceUnavailable, "%v", err)
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := RenderTradeCharts(c.Writer, execs); err != nil {
		logger.Warnf("渲染图表失败: %v", err)
	}
}

func (s *Server) handleTradesJSON(c *gin.Context) {
	execs, err := s.executions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, execs)
}

func (s *Server) handleReportDownload(c *gin.Context) {
	if _, err := os.Stat(s.cfg.ReportPath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "diagnostics have never been run"})
		return
	}
	c.FileAttachment(s.cfg.ReportPath, "diagnostics.json")
}

func (s *Server) handleReportJSON(c *gin.Context) {
	report, err := diagnose.LoadReport(s.cfg.ReportPath)
	if err != nil {
		if errors.Is(err, diagnose.ErrNoReport) {
			c.JSON(http.StatusNotFound, gin.H{"error": "diagnostics have never been run"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

type backtestRequest struct {
	Symbols   string `json:"symbols"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	BatchID   string `json:"batch_id"`
}

func (s *Server) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Symbols == "" && s.cfg.Symbols != nil {
		if list, err := s.cfg.Symbols.List(c.Request.Context()); err == nil {
			req.Symbols = strings.Join(list, ",")
		}
	}
	syms, err := symbols.Normalize(req.Symbols)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Symbols = strings.Join(syms, ",")
	dir := s.cfg.Env.TradeplanDir()
	if dir == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": config.EnvTradeplanDir + " not set"})
		return
	}
	result, err := s.cfg.Invoker.Run(c.Request.Context(), backtest.Params{
		Tradeplan: config.TradeplanPath(dir),
		Symbols:   req.Symbols,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		BatchID:   req.BatchID,
		LogLevel:  s.cfg.Env.LogLevel(),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if result.ExitCode != 0 {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

type portfolioRequest struct {
	Cash float64 `json:"cash"`
}

func (s *Server) handlePortfolio(c *gin.Context) {
	var req portfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.cfg.Invoker.InitPortfolio(c.Request.Context(), req.Cash, s.cfg.Env.DSN())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if result.ExitCode != 0 {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}
