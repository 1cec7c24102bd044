package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"liuops/internal/config"
	"liuops/internal/diagnose"
	"liuops/internal/executor/backtest"
	"liuops/internal/gateway/database"
	"liuops/internal/logger"
	"liuops/internal/symbols"
	"liuops/internal/transport/web"
)

// App 负责应用级编排：快照环境→装配依赖→启动仪表盘服务。
type App struct {
	env    config.EnvSnapshot
	store  *database.Store
	server *web.Server
}

// Options 控制装配细节，零值全部有默认。
type Options struct {
	Addr        string
	ReportPath  string
	ProfilePath string
	SymbolsURL  string
	CacheTTL    time.Duration
}

// NewApp 构建应用对象（不启动）。
func NewApp(opts Options) (*App, error) {
	return buildAppWithWire(opts)
}

// Run 启动仪表盘并阻塞至 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer a.Close()
		return a.server.Start(ctx)
	})
	return group.Wait()
}

// Close 释放数据库连接。
func (a *App) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

func provideEnv() config.EnvSnapshot {
	return config.CaptureEnv()
}

// provideStore 打不开库时返回 nil 而非报错：
// 仪表盘要在降级模式下照常起来，由诊断页报告连接问题。
func provideStore(env config.EnvSnapshot) *database.Store {
	dsn := env.DSN()
	if dsn == "" {
		logger.Warnf("DSN 未配置，交易页与去重功能不可用")
		return nil
	}
	st, err := database.Open(dsn)
	if err != nil {
		logger.Warnf("打开数据库失败: %v", err)
		return nil
	}
	return st
}

func provideInvoker() *backtest.Invoker {
	return backtest.NewInvoker(nil)
}

func provideCollector(env config.EnvSnapshot, inv *backtest.Invoker, opts Options) *diagnose.Collector {
	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return diagnose.NewCollector(env, diagnose.Options{
		Importer: inv,
		CacheTTL: ttl,
	})
}

// 未配置 watchlist 服务时回测表单使用的兜底标的。
var defaultSymbols = []string{"AAPL", "MSFT", "GOOG"}

func provideSymbols(opts Options) symbols.Provider {
	if opts.SymbolsURL != "" {
		return symbols.NewHTTPProvider(opts.SymbolsURL)
	}
	return symbols.NewDefaultProvider(defaultSymbols)
}

func provideServer(env config.EnvSnapshot, collector *diagnose.Collector, inv *backtest.Invoker, st *database.Store, provider symbols.Provider, opts Options) (*web.Server, error) {
	return web.NewServer(web.ServerConfig{
		Addr:        opts.Addr,
		Env:         env,
		Collector:   collector,
		Invoker:     inv,
		Store:       st,
		ReportPath:  opts.ReportPath,
		ProfilePath: opts.ProfilePath,
		Symbols:     provider,
	})
}

func newApp(env config.EnvSnapshot, st *database.Store, server *web.Server) *App {
	return &App{env: env, store: st, server: server}
}
