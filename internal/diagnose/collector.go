package diagnose

import (
	"context"
	"fmt"
	"time"

	"liuops/internal/config"
	"liuops/internal/gateway/database"
	"liuops/internal/logger"
	"liuops/internal/store"
)

// 中文说明：
// 诊断收集器：环境 → 连通性 → tradeplan → 引擎模块 → 表结构/批次聚合，
// 所有检查的失败都转成 issues 条目，单项失败绝不中断整轮收集。

const (
	// 单轮最多聚合的 batch 数与回测条数。
	defaultBatchLimit    = 10
	defaultBacktestLimit = 5
)

// Inspector 是收集器对数据仓库的最小依赖（便于测试替换）。
type Inspector interface {
	Probe(ctx context.Context) error
	HasTable(ctx context.Context, name string) (bool, error)
	BatchSummaries(ctx context.Context, limit int) ([]database.BatchSummary, error)
	TradeCount(ctx context.Context, batchID string) (int, error)
	RecentBacktests(ctx context.Context, limit int) ([]database.BacktestSummary, error)
	Close() error
}

// ImportChecker 验证引擎入口模块可导入。
type ImportChecker interface {
	CheckImportable(ctx context.Context, module string) error
}

// OpenStore 按 DSN 打开仓库。生产路径指向 database.Open。
type OpenStore func(dsn string) (Inspector, error)

// Options 收集器可调项，零值均有合理缺省。
type Options struct {
	OpenStore     OpenStore
	Importer      ImportChecker
	EngineModule  string
	BatchLimit    int
	BacktestLimit int
	// CacheTTL<=0 时每次调用都强制全新收集。
	CacheTTL time.Duration
	Now      func() time.Time
}

// Collector 执行诊断收集。
type Collector struct {
	env           config.EnvSnapshot
	open          OpenStore
	importer      ImportChecker
	engineModule  string
	batchLimit    int
	backtestLimit int
	cache         *store.Cache[Report]
	now           func() time.Time
}

// NewCollector 构造收集器。
func NewCollector(env config.EnvSnapshot, opts Options) *Collector {
	if opts.OpenStore == nil {
		opts.OpenStore = func(dsn string) (Inspector, error) { return database.Open(dsn) }
	}
	if opts.EngineModule == "" {
		opts.EngineModule = "liualgotrader.enhanced_backtest"
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = defaultBatchLimit
	}
	if opts.BacktestLimit <= 0 {
		opts.BacktestLimit = defaultBacktestLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Collector{
		env:           env,
		open:          opts.OpenStore,
		importer:      opts.Importer,
		engineModule:  opts.EngineModule,
		batchLimit:    opts.BatchLimit,
		backtestLimit: opts.BacktestLimit,
		cache:         store.NewCache[Report](opts.CacheTTL),
		now:           opts.Now,
	}
}

// Collect 执行一轮诊断。force=true 时无视缓存强制全新收集；
// force=false 且缓存未过期时直接返回上一轮结果。本方法不失败。
func (c *Collector) Collect(ctx context.Context, force bool) *Report {
	if !force {
		if cached, ok := c.cache.Get(c.now()); ok {
			logger.Debugf("诊断结果命中缓存（%s）", cached.Timestamp)
			return cached
		}
	}

	var (
		issues    []string
		batches   []database.BatchSummary
		backtests []database.BacktestSummary
	)

	// 1) DSN 连通性。
	insp := c.probe(ctx, &issues)
	if insp != nil {
		defer insp.Close()
	}

	// 2) tradeplan 目录与 TOML。
	if _, tpIssues := config.ValidateTradeplan(c.env.TradeplanDir()); len(tpIssues) > 0 {
		issues = append(issues, tpIssues...)
	}

	// 3) 引擎模块可导入（仅提示）。
	if c.importer != nil {
		if err := c.importer.CheckImportable(ctx, c.engineModule); err != nil {
			issues = append(issues, fmt.Sprintf("Could not import enhanced_backtest: %v", err))
		}
	}

	// 4) 表结构与批次聚合（依赖已建立的连接）。
	if insp != nil {
		batches, backtests = c.inspect(ctx, insp, &issues)
	}

	report := NewReport(c.env.Map(), issues, batches, backtests, c.now())
	c.cache.Put(report, c.now())
	logger.Infof("诊断完成：%d 个问题，%d 个批次", len(report.Issues), len(report.Batches))
	return report
}

// probe 打开连接并做一次往返；失败时记录 issue 并返回 nil。
func (c *Collector) probe(ctx context.Context, issues *[]string) Inspector {
	dsn := c.env.DSN()
	if dsn == "" {
		*issues = append(*issues, fmt.Sprintf("%s not set", config.EnvDSN))
		return nil
	}
	insp, err := c.open(dsn)
	if err != nil {
		*issues = append(*issues, fmt.Sprintf("%s connection error: %v", config.EnvDSN, err))
		return nil
	}
	if err := insp.Probe(ctx); err != nil {
		insp.Close()
		*issues = append(*issues, fmt.Sprintf("%s connection error: %v", config.EnvDSN, err))
		return nil
	}
	return insp
}

// inspect 核对必需表并聚合批次/回测数据。
func (c *Collector) inspect(ctx context.Context, insp Inspector, issues *[]string) ([]database.BatchSummary, []database.BacktestSummary) {
	var batches []database.BatchSummary

	required := map[string]bool{}
	for _, tbl := range []string{database.TableRuns, database.TableTrades} {
		ok, err := insp.HasTable(ctx, tbl)
		if err != nil {
			*issues = append(*issues, fmt.Sprintf("Error checking table %s: %v", tbl, err))
			continue
		}
		required[tbl] = ok
		if !ok {
			*issues = append(*issues, fmt.Sprintf("Missing table: %s", tbl))
		}
	}

	if required[database.TableRuns] && required[database.TableTrades] {
		summaries, err := insp.BatchSummaries(ctx, c.batchLimit)
		if err != nil {
			*issues = append(*issues, fmt.Sprintf("Error aggregating batches: %v", err))
		}
		for _, b := range summaries {
			tc, err := insp.TradeCount(ctx, b.BatchID)
			if err != nil {
				*issues = append(*issues, fmt.Sprintf("Error counting trades for batch_id '%s': %v", b.BatchID, err))
				continue
			}
			b.TradeCount = tc
			batches = append(batches, b)

			if b.RunCount > 1 {
				*issues = append(*issues, fmt.Sprintf("batch_id '%s' appears %d×", b.BatchID, b.RunCount))
			}
			if b.TradeCount == 0 {
				*issues = append(*issues, fmt.Sprintf("No trades found for batch_id '%s'", b.BatchID))
			}
		}
	}

	// backtests 表为可选项：缺失记 issue 并返回空列表，读失败同样不致命。
	backtests := []database.BacktestSummary{}
	ok, err := insp.HasTable(ctx, database.TableBacktests)
	switch {
	case err != nil:
		*issues = append(*issues, fmt.Sprintf("Error checking table %s: %v", database.TableBacktests, err))
	case !ok:
		*issues = append(*issues, fmt.Sprintf("Missing table: %s", database.TableBacktests))
	default:
		rows, err := insp.RecentBacktests(ctx, c.backtestLimit)
		if err != nil {
			*issues = append(*issues, fmt.Sprintf("Error reading backtests: %v", err))
		} else {
			backtests = rows
		}
	}
	return batches, backtests
}
