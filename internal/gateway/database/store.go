package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// 中文说明：
// 数据仓库层：封装 algo_run / trades / backtests 三张表的全部读写。
// 通过 DSN 前缀区分 Postgres（生产）与 sqlite（本地/测试），
// SQL 统一用 ? 占位符书写，执行前 Rebind 到对应方言。

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const (
	TableRuns      = "algo_run"
	TableTrades    = "trades"
	TableBacktests = "backtests"
)

func init() {
	// modernc 驱动名 "sqlite" 不在 sqlx 内置映射里。
	sqlx.BindDriver(DialectSQLite, sqlx.QUESTION)
}

// DriverForDSN 根据连接串推断驱动。
func DriverForDSN(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") || strings.Contains(lower, "host=") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Store 持有单个数据库连接池。
type Store struct {
	db      *sqlx.DB
	dialect string
}

// Open 按 DSN 打开数据库（不做连通性验证，见 Probe）。
func Open(dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("DSN 不能为空")
	}
	dialect := DriverForDSN(dsn)
	db, err := sqlx.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(time.Minute)
	return &Store{db: db, dialect: dialect}, nil
}

// Dialect 返回当前方言（postgres/sqlite）。
func (s *Store) Dialect() string { return s.dialect }

// Probe 做一次往返连通性验证。
func (s *Store) Probe(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store 未初始化")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// HasTable 检查表是否存在（方言相关）。
func (s *Store) HasTable(ctx context.Context, name string) (bool, error) {
	var query string
	switch s.dialect {
	case DialectPostgres:
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ?`
	default:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), name); err != nil {
		return false, fmt.Errorf("查询表 %s 是否存在失败: %w", name, err)
	}
	return n > 0, nil
}

// BatchSummary 汇总一个 batch_id 下的 run/trade 数量。
type BatchSummary struct {
	BatchID    string `json:"batch_id" db:"batch_id"`
	RunCount   int    `json:"run_count" db:"run_count"`
	TradeCount int    `json:"trade_count" db:"trade_count"`
}

// BatchSummaries 返回最近 limit 个 batch 的 run_count，
// 按最近活跃时间倒序，活跃时间相同按 batch_id 升序（保证结果稳定）。
// trade_count 由调用方经 TradeCount 补齐。
func (s *Store) BatchSummaries(ctx context.Context, limit int) ([]BatchSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	query := s.db.Rebind(`
		SELECT batch_id, COUNT(*) AS run_count
		  FROM algo_run
		 GROUP BY batch_id
		 ORDER BY MAX(start_time) DESC, batch_id ASC
		 LIMIT ?`)
	rows, err := s.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("聚合 batch 失败: %w", err)
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		var b BatchSummary
		if err := rows.Scan(&b.BatchID, &b.RunCount); err != nil {
			return nil, fmt.Errorf("读取 batch 行失败: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 batch 行失败: %w", err)
	}
	return out, nil
}

// TradeCount 统计归属某 batch 的成交条数（经 algo_run 外键关联）。
func (s *Store) TradeCount(ctx context.Context, batchID string) (int, error) {
	query := s.db.Rebind(`
		SELECT COUNT(*)
		  FROM trades t
		  JOIN algo_run ar ON t.algo_run_id = ar.algo_run_id
		 WHERE ar.batch_id = ?`)
	var n int
	if err := s.db.GetContext(ctx, &n, query, batchID); err != nil {
		return 0, fmt.Errorf("统计 batch '%s' 成交失败: %w", batchID, err)
	}
	return n, nil
}

// BacktestSummary 是 backtests 表的只读投影。
type BacktestSummary struct {
	BatchID   string    `json:"batch_id" db:"batch_id"`
	RunAt     time.Time `json:"run_at" db:"run_at"`
	Symbols   string    `json:"symbols" db:"symbols"`
	WinRate   float64   `json:"win_rate" db:"win_rate"`
	NetProfit float64   `json:"net_profit" db:"net_profit"`
}

// RecentBacktests 返回最近 limit 条回测结果（run_at 倒序）。
func (s *Store) RecentBacktests(ctx context.Context, limit int) ([]BacktestSummary, error) {
	if limit <= 0 {
		limit = 5
	}
	query := s.db.Rebind(`
		SELECT batch_id, run_at, symbols, win_rate, net_profit
		  FROM backtests
		 ORDER BY run_at DESC
		 LIMIT ?`)
	var out []BacktestSummary
	if err := s.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("读取最近回测失败: %w", err)
	}
	return out, nil
}

// Execution 是买/卖两个方向拉平后的一条执行记录（实时页面用）。
type Execution struct {
	Timestamp time.Time `json:"timestamp" db:"ts"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Side      string    `json:"side" db:"side"`
	Qty       float64   `json:"qty" db:"qty"`
	Price     float64   `json:"price" db:"price"`
}

// RecentExecutions 按时间倒序返回最近 limit 条买/卖执行。
func (s *Store) RecentExecutions(ctx context.Context, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.Rebind(`
		SELECT buy_time AS ts, symbol, 'buy' AS side, qty, buy_price AS price
		  FROM trades
		 WHERE buy_time IS NOT NULL
		UNION ALL
		SELECT sell_time AS ts, symbol, 'sell' AS side, qty, sell_price AS price
		  FROM trades
		 WHERE sell_time IS NOT NULL
		 ORDER BY ts DESC
		 LIMIT ?`)
	var out []Execution
	if err := s.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, fmt.Errorf("读取最近执行失败: %w", err)
	}
	return out, nil
}

// CleanupResult 记录去重事务删除的行数。
type CleanupResult struct {
	RunsDeleted   int64 `json:"runs_deleted"`
	TradesDeleted int64 `json:"trades_deleted"`
}

// CleanupDuplicateBatch 在单个事务内清理重复 batch：
// 先删除归属被淘汰 run 的 trades（满足外键约束），再删除除
// MAX(algo_run_id) 以外的全部 run。任一步失败则整体回滚。
func (s *Store) CleanupDuplicateBatch(ctx context.Context, batchID string) (CleanupResult, error) {
	var result CleanupResult
	if strings.TrimSpace(batchID) == "" {
		return result, fmt.Errorf("batch_id 不能为空")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	delTrades := tx.Rebind(`
		DELETE FROM trades
		 WHERE algo_run_id IN (
		       SELECT algo_run_id
		         FROM algo_run
		        WHERE batch_id = ?
		          AND algo_run_id <> (
		              SELECT MAX(algo_run_id) FROM algo_run WHERE batch_id = ?))`)
	res, err := tx.ExecContext(ctx, delTrades, batchID, batchID)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("删除重复 batch 的 trades 失败: %w", err)
	}
	result.TradesDeleted, _ = res.RowsAffected()

	delRuns := tx.Rebind(`
		DELETE FROM algo_run
		 WHERE batch_id = ?
		   AND algo_run_id <> (
		       SELECT MAX(algo_run_id) FROM algo_run WHERE batch_id = ?)`)
	res, err = tx.ExecContext(ctx, delRuns, batchID, batchID)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("删除重复 run 失败: %w", err)
	}
	result.RunsDeleted, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return CleanupResult{}, fmt.Errorf("提交去重事务失败: %w", err)
	}
	return result, nil
}
