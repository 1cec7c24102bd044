package database

import (
	"context"
	"fmt"
	"time"
)

// 开发/测试辅助：本地 sqlite 建表与造数。
// 生产 Postgres 的表结构由交易引擎自身迁移维护，这里拒绝触碰。

const schemaDDL = `
CREATE TABLE IF NOT EXISTS algo_run (
    algo_run_id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id    TEXT NOT NULL,
    algo_name   TEXT,
    start_time  TIMESTAMP NOT NULL,
    end_time    TIMESTAMP
);
CREATE TABLE IF NOT EXISTS trades (
    trade_id    INTEGER PRIMARY KEY AUTOINCREMENT,
    algo_run_id INTEGER NOT NULL REFERENCES algo_run(algo_run_id),
    symbol      TEXT NOT NULL,
    qty         REAL NOT NULL,
    buy_time    TIMESTAMP,
    buy_price   REAL,
    sell_time   TIMESTAMP,
    sell_price  REAL
);
CREATE TABLE IF NOT EXISTS backtests (
    backtest_id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id    TEXT NOT NULL,
    run_at      TIMESTAMP NOT NULL,
    symbols     TEXT NOT NULL,
    win_rate    REAL NOT NULL,
    net_profit  REAL NOT NULL
);`

// EnsureSchema 建立本地三张表，仅支持 sqlite。
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.dialect != DialectSQLite {
		return fmt.Errorf("EnsureSchema 仅支持 sqlite（当前 %s）", s.dialect)
	}
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("建表失败: %w", err)
	}
	return nil
}

// InsertRun 插入一条 run 记录并返回 algo_run_id（仅 sqlite）。
func (s *Store) InsertRun(ctx context.Context, batchID, algoName string, startTime time.Time) (int64, error) {
	if s.dialect != DialectSQLite {
		return 0, fmt.Errorf("InsertRun 仅支持 sqlite（当前 %s）", s.dialect)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO algo_run (batch_id, algo_name, start_time) VALUES (?, ?, ?)`,
		batchID, algoName, startTime)
	if err != nil {
		return 0, fmt.Errorf("插入 run 失败: %w", err)
	}
	return res.LastInsertId()
}

// InsertTrade 插入一条买入成交（仅 sqlite）。
func (s *Store) InsertTrade(ctx context.Context, runID int64, symbol string, qty, price float64, buyTime time.Time) error {
	if s.dialect != DialectSQLite {
		return fmt.Errorf("InsertTrade 仅支持 sqlite（当前 %s）", s.dialect)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (algo_run_id, symbol, qty, buy_time, buy_price) VALUES (?, ?, ?, ?, ?)`,
		runID, symbol, qty, buyTime, price)
	if err != nil {
		return fmt.Errorf("插入 trade 失败: %w", err)
	}
	return nil
}

// InsertBacktest 插入一条回测结果（仅 sqlite）。
func (s *Store) InsertBacktest(ctx context.Context, b BacktestSummary) error {
	if s.dialect != DialectSQLite {
		return fmt.Errorf("InsertBacktest 仅支持 sqlite（当前 %s）", s.dialect)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backtests (batch_id, run_at, symbols, win_rate, net_profit) VALUES (?, ?, ?, ?, ?)`,
		b.BatchID, b.RunAt, b.Symbols, b.WinRate, b.NetProfit)
	if err != nil {
		return fmt.Errorf("插入 backtest 失败: %w", err)
	}
	return nil
}
