package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 用临时文件而非 :memory:：连接池里每个 :memory: 连接是独立库。
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestDriverForDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://liu@localhost/tradedb":    DialectPostgres,
		"postgresql://liu@localhost/tradedb":  DialectPostgres,
		"host=localhost dbname=tradedb":       DialectPostgres,
		" POSTGRES://UPPER/case ":             DialectPostgres,
		"/var/data/tradedb.sqlite":            DialectSQLite,
		"file:test.db?cache=shared":           DialectSQLite,
	}
	for dsn, want := range cases {
		assert.Equal(t, want, DriverForDSN(dsn), dsn)
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	store, err := Open("  ")
	assert.Nil(t, store)
	assert.Error(t, err)
}

func TestHasTable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{TableRuns, TableTrades, TableBacktests} {
		ok, err := store.HasTable(ctx, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
	ok, err := store.HasTable(ctx, "no_such_table")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBatchSummaries_OrderAndCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)

	// older 批次两个 run，newer 批次一个 run
	_, err := store.InsertRun(ctx, "older", "mr", base)
	require.NoError(t, err)
	_, err = store.InsertRun(ctx, "older", "mr", base.Add(time.Hour))
	require.NoError(t, err)
	newerID, err := store.InsertRun(ctx, "newer", "mr", base.Add(48*time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.InsertTrade(ctx, newerID, "AAPL", 10, 182.5, base.Add(49*time.Hour)))

	got, err := store.BatchSummaries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "newer", got[0].BatchID)
	assert.Equal(t, 1, got[0].RunCount)
	assert.Equal(t, "older", got[1].BatchID)
	assert.Equal(t, 2, got[1].RunCount)

	n, err := store.TradeCount(ctx, "newer")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.TradeCount(ctx, "older")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBatchSummaries_TieBreaksOnBatchID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)

	for _, batch := range []string{"bbb", "aaa", "ccc"} {
		_, err := store.InsertRun(ctx, batch, "mr", at)
		require.NoError(t, err)
	}
	got, err := store.BatchSummaries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "aaa", got[0].BatchID)
	assert.Equal(t, "bbb", got[1].BatchID)
	assert.Equal(t, "ccc", got[2].BatchID)
}

func TestCleanupDuplicateBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := store.InsertRun(ctx, "dupe", "mr", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	// 被淘汰的 run 带两条成交，保留的 run 带一条
	require.NoError(t, store.InsertTrade(ctx, ids[0], "AAPL", 5, 180, base))
	require.NoError(t, store.InsertTrade(ctx, ids[1], "TSLA", 3, 250, base))
	require.NoError(t, store.InsertTrade(ctx, ids[2], "MSFT", 7, 410, base))
	// 无关批次不受影响
	otherID, err := store.InsertRun(ctx, "other", "mr", base)
	require.NoError(t, err)
	require.NoError(t, store.InsertTrade(ctx, otherID, "NVDA", 1, 120, base))

	result, err := store.CleanupDuplicateBatch(ctx, "dupe")
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.RunsDeleted)
	assert.EqualValues(t, 2, result.TradesDeleted)

	got, err := store.BatchSummaries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, b := range got {
		assert.Equal(t, 1, b.RunCount, b.BatchID)
	}
	n, err := store.TradeCount(ctx, "dupe")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.TradeCount(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCleanupDuplicateBatch_EmptyID(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CleanupDuplicateBatch(context.Background(), "  ")
	assert.Error(t, err)
}

func TestCleanupDuplicateBatch_MidFailureRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		id, err := store.InsertRun(ctx, "dupe", "mr", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		require.NoError(t, store.InsertTrade(ctx, id, "AAPL", 5, 180, base))
	}

	// 第一步（删 trades）放行，第二步（删 run）被触发器拒绝 → 事务必须整体回滚
	_, err := store.db.ExecContext(ctx, `
		CREATE TRIGGER block_run_delete BEFORE DELETE ON algo_run
		BEGIN SELECT RAISE(ABORT, 'run delete blocked'); END`)
	require.NoError(t, err)

	_, err = store.CleanupDuplicateBatch(ctx, "dupe")
	require.Error(t, err)

	got, err := store.BatchSummaries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].RunCount, "rolled-back batch keeps all runs")
	n, err := store.TradeCount(ctx, "dupe")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "rolled-back batch keeps all trades")
}

func TestCleanupDuplicateBatch_ClosedStore(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())
	_, err := store.CleanupDuplicateBatch(context.Background(), "dupe")
	assert.Error(t, err)
}

func TestRecentBacktests(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertBacktest(ctx, BacktestSummary{
			BatchID:   "b",
			RunAt:     base.Add(time.Duration(i) * time.Hour),
			Symbols:   "AAPL",
			WinRate:   0.50 + float64(i)/100,
			NetProfit: float64(i) * 100,
		}))
	}
	got, err := store.RecentBacktests(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.52, got[0].WinRate)
	assert.Equal(t, 0.51, got[1].WinRate)
}

func TestRecentExecutions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)

	runID, err := store.InsertRun(ctx, "b", "mr", base)
	require.NoError(t, err)
	require.NoError(t, store.InsertTrade(ctx, runID, "AAPL", 10, 182.5, base))
	require.NoError(t, store.InsertTrade(ctx, runID, "TSLA", 4, 251.0, base.Add(time.Minute)))

	got, err := store.RecentExecutions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// 倒序：最新的在前，且只有买入腿
	assert.Equal(t, "TSLA", got[0].Symbol)
	assert.Equal(t, "buy", got[0].Side)
	assert.Equal(t, 4.0, got[0].Qty)
	assert.Equal(t, "AAPL", got[1].Symbol)
	assert.Equal(t, 251.0, got[0].Price)
}
