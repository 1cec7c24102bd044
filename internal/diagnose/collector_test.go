package diagnose

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liuops/internal/config"
	"liuops/internal/gateway/database"
)

type fakeInspector struct {
	probeErr     error
	tables       map[string]bool
	batches      []database.BatchSummary
	trades       map[string]int
	backtests    []database.BacktestSummary
	backtestsErr error
	closed       bool
}

func (f *fakeInspector) Probe(ctx context.Context) error { return f.probeErr }

func (f *fakeInspector) HasTable(ctx context.Context, name string) (bool, error) {
	return f.tables[name], nil
}

func (f *fakeInspector) BatchSummaries(ctx context.Context, limit int) ([]database.BatchSummary, error) {
	if limit < len(f.batches) {
		return f.batches[:limit], nil
	}
	return f.batches, nil
}

func (f *fakeInspector) TradeCount(ctx context.Context, batchID string) (int, error) {
	return f.trades[batchID], nil
}

func (f *fakeInspector) RecentBacktests(ctx context.Context, limit int) ([]database.BacktestSummary, error) {
	return f.backtests, f.backtestsErr
}

func (f *fakeInspector) Close() error {
	f.closed = true
	return nil
}

type fakeImporter struct{ err error }

func (f *fakeImporter) CheckImportable(ctx context.Context, module string) error { return f.err }

func openFake(insp *fakeInspector) OpenStore {
	return func(dsn string) (Inspector, error) { return insp, nil }
}

func allTables() map[string]bool {
	return map[string]bool{
		database.TableRuns:      true,
		database.TableTrades:    true,
		database.TableBacktests: true,
	}
}

func snapshot(vals map[string]string) config.EnvSnapshot {
	return config.SnapshotFromMap(vals)
}

func TestCollect_EmptyEnvironment(t *testing.T) {
	c := NewCollector(snapshot(nil), Options{
		OpenStore: func(dsn string) (Inspector, error) { t.Fatal("must not open"); return nil, nil },
		Importer:  &fakeImporter{err: fmt.Errorf("No module named 'liualgotrader'")},
	})
	report := c.Collect(context.Background(), true)

	require.Equal(t, []string{
		"DSN not set",
		"TRADEPLAN_DIR not set",
		"Could not import enhanced_backtest: No module named 'liualgotrader'",
	}, report.Issues)
	assert.Empty(t, report.Batches)
	assert.Empty(t, report.Backtests)
	assert.False(t, report.Healthy())
}

func TestCollect_ConnectionError(t *testing.T) {
	insp := &fakeInspector{probeErr: fmt.Errorf("connection refused")}
	c := NewCollector(snapshot(map[string]string{"DSN": "postgres://nope"}), Options{
		OpenStore: openFake(insp),
		Importer:  &fakeImporter{},
	})
	report := c.Collect(context.Background(), true)

	assert.Contains(t, report.Issues, "DSN connection error: connection refused")
	assert.True(t, insp.closed)
	assert.Empty(t, report.Batches)
}

func TestCollect_MissingTables(t *testing.T) {
	insp := &fakeInspector{tables: map[string]bool{}}
	c := NewCollector(snapshot(map[string]string{"DSN": "x"}), Options{
		OpenStore: openFake(insp),
		Importer:  &fakeImporter{},
	})
	report := c.Collect(context.Background(), true)

	assert.Contains(t, report.Issues, "Missing table: algo_run")
	assert.Contains(t, report.Issues, "Missing table: trades")
	assert.Contains(t, report.Issues, "Missing table: backtests")
	assert.True(t, insp.closed)
}

func TestCollect_DuplicateAndEmptyBatches(t *testing.T) {
	dir := t.TempDir()
	writeValidTradeplan(t, dir)
	insp := &fakeInspector{
		tables: allTables(),
		batches: []database.BatchSummary{
			{BatchID: "healthy", RunCount: 1},
			{BatchID: "dupe", RunCount: 3},
			{BatchID: "empty", RunCount: 1},
		},
		trades: map[string]int{"healthy": 4, "dupe": 2, "empty": 0},
	}
	c := NewCollector(snapshot(map[string]string{"DSN": "x", "TRADEPLAN_DIR": dir}), Options{
		OpenStore: openFake(insp),
		Importer:  &fakeImporter{},
	})
	report := c.Collect(context.Background(), true)

	require.Equal(t, []string{
		"batch_id 'dupe' appears 3×",
		"No trades found for batch_id 'empty'",
	}, report.Issues)
	require.Len(t, report.Batches, 3)
	assert.Equal(t, 4, report.Batches[0].TradeCount)
	assert.Equal(t, []database.BatchSummary{
		{BatchID: "dupe", RunCount: 3, TradeCount: 2},
	}, report.DuplicateBatches())
}

func TestCollect_BacktestsReadError(t *testing.T) {
	dir := t.TempDir()
	writeValidTradeplan(t, dir)
	insp := &fakeInspector{
		tables:       allTables(),
		backtestsErr: fmt.Errorf("disk I/O error"),
	}
	c := NewCollector(snapshot(map[string]string{"DSN": "x", "TRADEPLAN_DIR": dir}), Options{
		OpenStore: openFake(insp),
		Importer:  &fakeImporter{},
	})
	report := c.Collect(context.Background(), true)

	assert.Equal(t, []string{"Error reading backtests: disk I/O error"}, report.Issues)
	assert.Empty(t, report.Backtests)
}

func TestCollect_Healthy(t *testing.T) {
	dir := t.TempDir()
	writeValidTradeplan(t, dir)
	insp := &fakeInspector{
		tables:  allTables(),
		batches: []database.BatchSummary{{BatchID: "b", RunCount: 1}},
		trades:  map[string]int{"b": 2},
		backtests: []database.BacktestSummary{{
			BatchID: "b", RunAt: time.Now().UTC(), Symbols: "AAPL", WinRate: 0.6, NetProfit: 100,
		}},
	}
	c := NewCollector(snapshot(map[string]string{"DSN": "x", "TRADEPLAN_DIR": dir}), Options{
		OpenStore: openFake(insp),
		Importer:  &fakeImporter{},
	})
	report := c.Collect(context.Background(), true)

	assert.True(t, report.Healthy())
	assert.Len(t, report.Backtests, 1)
	assert.Equal(t, "x", report.Env["DSN"])
}

func TestCollect_CacheHitAndForce(t *testing.T) {
	dir := t.TempDir()
	writeValidTradeplan(t, dir)
	opens := 0
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	c := NewCollector(snapshot(map[string]string{"DSN": "x", "TRADEPLAN_DIR": dir}), Options{
		OpenStore: func(dsn string) (Inspector, error) {
			opens++
			return &fakeInspector{tables: allTables()}, nil
		},
		Importer: &fakeImporter{},
		CacheTTL: time.Minute,
		Now:      func() time.Time { return now },
	})

	first := c.Collect(context.Background(), false)
	second := c.Collect(context.Background(), false)
	assert.Same(t, first, second)
	assert.Equal(t, 1, opens)

	// force 无视缓存
	c.Collect(context.Background(), true)
	assert.Equal(t, 2, opens)

	// TTL 过期后重新收集
	now = now.Add(2 * time.Minute)
	c.Collect(context.Background(), false)
	assert.Equal(t, 3, opens)
}

func writeValidTradeplan(t *testing.T, dir string) {
	t.Helper()
	content := "[data]\nsource = \"yahoo\"\n"
	require.NoError(t, os.WriteFile(config.TradeplanPath(dir), []byte(content), 0o644))
}
