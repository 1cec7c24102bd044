package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"liuops/internal/gateway/database"
)

// Seed a SQLite database with mock runs, trades and backtest results so the
// dashboard has something to show (including a duplicated and an empty batch).
// Usage: go run scripts/seed_mock_data.go [db_path]
// Default db_path: data/tradedb.sqlite
func main() {
	dbPath := "data/tradedb.sqlite"
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		dbPath = strings.TrimSpace(os.Args[1])
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		panic(err)
	}

	store, err := database.Open(dbPath)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		panic(err)
	}
	if err := seedBatches(ctx, store); err != nil {
		panic(err)
	}
	if err := seedBacktests(ctx, store); err != nil {
		panic(err)
	}

	fmt.Printf("✓ mock data seeded into %s\n", dbPath)
	fmt.Println("  export DSN=" + dbPath + " to point the dashboard at it")
}

func seedBatches(ctx context.Context, store *database.Store) error {
	now := time.Now().UTC()
	symbols := []string{"AAPL", "TSLA", "MSFT", "NVDA"}

	// 正常批次：一个 run，若干成交
	healthy, err := store.InsertRun(ctx, "run-20260815-093000-a1b2c3d4", "mean_reversion", now.Add(-72*time.Hour))
	if err != nil {
		return err
	}
	for i := 0; i < 6; i++ {
		sym := symbols[rand.Intn(len(symbols))]
		price := 80 + rand.Float64()*120
		if err := store.InsertTrade(ctx, healthy, sym, float64(10+rand.Intn(40)), price, now.Add(-time.Duration(70-i)*time.Hour)); err != nil {
			return err
		}
	}

	// 重复批次：同一 batch_id 三个 run，仅最后一个带成交
	const dupe = "run-20260820-110000-deadbeef"
	var lastRun int64
	for i := 0; i < 3; i++ {
		id, err := store.InsertRun(ctx, dupe, "mean_reversion", now.Add(-time.Duration(48-i)*time.Hour))
		if err != nil {
			return err
		}
		lastRun = id
	}
	for i := 0; i < 4; i++ {
		sym := symbols[rand.Intn(len(symbols))]
		if err := store.InsertTrade(ctx, lastRun, sym, float64(5+rand.Intn(20)), 100+rand.Float64()*50, now.Add(-time.Duration(40-i)*time.Hour)); err != nil {
			return err
		}
	}

	// 空批次：只有 run，没有任何成交
	if _, err := store.InsertRun(ctx, "run-20260825-150000-00000000", "momentum", now.Add(-12*time.Hour)); err != nil {
		return err
	}
	return nil
}

func seedBacktests(ctx context.Context, store *database.Store) error {
	now := time.Now().UTC()
	samples := []database.BacktestSummary{
		{BatchID: "run-20260815-093000-a1b2c3d4", RunAt: now.Add(-71 * time.Hour), Symbols: "AAPL,TSLA", WinRate: 0.583, NetProfit: 1240.50},
		{BatchID: "run-20260820-110000-deadbeef", RunAt: now.Add(-40 * time.Hour), Symbols: "MSFT,NVDA", WinRate: 0.441, NetProfit: -310.25},
	}
	for _, b := range samples {
		if err := store.InsertBacktest(ctx, b); err != nil {
			return err
		}
	}
	return nil
}
