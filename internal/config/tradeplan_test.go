package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTradeplan(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, TradeplanFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateTradeplan_DirNotSet(t *testing.T) {
	tp, issues := ValidateTradeplan("")
	assert.Nil(t, tp)
	assert.Equal(t, []string{"TRADEPLAN_DIR not set"}, issues)
}

func TestValidateTradeplan_DirMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nope")
	tp, issues := ValidateTradeplan(dir)
	assert.Nil(t, tp)
	require.Len(t, issues, 1)
	assert.Equal(t, "TRADEPLAN_DIR does not exist: "+dir, issues[0])
}

func TestValidateTradeplan_FileMissing(t *testing.T) {
	dir := t.TempDir()
	tp, issues := ValidateTradeplan(dir)
	assert.Nil(t, tp)
	require.Len(t, issues, 1)
	assert.Equal(t, "tradeplan.toml not found in "+dir, issues[0])
}

func TestValidateTradeplan_ParseError(t *testing.T) {
	dir := t.TempDir()
	writeTradeplan(t, dir, "[data\nsource = ")
	tp, issues := ValidateTradeplan(dir)
	assert.Nil(t, tp)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "Error parsing tradeplan.toml:")
}

func TestValidateTradeplan_OK(t *testing.T) {
	dir := t.TempDir()
	writeTradeplan(t, dir, `
[data]
source = "yahoo"

[[strategies]]
name = "mean_reversion_auto"
module = "liualgotrader.strategies.mean_reversion"

[strategies.settings]
lookback = 20

[[strategies.schedule]]
start = 0
duration = 390
`)
	tp, issues := ValidateTradeplan(dir)
	require.Empty(t, issues)
	require.NotNil(t, tp)
	assert.Equal(t, "yahoo", tp.Data.Source)
	require.Len(t, tp.Strategies, 1)
	s := tp.Strategies[0]
	assert.Equal(t, "mean_reversion_auto", s.Name)
	assert.Equal(t, "liualgotrader.strategies.mean_reversion", s.Module)
	assert.EqualValues(t, 20, s.Settings["lookback"])
	require.Len(t, s.Schedule, 1)
	assert.Equal(t, 0, s.Schedule[0].Start)
	assert.Equal(t, 390, s.Schedule[0].Duration)
}
