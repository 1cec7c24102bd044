package backtest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	result Result
	err    error
	cmds   []Command
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	f.cmds = append(f.cmds, cmd)
	return f.result, f.err
}

func validParams() Params {
	return Params{
		Tradeplan: "/home/liu/plans/tradeplan.toml",
		Symbols:   "AAPL,TSLA",
		StartDate: "2026-07-01",
		EndDate:   "2026-07-31",
		BatchID:   "run-test-1234",
	}
}

func TestRun_CommandShape(t *testing.T) {
	runner := &fakeRunner{result: Result{ExitCode: 0, Stdout: "done"}}
	inv := NewInvoker(runner)

	p := validParams()
	p.Diagnostics = "/tmp/diagnostics.json"
	p.LogLevel = "DEBUG"
	result, err := inv.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)

	require.Len(t, runner.cmds, 1)
	cmd := runner.cmds[0]
	assert.Equal(t, "python3", cmd.Name)
	assert.Equal(t, []string{
		"-m", "liualgotrader.enhanced_backtest",
		"--tradeplan", "/home/liu/plans/tradeplan.toml",
		"--symbols", "AAPL,TSLA",
		"--start-date", "2026-07-01",
		"--end-date", "2026-07-31",
		"--batch-id", "run-test-1234",
		"--diagnostics", "/tmp/diagnostics.json",
		"--log-level", "DEBUG",
	}, cmd.Args)
	// 工作目录是 tradeplan 所在目录，引擎用相对路径也能找到文件
	assert.Equal(t, "/home/liu/plans", cmd.Dir)
	assert.Equal(t, "DEBUG", cmd.Env["TLOG_LEVEL"])
}

func TestRun_OmitsOptionalFlags(t *testing.T) {
	runner := &fakeRunner{}
	inv := NewInvoker(runner)

	_, err := inv.Run(context.Background(), validParams())
	require.NoError(t, err)

	cmd := runner.cmds[0]
	assert.NotContains(t, cmd.Args, "--diagnostics")
	assert.NotContains(t, cmd.Args, "--log-level")
	assert.Empty(t, cmd.Env)
}

func TestRun_GeneratesBatchID(t *testing.T) {
	runner := &fakeRunner{}
	inv := NewInvoker(runner)

	p := validParams()
	p.BatchID = ""
	_, err := inv.Run(context.Background(), p)
	require.NoError(t, err)

	args := runner.cmds[0].Args
	var batchID string
	for i, a := range args {
		if a == "--batch-id" {
			batchID = args[i+1]
		}
	}
	assert.True(t, strings.HasPrefix(batchID, "run-"), batchID)
	assert.Len(t, batchID, len("run-20060102-150405-")+8)
}

func TestRun_ValidatesParams(t *testing.T) {
	runner := &fakeRunner{}
	inv := NewInvoker(runner)

	cases := []Params{
		{Symbols: "AAPL", StartDate: "2026-07-01", EndDate: "2026-07-31"},
		{Tradeplan: "/p/tradeplan.toml", StartDate: "2026-07-01", EndDate: "2026-07-31"},
		{Tradeplan: "/p/tradeplan.toml", Symbols: "AAPL", StartDate: "07/01/2026", EndDate: "2026-07-31"},
		{Tradeplan: "/p/tradeplan.toml", Symbols: "AAPL", StartDate: "2026-07-01", EndDate: ""},
	}
	for _, p := range cases {
		_, err := inv.Run(context.Background(), p)
		assert.Error(t, err, "%+v", p)
	}
	assert.Empty(t, runner.cmds, "invalid params must not reach the runner")
}

func TestRun_EngineFailurePassesThrough(t *testing.T) {
	runner := &fakeRunner{result: Result{ExitCode: 2, Stderr: "usage: enhanced_backtest"}}
	inv := NewInvoker(runner)

	result, err := inv.Run(context.Background(), validParams())
	require.NoError(t, err)
	assert.Equal(t, 2, result.ExitCode)
	assert.Equal(t, "usage: enhanced_backtest", result.Stderr)
	// 失败不重试
	assert.Len(t, runner.cmds, 1)
}

func TestCheckImportable(t *testing.T) {
	runner := &fakeRunner{}
	inv := NewInvoker(runner)

	require.NoError(t, inv.CheckImportable(context.Background(), EngineModule))
	require.Len(t, runner.cmds, 1)
	assert.Equal(t, []string{"-c", "import liualgotrader.enhanced_backtest"}, runner.cmds[0].Args)
}

func TestCheckImportable_Failure(t *testing.T) {
	runner := &fakeRunner{result: Result{ExitCode: 1, Stderr: "ModuleNotFoundError: No module named 'liualgotrader'\n"}}
	inv := NewInvoker(runner)

	err := inv.CheckImportable(context.Background(), EngineModule)
	require.Error(t, err)
	assert.Equal(t, "ModuleNotFoundError: No module named 'liualgotrader'", err.Error())
}

func TestInitPortfolio(t *testing.T) {
	runner := &fakeRunner{}
	inv := NewInvoker(runner)

	_, err := inv.InitPortfolio(context.Background(), 25000, "postgresql://localhost/tradedb")
	require.NoError(t, err)
	require.Len(t, runner.cmds, 1)
	cmd := runner.cmds[0]
	assert.Equal(t, "liu", cmd.Name)
	assert.Equal(t, []string{"create", "portfolio", "25000", "--dsn=postgresql://localhost/tradedb"}, cmd.Args)
}

func TestInitPortfolio_RejectsNonPositiveCash(t *testing.T) {
	runner := &fakeRunner{}
	inv := NewInvoker(runner)

	_, err := inv.InitPortfolio(context.Background(), 0, "dsn")
	assert.Error(t, err)
	assert.Empty(t, runner.cmds)
}

func TestNewBatchID_Unique(t *testing.T) {
	a, b := NewBatchID(), NewBatchID()
	assert.NotEqual(t, a, b)
}
