package backtest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"liuops/internal/config"
	"liuops/internal/pkg/text"
)

// 回测引擎的固定调用契约（python 模块入口）。
const (
	DefaultInterpreter = "python3"
	EngineModule       = "liualgotrader.enhanced_backtest"
	engineCLI          = "liu"
	dateLayout         = "2006-01-02"
)

// Params 是一次回测调用的全部参数。
type Params struct {
	Tradeplan   string
	Symbols     string // 逗号分隔
	StartDate   string // YYYY-MM-DD
	EndDate     string // YYYY-MM-DD
	BatchID     string
	Diagnostics string // 可选：diagnostics.json 输出路径
	LogLevel    string // 可选：透传 --log-level 与 TLOG_LEVEL
}

func (p Params) validate() error {
	if strings.TrimSpace(p.Tradeplan) == "" {
		return fmt.Errorf("tradeplan 路径不能为空")
	}
	if strings.TrimSpace(p.Symbols) == "" {
		return fmt.Errorf("symbols 不能为空")
	}
	for _, d := range []string{p.StartDate, p.EndDate} {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return fmt.Errorf("日期须为 YYYY-MM-DD: %q", d)
		}
	}
	return nil
}

// Invoker 构造并执行回测引擎命令。
type Invoker struct {
	runner      Runner
	interpreter string
}

// NewInvoker 用给定 Runner 构造调用器，runner 为 nil 时使用 ExecRunner。
func NewInvoker(runner Runner) *Invoker {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Invoker{runner: runner, interpreter: DefaultInterpreter}
}

// Command 根据参数拼出固定形态的命令行（校验已在 Run 内完成）。
func (inv *Invoker) Command(p Params) Command {
	args := []string{
		"-m", EngineModule,
		"--tradeplan", p.Tradeplan,
		"--symbols", p.Symbols,
		"--start-date", p.StartDate,
		"--end-date", p.EndDate,
		"--batch-id", p.BatchID,
	}
	if p.Diagnostics != "" {
		args = append(args, "--diagnostics", p.Diagnostics)
	}
	env := map[string]string{}
	if p.LogLevel != "" {
		args = append(args, "--log-level", p.LogLevel)
		env[config.EnvLogLevel] = p.LogLevel
	}
	return Command{
		Name: inv.interpreter,
		Args: args,
		Dir:  filepath.Dir(p.Tradeplan),
		Env:  env,
	}
}

// Run 执行回测：整体等待、整体捕获，非零退出交由调用方处理，绝不自动重试。
func (inv *Invoker) Run(ctx context.Context, p Params) (Result, error) {
	if err := p.validate(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(p.BatchID) == "" {
		p.BatchID = NewBatchID()
	}
	return inv.runner.Run(ctx, inv.Command(p))
}

// CheckImportable 验证引擎入口模块可被解释器导入。失败仅作提示，不阻断其他检查。
func (inv *Invoker) CheckImportable(ctx context.Context, module string) error {
	res, err := inv.runner.Run(ctx, Command{
		Name: inv.interpreter,
		Args: []string{"-c", "import " + module},
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		// python 的 traceback 可能很长，只保留头部足以定位
		msg := text.Truncate(strings.TrimSpace(res.Stderr), 400)
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", res.ExitCode)
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

// InitPortfolio 经引擎 CLI 初始化组合资金。
func (inv *Invoker) InitPortfolio(ctx context.Context, cash float64, dsn string) (Result, error) {
	if cash <= 0 {
		return Result{}, fmt.Errorf("起始资金必须为正: %v", cash)
	}
	return inv.runner.Run(ctx, Command{
		Name: engineCLI,
		Args: []string{"create", "portfolio", fmt.Sprintf("%.0f", cash), "--dsn=" + dsn},
	})
}

// NewBatchID 生成默认批次号：时间戳 + uuid 前缀，避免同秒冲突。
func NewBatchID() string {
	return fmt.Sprintf("run-%s-%s", time.Now().Format("20060102-150405"), uuid.NewString()[:8])
}
