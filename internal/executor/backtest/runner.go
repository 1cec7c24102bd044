package backtest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// 中文说明：
// 子进程边界收口在这里：所有外部命令都经 Runner 执行，
// 便于测试时替换为假的执行器。

// Command 描述一次待执行的外部命令。
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env 追加（覆盖同名项）到当前进程环境。
	Env map[string]string
}

// Result 是子进程的完整产出：退出码与两路输出（整体捕获，不做流式）。
type Result struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Runner 执行外部命令。非零退出不视为 error，体现在 Result.ExitCode；
// error 仅代表进程无法启动（命令不存在、权限等）。
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner 基于 os/exec 的默认实现。
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	c.Env = os.Environ()
	for k, v := range cmd.Env {
		c.Env = append(c.Env, k+"="+v)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return result, fmt.Errorf("启动命令 %s 失败: %w", cmd.Name, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}
