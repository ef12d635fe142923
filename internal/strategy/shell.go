package strategy

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
	"time"

	"github.com/taskhub/taskhub/internal/types"
)

// NewShellStrategy returns the Shell strategy (also used, unchanged, as the
// Script strategy — Script aliases Shell per spec §4.2). Unlike the
// teacher's original blocking system() call, the child is run in its own
// process group so cancellation or timeout can kill the whole tree instead
// of leaving orphans behind.
func NewShellStrategy() Strategy {
	return StrategyFunc(shellExecute)
}

func shellExecute(ctx context.Context, sctx *Context) types.TaskResult {
	start := time.Now()
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", sctx.Cfg.ExecCommand)
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	if sctx.Cfg.CaptureOutput {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	if err := cmd.Start(); err != nil {
		return types.Failed("exception: " + err.Error())
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	watchdog := time.NewTicker(20 * time.Millisecond)
	defer watchdog.Stop()

	for {
		select {
		case err := <-done:
			res := types.TaskResult{DurationMs: time.Since(start).Milliseconds()}
			if sctx.Cfg.CaptureOutput {
				res.StdoutData = stdout.String()
				res.StderrData = stderr.String()
			}
			if err == nil {
				res.Status = types.StatusSuccess
				res.ExitCode = 0
				return res
			}
			if exitErr, ok := err.(*exec.ExitError); ok {
				res.ExitCode = exitErr.ExitCode()
				res.Status = types.StatusFailed
				res.Message = err.Error()
				return res
			}
			res.Status = types.StatusFailed
			res.Message = "exception: " + err.Error()
			return res
		case <-watchdog.C:
			if sctx.IsCanceled() {
				killProcessGroup(cmd)
				<-done
				return types.Canceled("canceled")
			}
			if sctx.IsTimeout() {
				killProcessGroup(cmd)
				<-done
				return types.TimedOut("timeout")
			}
		}
	}
}

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
