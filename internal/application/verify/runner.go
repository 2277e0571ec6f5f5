package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/YoshitsuguKoike/gatechain/internal/domain/chain"
)

// MaxOutputChars bounds the stdout/stderr kept per run
const MaxOutputChars = 5000

// allowedEnv is the environment passed to verification commands
var allowedEnv = []string{"PATH", "HOME", "USER", "SHELL", "NODE_ENV", "CI"}

// CommandRunner runs a verification command. Failures and timeouts are
// reported in the result, never as errors.
type CommandRunner interface {
	Run(ctx context.Context, cfg chain.VerifyConfig) chain.VerifyResult
}

// ExecRunner runs commands through sh -c
type ExecRunner struct {
	Shell string
	// WaitDelay bounds how long output pipes are drained after a timeout kill
	WaitDelay time.Duration
	Now       func() time.Time
}

// NewExecRunner returns a runner using /bin/sh
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Shell: "sh", WaitDelay: 2 * time.Second, Now: time.Now}
}

// Run executes cfg.Command with the configured timeout
func (r *ExecRunner) Run(ctx context.Context, cfg chain.VerifyConfig) chain.VerifyResult {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	timeout := cfg.EffectiveTimeout()
	started := now()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.CommandContext(cctx, shell, "-c", cfg.Command)
	cmd.Dir = cfg.WorkingDir
	cmd.Env = restrictedEnv()
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := chain.VerifyResult{
		Stdout:   tail(stdout.String(), MaxOutputChars),
		Stderr:   tail(stderr.String(), MaxOutputChars),
		Duration: time.Since(started),
		RanAt:    started,
	}

	switch {
	case errors.Is(cctx.Err(), context.DeadlineExceeded):
		res.ExitCode = -1
		res.TimedOut = true
		res.Stderr = appendLine(res.Stderr, fmt.Sprintf("Command timed out after %s", timeout))
	case err == nil:
		res.ExitCode = 0
		res.Passed = true
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Stderr = appendLine(res.Stderr, err.Error())
		}
	}
	return res
}

func restrictedEnv() []string {
	env := make([]string, 0, len(allowedEnv))
	for _, k := range allowedEnv {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	return env
}

// tail keeps the last n characters of s
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	if s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s + line
}
