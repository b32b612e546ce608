// Package pshell runs PowerShell probe scripts and decodes their JSON
// output.
package pshell

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"golang.org/x/xerrors"
)

const shell = "powershell.exe"

// Runner executes probe scripts. The exec function is swappable under
// test.
type Runner struct {
	execute func(ctx context.Context, script string) ([]byte, error)
}

func NewRunner() *Runner {
	return &Runner{execute: run}
}

// NewStubRunner returns a runner that yields fixed output, for tests on
// hosts without PowerShell.
func NewStubRunner(output []byte, err error) *Runner {
	return &Runner{
		execute: func(context.Context, string) ([]byte, error) {
			return output, err
		},
	}
}

// RunJSON executes the script and decodes its JSON output into v.
func (r *Runner) RunJSON(ctx context.Context, script string, v any) error {
	out, err := r.execute(ctx, script)
	if err != nil {
		return xerrors.Errorf("probe execution failed: %w", err)
	}

	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return xerrors.New("probe returned no output")
	}

	if err := json.Unmarshal(out, v); err != nil {
		return xerrors.Errorf("probe returned invalid JSON: %w", err)
	}
	return nil
}

func run(ctx context.Context, script string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, shell, "-NoProfile", "-ExecutionPolicy", "Bypass", "-Command", "-")
	cmd.Stdin = strings.NewReader(script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, xerrors.Errorf("%s: %w (%s)", shell, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
