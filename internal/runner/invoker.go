package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Invocation is a fully composed assistant process call.
type Invocation struct {
	Binary string
	Args   []string
}

// Invoker runs the external assistant process. It exists as an interface so
// tests can substitute a fake; the daemon always uses execInvoker.
type Invoker interface {
	// Invoke blocks until the process exits with stdout/stderr fully
	// captured. A non-zero exit is reported in the Result, not as an error;
	// the error path is reserved for failing to run the process at all.
	Invoke(ctx context.Context, inv Invocation) (Result, error)
}

type execInvoker struct{}

func (execInvoker) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	cmd := exec.CommandContext(ctx, inv.Binary, inv.Args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// Spawn failure (missing binary, permissions): no process ran.
		return Result{}, err
	}
	return res, nil
}
