package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hilloc/hilloc-launcher/internal/env"
	"github.com/hilloc/hilloc-launcher/internal/hyper"
)

// Invocation is the single trainer call a job makes: one program, one
// hyperparameter string, a handful of discrete flags. The launcher passes
// everything through uninterpreted.
type Invocation struct {
	// Program is the trainer executable, e.g. "python train.py"
	Program string

	Hyper   hyper.Config
	NumGPUs int
	Mode    string // trainer run mode, e.g. "train"
	LogDir  string
}

// Args returns the trainer's argument list. Ordering and flag names are fixed
// by the downstream program.
func (i Invocation) Args() []string {
	return []string{
		"--hpconfig", i.Hyper.String(),
		"--num_gpus", strconv.Itoa(i.NumGPUs),
		"--mode", i.Mode,
		"--logdir", i.LogDir,
	}
}

// CommandLine renders the full shell command for the invocation.
func (i Invocation) CommandLine() string {
	return i.Program + " " + strings.Join(i.Args(), " ")
}

// Validate checks the invocation is fully specified.
func (i Invocation) Validate() error {
	if i.Program == "" {
		return fmt.Errorf("trainer program must not be empty")
	}
	if i.NumGPUs < 0 {
		return fmt.Errorf("num_gpus must be >= 0, got %d", i.NumGPUs)
	}
	if i.Mode == "" {
		return fmt.Errorf("run mode must not be empty")
	}
	if i.LogDir == "" {
		return fmt.Errorf("logdir must not be empty")
	}
	return nil
}

// CommandRunner abstracts shell execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, script string) error
}

// ShellRunner executes a composed script through bash. The process inherits
// the launcher's stdio so trainer output streams through.
type ShellRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func NewShellRunner() *ShellRunner {
	return &ShellRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

func (r *ShellRunner) Run(ctx context.Context, script string) error {
	cmd := exec.CommandContext(ctx, "bash", "-c", script)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return cmd.Run()
}

// ExitCode maps a Run error to a process exit status: 0 on nil, the child's
// code when it exited, 1 otherwise. There is no custom exit-code mapping
// beyond passthrough.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// Launcher runs a job locally: preamble first, then exactly one trainer
// invocation. Mirrors the batch script's semantics — strictly sequential,
// first failure fatal, exit status passed through.
type Launcher struct {
	runner CommandRunner
}

func NewLauncher(runner CommandRunner) *Launcher {
	return &Launcher{runner: runner}
}

// ComposeScript joins the preamble and the invocation into one shell body.
// "set -e" gives the batch semantics: a failed source/activate/cd stops the
// script before the trainer starts.
func ComposeScript(act env.Activation, inv Invocation) string {
	lines := append([]string{"set -e"}, act.ScriptLines()...)
	lines = append(lines, inv.CommandLine())
	return strings.Join(lines, "\n") + "\n"
}

// Run validates, preflights the activation, then executes the composed
// script. If the preflight fails nothing is executed at all.
func (l *Launcher) Run(ctx context.Context, act env.Activation, inv Invocation) error {
	if err := act.Validate(); err != nil {
		return fmt.Errorf("invalid activation: %w", err)
	}
	if err := inv.Validate(); err != nil {
		return fmt.Errorf("invalid invocation: %w", err)
	}
	if err := act.Preflight(); err != nil {
		return fmt.Errorf("preamble preflight failed: %w", err)
	}

	return l.runner.Run(ctx, ComposeScript(act, inv))
}
