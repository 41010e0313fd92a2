package env

import (
	"errors"
	"fmt"
	"os"
)

var (
	ErrProfileScriptMissing = errors.New("profile script not found")
	ErrWorkDirMissing       = errors.New("working directory not found")
)

// Activation describes the execution preamble that runs before the training
// command: source the profile scripts, activate the named environment, change
// into the experiment directory. Each step delegates to an external
// collaborator (shell, environment manager, filesystem); a failed step is
// fatal and nothing after it runs.
type Activation struct {
	// ProfileScripts are sourced in order before activation
	ProfileScripts []string

	// EnvName is the pre-built environment to activate, e.g. "hilloc"
	EnvName string

	// WorkDir is the experiment directory the job runs from
	WorkDir string
}

// Validate checks the activation is fully specified.
func (a Activation) Validate() error {
	if a.EnvName == "" {
		return fmt.Errorf("environment name must not be empty")
	}
	if a.WorkDir == "" {
		return fmt.Errorf("working directory must not be empty")
	}
	for i, p := range a.ProfileScripts {
		if p == "" {
			return fmt.Errorf("profile script %d is empty", i)
		}
	}
	return nil
}

// ScriptLines renders the preamble in execution order. The lines are embedded
// in a batch script or a local shell run; they are not interpreted here.
func (a Activation) ScriptLines() []string {
	var lines []string
	for _, p := range a.ProfileScripts {
		lines = append(lines, "source "+p)
	}
	lines = append(lines, "activate "+a.EnvName)
	lines = append(lines, "cd "+a.WorkDir)
	return lines
}

// Preflight verifies the filesystem collaborators exist before anything is
// executed: every profile script must be a readable file and the working
// directory must exist. The first failure aborts; there is no retry.
func (a Activation) Preflight() error {
	for _, p := range a.ProfileScripts {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrProfileScriptMissing, p)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: %s is a directory", ErrProfileScriptMissing, p)
		}
	}

	info, err := os.Stat(a.WorkDir)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrWorkDirMissing, a.WorkDir)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrWorkDirMissing, a.WorkDir)
	}

	return nil
}
