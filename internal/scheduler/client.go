package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hilloc/hilloc-launcher/internal/sbatch"
)

var (
	ErrSchedulerNotFound = errors.New("scheduler commands not found in PATH")
	ErrSubmitRejected    = errors.New("scheduler rejected submission")
)

// JobState is the coarse queue state reported by the scheduler.
type JobState string

const (
	StatePending   JobState = "PENDING"
	StateRunning   JobState = "RUNNING"
	StateCompleted JobState = "COMPLETED" // job has left the queue
	StateFailed    JobState = "FAILED"
	StateUnknown   JobState = "UNKNOWN"
)

// submittedPattern matches sbatch's acknowledgement line.
var submittedPattern = regexp.MustCompile(`Submitted batch job (\d+)`)

// runCommandFunc runs an external scheduler command and returns its combined
// output. Injectable for tests.
type runCommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Client submits and manages jobs through the local scheduler command-line
// tools. Submission retries transient failures with exponential backoff; the
// job itself is never retried, only the submission call.
type Client struct {
	sbatchPath  string
	scancelPath string
	squeuePath  string

	run        runCommandFunc
	newBackoff func() backoff.BackOff
}

// NewClient locates the scheduler binaries. All three must be installed.
func NewClient() (*Client, error) {
	c := &Client{
		run:        runCommand,
		newBackoff: defaultBackoff,
	}

	var err error
	if c.sbatchPath, err = exec.LookPath("sbatch"); err != nil {
		return nil, fmt.Errorf("%w: sbatch", ErrSchedulerNotFound)
	}
	if c.scancelPath, err = exec.LookPath("scancel"); err != nil {
		return nil, fmt.Errorf("%w: scancel", ErrSchedulerNotFound)
	}
	if c.squeuePath, err = exec.LookPath("squeue"); err != nil {
		return nil, fmt.Errorf("%w: squeue", ErrSchedulerNotFound)
	}

	return c, nil
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// Submit renders the script to a temp file and hands it to sbatch. Returns
// the scheduler's job ID.
func (c *Client) Submit(ctx context.Context, script sbatch.Script) (int, error) {
	if err := script.Directives.Validate(); err != nil {
		return 0, fmt.Errorf("invalid resource request: %w", err)
	}

	f, err := os.CreateTemp("", script.Directives.JobName+"-*.sbatch")
	if err != nil {
		return 0, fmt.Errorf("failed to write batch file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(script.Render()); err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to write batch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to write batch file: %w", err)
	}

	var jobID int
	operation := func() error {
		out, err := c.run(ctx, c.sbatchPath, path)
		if err != nil {
			rejection := fmt.Errorf("%w: %s", ErrSubmitRejected, strings.TrimSpace(string(out)))
			if isPermanentRejection(string(out)) {
				return backoff.Permanent(rejection)
			}
			return rejection
		}
		jobID, err = parseSubmitOutput(string(out))
		if err != nil {
			// Acknowledgement in an unexpected shape is not transient
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackoff(), ctx)); err != nil {
		return 0, err
	}
	return jobID, nil
}

// permanentRejections are sbatch complaints about the request itself; no
// amount of retrying fixes a bad partition, QOS, or account.
var permanentRejections = []string{
	"invalid partition",
	"invalid qos",
	"invalid account",
	"invalid generic resource",
	"invalid time limit",
	"unable to open file",
}

func isPermanentRejection(out string) bool {
	s := strings.ToLower(out)
	for _, marker := range permanentRejections {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// parseSubmitOutput extracts the job ID from sbatch's acknowledgement.
func parseSubmitOutput(out string) (int, error) {
	m := submittedPattern.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("unexpected sbatch output: %q", strings.TrimSpace(out))
	}
	return strconv.Atoi(m[1])
}

// Cancel asks the scheduler to kill a job.
func (c *Client) Cancel(ctx context.Context, jobID int) error {
	out, err := c.run(ctx, c.scancelPath, strconv.Itoa(jobID))
	if err != nil {
		return fmt.Errorf("failed to cancel job %d: %s", jobID, strings.TrimSpace(string(out)))
	}
	return nil
}

// Status reports the queue state of a job. A job no longer in the queue is
// reported as completed; the scheduler does not distinguish further without
// accounting access.
func (c *Client) Status(ctx context.Context, jobID int) (JobState, error) {
	out, err := c.run(ctx, c.squeuePath, "-h", "-j", strconv.Itoa(jobID), "-o", "%T")
	if err != nil {
		return StateUnknown, fmt.Errorf("failed to query job %d: %s", jobID, strings.TrimSpace(string(out)))
	}

	state := strings.TrimSpace(string(out))
	if state == "" {
		return StateCompleted, nil
	}

	switch JobState(state) {
	case StatePending, StateRunning, StateCompleted, StateFailed:
		return JobState(state), nil
	case "CONFIGURING", "COMPLETING":
		// Transitional states map to running
		return StateRunning, nil
	}
	return StateUnknown, nil
}
