package sbatch

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DirectivePrefix marks a scheduler directive line in a batch script.
const DirectivePrefix = "#SBATCH"

var (
	ErrNotADirective       = errors.New("line is not a scheduler directive")
	ErrUnknownDirective    = errors.New("unrecognized scheduler directive")
	ErrDuplicateDirective  = errors.New("duplicate scheduler directive")
)

// timeLimitPattern accepts [days-]hours:minutes:seconds, the wall-clock form
// the scheduler recognizes (e.g. "6:00:00", "1-12:00:00").
var timeLimitPattern = regexp.MustCompile(`^(\d+-)?\d{1,3}:\d{2}:\d{2}$`)

// Directives is the flat set of resource requests consumed by the scheduler
// before the job runs. The scheduler is the authority on semantics; this type
// only carries the values and renders/parses the directive lines.
type Directives struct {
	JobName   string
	NTasks    int
	MemoryMB  int
	TimeLimit string // [days-]H:MM:SS
	TmpDiskMB int    // scratch space on the compute node
	Partition string
	QOS       string
	GPUs      int
	MailType  string // scheduler mail-event triggers, e.g. "END,FAIL"
	MailUser  string
}

// Default returns the resource request of the reference experiment: one task,
// one GPU, 32 GB memory, six hours of wall clock, node-local scratch.
// Mail notification is left unset; the address is user-supplied and the mail
// directives are only emitted once it is.
func Default() Directives {
	return Directives{
		JobName:   "hilloc",
		NTasks:    1,
		MemoryMB:  32768,
		TimeLimit: "6:00:00",
		TmpDiskMB: 16384,
		Partition: "gpu",
		QOS:       "normal",
		GPUs:      1,
	}
}

// Lines renders the directive set as "#SBATCH --key=value" lines. Directives
// with zero values are omitted; the scheduler applies its own defaults for
// anything not requested.
func (d Directives) Lines() []string {
	var lines []string
	add := func(key, value string) {
		lines = append(lines, fmt.Sprintf("%s --%s=%s", DirectivePrefix, key, value))
	}

	if d.JobName != "" {
		add("job-name", d.JobName)
	}
	if d.NTasks > 0 {
		add("ntasks", strconv.Itoa(d.NTasks))
	}
	if d.MemoryMB > 0 {
		add("mem", strconv.Itoa(d.MemoryMB))
	}
	if d.TimeLimit != "" {
		add("time", d.TimeLimit)
	}
	if d.TmpDiskMB > 0 {
		add("tmp", strconv.Itoa(d.TmpDiskMB))
	}
	if d.Partition != "" {
		add("partition", d.Partition)
	}
	if d.QOS != "" {
		add("qos", d.QOS)
	}
	if d.GPUs > 0 {
		add("gres", fmt.Sprintf("gpu:%d", d.GPUs))
	}
	if d.MailType != "" {
		add("mail-type", d.MailType)
	}
	if d.MailUser != "" {
		add("mail-user", d.MailUser)
	}
	return lines
}

// Parse recovers a directive set from a batch script. Directive order does
// not matter: independent directives commute, so any ordering of the same
// lines yields an equal Directives value. Repeating a directive is an error
// rather than last-one-wins.
func Parse(script string) (Directives, error) {
	var d Directives
	seen := make(map[string]bool)

	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, DirectivePrefix) {
			continue
		}

		key, value, err := splitDirective(line)
		if err != nil {
			return d, err
		}
		if seen[key] {
			return d, fmt.Errorf("%w: --%s", ErrDuplicateDirective, key)
		}
		seen[key] = true

		if err := d.set(key, value); err != nil {
			return d, err
		}
	}

	return d, nil
}

func splitDirective(line string) (key, value string, err error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, DirectivePrefix))
	if !strings.HasPrefix(rest, "--") {
		return "", "", fmt.Errorf("%w: %q", ErrNotADirective, line)
	}
	key, value, ok := strings.Cut(strings.TrimPrefix(rest, "--"), "=")
	if !ok || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrNotADirective, line)
	}
	return key, value, nil
}

func (d *Directives) set(key, value string) error {
	var err error
	switch key {
	case "job-name":
		d.JobName = value
	case "ntasks":
		d.NTasks, err = strconv.Atoi(value)
	case "mem":
		d.MemoryMB, err = strconv.Atoi(value)
	case "time":
		d.TimeLimit = value
	case "tmp":
		d.TmpDiskMB, err = strconv.Atoi(value)
	case "partition":
		d.Partition = value
	case "qos":
		d.QOS = value
	case "gres":
		d.GPUs, err = parseGres(value)
	case "mail-type":
		d.MailType = value
	case "mail-user":
		d.MailUser = value
	default:
		return fmt.Errorf("%w: --%s", ErrUnknownDirective, key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for --%s: %w", key, err)
	}
	return nil
}

// parseGres extracts the GPU count from a "gpu:<n>" generic resource spec.
func parseGres(value string) (int, error) {
	name, count, ok := strings.Cut(value, ":")
	if !ok || name != "gpu" {
		return 0, fmt.Errorf("unsupported gres %q (want gpu:<count>)", value)
	}
	return strconv.Atoi(count)
}

// Validate is a pre-submission sanity check. The scheduler remains the
// authority on what it accepts; this only catches requests that could never
// be valid.
func (d Directives) Validate() error {
	if d.JobName == "" {
		return fmt.Errorf("job name must not be empty")
	}
	if d.NTasks < 1 {
		return fmt.Errorf("ntasks must be >= 1, got %d", d.NTasks)
	}
	if d.MemoryMB <= 0 {
		return fmt.Errorf("memory must be > 0 MB, got %d", d.MemoryMB)
	}
	if d.TmpDiskMB < 0 {
		return fmt.Errorf("tmp disk must be >= 0 MB, got %d", d.TmpDiskMB)
	}
	if d.GPUs < 0 {
		return fmt.Errorf("gpu count must be >= 0, got %d", d.GPUs)
	}
	if d.TimeLimit != "" && !timeLimitPattern.MatchString(d.TimeLimit) {
		return fmt.Errorf("time limit %q does not match [days-]H:MM:SS", d.TimeLimit)
	}
	if d.MailType != "" && d.MailUser == "" {
		return fmt.Errorf("mail-type set but no mail-user given")
	}
	return nil
}
