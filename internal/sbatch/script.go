package sbatch

import "strings"

// Script is a complete batch file: the resource request, the environment
// preamble, and the single command the job runs.
type Script struct {
	Directives Directives
	Preamble   []string // executed in order before the command
	Command    string
}

// Render emits the batch file in the shape the scheduler expects: shebang,
// directive block, then the executable body.
func (s Script) Render() string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n")

	for _, line := range s.Directives.Lines() {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if len(s.Preamble) > 0 {
		b.WriteByte('\n')
		for _, line := range s.Preamble {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	if s.Command != "" {
		b.WriteByte('\n')
		b.WriteString(s.Command)
		b.WriteByte('\n')
	}

	return b.String()
}
