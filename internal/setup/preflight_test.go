package setup

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestVersionSummary_KeepsFirstLine(t *testing.T) {
	out := "slurm 23.11.4\ncopyright etc\n"
	assert.Equal(t, "slurm 23.11.4", versionSummary(out))
}

func TestVersionSummary_TruncatesByRune(t *testing.T) {
	// 70 two-byte runes; a byte-offset cut at 60 would split one in half
	long := strings.Repeat("ü", 70)

	got := versionSummary(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 60, utf8.RuneCountInString(got))
}

func TestVersionSummary_ShortStringUnchanged(t *testing.T) {
	assert.Equal(t, "Python 3.8.10", versionSummary("Python 3.8.10\n"))
}

func TestMissingComponents(t *testing.T) {
	r := &PreflightResult{Components: []ComponentStatus{
		{Name: "sbatch", Installed: true},
		{Name: "squeue", Installed: false},
		{Name: "nvidia-smi", Installed: false},
	}}

	assert.Equal(t, []string{"squeue", "nvidia-smi"}, r.MissingComponents())
}

func TestHasScheduler(t *testing.T) {
	full := &PreflightResult{Components: []ComponentStatus{
		{Name: "sbatch", Installed: true},
		{Name: "squeue", Installed: true},
		{Name: "scancel", Installed: true},
		{Name: "docker", Installed: false},
	}}
	assert.True(t, full.HasScheduler())

	partial := &PreflightResult{Components: []ComponentStatus{
		{Name: "sbatch", Installed: true},
		{Name: "squeue", Installed: true},
	}}
	assert.False(t, partial.HasScheduler(), "scancel missing entirely")
}
