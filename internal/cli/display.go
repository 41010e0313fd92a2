package cli

import (
	"fmt"
	"strings"

	"github.com/hilloc/hilloc-launcher/internal/gpu"
	"github.com/hilloc/hilloc-launcher/internal/sbatch"
)

// PrintHeader prints a section header
func PrintHeader(title string) {
	fmt.Printf("\n=== %s ===\n", title)
}

// PrintField prints a labeled field
func PrintField(label, value string) {
	fmt.Printf("  %-14s %s\n", label+":", value)
}

// PrintJobSummary displays the resource request for a job before submission
func PrintJobSummary(d *sbatch.Directives) {
	PrintHeader("Job Request")
	PrintField("Name", d.JobName)
	PrintField("Tasks", fmt.Sprintf("%d", d.NTasks))
	PrintField("GPUs", fmt.Sprintf("%d", d.GPUs))
	PrintField("Memory", fmt.Sprintf("%d MB", d.MemoryMB))
	PrintField("Time limit", d.TimeLimit)
	if d.TmpDiskMB > 0 {
		PrintField("Scratch", fmt.Sprintf("%d MB", d.TmpDiskMB))
	}
	if d.Partition != "" {
		PrintField("Partition", d.Partition)
	}
	if d.QOS != "" {
		PrintField("QOS", d.QOS)
	}
	if d.MailUser != "" {
		PrintField("Mail", fmt.Sprintf("%s (%s)", d.MailUser, d.MailType))
	}
}

// PrintDevicesTable displays detected GPUs in a table format
func PrintDevicesTable(devices []gpu.Device) {
	PrintHeader(fmt.Sprintf("GPUs (%d)", len(devices)))

	if len(devices) == 0 {
		fmt.Println("  (no devices detected)")
		return
	}

	fmt.Printf("  %-40s %-24s %-12s %-12s\n", "UUID", "Name", "Total MB", "Used MB")
	fmt.Printf("  %-40s %-24s %-12s %-12s\n",
		strings.Repeat("-", 38), strings.Repeat("-", 24),
		strings.Repeat("-", 12), strings.Repeat("-", 12))

	for _, d := range devices {
		name := d.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Printf("  %-40s %-24s %-12d %-12d\n",
			d.UUID, name, d.MemoryTotal, d.MemoryUsed)
	}
}

// PrintScript prints a rendered submission script with a header
func PrintScript(script string) {
	PrintHeader("Submission Script")
	for _, line := range strings.Split(strings.TrimRight(script, "\n"), "\n") {
		fmt.Printf("  %s\n", line)
	}
}

// PrintStep prints a step in a multi-step process
func PrintStep(current, total int, message string) {
	fmt.Printf("\n[%d/%d] %s\n", current, total, message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("\n%s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("\nError: %s\n", message)
}
