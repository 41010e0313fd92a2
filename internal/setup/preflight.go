package setup

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ComponentStatus represents the installation status of a required component
type ComponentStatus struct {
	Name      string
	Installed bool
	Version   string
}

// PreflightResult contains the results of the preflight check
type PreflightResult struct {
	Components []ComponentStatus
	OSId       string // "ubuntu", "debian", etc.
	OSVersion  string // "22.04", "12", etc.
	GPUFound   bool
	GPUName    string
}

// RunPreflight checks the host for the tools a submission or local run needs:
// the scheduler command-line clients, the NVIDIA stack, and a Python
// interpreter for the trainer.
func RunPreflight() (*PreflightResult, error) {
	result := &PreflightResult{}

	// Detect OS
	result.OSId, result.OSVersion = detectOS()

	// Detect GPU
	result.GPUFound, result.GPUName = detectNvidiaGPU()

	// Check components
	result.Components = []ComponentStatus{
		checkComponent("sbatch", "sbatch", "--version"),
		checkComponent("squeue", "squeue", "--version"),
		checkComponent("scancel", "scancel", "--version"),
		checkComponent("nvidia-smi", "nvidia-smi", "--query-gpu=driver_version --format=csv,noheader"),
		checkComponent("python3", "python3", "--version"),
		checkComponent("docker", "docker", "--version"),
	}

	return result, nil
}

// MissingComponents returns the names of components that are not installed
func (r *PreflightResult) MissingComponents() []string {
	var missing []string
	for _, c := range r.Components {
		if !c.Installed {
			missing = append(missing, c.Name)
		}
	}
	return missing
}

// HasScheduler reports whether the scheduler command-line clients are all
// present on this host.
func (r *PreflightResult) HasScheduler() bool {
	want := map[string]bool{"sbatch": false, "squeue": false, "scancel": false}
	for _, c := range r.Components {
		if _, ok := want[c.Name]; ok {
			want[c.Name] = c.Installed
		}
	}
	return want["sbatch"] && want["squeue"] && want["scancel"]
}

// PrintStatus prints the preflight check results
func (r *PreflightResult) PrintStatus() {
	for _, c := range r.Components {
		if c.Installed {
			fmt.Printf("  ✓ %s: %s\n", c.Name, c.Version)
		} else {
			fmt.Printf("  ✗ %s: NOT INSTALLED\n", c.Name)
		}
	}
	fmt.Printf("  OS: %s %s\n", r.OSId, r.OSVersion)
	if r.GPUFound {
		fmt.Printf("  GPU: %s\n", r.GPUName)
	}
}

func checkComponent(name, binary, versionArgs string) ComponentStatus {
	cs := ComponentStatus{Name: name}

	if _, err := exec.LookPath(binary); err != nil {
		return cs
	}
	cs.Installed = true

	out, err := exec.Command("bash", "-c", binary+" "+versionArgs).Output()
	if err != nil {
		// Binary exists but the version command failed
		cs.Version = "(version unknown)"
		return cs
	}

	cs.Version = versionSummary(string(out))
	return cs
}

// versionSummary reduces a version command's output to one short line.
// Truncation counts runes, not bytes; localized slurm builds print
// non-ASCII in their banner.
func versionSummary(out string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	runes := []rune(strings.TrimSpace(line))
	if len(runes) > 60 {
		return string(runes[:60])
	}
	return string(runes)
}

func detectOS() (id, version string) {
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return "unknown", ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if v, ok := strings.CutPrefix(line, "ID="); ok {
			id = strings.Trim(v, "\"")
		}
		if v, ok := strings.CutPrefix(line, "VERSION_ID="); ok {
			version = strings.Trim(v, "\"")
		}
	}
	return id, version
}

func detectNvidiaGPU() (found bool, name string) {
	cmd := exec.Command("nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	out, err := cmd.Output()
	if err != nil {
		return false, ""
	}
	gpuName := strings.TrimSpace(string(out))
	if gpuName == "" {
		return false, ""
	}
	// Take first line if multiple GPUs
	lines := strings.Split(gpuName, "\n")
	return true, strings.TrimSpace(lines[0])
}
