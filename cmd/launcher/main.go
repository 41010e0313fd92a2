package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hilloc/hilloc-launcher/internal/cli"
	"github.com/hilloc/hilloc-launcher/internal/config"
	"github.com/hilloc/hilloc-launcher/internal/container"
	"github.com/hilloc/hilloc-launcher/internal/gpu"
	"github.com/hilloc/hilloc-launcher/internal/launch"
	"github.com/hilloc/hilloc-launcher/internal/port"
	"github.com/hilloc/hilloc-launcher/internal/sbatch"
	"github.com/hilloc/hilloc-launcher/internal/scheduler"
	"github.com/hilloc/hilloc-launcher/internal/setup"
	"github.com/hilloc/hilloc-launcher/internal/slurmrest"
)

const (
	defaultImage = "tensorflow/tensorflow:1.15.5-gpu-py3"

	// TensorBoard host port range for local runs
	tbPortMin = 6006
	tbPortMax = 6100
)

func main() {
	log.Println("hilloc launcher starting...")

	// Command line flags
	configPath := flag.String("config", "", "Job file (YAML); defaults describe the reference experiment")
	workDir := flag.String("workdir", "", "Experiment directory the job runs from")
	mailUser := flag.String("mail-user", "", "Address notified on job end/failure")
	logDir := flag.String("logdir", "", "Override the trainer log directory")
	mode := flag.String("mode", "", "Override the trainer run mode")
	dryRun := flag.Bool("dry-run", false, "Render the submission script and exit")
	local := flag.Bool("local", false, "Run in a local GPU container instead of submitting")
	execHost := flag.Bool("exec", false, "Run the job body directly on this host (inside an allocation)")
	image := flag.String("image", defaultImage, "Container image for local runs")
	gpuMemMB := flag.Uint64("gpu-mem", 0, "Minimum free GPU memory per device in MB for local runs (0 checks device count only)")
	restURL := flag.String("rest-url", "", "slurmrestd base URL; when set, submit over REST")
	restUser := flag.String("rest-user", os.Getenv("SLURM_USER_NAME"), "slurmrestd user name")
	restToken := flag.String("rest-token", os.Getenv("SLURM_JWT"), "slurmrestd bearer token")
	wait := flag.Bool("wait", false, "After submitting, poll until the job leaves the queue")
	flag.Parse()

	// Load job file, layer flag overrides on top
	jf, err := loadJobFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load job file: %v", err)
	}
	if *workDir != "" {
		jf.Environment.WorkDir = *workDir
	}
	if *mailUser != "" {
		jf.Job.MailUser = *mailUser
	}
	if *logDir != "" {
		jf.Training.LogDir = *logDir
	}
	if *mode != "" {
		jf.Training.Mode = *mode
	}

	if err := jf.Validate(); err != nil {
		log.Fatalf("Invalid job file: %v", err)
	}

	script := sbatch.Script{
		Directives: jf.Directives(),
		Preamble:   jf.Activation().ScriptLines(),
		Command:    jf.Invocation().CommandLine(),
	}

	if *dryRun {
		cli.PrintJobSummary(&script.Directives)
		cli.PrintScript(script.Render())
		return
	}

	// Signal handling for cancellation (Ctrl+C stops local runs cleanly)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *execHost:
		runOnHost(ctx, jf)
	case *local:
		runLocal(ctx, jf, *image, *gpuMemMB)
	case *restURL != "":
		submitREST(jf, script, *restURL, *restUser, *restToken)
	default:
		submitBatch(ctx, jf, script, *wait)
	}
}

func loadJobFile(path string) (*config.JobFile, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// runOnHost executes the job body directly, the way the batch script runs
// inside its allocation: preamble, then one trainer invocation, exit status
// passed through.
func runOnHost(ctx context.Context, jf *config.JobFile) {
	launcher := launch.NewLauncher(launch.NewShellRunner())
	if err := launcher.Run(ctx, jf.Activation(), jf.Invocation()); err != nil {
		cli.PrintError(err.Error())
		os.Exit(launch.ExitCode(err))
	}
	cli.PrintSuccess("Training finished")
}

// runLocal runs the training in a local GPU container when no scheduler is
// reachable. The scheduler's resource request becomes container limits;
// gpuMemMB is a separate free-VRAM floor per device, since the job's memory
// request is host RAM, not device memory.
func runLocal(ctx context.Context, jf *config.JobFile, image string, gpuMemMB uint64) {
	cli.PrintStep(1, 4, "Checking host GPUs")
	provider := gpu.NewNVMLProvider()
	if err := provider.Init(); err != nil {
		log.Fatalf("Failed to initialize GPU discovery: %v", err)
	}
	defer provider.Shutdown()

	devices, err := provider.Devices()
	if err != nil {
		log.Fatalf("Failed to enumerate GPUs: %v", err)
	}
	cli.PrintDevicesTable(devices)

	if err := gpu.VerifyCapacity(provider, jf.Job.GPUs, gpuMemMB); err != nil {
		log.Fatalf("GPU preflight failed: %v", err)
	}

	cli.PrintStep(2, 4, "Allocating TensorBoard port")
	runID := fmt.Sprintf("%s-%d", jf.Job.Name, time.Now().Unix())
	pm := port.NewPortManager(tbPortMin, tbPortMax, 30*time.Second)
	tbPort, err := pm.Allocate(runID)
	if err != nil {
		log.Printf("No TensorBoard port available, continuing without: %v", err)
		tbPort = 0
	} else {
		defer pm.Release(tbPort)
		log.Printf("TensorBoard will be reachable on host port %d", tbPort)
	}

	cli.PrintStep(3, 4, "Starting training container")
	svc, err := container.NewDockerService()
	if err != nil {
		log.Fatalf("Failed to connect to Docker: %v", err)
	}
	defer svc.Close()

	inv := jf.Invocation()
	result, err := svc.RunTraining(ctx, container.TrainingConfig{
		RunID:           runID,
		Image:           image,
		GPUCount:        jf.Job.GPUs,
		MemoryMB:        jf.Job.MemoryMB,
		WorkDir:         jf.Environment.WorkDir,
		Command:         []string{"set -e", inv.CommandLine()},
		TensorboardPort: tbPort,
	})
	if err != nil {
		log.Fatalf("Training run failed: %v", err)
	}

	cli.PrintStep(4, 4, "Training finished")
	cli.PrintField("Container", result.ContainerID)
	cli.PrintField("Exit code", fmt.Sprintf("%d", result.ExitCode))
	cli.PrintField("Duration", result.Duration.Round(time.Second).String())
	os.Exit(result.ExitCode)
}

// submitREST submits over slurmrestd instead of the command-line clients.
func submitREST(jf *config.JobFile, script sbatch.Script, baseURL, user, token string) {
	client := slurmrest.NewClient(baseURL, user, token)
	sub := slurmrest.JobSubmission{
		Script: script.Render(),
		Job:    slurmrest.PropertiesFromDirectives(script.Directives, jf.Environment.WorkDir),
	}

	jobID, err := client.SubmitJob(sub)
	if err != nil {
		log.Fatalf("REST submission failed: %v", err)
	}

	cli.PrintJobSummary(&script.Directives)
	cli.PrintSuccess(fmt.Sprintf("Submitted batch job %d", jobID))
}

// submitBatch writes the script and submits it with the scheduler's
// command-line client, optionally polling until the job leaves the queue.
func submitBatch(ctx context.Context, jf *config.JobFile, script sbatch.Script, wait bool) {
	pre, err := setup.RunPreflight()
	if err != nil {
		log.Fatalf("Preflight failed: %v", err)
	}
	if !pre.HasScheduler() {
		pre.PrintStatus()
		log.Fatalf("Scheduler clients missing: %v", pre.MissingComponents())
	}

	client, err := scheduler.NewClient()
	if err != nil {
		log.Fatalf("Failed to find scheduler commands: %v", err)
	}

	jobID, err := client.Submit(ctx, script)
	if err != nil {
		log.Fatalf("Submission failed: %v", err)
	}

	cli.PrintJobSummary(&script.Directives)
	cli.PrintSuccess(fmt.Sprintf("Submitted batch job %d", jobID))

	if !wait {
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Interrupted, cancelling job %d", jobID)
			if err := client.Cancel(context.Background(), jobID); err != nil {
				log.Printf("Cancel failed: %v", err)
			}
			return
		case <-ticker.C:
			state, err := client.Status(ctx, jobID)
			if err != nil {
				log.Printf("Status poll failed: %v", err)
				continue
			}
			log.Printf("Job %d: %s", jobID, state)
			if state == scheduler.StateCompleted || state == scheduler.StateFailed {
				return
			}
		}
	}
}
