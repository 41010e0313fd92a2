package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// workspacePath is where the experiment directory is mounted inside the
// training container.
const workspacePath = "/workspace"

// TrainingConfig holds configuration for running a training job in a local
// GPU container when no cluster scheduler is reachable. The resource request
// that would have gone to the scheduler becomes container limits.
type TrainingConfig struct {
	RunID           string   // used as container name
	Image           string   // e.g. "tensorflow/tensorflow:1.15.5-gpu-py3"
	GPUCount        int      // number of devices exposed via NVIDIA_VISIBLE_DEVICES
	MemoryMB        int      // memory limit, same unit as the scheduler request
	WorkDir         string   // host experiment directory, mounted at /workspace
	Command         []string // shell script lines, run via bash -c
	TensorboardPort int      // host port bound to 6006; 0 disables publishing
}

// RunResult is the outcome of a completed containerized run.
type RunResult struct {
	ContainerID string
	ExitCode    int
	Duration    time.Duration
}

// ContainerInfo contains information about a running container
type ContainerInfo struct {
	ContainerID string
	State       string // "running", "exited", etc.
	ExitCode    int
}

// DockerService wraps the Docker SDK for local training runs
type DockerService struct {
	cli        DockerClient // Interface for testability
	newBackoff func() backoff.BackOff
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// DockerClient interface for Docker operations (mockable)
type DockerClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error)
	Close() error
}

// Compile-time interface check
var _ DockerClient = (*client.Client)(nil)

// NewDockerService creates a new DockerService with a Docker client
func NewDockerService() (*DockerService, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerService{cli: cli, newBackoff: defaultBackoff}, nil
}

// NewDockerServiceWithClient creates a DockerService with a provided client (for testing)
func NewDockerServiceWithClient(cli DockerClient) *DockerService {
	return &DockerService{cli: cli, newBackoff: defaultBackoff}
}

// ensureImage pulls the training image if it's not available locally.
func (s *DockerService) ensureImage(ctx context.Context, imageName string) error {
	_, err := s.cli.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}

	slog.Info("image not found locally, pulling from registry", "image", imageName)

	reader, err := s.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	// Consume the reader to complete the pull (progress output is discarded)
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("error during image pull %s: %w", imageName, err)
	}

	slog.Info("image pulled successfully", "image", imageName)
	return nil
}

// visibleDevices renders the NVIDIA_VISIBLE_DEVICES value for a GPU count:
// device indices 0..n-1. A local run takes the first n devices; selection by
// UUID is not supported.
func visibleDevices(count int) string {
	if count <= 0 {
		return "none"
	}
	indices := make([]string, count)
	for i := range indices {
		indices[i] = strconv.Itoa(i)
	}
	return strings.Join(indices, ",")
}

// createContainer creates the training container with NVIDIA runtime, the
// experiment directory mounted, and the job's resource limits applied.
func (s *DockerService) createContainer(ctx context.Context, cfg TrainingConfig) (string, error) {
	containerConfig := &container.Config{
		Image:      cfg.Image,
		WorkingDir: workspacePath,
		Entrypoint: []string{"/bin/bash", "-c"},
		Cmd:        []string{strings.Join(cfg.Command, "\n")},
		Env: []string{
			fmt.Sprintf("NVIDIA_VISIBLE_DEVICES=%s", visibleDevices(cfg.GPUCount)),
			"NVIDIA_DRIVER_CAPABILITIES=all",
		},
	}

	var portBindings nat.PortMap
	if cfg.TensorboardPort > 0 {
		containerConfig.ExposedPorts = nat.PortSet{"6006/tcp": struct{}{}}
		portBindings = nat.PortMap{
			"6006/tcp": []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: strconv.Itoa(cfg.TensorboardPort)},
			},
		}
	}

	hostConfig := &container.HostConfig{
		Runtime: "nvidia",
		Binds:   []string{cfg.WorkDir + ":" + workspacePath},
		Resources: container.Resources{
			Memory: int64(cfg.MemoryMB) * 1024 * 1024,
		},
		PortBindings: portBindings,
	}

	resp, err := s.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, cfg.RunID)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	return resp.ID, nil
}

// startContainer starts a container with exponential backoff retry
func (s *DockerService) startContainer(ctx context.Context, containerID string) error {
	b := s.newBackoff()

	operation := func() error {
		if err := s.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start container: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("failed to start container after retries: %w", err)
	}

	return nil
}

// RunTraining executes one training job in a container and blocks until it
// finishes. The container is removed afterwards; the trainer's exit status is
// reported in the result, matching the batch job's passthrough semantics.
func (s *DockerService) RunTraining(ctx context.Context, cfg TrainingConfig) (*RunResult, error) {
	if err := s.ensureImage(ctx, cfg.Image); err != nil {
		return nil, fmt.Errorf("failed to ensure image: %w", err)
	}

	containerID, err := s.createContainer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cleanup := func() {
		_ = s.RemoveContainer(context.Background(), containerID, true)
	}

	if err := s.startContainer(ctx, containerID); err != nil {
		cleanup()
		return nil, err
	}

	started := time.Now()
	slog.Info("training container started", "container", containerID, "image", cfg.Image, "gpus", cfg.GPUCount)

	waitCh, errCh := s.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case resp := <-waitCh:
		result := &RunResult{
			ContainerID: containerID,
			ExitCode:    int(resp.StatusCode),
			Duration:    time.Since(started),
		}
		cleanup()
		return result, nil
	case err := <-errCh:
		cleanup()
		return nil, fmt.Errorf("error waiting for training container: %w", err)
	case <-ctx.Done():
		// Cancellation kills the run, like the scheduler at the time limit
		_ = s.StopContainer(context.Background(), containerID, 10)
		cleanup()
		return nil, ctx.Err()
	}
}

// StopContainer stops a container gracefully with timeout
func (s *DockerService) StopContainer(ctx context.Context, containerID string, timeoutSeconds int) error {
	timeout := timeoutSeconds
	stopOptions := container.StopOptions{
		Timeout: &timeout,
	}

	if err := s.cli.ContainerStop(ctx, containerID, stopOptions); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// RemoveContainer removes a container and its volumes
func (s *DockerService) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	removeOptions := container.RemoveOptions{
		RemoveVolumes: true,
		Force:         force,
	}

	if err := s.cli.ContainerRemove(ctx, containerID, removeOptions); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// InspectContainer returns information about a container
func (s *DockerService) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	inspect, err := s.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	info := &ContainerInfo{ContainerID: inspect.ID}
	if inspect.State != nil {
		info.State = inspect.State.Status
		info.ExitCode = inspect.State.ExitCode
	}
	return info, nil
}

// Close closes the Docker client connection
func (s *DockerService) Close() error {
	if s.cli != nil {
		return s.cli.Close()
	}
	return nil
}
