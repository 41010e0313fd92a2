package gpu

import (
	"errors"
	"fmt"
)

var ErrInsufficientGPUs = errors.New("host does not satisfy the GPU request")

// Device describes one GPU on the host
type Device struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	MemoryTotal uint64 `json:"memory_total_mb"`
	MemoryUsed  uint64 `json:"memory_used_mb"`
	DriverVer   string `json:"driver_version"`
}

// Provider abstracts GPU discovery so local-run preflight can be tested
// without NVIDIA hardware
type Provider interface {
	// Init initializes the provider (NVML or mock)
	Init() error
	// Shutdown cleanly shuts down the provider
	Shutdown() error
	// Devices returns all GPUs visible on the host
	Devices() ([]Device, error)
}

// VerifyCapacity checks that the host can satisfy a local run's GPU request:
// at least count devices, each with at least minFreeMB of device memory
// free. minFreeMB is a VRAM floor, not the job's host memory request; pass 0
// to check the device count only. This guards only local container runs;
// when submitting to a scheduler the scheduler owns allocation and this is
// never consulted.
func VerifyCapacity(p Provider, count int, minFreeMB uint64) error {
	if count <= 0 {
		return nil
	}

	devices, err := p.Devices()
	if err != nil {
		return fmt.Errorf("failed to enumerate GPUs: %w", err)
	}

	if len(devices) < count {
		return fmt.Errorf("%w: want %d GPUs, host has %d", ErrInsufficientGPUs, count, len(devices))
	}

	if minFreeMB == 0 {
		return nil
	}

	for _, d := range devices[:count] {
		free := d.MemoryTotal - d.MemoryUsed
		if free < minFreeMB {
			return fmt.Errorf("%w: %s has %d MB free, want %d MB", ErrInsufficientGPUs, d.Name, free, minFreeMB)
		}
	}

	return nil
}
