package port

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"time"
)

var (
	ErrNoAvailablePorts = errors.New("no available ports in range")
	ErrPortNotAllocated = errors.New("port not allocated")
)

// Allocation tracks a single port allocation
type Allocation struct {
	RunID       string
	AllocatedAt time.Time
	ReleasedAt  *time.Time // nil if still in use
}

// PortManager hands out host ports for TensorBoard publishing when training
// runs execute locally. A candidate port must pass two checks: our own
// bookkeeping, and an actual bind probe, so ports held by other processes
// (a running TensorBoard, another launcher) are skipped. Released ports sit
// out a grace period before reuse so a browser pointed at a finished run's
// dashboard does not silently land on a different run.
type PortManager struct {
	mu          sync.Mutex
	minPort     int
	maxPort     int
	gracePeriod time.Duration
	allocations map[int]*Allocation
	probe       func(port int) bool // injectable for tests
}

// probeListen checks that the port can actually be bound on this host.
func probeListen(port int) bool {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// NewPortManager creates a new port manager
// minPort: start of port range (inclusive)
// maxPort: end of port range (inclusive)
// gracePeriod: wait time before reusing released ports
func NewPortManager(minPort, maxPort int, gracePeriod time.Duration) *PortManager {
	return &PortManager{
		minPort:     minPort,
		maxPort:     maxPort,
		gracePeriod: gracePeriod,
		allocations: make(map[int]*Allocation),
		probe:       probeListen,
	}
}

// Allocate finds and reserves an available port for the given run. A port
// counts as available when our bookkeeping allows it and the bind probe
// confirms nothing else on the host holds it.
func (pm *PortManager) Allocate(runID string) (int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := time.Now()

	for port := pm.minPort; port <= pm.maxPort; port++ {
		alloc, exists := pm.allocations[port]

		if exists {
			// Reuse only after the grace period has fully elapsed
			if alloc.ReleasedAt == nil || now.Sub(*alloc.ReleasedAt) < pm.gracePeriod {
				continue
			}
		}

		if !pm.probe(port) {
			continue
		}

		pm.allocations[port] = &Allocation{
			RunID:       runID,
			AllocatedAt: now,
		}
		return port, nil
	}

	return 0, ErrNoAvailablePorts
}

// Release marks a port as released (starts grace period countdown)
func (pm *PortManager) Release(port int) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	alloc, exists := pm.allocations[port]
	if !exists || alloc.ReleasedAt != nil {
		return ErrPortNotAllocated
	}

	now := time.Now()
	alloc.ReleasedAt = &now
	return nil
}

// IsAvailable checks if a port is currently available for allocation
func (pm *PortManager) IsAvailable(port int) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	alloc, exists := pm.allocations[port]
	if exists && (alloc.ReleasedAt == nil || time.Since(*alloc.ReleasedAt) < pm.gracePeriod) {
		return false
	}
	return pm.probe(port)
}

// GetAllocation returns the current allocation for a port
func (pm *PortManager) GetAllocation(port int) (*Allocation, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	alloc, exists := pm.allocations[port]
	if !exists {
		return nil, false
	}
	// Return copy to prevent external mutation
	copy := *alloc
	return &copy, true
}
