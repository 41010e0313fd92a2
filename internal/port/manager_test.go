package port

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBookkeepingManager disables the bind probe so the allocation state
// machine can be tested with fixed port numbers.
func newBookkeepingManager(minPort, maxPort int, grace time.Duration) *PortManager {
	pm := NewPortManager(minPort, maxPort, grace)
	pm.probe = func(int) bool { return true }
	return pm
}

func TestAllocate_ReturnsFirstAvailablePort(t *testing.T) {
	pm := newBookkeepingManager(30000, 30010, 30*time.Minute)

	port, err := pm.Allocate("run-1")

	require.NoError(t, err)
	assert.Equal(t, 30000, port)
}

func TestAllocate_ReturnsSequentialPorts(t *testing.T) {
	pm := newBookkeepingManager(30000, 30010, 30*time.Minute)

	port1, _ := pm.Allocate("run-1")
	port2, _ := pm.Allocate("run-2")
	port3, _ := pm.Allocate("run-3")

	assert.Equal(t, 30000, port1)
	assert.Equal(t, 30001, port2)
	assert.Equal(t, 30002, port3)
}

func TestAllocate_FailsWhenRangeExhausted(t *testing.T) {
	pm := newBookkeepingManager(30000, 30001, 30*time.Minute) // Only 2 ports

	_, _ = pm.Allocate("run-1")
	_, _ = pm.Allocate("run-2")
	_, err := pm.Allocate("run-3")

	assert.ErrorIs(t, err, ErrNoAvailablePorts)
}

func TestRelease_MarksPortAsReleased(t *testing.T) {
	pm := newBookkeepingManager(30000, 30010, 30*time.Minute)

	port, _ := pm.Allocate("run-1")
	err := pm.Release(port)

	require.NoError(t, err)

	alloc, exists := pm.GetAllocation(port)
	assert.True(t, exists)
	assert.NotNil(t, alloc.ReleasedAt)
}

func TestRelease_FailsForUnallocatedPort(t *testing.T) {
	pm := newBookkeepingManager(30000, 30010, 30*time.Minute)

	err := pm.Release(30000)
	assert.ErrorIs(t, err, ErrPortNotAllocated)
}

func TestRelease_FailsForDoubleRelease(t *testing.T) {
	pm := newBookkeepingManager(30000, 30010, 30*time.Minute)

	port, _ := pm.Allocate("run-1")
	require.NoError(t, pm.Release(port))

	err := pm.Release(port)
	assert.ErrorIs(t, err, ErrPortNotAllocated)
}

func TestAllocate_DoesNotReuseWithinGracePeriod(t *testing.T) {
	pm := newBookkeepingManager(30000, 30000, 30*time.Minute) // Single port

	port, _ := pm.Allocate("run-1")
	require.NoError(t, pm.Release(port))

	_, err := pm.Allocate("run-2")
	assert.ErrorIs(t, err, ErrNoAvailablePorts)
}

func TestAllocate_ReusesAfterGracePeriod(t *testing.T) {
	pm := newBookkeepingManager(30000, 30000, 10*time.Millisecond)

	port, _ := pm.Allocate("run-1")
	require.NoError(t, pm.Release(port))

	time.Sleep(20 * time.Millisecond)

	got, err := pm.Allocate("run-2")
	require.NoError(t, err)
	assert.Equal(t, port, got)

	alloc, _ := pm.GetAllocation(port)
	assert.Equal(t, "run-2", alloc.RunID)
}

func TestIsAvailable(t *testing.T) {
	pm := newBookkeepingManager(30000, 30010, 10*time.Millisecond)

	assert.True(t, pm.IsAvailable(30000))

	port, _ := pm.Allocate("run-1")
	assert.False(t, pm.IsAvailable(port))

	require.NoError(t, pm.Release(port))
	assert.False(t, pm.IsAvailable(port), "still in grace period")

	time.Sleep(20 * time.Millisecond)
	assert.True(t, pm.IsAvailable(port))
}

func TestGetAllocation_ReturnsCopy(t *testing.T) {
	pm := newBookkeepingManager(30000, 30010, 30*time.Minute)

	port, _ := pm.Allocate("run-1")

	alloc, exists := pm.GetAllocation(port)
	require.True(t, exists)

	// Mutating the copy must not affect the manager's state
	alloc.RunID = "mutated"
	fresh, _ := pm.GetAllocation(port)
	assert.Equal(t, "run-1", fresh.RunID)
}

func TestAllocate_SkipsPortHeldByAnotherProcess(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	held := ln.Addr().(*net.TCPAddr).Port

	pm := NewPortManager(held, held, time.Minute)

	_, err = pm.Allocate("run-1")
	assert.ErrorIs(t, err, ErrNoAvailablePorts)

	require.NoError(t, ln.Close())

	port, err := pm.Allocate("run-1")
	require.NoError(t, err)
	assert.Equal(t, held, port)
}

func TestIsAvailable_SeesPortHeldByAnotherProcess(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	held := ln.Addr().(*net.TCPAddr).Port

	pm := NewPortManager(held, held, time.Minute)
	assert.False(t, pm.IsAvailable(held))
}
