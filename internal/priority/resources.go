package priority

import "ticker-orchestrator/internal/domain"

// ResourceLimits are the configured ceilings for admission control. A zero
// limit means unconstrained for that dimension.
type ResourceLimits struct {
	MaxActiveTasks  int     `yaml:"max_active_tasks" validate:"gte=0"`
	MaxMemoryMB     float64 `yaml:"max_memory_mb" validate:"gte=0"`
	MaxCPU          float64 `yaml:"max_cpu" validate:"gte=0"`
	MaxNetworkCalls int     `yaml:"max_network_calls" validate:"gte=0"`
}

// ResourceUsage is the currently admitted resource consumption.
type ResourceUsage struct {
	ActiveTasks  int
	MemoryMB     float64
	CPU          float64
	NetworkCalls int
}

// tracker accounts for admitted resources against the ceilings. It is
// advisory state, not a lock: a caller that never releases leaks the
// resources permanently, and the tracker cannot detect that on its own.
// Not goroutine-safe; the Manager serializes access.
type tracker struct {
	limits ResourceLimits
	usage  ResourceUsage
}

func newTracker(limits ResourceLimits) *tracker {
	return &tracker{limits: limits}
}

// admit reserves the cost if every dimension stays at or under its ceiling
// after admission. Nothing is reserved on rejection.
func (t *tracker) admit(cost domain.ResourceCost) bool {
	if t.limits.MaxActiveTasks > 0 && t.usage.ActiveTasks+1 > t.limits.MaxActiveTasks {
		return false
	}
	if t.limits.MaxMemoryMB > 0 && t.usage.MemoryMB+cost.MemoryMB > t.limits.MaxMemoryMB {
		return false
	}
	if t.limits.MaxCPU > 0 && t.usage.CPU+cost.CPU > t.limits.MaxCPU {
		return false
	}
	if t.limits.MaxNetworkCalls > 0 && t.usage.NetworkCalls+cost.NetworkCalls > t.limits.MaxNetworkCalls {
		return false
	}

	t.usage.ActiveTasks++
	t.usage.MemoryMB += cost.MemoryMB
	t.usage.CPU += cost.CPU
	t.usage.NetworkCalls += cost.NetworkCalls
	return true
}

// release returns the cost to the pool, clamping at zero so a stray double
// release cannot drive usage negative.
func (t *tracker) release(cost domain.ResourceCost) {
	t.usage.ActiveTasks--
	t.usage.MemoryMB -= cost.MemoryMB
	t.usage.CPU -= cost.CPU
	t.usage.NetworkCalls -= cost.NetworkCalls

	if t.usage.ActiveTasks < 0 {
		t.usage.ActiveTasks = 0
	}
	if t.usage.MemoryMB < 0 {
		t.usage.MemoryMB = 0
	}
	if t.usage.CPU < 0 {
		t.usage.CPU = 0
	}
	if t.usage.NetworkCalls < 0 {
		t.usage.NetworkCalls = 0
	}
}
