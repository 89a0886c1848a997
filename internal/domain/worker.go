package domain

// WorkerStatus is the lifecycle state of one worker node.
type WorkerStatus string

const (
	WorkerActive   WorkerStatus = "active"
	WorkerInactive WorkerStatus = "inactive"
	WorkerFailed   WorkerStatus = "failed"
	WorkerScaling  WorkerStatus = "scaling"
)

// WorkerMetrics is the latest reported health sample for a worker.
type WorkerMetrics struct {
	ProcessedSignals int64   `json:"processedSignals"`
	AverageLatency   float64 `json:"averageLatency"` // ms
	ErrorRate        float64 `json:"errorRate"`      // [0,1]
	CPUUsage         float64 `json:"cpuUsage"`       // [0,1]
	MemoryUsage      float64 `json:"memoryUsage"`    // [0,1]
}

// WorkerNode is one worker in the horizontally scaled pool.
type WorkerNode struct {
	ID              string
	Status          WorkerStatus
	AssignedTickers map[string]struct{}
	CurrentLoad     float64 // [0,1]
	MaxCapacity     int     // max assigned tickers before considered full
	LastHeartbeat   int64   // Unix ms
	Metrics         WorkerMetrics
}

// Clone returns a deep copy of the worker node.
func (w *WorkerNode) Clone() *WorkerNode {
	cp := *w
	cp.AssignedTickers = make(map[string]struct{}, len(w.AssignedTickers))
	for t := range w.AssignedTickers {
		cp.AssignedTickers[t] = struct{}{}
	}
	return &cp
}

// PoolStatus is a read-only snapshot of the worker pool.
type PoolStatus struct {
	Workers       []*WorkerNode
	Active        int
	Failed        int
	TotalAssigned int
	GeneratedAt   int64 // Unix ms
}
