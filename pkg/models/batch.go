package models

import "time"

// TaskStatus represents the lifecycle state of a single segment task.
// Terminal states are StatusCompleted and StatusFailed.
type TaskStatus string

// Task status constants.
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskRetrying  TaskStatus = "retrying"
)

// Terminal reports whether the status is a terminal task state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// SegmentTask tracks one segment through the scheduler.
// Invariants: Status==TaskCompleted implies Result != "";
// Attempts <= max_retries + 1.
type SegmentTask struct {
	Segment       Segment    `json:"segment"`
	Status        TaskStatus `json:"status"`
	Attempts      int        `json:"attempts"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	Result        string     `json:"result,omitempty"`
	Error         string     `json:"error,omitempty"`
	LastErrorKind string     `json:"last_error_kind,omitempty"`
}

// Stage represents the processing stage of a batch.
// Stages advance monotonically except to StageFailed/StageCancelled,
// which are reachable from any non-terminal stage.
type Stage string

// Stage constants, in progression order.
const (
	StageInitializing    Stage = "initializing"
	StageSegmenting      Stage = "segmenting"
	StageBatchProcessing Stage = "batch-processing"
	StageMerging         Stage = "merging"
	StageFinalizing      Stage = "finalizing"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
	StageCancelled       Stage = "cancelled"
)

// Terminal reports whether the stage is a terminal batch state.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// ProgressSnapshot is an immutable view of batch progress at a point in time.
// OverallPct is monotone non-decreasing while the stage is non-terminal.
type ProgressSnapshot struct {
	BatchID        string    `json:"batch_id"`
	Total          int       `json:"total"`
	Completed      int       `json:"completed"`
	Failed         int       `json:"failed"`
	CurrentIndex   int       `json:"current_index"`
	Stage          Stage     `json:"stage"`
	OverallPct     float64   `json:"overall_pct"`
	StagePct       float64   `json:"stage_pct"`
	ElapsedMs      int64     `json:"elapsed_ms"`
	EtaMs          *int64    `json:"eta_ms,omitempty"`
	AvgSegmentMs   float64   `json:"avg_segment_ms"`
	SegmentsPerMin float64   `json:"segments_per_min"`
	CharsPerSec    float64   `json:"chars_per_sec"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Batch is a single end-to-end summarization job. Batches are memory-resident
// and owned by the scheduler; the cancellation controller mutates only the
// cancel subfields.
type Batch struct {
	ID            string               `json:"batch_id"`
	UserID        string               `json:"user_id"`
	CreatedAt     time.Time            `json:"created_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	OriginalText  string               `json:"-"`
	Tasks         []*SegmentTask       `json:"tasks"`
	Stage         Stage                `json:"stage"`
	Progress      ProgressSnapshot     `json:"progress"`
	CancelRequest *CancellationRequest `json:"cancel_request,omitempty"`
	Partial       *PartialResult       `json:"partial_result,omitempty"`
	Summary       string               `json:"summary,omitempty"`
	ErrorMessage  string               `json:"error_message,omitempty"`
}

// BatchSummary is the compact listing view returned by list-by-user queries.
type BatchSummary struct {
	BatchID     string     `json:"batch_id"`
	UserID      string     `json:"user_id"`
	Stage       Stage      `json:"stage"`
	Total       int        `json:"total"`
	Completed   int        `json:"completed"`
	Failed      int        `json:"failed"`
	OverallPct  float64    `json:"overall_pct"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
