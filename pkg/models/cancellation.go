package models

import "time"

// CancelReason explains why a cancellation was requested.
type CancelReason string

// Cancellation reason constants.
const (
	CancelReasonUser               CancelReason = "user"
	CancelReasonTimeout            CancelReason = "timeout"
	CancelReasonSystemError        CancelReason = "system-error"
	CancelReasonResourceExhaustion CancelReason = "resource-exhaustion"
	CancelReasonQualityThreshold   CancelReason = "quality-threshold"
	CancelReasonShutdown           CancelReason = "shutdown"
)

// CancellationRequest asks the controller to stop a batch.
type CancellationRequest struct {
	BatchID     string       `json:"batch_id"`
	RequestedBy string       `json:"requested_by"`
	Reason      CancelReason `json:"reason"`
	SavePartial bool         `json:"save_partial"`
	Force       bool         `json:"force"`
	RequestedAt time.Time    `json:"requested_at"`
}

// CancellationResult reports the outcome of a cancellation request.
type CancellationResult struct {
	BatchID      string `json:"batch_id"`
	IsSuccessful bool   `json:"is_successful"`
	Message      string `json:"message"`
	PartialSaved bool   `json:"partial_saved"`
}

// QualityLevel buckets a partial-result quality score.
type QualityLevel string

// Quality level constants.
const (
	QualityExcellent  QualityLevel = "excellent"
	QualityGood       QualityLevel = "good"
	QualityAcceptable QualityLevel = "acceptable"
	QualityPoor       QualityLevel = "poor"
	QualityUnusable   QualityLevel = "unusable"
)

// RecommendedAction suggests what a caller should do with a partial result.
type RecommendedAction string

// Recommended action constants.
const (
	ActionRecommend        RecommendedAction = "recommend"
	ActionReviewRequired   RecommendedAction = "review-required"
	ActionConsiderContinue RecommendedAction = "consider-continue"
	ActionDiscard          RecommendedAction = "discard"
)

// PartialQuality assesses a partial result captured at cancellation time.
// Completeness is completed/total; coherence is the ratio of contiguous
// completed indices starting from zero.
type PartialQuality struct {
	Score             float64           `json:"score"`
	Level             QualityLevel      `json:"level"`
	Completeness      float64           `json:"completeness"`
	Coherence         float64           `json:"coherence"`
	MissingTopics     []string          `json:"missing_topics,omitempty"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
}

// PartialResult is a merged summary of the segments completed at the moment
// of cancellation.
type PartialResult struct {
	BatchID          string         `json:"batch_id"`
	CompletedTasks   []*SegmentTask `json:"completed_tasks"`
	CompletionPct    float64        `json:"completion_pct"`
	MergedSummary    string         `json:"merged_partial_summary"`
	Quality          PartialQuality `json:"quality"`
	CancellationTime time.Time      `json:"cancellation_time"`
}
