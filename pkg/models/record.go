package models

import "time"

// SummaryRecord is the durable record of a finished summarization.
// Only finished records are persisted; in-flight batch state is memory-resident.
type SummaryRecord struct {
	ID               string    `json:"id"`
	OriginalText     string    `json:"original_text"`
	SummaryText      string    `json:"summary_text"`
	CreatedAt        time.Time `json:"created_at"`
	UserID           string    `json:"user_id,omitempty"`
	OriginalLength   int       `json:"original_length"`
	SummaryLength    int       `json:"summary_length"`
	ProcessingTimeMs int64     `json:"processing_time_ms"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}
