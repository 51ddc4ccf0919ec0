package api

import "time"

// SummarizeResponse is the success body of the synchronous summarize
// endpoints.
type SummarizeResponse struct {
	Success          bool   `json:"success"`
	BatchID          string `json:"batchId"`
	Summary          string `json:"summary"`
	OriginalLength   int    `json:"originalLength"`
	SummaryLength    int    `json:"summaryLength"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
}

// ErrorResponse is the envelope every failure response carries.
type ErrorResponse struct {
	Success          bool      `json:"success"`
	Error            string    `json:"error"`
	ErrorCode        string    `json:"errorCode"`
	CorrelationID    string    `json:"correlationId"`
	Timestamp        time.Time `json:"timestamp"`
	Severity         string    `json:"severity"`
	IsRecoverable    bool      `json:"isRecoverable"`
	SuggestedActions []string  `json:"suggestedActions"`
}

// DataResponse wraps success payloads that are not summaries.
type DataResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}
