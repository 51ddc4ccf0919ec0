// Package models contains the shared data model for batches, segments,
// progress snapshots, and cancellation records.
package models

// SegmentType classifies the structural kind of a segment.
type SegmentType string

// Segment type constants.
const (
	SegmentParagraph SegmentType = "paragraph"
	SegmentCode      SegmentType = "code"
	SegmentTable     SegmentType = "table"
	SegmentList      SegmentType = "list"
	SegmentQuote     SegmentType = "quote"
)

// Segment is one bounded slice of the input document. Indices are dense and
// 0-based; offsets are byte positions into the original text.
type Segment struct {
	Index       int         `json:"index"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	StartOffset int         `json:"start_offset"`
	EndOffset   int         `json:"end_offset"`
	Type        SegmentType `json:"type"`
}
