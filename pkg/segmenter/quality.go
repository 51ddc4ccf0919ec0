package segmenter

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/condenserhq/condenser/pkg/models"
)

// acceptableScore is the overall quality floor for a segmentation.
const acceptableScore = 60.0

// QualityReport grades a segmentation. Component scores are in [0,1];
// Overall is their weighted combination scaled to [0,100].
type QualityReport struct {
	SemanticIntegrity  float64 `json:"semantic_integrity"`
	ParagraphIntegrity float64 `json:"paragraph_integrity"`
	LengthBalance      float64 `json:"length_balance"`
	Overall            float64 `json:"overall"`
	Acceptable         bool    `json:"acceptable"`
}

// AssessQuality grades how well a segmentation respects sentence and
// paragraph boundaries and how evenly sized the segments are.
func (s *Segmenter) AssessQuality(original string, segments []models.Segment) QualityReport {
	if len(segments) == 0 {
		return QualityReport{}
	}

	var semanticOK, paragraphOK int
	lengths := make([]float64, len(segments))
	for i, seg := range segments {
		lengths[i] = float64(len(seg.Content))

		if seg.Type != models.SegmentParagraph || s.endsOnTerminator(seg.Content) {
			semanticOK++
		}
		if startsCleanly(original, seg.StartOffset) && endsCleanly(original, seg.EndOffset) {
			paragraphOK++
		}
	}

	report := QualityReport{
		SemanticIntegrity:  float64(semanticOK) / float64(len(segments)),
		ParagraphIntegrity: float64(paragraphOK) / float64(len(segments)),
		LengthBalance:      lengthBalance(lengths),
	}
	report.Overall = 100 * (0.4*report.SemanticIntegrity + 0.3*report.ParagraphIntegrity + 0.3*report.LengthBalance)
	report.Acceptable = report.Overall >= acceptableScore
	return report
}

func (s *Segmenter) endsOnTerminator(content string) bool {
	trimmed := strings.TrimRight(content, " \n\t\"')]}")
	if trimmed == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(trimmed)
	return s.isTerminator(r)
}

// startsCleanly reports whether the offset sits at the document start or
// right after whitespace, i.e. the segment does not begin mid-word.
func startsCleanly(original string, off int) bool {
	if off <= 0 {
		return true
	}
	if off > len(original) {
		return false
	}
	return original[off-1] == ' ' || original[off-1] == '\n' || original[off-1] == '\t'
}

func endsCleanly(original string, off int) bool {
	if off >= len(original) {
		return true
	}
	return original[off] == ' ' || original[off] == '\n' || original[off] == '\t'
}

// lengthBalance is the inverse coefficient of variation clamped to [0,1].
// Uniform segments score 1; wildly uneven ones approach 0.
func lengthBalance(lengths []float64) float64 {
	if len(lengths) < 2 {
		return 1
	}
	var sum float64
	for _, l := range lengths {
		sum += l
	}
	mean := sum / float64(len(lengths))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, l := range lengths {
		variance += (l - mean) * (l - mean)
	}
	variance /= float64(len(lengths))
	cv := math.Sqrt(variance) / mean
	if cv >= 1 {
		return 0
	}
	return 1 - cv
}
