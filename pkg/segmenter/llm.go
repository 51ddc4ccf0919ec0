package segmenter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/condenserhq/condenser/pkg/models"
)

// segmentMarker separates segments in the model's response.
const segmentMarker = "<<<SEGMENT>>>"

const llmSegmentPrompt = "Split the following document into coherent segments for independent summarization. " +
	"Rules: keep each segment under %d characters, never split mid-sentence, keep code blocks and tables whole, " +
	"and reproduce the original text verbatim. Output the segments separated by the exact marker %s on its own line, " +
	"with no commentary before or after.\n\nDocument:\n%s"

// segmentWithLLM asks the backend to choose boundaries and maps the result
// back onto the original text. Any validation failure is returned so the
// caller can fall back to the rule-based path.
func (s *Segmenter) segmentWithLLM(ctx context.Context, text string) ([]models.Segment, error) {
	prompt := fmt.Sprintf(llmSegmentPrompt, s.cfg.MaxSegmentLength, segmentMarker, text)

	response, err := s.llm.Summarize(ctx, prompt)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(response, segmentMarker)
	if len(parts) < 2 {
		return nil, errors.New("response contains no segment markers")
	}

	var segments []models.Segment
	cursor := 0
	for _, part := range parts {
		content := strings.TrimSpace(part)
		if content == "" {
			return nil, errors.New("response contains an empty segment")
		}
		if len(content) > s.cfg.MaxSegmentLength {
			return nil, fmt.Errorf("segment of %d chars exceeds limit %d", len(content), s.cfg.MaxSegmentLength)
		}

		// The model must echo the text verbatim; locate each segment in the
		// original so offsets stay truthful.
		rel := strings.Index(text[cursor:], content)
		if rel < 0 {
			return nil, errors.New("segment not found verbatim in original text")
		}
		start := cursor + rel
		end := start + len(content)
		segments = append(segments, models.Segment{
			Index:       len(segments),
			Content:     content,
			StartOffset: start,
			EndOffset:   end,
			Type:        models.SegmentParagraph,
		})
		cursor = end
	}

	// Segments must cover the document; large gaps mean the model dropped text.
	if remaining := strings.TrimSpace(text[cursor:]); remaining != "" {
		return nil, fmt.Errorf("%d chars of trailing text not covered", len(remaining))
	}

	for i := range segments {
		segments[i].Title = s.title(segments[i].Content, i)
	}

	s.logger.Debug("LLM segmentation accepted", "segments", len(segments))
	return segments, nil
}
