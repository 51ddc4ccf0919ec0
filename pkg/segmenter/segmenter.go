// Package segmenter splits documents into ordered, bounded segments.
// The rule-based splitter is the authoritative path; the LLM-assisted
// path is opportunistic and degrades to rules on any failure.
package segmenter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/condenserhq/condenser/pkg/config"
	"github.com/condenserhq/condenser/pkg/models"
	"github.com/condenserhq/condenser/pkg/provider"
)

const (
	// specialCeilingFactor lets code fences, tables, lists, and quotes run
	// past the segment limit before they are force-split.
	specialCeilingFactor = 1.5

	titleMaxChars = 30
)

// Segmenter produces ordered segments from raw text.
type Segmenter struct {
	cfg    *config.SegmentationConfig
	llm    provider.Summarizer
	logger *slog.Logger
}

// New creates a segmenter. The summarizer may be nil, which disables the
// LLM-assisted path regardless of configuration.
func New(cfg *config.SegmentationConfig, llm provider.Summarizer, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{cfg: cfg, llm: llm, logger: logger.With("component", "segmenter")}
}

// ShouldSegment reports whether the text is long enough to be split at all.
func (s *Segmenter) ShouldSegment(text string) bool {
	return len(text) > s.cfg.TriggerLength
}

// Segment splits the text into ordered segments. Texts at or below the
// trigger length come back as a single segment.
func (s *Segmenter) Segment(ctx context.Context, text string) ([]models.Segment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, provider.NewError(provider.KindInvalidInput, "segmenter.segment", errors.New("empty text"))
	}

	if !s.ShouldSegment(text) {
		seg := models.Segment{
			Index:       0,
			Content:     text,
			StartOffset: 0,
			EndOffset:   len(text),
			Type:        models.SegmentParagraph,
		}
		seg.Title = s.title(seg.Content, 0)
		return []models.Segment{seg}, nil
	}

	if s.cfg.LLMAssist() && s.llm != nil {
		if segments, err := s.segmentWithLLM(ctx, text); err == nil {
			return segments, nil
		} else {
			s.logger.Debug("LLM segmentation failed, falling back to rules", "error", err)
		}
	}

	return s.segmentByRules(text), nil
}

// segmentByRules is the deterministic splitter.
func (s *Segmenter) segmentByRules(text string) []models.Segment {
	var blocks []block
	if s.cfg.Preserve() {
		blocks = splitParagraphs(text)
	} else {
		blocks = []block{{start: 0, content: text}}
	}

	var segments []models.Segment
	for _, b := range blocks {
		segType := classifyBlock(b.content)
		if segType != models.SegmentParagraph {
			segments = append(segments, s.splitSpecial(b, segType)...)
			continue
		}
		segments = append(segments, s.splitParagraph(b)...)
	}

	for i := range segments {
		segments[i].Index = i
		segments[i].Title = s.title(segments[i].Content, i)
	}
	return segments
}

// block is a paragraph-level slice of the original text.
type block struct {
	start   int
	content string
}

// splitParagraphs splits on blank-line boundaries, preserving byte offsets
// into the original text.
func splitParagraphs(text string) []block {
	var blocks []block
	pos := 0
	for pos < len(text) {
		// Skip leading blank lines.
		rest := text[pos:]
		trimmed := strings.TrimLeft(rest, "\n")
		pos += len(rest) - len(trimmed)
		if pos >= len(text) {
			break
		}

		end := strings.Index(text[pos:], "\n\n")
		if end < 0 {
			blocks = append(blocks, block{start: pos, content: text[pos:]})
			break
		}
		blocks = append(blocks, block{start: pos, content: text[pos : pos+end]})
		pos += end
	}
	return blocks
}

// classifyBlock identifies special structures by line-prefix heuristics.
// A block qualifies when most of its lines carry the structure's prefix.
func classifyBlock(content string) models.SegmentType {
	lines := strings.Split(content, "\n")
	first := strings.TrimSpace(lines[0])

	if strings.HasPrefix(first, "```") || strings.HasPrefix(first, "~~~") {
		return models.SegmentCode
	}

	var tableLines, listLines, quoteLines, total int
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		total++
		switch {
		case strings.HasPrefix(trimmed, "|"):
			tableLines++
		case strings.HasPrefix(trimmed, ">"):
			quoteLines++
		case isListLine(trimmed):
			listLines++
		}
	}
	if total == 0 {
		return models.SegmentParagraph
	}
	switch {
	case tableLines*2 > total:
		return models.SegmentTable
	case quoteLines*2 > total:
		return models.SegmentQuote
	case listLines*2 > total:
		return models.SegmentList
	default:
		return models.SegmentParagraph
	}
}

func isListLine(line string) bool {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "+ ") {
		return true
	}
	// Numbered list: digits followed by "." or ")".
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')')
}

// splitSpecial keeps a structure block whole up to the hard ceiling, then
// force-splits it at the segment limit.
func (s *Segmenter) splitSpecial(b block, segType models.SegmentType) []models.Segment {
	ceiling := int(float64(s.cfg.MaxSegmentLength) * specialCeilingFactor)
	if len(b.content) <= ceiling {
		return []models.Segment{{
			Content:     b.content,
			StartOffset: b.start,
			EndOffset:   b.start + len(b.content),
			Type:        segType,
		}}
	}

	var segments []models.Segment
	for off := 0; off < len(b.content); {
		end := off + s.cfg.MaxSegmentLength
		if end > len(b.content) {
			end = len(b.content)
		} else {
			end = alignToRune(b.content, end)
			// Prefer a line boundary so the split does not tear a row.
			if nl := strings.LastIndexByte(b.content[off:end], '\n'); nl > 0 {
				end = off + nl
			}
		}
		segments = append(segments, models.Segment{
			Content:     b.content[off:end],
			StartOffset: b.start + off,
			EndOffset:   b.start + end,
			Type:        segType,
		})
		off = end
	}
	return segments
}

// splitParagraph emits the paragraph whole when it fits, otherwise packs
// sentences greedily up to the segment limit.
func (s *Segmenter) splitParagraph(b block) []models.Segment {
	if len(b.content) <= s.cfg.MaxSegmentLength {
		return []models.Segment{{
			Content:     b.content,
			StartOffset: b.start,
			EndOffset:   b.start + len(b.content),
			Type:        models.SegmentParagraph,
		}}
	}

	sentences := s.splitSentences(b.content)

	var segments []models.Segment
	bufStart := 0
	bufEnd := 0
	flush := func() {
		if bufEnd > bufStart {
			segments = append(segments, models.Segment{
				Content:     b.content[bufStart:bufEnd],
				StartOffset: b.start + bufStart,
				EndOffset:   b.start + bufEnd,
				Type:        models.SegmentParagraph,
			})
		}
	}

	for _, sent := range sentences {
		if sent.end-bufStart > s.cfg.MaxSegmentLength && bufEnd > bufStart {
			flush()
			bufStart = sent.start
			bufEnd = bufStart
		}
		if sent.end-sent.start > s.cfg.MaxSegmentLength {
			// A single sentence over the limit is hard-split.
			flush()
			for _, piece := range s.hardSplit(b.content, sent.start, sent.end) {
				segments = append(segments, models.Segment{
					Content:     b.content[piece.start:piece.end],
					StartOffset: b.start + piece.start,
					EndOffset:   b.start + piece.end,
					Type:        models.SegmentParagraph,
				})
			}
			bufStart = sent.end
			bufEnd = sent.end
			continue
		}
		bufEnd = sent.end
	}
	flush()
	return segments
}

// span is a half-open byte range within a block's content.
type span struct {
	start, end int
}

// splitSentences finds sentence spans delimited by the configured
// terminators. The trailing run of text without a terminator forms the
// final sentence.
func (s *Segmenter) splitSentences(content string) []span {
	var spans []span
	start := 0
	for i := 0; i < len(content); {
		r, size := utf8.DecodeRuneInString(content[i:])
		i += size
		if s.isTerminator(r) {
			// Swallow any immediately following terminators ("?!", "...").
			for i < len(content) {
				next, nsize := utf8.DecodeRuneInString(content[i:])
				if !s.isTerminator(next) {
					break
				}
				i += nsize
			}
			spans = append(spans, span{start: start, end: i})
			// Skip inter-sentence whitespace into the next span.
			for i < len(content) && (content[i] == ' ' || content[i] == '\n' || content[i] == '\t') {
				i++
			}
			start = i
		}
	}
	if start < len(content) {
		spans = append(spans, span{start: start, end: len(content)})
	}
	return spans
}

func (s *Segmenter) isTerminator(r rune) bool {
	for _, m := range s.cfg.SentenceEndMarkers {
		if mr, _ := utf8.DecodeRuneInString(m); mr == r {
			return true
		}
	}
	return false
}

// hardSplit chops an oversized sentence. Each cut lands on a terminator
// within the tail window when one exists, otherwise at the raw limit.
func (s *Segmenter) hardSplit(content string, start, end int) []span {
	max := s.cfg.MaxSegmentLength
	lower := int(float64(max) * s.cfg.ContextLimitBuffer)

	var pieces []span
	for start < end {
		if end-start <= max {
			pieces = append(pieces, span{start: start, end: end})
			break
		}
		cut := start + max
		cut = alignToRune(content, cut)
		if t := s.lastTerminator(content[start+lower : cut]); t >= 0 {
			cut = start + lower + t
		}
		pieces = append(pieces, span{start: start, end: cut})
		start = cut
	}
	return pieces
}

// lastTerminator returns the byte position just past the last terminator
// rune in the window, or -1.
func (s *Segmenter) lastTerminator(window string) int {
	last := -1
	for i := 0; i < len(window); {
		r, size := utf8.DecodeRuneInString(window[i:])
		i += size
		if s.isTerminator(r) {
			last = i
		}
	}
	return last
}

// alignToRune moves a byte position left until it does not land in the
// middle of a UTF-8 sequence.
func alignToRune(content string, pos int) int {
	for pos > 0 && pos < len(content) && !utf8.RuneStart(content[pos]) {
		pos--
	}
	return pos
}

// title derives a segment label from its first sentence.
func (s *Segmenter) title(content string, index int) string {
	if !s.cfg.AutoTitles() {
		return fmt.Sprintf("Segment %d", index+1)
	}
	first := strings.TrimSpace(content)
	if nl := strings.IndexByte(first, '\n'); nl >= 0 {
		first = first[:nl]
	}
	if spans := s.splitSentences(first); len(spans) > 0 {
		first = strings.TrimSpace(first[spans[0].start:spans[0].end])
	}
	if first == "" {
		return fmt.Sprintf("Segment %d", index+1)
	}
	runes := []rune(first)
	if len(runes) > titleMaxChars {
		return string(runes[:titleMaxChars]) + "…"
	}
	return first
}
