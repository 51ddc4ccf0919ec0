// Package merger assembles per-segment summaries into the final output.
// The pipeline is dedupe, concatenate, length control, optional LLM
// polish, and a quality gate that falls back to the rule-based draft.
package merger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/condenserhq/condenser/pkg/config"
	"github.com/condenserhq/condenser/pkg/models"
	"github.com/condenserhq/condenser/pkg/provider"
)

// Strategy names.
const (
	StrategyConcise  = "concise"
	StrategyBalanced = "balanced"
	StrategyDetailed = "detailed"
	StrategyCustom   = "custom"
)

// strategyRatios maps each named strategy to its target output/input ratio.
var strategyRatios = map[string]float64{
	StrategyConcise:  0.35,
	StrategyBalanced: 0.6,
	StrategyDetailed: 0.85,
}

// maxRefsPerParagraph caps how many source segments one output paragraph
// is attributed to.
const maxRefsPerParagraph = 3

// Options select a strategy and user preferences for one merge.
type Options struct {
	Strategy        string
	TargetRatio     float64 // custom strategy only; 0 falls back to config
	IncludeTitles   bool
	Tone            string
	Focus           string
	Language        string
	EnableLLMAssist bool
}

// Stats describes what a merge did.
type Stats struct {
	InputLength       int     `json:"input_length"`
	OutputLength      int     `json:"output_length"`
	CompressionRatio  float64 `json:"compression_ratio"`
	SegmentsMerged    int     `json:"segments_merged"`
	DuplicatesRemoved int     `json:"duplicates_removed"`
}

// Quality holds the heuristic scores of the merged output, each in [0,1].
type Quality struct {
	Coherence    float64 `json:"coherence"`
	Completeness float64 `json:"completeness"`
	Conciseness  float64 `json:"conciseness"`
	Accuracy     float64 `json:"accuracy"`
}

// Result is the final merged artifact.
type Result struct {
	Summary       string  `json:"summary"`
	Stats         Stats   `json:"stats"`
	Quality       Quality `json:"quality"`
	StrategyUsed  string  `json:"strategy_used"`
	ProcessingMs  int64   `json:"processing_ms"`
	ParagraphRefs [][]int `json:"paragraph_refs,omitempty"`
}

// ErrNoCompletedTasks is returned when the merge input holds no completed
// segment summaries.
var ErrNoCompletedTasks = errors.New("merger: no completed tasks to merge")

// Merger combines segment summaries. Safe for concurrent use.
type Merger struct {
	cfg    *config.MergingConfig
	llm    provider.Summarizer
	logger *slog.Logger
}

// New creates a merger. The summarizer may be nil, which disables the
// polish pass.
func New(cfg *config.MergingConfig, llm provider.Summarizer, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{cfg: cfg, llm: llm, logger: logger.With("component", "merger")}
}

// Merge runs the pipeline over the completed tasks, which must be in
// segment index order. Non-completed tasks are skipped.
func (m *Merger) Merge(ctx context.Context, tasks []*models.SegmentTask, opts Options) (*Result, error) {
	started := time.Now()

	parts := completedParts(tasks)
	if len(parts) == 0 {
		return nil, ErrNoCompletedTasks
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = m.cfg.DefaultStrategy
	}

	// A single summary bypasses the pipeline entirely.
	if len(parts) == 1 {
		out := parts[0].text
		return &Result{
			Summary:       out,
			Stats:         m.stats(parts, out, 0),
			Quality:       m.assess(parts, out),
			StrategyUsed:  strategy,
			ProcessingMs:  time.Since(started).Milliseconds(),
			ParagraphRefs: [][]int{{parts[0].index}},
		}, nil
	}

	deduped, removed := m.dedupe(parts)
	draft := m.concatenate(deduped, opts.IncludeTitles)
	draft = m.controlLength(draft, m.targetLength(parts, strategy, opts.TargetRatio))

	out := draft
	if opts.EnableLLMAssist && m.llm != nil && len(parts) >= m.cfg.MinSegmentsForLLM {
		polished, err := m.polish(ctx, draft, opts)
		switch {
		case err != nil && !m.cfg.Fallback():
			return nil, err
		case err != nil:
			m.logger.Debug("LLM polish failed, keeping rule-based draft", "error", err)
		default:
			out = polished
		}
	}

	quality := m.assess(parts, out)
	if out != draft && !m.meetsMinima(quality) {
		m.logger.Debug("polished output below quality minima, keeping rule-based draft",
			"coherence", quality.Coherence, "completeness", quality.Completeness)
		out = draft
		quality = m.assess(parts, out)
	}

	return &Result{
		Summary:       out,
		Stats:         m.stats(parts, out, removed),
		Quality:       quality,
		StrategyUsed:  strategy,
		ProcessingMs:  time.Since(started).Milliseconds(),
		ParagraphRefs: paragraphRefs(deduped),
	}, nil
}

// part is one segment summary flowing through the pipeline.
type part struct {
	index     int
	title     string
	text      string
	collapsed []int // indices of duplicates folded into this part
}

func completedParts(tasks []*models.SegmentTask) []part {
	var parts []part
	for _, t := range tasks {
		if t.Status != models.TaskCompleted || strings.TrimSpace(t.Result) == "" {
			continue
		}
		parts = append(parts, part{
			index: t.Segment.Index,
			title: t.Segment.Title,
			text:  strings.TrimSpace(t.Result),
		})
	}
	return parts
}

// dedupe collapses near-identical summaries into the earlier segment,
// scanning up to the configured context window ahead.
func (m *Merger) dedupe(parts []part) ([]part, int) {
	dropped := make([]bool, len(parts))
	removed := 0

	for i := range parts {
		if dropped[i] {
			continue
		}
		for j := i + 1; j < len(parts) && j-i <= m.cfg.ContextWindow; j++ {
			if dropped[j] {
				continue
			}
			if jaccard(tokenSet(parts[i].text), tokenSet(parts[j].text)) >= m.cfg.SimilarityThreshold {
				parts[i].collapsed = append(parts[i].collapsed, parts[j].index)
				dropped[j] = true
				removed++
			}
		}
	}

	kept := make([]part, 0, len(parts)-removed)
	for i, p := range parts {
		if !dropped[i] {
			kept = append(kept, p)
		}
	}
	return kept, removed
}

func (m *Merger) concatenate(parts []part, includeTitles bool) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if includeTitles && p.title != "" {
			b.WriteString(p.title)
			b.WriteString("\n")
		}
		b.WriteString(p.text)
	}
	return b.String()
}

func (m *Merger) targetLength(parts []part, strategy string, customRatio float64) int {
	ratio, ok := strategyRatios[strategy]
	if !ok {
		ratio = customRatio
		if ratio <= 0 || ratio > 1 {
			ratio = m.cfg.TargetLengthRatio
		}
	}

	input := 0
	for _, p := range parts {
		input += len(p.text)
	}

	target := int(float64(input) * ratio)
	if target < m.cfg.MinTargetLength {
		target = m.cfg.MinTargetLength
	}
	if target > m.cfg.MaxTargetLength {
		target = m.cfg.MaxTargetLength
	}
	return target
}

func (m *Merger) stats(parts []part, out string, removed int) Stats {
	input := 0
	for _, p := range parts {
		input += len(p.text)
	}
	s := Stats{
		InputLength:       input,
		OutputLength:      len(out),
		SegmentsMerged:    len(parts),
		DuplicatesRemoved: removed,
	}
	if input > 0 {
		s.CompressionRatio = float64(len(out)) / float64(input)
	}
	return s
}

func paragraphRefs(parts []part) [][]int {
	refs := make([][]int, 0, len(parts))
	for _, p := range parts {
		r := append([]int{p.index}, p.collapsed...)
		if len(r) > maxRefsPerParagraph {
			r = r[:maxRefsPerParagraph]
		}
		refs = append(refs, r)
	}
	return refs
}

// tokenSet lowercases and strips punctuation, returning the word set.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
