package segmenter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/condenserhq/condenser/pkg/config"
	"github.com/condenserhq/condenser/pkg/models"
	"github.com/condenserhq/condenser/pkg/provider"
)

type fakeSummarizer struct {
	response string
	err      error
	calls    int
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeSummarizer) Health(_ context.Context) error { return nil }
func (f *fakeSummarizer) Name() string                   { return "fake" }

func newRuleSegmenter(t *testing.T) *Segmenter {
	t.Helper()
	cfg := config.DefaultSegmentationConfig()
	llmOff := false
	cfg.EnableLLMSegmentation = &llmOff
	return New(cfg, nil, nil)
}

func sentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "This is sentence number %d with a bit of padding text. ", i)
	}
	return strings.TrimSpace(b.String())
}

func normalizeWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestSegment_EmptyText(t *testing.T) {
	_, err := newRuleSegmenter(t).Segment(context.Background(), "   \n\t ")
	require.Error(t, err)
	assert.Equal(t, provider.KindInvalidInput, provider.Classify(err))
}

func TestShouldSegment_TriggerBoundary(t *testing.T) {
	s := newRuleSegmenter(t)

	at := strings.Repeat("a", 2048)
	over := strings.Repeat("a", 2049)

	assert.False(t, s.ShouldSegment(at))
	assert.True(t, s.ShouldSegment(over))

	segs, err := s.Segment(context.Background(), at)
	require.NoError(t, err)
	assert.Len(t, segs, 1)
	assert.Equal(t, at, segs[0].Content)
	assert.Equal(t, 0, segs[0].StartOffset)
	assert.Equal(t, 2048, segs[0].EndOffset)
}

func TestSegment_ShortTextSingleSegment(t *testing.T) {
	text := "A short document. It has two sentences."
	segs, err := newRuleSegmenter(t).Segment(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, models.SegmentParagraph, segs[0].Type)
	assert.Equal(t, "A short document.", segs[0].Title)
}

func TestSegment_LongText(t *testing.T) {
	text := sentences(120)
	require.Greater(t, len(text), 2048)

	s := newRuleSegmenter(t)
	segs, err := s.Segment(context.Background(), text)
	require.NoError(t, err)
	require.Greater(t, len(segs), 1)

	ceiling := int(float64(s.cfg.MaxSegmentLength) * specialCeilingFactor)
	var rebuilt strings.Builder
	for i, seg := range segs {
		assert.Equal(t, i, seg.Index)
		assert.LessOrEqual(t, len(seg.Content), ceiling)
		assert.NotEmpty(t, seg.Title)
		assert.Equal(t, seg.Content, text[seg.StartOffset:seg.EndOffset])
		rebuilt.WriteString(seg.Content)
		rebuilt.WriteByte(' ')
	}
	assert.Equal(t, normalizeWS(text), normalizeWS(rebuilt.String()))
}

func TestSegment_PreservesParagraphs(t *testing.T) {
	para := sentences(10)
	text := para + "\n\n" + para + "\n\n" + para + "\n\n" + para
	require.Greater(t, len(text), 2048)

	segs, err := newRuleSegmenter(t).Segment(context.Background(), text)
	require.NoError(t, err)
	assert.Len(t, segs, 4)
	for _, seg := range segs {
		assert.Equal(t, para, seg.Content)
	}
}

func TestSegment_OversizedSentenceHardSplit(t *testing.T) {
	// One 5000-char run with no terminators at all.
	text := strings.Repeat("word ", 1000)
	require.Greater(t, len(text), 2048)

	s := newRuleSegmenter(t)
	segs, err := s.Segment(context.Background(), text)
	require.NoError(t, err)
	require.Greater(t, len(segs), 1)
	for _, seg := range segs {
		assert.LessOrEqual(t, len(seg.Content), s.cfg.MaxSegmentLength)
	}
}

func TestSegment_CodeFenceKeptWhole(t *testing.T) {
	code := "```go\n" + strings.Repeat("fmt.Println(\"x\")\n", 130) + "```"
	require.Greater(t, len(code), 2000)
	require.Less(t, len(code), 3000)
	text := sentences(40) + "\n\n" + code + "\n\n" + sentences(40)

	segs, err := newRuleSegmenter(t).Segment(context.Background(), text)
	require.NoError(t, err)

	var codeSegs []models.Segment
	for _, seg := range segs {
		if seg.Type == models.SegmentCode {
			codeSegs = append(codeSegs, seg)
		}
	}
	require.Len(t, codeSegs, 1)
	assert.Equal(t, code, codeSegs[0].Content)
}

func TestClassifyBlock(t *testing.T) {
	assert.Equal(t, models.SegmentCode, classifyBlock("```py\nprint(1)\n```"))
	assert.Equal(t, models.SegmentTable, classifyBlock("| a | b |\n|---|---|\n| 1 | 2 |"))
	assert.Equal(t, models.SegmentList, classifyBlock("- one\n- two\n- three"))
	assert.Equal(t, models.SegmentList, classifyBlock("1. one\n2. two"))
	assert.Equal(t, models.SegmentQuote, classifyBlock("> quoted\n> text"))
	assert.Equal(t, models.SegmentParagraph, classifyBlock("plain prose here."))
}

func TestTitle(t *testing.T) {
	s := newRuleSegmenter(t)

	assert.Equal(t, "Short sentence.", s.title("Short sentence. And more.", 0))

	long := strings.Repeat("x", 40) + ". tail"
	got := s.title(long, 0)
	assert.Equal(t, 31, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))

	titlesOff := false
	s.cfg.GenerateAutoTitles = &titlesOff
	assert.Equal(t, "Segment 3", s.title("anything", 2))
}

func TestSegmentWithLLM_Accepted(t *testing.T) {
	first := sentences(30)
	second := sentences(25)
	text := first + "\n\n" + second
	require.Greater(t, len(text), 2048)

	llm := &fakeSummarizer{response: first + "\n" + segmentMarker + "\n" + second}
	s := New(config.DefaultSegmentationConfig(), llm, nil)

	segs, err := s.Segment(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, first, segs[0].Content)
	assert.Equal(t, second, segs[1].Content)
	assert.Equal(t, segs[0].Content, text[segs[0].StartOffset:segs[0].EndOffset])
}

func TestSegmentWithLLM_FallsBackOnError(t *testing.T) {
	text := sentences(120)
	llm := &fakeSummarizer{err: errors.New("backend down")}
	s := New(config.DefaultSegmentationConfig(), llm, nil)

	segs, err := s.Segment(context.Background(), text)
	require.NoError(t, err)
	assert.Greater(t, len(segs), 1)
	assert.Equal(t, 1, llm.calls)
}

func TestSegmentWithLLM_FallsBackOnBadOutput(t *testing.T) {
	text := sentences(120)

	tests := []struct {
		name     string
		response string
	}{
		{"no markers", "just one blob of text"},
		{"rewritten text", "invented " + segmentMarker + " content"},
		{"oversized segment", text[:2040] + segmentMarker + text},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &fakeSummarizer{response: tt.response}
			s := New(config.DefaultSegmentationConfig(), llm, nil)

			segs, err := s.Segment(context.Background(), text)
			require.NoError(t, err)
			assert.Greater(t, len(segs), 1)
		})
	}
}

func TestAssessQuality(t *testing.T) {
	s := newRuleSegmenter(t)
	text := sentences(120)

	segs, err := s.Segment(context.Background(), text)
	require.NoError(t, err)

	report := s.AssessQuality(text, segs)
	assert.True(t, report.Acceptable)
	assert.GreaterOrEqual(t, report.Overall, 60.0)
	assert.InDelta(t, 1.0, report.SemanticIntegrity, 0.01)

	assert.Equal(t, QualityReport{}, s.AssessQuality(text, nil))
}
