package merger

import (
	"sort"
	"strings"
	"unicode"
)

// assess computes the heuristic quality scores of a merged output against
// the summaries it was built from.
func (m *Merger) assess(parts []part, out string) Quality {
	outTokens := tokenSet(out)

	return Quality{
		Coherence:    coherenceScore(out),
		Completeness: completenessScore(parts, outTokens),
		Conciseness:  concisenessScore(parts, out),
		Accuracy:     accuracyScore(parts, outTokens),
	}
}

func (m *Merger) meetsMinima(q Quality) bool {
	return q.Coherence >= m.cfg.MinCoherence &&
		q.Completeness >= m.cfg.MinCompleteness &&
		q.Conciseness >= m.cfg.MinConciseness &&
		q.Accuracy >= m.cfg.MinAccuracy
}

// coherenceScore is the fraction of sentences that look well formed:
// starting with an uppercase letter or digit and ending on a terminator.
func coherenceScore(out string) float64 {
	sentences := splitMergedSentences(out)
	if len(sentences) == 0 {
		return 0
	}
	ok := 0
	for _, s := range sentences {
		runes := []rune(s.text)
		startsWell := unicode.IsUpper(runes[0]) || unicode.IsDigit(runes[0])
		last := runes[len(runes)-1]
		endsWell := last == '.' || last == '!' || last == '?'
		if startsWell && endsWell {
			ok++
		}
	}
	return float64(ok) / float64(len(sentences))
}

// completenessScore is the fraction of source segments whose distinctive
// words still appear in the output.
func completenessScore(parts []part, outTokens map[string]struct{}) float64 {
	if len(parts) == 0 {
		return 0
	}
	represented := 0
	for _, p := range parts {
		for _, w := range distinctiveWords(p.text, 3) {
			if _, ok := outTokens[w]; ok {
				represented++
				break
			}
		}
	}
	return float64(represented) / float64(len(parts))
}

// concisenessScore rewards output no longer than its input. Output at or
// below 70% of the input scores 1.
func concisenessScore(parts []part, out string) float64 {
	input := 0
	for _, p := range parts {
		input += len(p.text)
	}
	if input == 0 || len(out) == 0 {
		return 0
	}
	ratio := float64(len(out)) / float64(input)
	switch {
	case ratio <= 0.7:
		return 1
	case ratio >= 1.3:
		return 0
	default:
		return (1.3 - ratio) / 0.6
	}
}

// accuracyScore is the fraction of output words grounded in the input;
// words the input never contained count against it.
func accuracyScore(parts []part, outTokens map[string]struct{}) float64 {
	if len(outTokens) == 0 {
		return 0
	}
	inputTokens := make(map[string]struct{})
	for _, p := range parts {
		for t := range tokenSet(p.text) {
			inputTokens[t] = struct{}{}
		}
	}
	grounded := 0
	for t := range outTokens {
		if _, ok := inputTokens[t]; ok {
			grounded++
		}
	}
	return float64(grounded) / float64(len(outTokens))
}

// distinctiveWords picks the n longest words of a text as its fingerprint.
func distinctiveWords(text string, n int) []string {
	seen := tokenSet(text)
	words := make([]string, 0, len(seen))
	for w := range seen {
		words = append(words, w)
	}
	sort.Slice(words, func(a, b int) bool {
		if len(words[a]) != len(words[b]) {
			return len(words[a]) > len(words[b])
		}
		return words[a] < words[b]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// polishPrompt asks for coherence smoothing without content changes.
const polishPrompt = "Rewrite the following merged summary so it flows as one coherent text. " +
	"Smooth the transitions between paragraphs, remove redundancy, and keep every fact. " +
	"Do not add information. Keep roughly the same length.%s\n\n%s"

func polishPreferences(opts Options) string {
	var prefs []string
	if opts.Tone != "" {
		prefs = append(prefs, "Use a "+opts.Tone+" tone.")
	}
	if opts.Focus != "" {
		prefs = append(prefs, "Emphasize "+opts.Focus+".")
	}
	if opts.Language != "" {
		prefs = append(prefs, "Write the result in "+opts.Language+".")
	}
	if len(prefs) == 0 {
		return ""
	}
	return " " + strings.Join(prefs, " ")
}
