package merger

import (
	"sort"
	"strings"
)

// lengthControlIterations bounds the compress/expand loop.
const lengthControlIterations = 3

// controlLength nudges the draft toward the target length. Overlong drafts
// drop their lowest-salience sentences; too-short drafts reintroduce
// previously dropped sentences in original order.
func (m *Merger) controlLength(draft string, target int) string {
	tol := m.cfg.LengthTolerance
	lower := int(float64(target) * (1 - tol))
	upper := int(float64(target) * (1 + tol))

	if len(draft) >= lower && len(draft) <= upper {
		return draft
	}

	sentences := splitMergedSentences(draft)
	if len(sentences) <= 1 {
		return draft
	}

	kept := make([]bool, len(sentences))
	for i := range kept {
		kept[i] = true
	}
	order := salienceOrder(sentences)

	for iter := 0; iter < lengthControlIterations; iter++ {
		current := keptLength(sentences, kept)
		switch {
		case current > upper:
			// Drop lowest-salience sentences until under the upper bound,
			// never dropping the final sentence standing.
			for _, idx := range order {
				if current <= upper {
					break
				}
				if kept[idx] && keptCount(kept) > 1 {
					kept[idx] = false
					current = keptLength(sentences, kept)
				}
			}
		case current < lower:
			// Reintroduce dropped sentences in document order.
			for i := range sentences {
				if current >= lower {
					break
				}
				if !kept[i] {
					kept[i] = true
					current = keptLength(sentences, kept)
				}
			}
		default:
			iter = lengthControlIterations
		}
	}

	return joinKept(sentences, kept)
}

// mergedSentence keeps a sentence with its paragraph position so the
// rebuilt draft preserves paragraph breaks.
type mergedSentence struct {
	text      string
	paragraph int
}

func splitMergedSentences(draft string) []mergedSentence {
	var sentences []mergedSentence
	for pi, para := range strings.Split(draft, "\n\n") {
		start := 0
		for i := 0; i < len(para); i++ {
			c := para[i]
			if c == '.' || c == '!' || c == '?' {
				end := i + 1
				s := strings.TrimSpace(para[start:end])
				if s != "" {
					sentences = append(sentences, mergedSentence{text: s, paragraph: pi})
				}
				start = end
			}
		}
		if s := strings.TrimSpace(para[start:]); s != "" {
			sentences = append(sentences, mergedSentence{text: s, paragraph: pi})
		}
	}
	return sentences
}

// salienceOrder returns sentence indices from least to most salient.
// Short sentences and sentences that mostly repeat earlier content rank
// low and are dropped first.
func salienceOrder(sentences []mergedSentence) []int {
	seen := make(map[string]int)
	scores := make([]float64, len(sentences))
	for i, s := range sentences {
		tokens := tokenSet(s.text)
		repeats := 0
		for t := range tokens {
			if seen[t] > 0 {
				repeats++
			}
		}
		novelty := 1.0
		if len(tokens) > 0 {
			novelty = 1 - float64(repeats)/float64(len(tokens))
		}
		scores[i] = float64(len(s.text)) * (0.3 + 0.7*novelty)
		for t := range tokens {
			seen[t]++
		}
	}

	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})
	return order
}

func keptCount(kept []bool) int {
	n := 0
	for _, k := range kept {
		if k {
			n++
		}
	}
	return n
}

// keptLength mirrors joinKept's separator accounting exactly.
func keptLength(sentences []mergedSentence, kept []bool) int {
	total := 0
	lastPara := -1
	for i, s := range sentences {
		if !kept[i] {
			continue
		}
		if lastPara >= 0 {
			if s.paragraph != lastPara {
				total += 2
			} else {
				total++
			}
		}
		total += len(s.text)
		lastPara = s.paragraph
	}
	return total
}

func joinKept(sentences []mergedSentence, kept []bool) string {
	var b strings.Builder
	lastPara := -1
	for i, s := range sentences {
		if !kept[i] {
			continue
		}
		if lastPara >= 0 {
			if s.paragraph != lastPara {
				b.WriteString("\n\n")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(s.text)
		lastPara = s.paragraph
	}
	return b.String()
}
