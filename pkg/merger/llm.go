package merger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// polish runs the single coherence-smoothing pass over the draft.
func (m *Merger) polish(ctx context.Context, draft string, opts Options) (string, error) {
	prompt := fmt.Sprintf(polishPrompt, polishPreferences(opts), draft)

	out, err := m.llm.Summarize(ctx, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("merger: empty polish response")
	}
	return out, nil
}
