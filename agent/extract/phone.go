package extract

import (
	"context"
	"strings"

	contractx "github.com/ringlet/callbook/agent/contract"
)

type phoneExtractor struct {
	client contractx.LLMClient
	prompt string
}

func (e *phoneExtractor) Extract(ctx context.Context, req contractx.ExtractionRequest) (contractx.ExtractionResult, error) {
	// Digit runs in the raw utterance short-circuit the model for callers who
	// read their number out plainly.
	if normalized, ok := NormalizePhone(req.Text); ok {
		return contractx.Found(normalized, 0.9), nil
	}

	out, ok, err := invokeLLM(ctx, e.client, e.prompt, req, false, false)
	if err != nil || !ok || !out.Found {
		return contractx.NotFound(), err
	}

	value := out.Value
	if normalized, ok := NormalizePhone(value); ok {
		value = normalized
	}
	res := contractx.Found(value, out.Confidence)
	res.Extra = extraFields(out.Extra)
	return res, nil
}

// NormalizePhone strips separators from a phone-looking string and reports
// whether enough digits remain to be a plausible number. A leading + is kept.
func NormalizePhone(text string) (string, bool) {
	var b strings.Builder
	for i, r := range text {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	normalized := b.String()
	digits := strings.TrimPrefix(normalized, "+")
	if len(digits) < 8 || len(digits) > 15 {
		return "", false
	}
	return normalized, true
}
