package extract

import (
	"context"
	"regexp"
	"strings"

	contractx "github.com/ringlet/callbook/agent/contract"
)

// namePattern catches the common direct introductions so a well-formed
// utterance never needs a model round trip. The capture stays case-sensitive
// so hedges after an introduction verb ("i'm not sure") fall through to the
// model instead of being taken as a name.
var namePattern = regexp.MustCompile(`\b(?i:my name is|my name's|this is|i'm|i am)\s+([A-Z][a-zA-Z'-]+(?:\s+[A-Z][a-zA-Z'-]+){0,3})`)

type nameExtractor struct {
	client contractx.LLMClient
	prompt string
}

func (e *nameExtractor) Extract(ctx context.Context, req contractx.ExtractionRequest) (contractx.ExtractionResult, error) {
	if m := namePattern.FindStringSubmatch(req.Text); m != nil {
		return contractx.Found(strings.TrimSpace(m[1]), 0.95), nil
	}

	out, ok, err := invokeLLM(ctx, e.client, e.prompt, req, false, false)
	if err != nil || !ok || !out.Found {
		return contractx.NotFound(), err
	}

	res := contractx.Found(out.Value, out.Confidence)
	res.Extra = extraFields(out.Extra)
	return res, nil
}
