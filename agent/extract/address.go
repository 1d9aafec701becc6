package extract

import (
	"context"
	"regexp"
	"strings"

	contractx "github.com/ringlet/callbook/agent/contract"
)

// addressPattern recognizes a "number + street name + street type" shape,
// which is enough to skip the model on clean transcriptions.
var addressPattern = regexp.MustCompile(`(?i)\b(\d+[a-z]?(?:\s*/\s*\d+)?\s+[a-z][a-z'\s-]*\s(?:street|st|road|rd|avenue|ave|drive|dr|lane|ln|court|ct|place|pl|crescent|cres|parade|pde|boulevard|blvd|highway|hwy|terrace|tce|way|close)\b\.?(?:\s*,?\s*[a-z][a-z\s]*)?(?:\s+\d{4})?)`)

type addressExtractor struct {
	client contractx.LLMClient
	prompt string
}

func (e *addressExtractor) Extract(ctx context.Context, req contractx.ExtractionRequest) (contractx.ExtractionResult, error) {
	if m := addressPattern.FindStringSubmatch(req.Text); m != nil {
		return contractx.Found(tidyAddress(m[1]), 0.9), nil
	}

	out, ok, err := invokeLLM(ctx, e.client, e.prompt, req, false, false)
	if err != nil || !ok || !out.Found {
		return contractx.NotFound(), err
	}
	return contractx.Found(tidyAddress(out.Value), out.Confidence), nil
}

func tidyAddress(addr string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(addr)), " ")
}
