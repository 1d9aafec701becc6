package extract

import (
	"context"
	"strings"

	catalogx "github.com/ringlet/callbook/agent/catalog"
	contractx "github.com/ringlet/callbook/agent/contract"
)

type serviceExtractor struct {
	client contractx.LLMClient
	prompt string
}

func (e *serviceExtractor) Extract(ctx context.Context, req contractx.ExtractionRequest) (contractx.ExtractionResult, error) {
	if svc, ok := catalogx.Match(req.Services, req.Text); ok {
		return contractx.Found(svc.Name, 0.95), nil
	}

	out, ok, err := invokeLLM(ctx, e.client, e.prompt, req, true, false)
	if err != nil || !ok || !out.Found {
		return contractx.NotFound(), err
	}

	// The model must name a real catalog entry; anything else is not found.
	for _, svc := range req.Services {
		if strings.EqualFold(svc.Name, out.Value) {
			return contractx.Found(svc.Name, out.Confidence), nil
		}
	}
	return contractx.NotFound(), nil
}
