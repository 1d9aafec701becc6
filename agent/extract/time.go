package extract

import (
	"context"
	"time"

	contractx "github.com/ringlet/callbook/agent/contract"
)

type timeExtractor struct {
	client contractx.LLMClient
	prompt string
}

func (e *timeExtractor) Extract(ctx context.Context, req contractx.ExtractionRequest) (contractx.ExtractionResult, error) {
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	if ts, ok := ResolveRelativeTime(req.Text, req.Now, loc); ok {
		res := contractx.Found(ts.Format(time.RFC3339), 0.9)
		return res, nil
	}

	out, ok, err := invokeLLM(ctx, e.client, e.prompt, req, false, true)
	if err != nil {
		return contractx.ExtractionResult{}, err
	}
	if !ok || !out.Found {
		return contractx.NotFound(), nil
	}

	ts, perr := time.Parse(time.RFC3339, out.Value)
	if perr != nil {
		return contractx.NotFound(), nil
	}

	res := contractx.Found(ts.In(loc).Format(time.RFC3339), out.Confidence)
	res.Extra = extraFields(out.Extra)
	return res, nil
}
