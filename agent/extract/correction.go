package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/ringlet/callbook/agent/contract"
)

// llmCorrector rewrites likely transcription artifacts in a caller
// utterance before a second extraction pass. On any model failure it
// returns the input unchanged so the caller can proceed.
type llmCorrector struct {
	client contractx.LLMClient
	prompt string
}

type correctionReply struct {
	Text string `json:"text"`
}

func (c *llmCorrector) Rewrite(ctx context.Context, text string) (string, error) {
	user := fmt.Sprintf(`{"transcript": %q}`, text)

	raw, err := c.client.Complete(ctx, c.prompt, user)
	if err != nil {
		log.Warn().Err(err).Msg("speech correction skipped")
		return text, nil
	}

	var reply correctionReply
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &reply); err != nil {
		log.Warn().Err(err).Msg("speech correction returned malformed payload")
		return text, nil
	}
	if strings.TrimSpace(reply.Text) == "" {
		return text, nil
	}
	return reply.Text, nil
}
