package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	catalogx "github.com/ringlet/callbook/agent/catalog"
	contractx "github.com/ringlet/callbook/agent/contract"
	statex "github.com/ringlet/callbook/agent/state"
)

// historyWindow bounds how much transcript goes into an extraction prompt.
const historyWindow = 8

type llmPayload struct {
	History  []historyEntry     `json:"history,omitempty"`
	Message  string             `json:"message"`
	Now      string             `json:"now,omitempty"`
	Timezone string             `json:"timezone,omitempty"`
	Catalog  []catalogx.Service `json:"catalog,omitempty"`
}

type historyEntry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type llmExtraction struct {
	Found      bool              `json:"found"`
	Value      string            `json:"value"`
	Confidence float64           `json:"confidence"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// invokeLLM runs one extraction completion and decodes the shared JSON shape.
// LLM timeouts, outages, and malformed output are recoverable for extraction:
// they are logged and reported as a clean not-found so the retry policy takes
// over.
func invokeLLM(
	ctx context.Context,
	client contractx.LLMClient,
	system string,
	req contractx.ExtractionRequest,
	withCatalog bool,
	withClock bool,
) (llmExtraction, bool, error) {
	payload := llmPayload{
		Message: req.Text,
		History: historyEntries(req.History),
	}
	if withCatalog {
		payload.Catalog = req.Services
	}
	if withClock && !req.Now.IsZero() {
		now := req.Now
		if req.Location != nil {
			now = now.In(req.Location)
		}
		payload.Now = now.Format(time.RFC3339)
		payload.Timezone = now.Location().String()
	}

	user, err := json.Marshal(payload)
	if err != nil {
		return llmExtraction{}, false, fmt.Errorf("%w: marshal extraction payload: %v", contractx.ErrExtraction, err)
	}

	raw, err := client.Complete(ctx, system, string(user))
	if err != nil {
		if recoverable(err) {
			log.Warn().Err(err).Msg("extraction llm call failed, treating as not found")
			return llmExtraction{}, false, nil
		}
		return llmExtraction{}, false, err
	}

	var out llmExtraction
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &out); err != nil {
		log.Warn().Err(err).Str("raw", raw).Msg("extraction output is not valid json, treating as not found")
		return llmExtraction{}, false, nil
	}
	out.Value = strings.TrimSpace(out.Value)
	if out.Found && out.Value == "" {
		out.Found = false
	}
	return out, true, nil
}

func recoverable(err error) bool {
	return errors.Is(err, contractx.ErrLLMTimeout) ||
		errors.Is(err, contractx.ErrLLMMalformed) ||
		errors.Is(err, contractx.ErrLLMUnavailable)
}

// cleanJSON strips markdown code fences some models wrap around JSON output.
func cleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func historyEntries(history []statex.Message) []historyEntry {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	out := make([]historyEntry, 0, len(history))
	for _, msg := range history {
		out = append(out, historyEntry{
			Speaker: string(msg.Speaker),
			Text:    msg.Text,
		})
	}
	return out
}

func extraFields(extra map[string]string) map[contractx.FieldKind]string {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[contractx.FieldKind]string, len(extra))
	for k, v := range extra {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		switch kind := contractx.FieldKind(strings.ToLower(k)); kind {
		case contractx.FieldName, contractx.FieldPhone, contractx.FieldEmail, contractx.FieldAddress:
			out[kind] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
