package extract

import (
	"errors"

	contractx "github.com/ringlet/callbook/agent/contract"
	promptx "github.com/ringlet/callbook/agent/prompt"
)

type registryImpl struct {
	name      contractx.Extractor
	phone     contractx.Extractor
	address   contractx.Extractor
	service   contractx.Extractor
	time      contractx.Extractor
	corrector contractx.SpeechCorrector
}

// NewRegistry builds the production extractor set over one LLM client.
func NewRegistry(client contractx.LLMClient, prompts promptx.PromptSet) (contractx.Registry, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	return &registryImpl{
		name:      &nameExtractor{client: client, prompt: prompts.Name},
		phone:     &phoneExtractor{client: client, prompt: prompts.Phone},
		address:   &addressExtractor{client: client, prompt: prompts.Address},
		service:   &serviceExtractor{client: client, prompt: prompts.Service},
		time:      &timeExtractor{client: client, prompt: prompts.Time},
		corrector: &llmCorrector{client: client, prompt: prompts.Correction},
	}, nil
}

func (r *registryImpl) Extractor(field contractx.FieldKind) contractx.Extractor {
	switch field {
	case contractx.FieldName:
		return r.name
	case contractx.FieldPhone:
		return r.phone
	case contractx.FieldAddress:
		return r.address
	case contractx.FieldService:
		return r.service
	case contractx.FieldTime:
		return r.time
	default:
		return nil
	}
}

func (r *registryImpl) Corrector() contractx.SpeechCorrector {
	return r.corrector
}
