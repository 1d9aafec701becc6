package orchestratornode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/ringlet/callbook/agent/contract"
	statex "github.com/ringlet/callbook/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidCall    = errors.New("call id is empty")
)

type GraphInput struct {
	CallID string
	Text   string
}

type GraphOutput struct {
	Result contractx.AdvanceResult

	// DispatchFailed reports that the notifier could not be reached after
	// retries. The result still carries the customer-facing apology.
	DispatchFailed bool
}

type GraphState struct {
	CallID string
	Text   string
	Now    time.Time

	Call  *statex.CallState
	Reply string

	dispatchFailed bool
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	callID := strings.TrimSpace(in.CallID)
	if callID == "" {
		return nil, ErrInvalidCall
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		CallID: callID,
		Text:   text,
		Now:    nowFn().UTC(),
	}, nil
}
