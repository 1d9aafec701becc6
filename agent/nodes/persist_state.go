package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/ringlet/callbook/agent/contract"
	statex "github.com/ringlet/callbook/agent/state"
)

// PersistState is the single state write of an advance invocation. Nothing
// before it touches the store, so a failure anywhere upstream leaves the
// stored call untouched.
func PersistState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil || in.Call == nil {
		return nil, fmt.Errorf("%w: graph call state is nil", contractx.ErrValidation)
	}
	st := in.Call

	if in.Reply != "" {
		st.AppendHistory(statex.Message{Speaker: statex.SpeakerAssistant, Text: in.Reply, Timestamp: in.Now})
	}

	st.Touch(in.Now)
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, st); err != nil {
		return nil, err
	}

	msgs := []statex.Message{{Speaker: statex.SpeakerCustomer, Text: in.Text, Timestamp: in.Now}}
	if in.Reply != "" {
		msgs = append(msgs, statex.Message{Speaker: statex.SpeakerAssistant, Text: in.Reply, Timestamp: in.Now})
	}
	if err := store.AppendMessage(ctx, st.CallID, msgs...); err != nil {
		log.Error().Str("call_id", st.CallID).Err(err).Msg("history append failed")
	}
	return in, nil
}
