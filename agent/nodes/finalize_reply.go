package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/ringlet/callbook/agent/contract"
	statex "github.com/ringlet/callbook/agent/state"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil || in.Call == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph call state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: turn produced no reply", contractx.ErrValidation)
	}

	return GraphOutput{
		Result: contractx.AdvanceResult{
			AssistantMessage:     reply,
			UserInfo:             in.Call.UserInfo,
			ConversationComplete: in.Call.CurrentStep == statex.StepComplete,
			CurrentStep:          in.Call.CurrentStep,
		},
		DispatchFailed: in.dispatchFailed,
	}, nil
}
