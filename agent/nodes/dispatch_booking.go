package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/ringlet/callbook/agent/contract"
	statex "github.com/ringlet/callbook/agent/state"
)

// DispatchBooking runs the finalization step: exactly one notifier delivery
// per call, retried a bounded number of times on transient failure. The node
// never propagates the notifier error through the graph so the state write
// downstream always happens; the failure travels on the graph state instead.
func DispatchBooking(
	ctx context.Context,
	in *GraphState,
	notifier contractx.Notifier,
	ledger contractx.Ledger,
	pol Policy,
) (*GraphState, error) {
	if in == nil || in.Call == nil {
		return nil, fmt.Errorf("%w: graph call state is nil", contractx.ErrValidation)
	}
	st := in.Call
	if st.CurrentStep != statex.StepDispatch {
		return in, nil
	}
	pol = pol.Normalize()

	if st.DispatchDone {
		// a concurrent or replayed message landed after dispatch already ran
		st.EnterStep(statex.StepComplete, "")
		in.Reply = bookedClosing(st)
		return in, nil
	}

	if st.BookingRef == "" {
		st.BookingRef = uuid.NewString()
	}
	details := bookingDetails(st, in.Now)

	var err error
	for attempt := 0; attempt <= pol.DispatchRetries; attempt++ {
		err = notifier.Dispatch(ctx, details)
		if err == nil {
			break
		}
		if errors.Is(err, contractx.ErrInvalidRecipient) {
			break
		}
		log.Warn().
			Str("call_id", st.CallID).
			Int("attempt", attempt+1).
			Err(err).
			Msg("dispatch attempt failed")
	}

	if err != nil {
		// the call stays parked on dispatch so a later turn, or an
		// out-of-band retry, can re-drive the delivery
		st.DispatchFailed = true
		in.Reply = dispatchFailedClosing()
		in.dispatchFailed = true
		return in, nil
	}

	st.DispatchDone = true
	st.DispatchFailed = false
	st.BookingComplete = true
	st.Outcome = statex.OutcomeBooked
	st.EnterStep(statex.StepComplete, "")
	in.Reply = bookedClosing(st)

	if ledger != nil {
		if lerr := ledger.Record(ctx, details); lerr != nil {
			log.Error().Str("call_id", st.CallID).Err(lerr).Msg("booking ledger write failed")
		}
	}
	return in, nil
}

func bookingDetails(st *statex.CallState, now time.Time) contractx.BookingDetails {
	details := contractx.BookingDetails{
		CallID:       st.CallID,
		BookingRef:   st.BookingRef,
		CustomerName: st.UserInfo.Name.Value,
		Phone:        st.UserInfo.Phone.Value,
		Email:        st.UserInfo.Email.Value,
		Address:      st.UserInfo.Address.Value,
		BookedAt:     now,
	}
	if st.SelectedService != nil {
		details.ServiceName = st.SelectedService.Name
		details.ServicePrice = st.SelectedService.Price
	}
	if st.SelectedTime != nil {
		details.StartsAt = st.SelectedTime.StartsAt
	}
	return details
}
