package orchestratornode

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	catalogx "github.com/ringlet/callbook/agent/catalog"
	contractx "github.com/ringlet/callbook/agent/contract"
	statex "github.com/ringlet/callbook/agent/state"
	validatex "github.com/ringlet/callbook/agent/validate"
)

// HandleTurn is the step state machine. It consumes exactly one inbound
// customer utterance, mutates the call state in memory, and leaves exactly
// one outbound reply on the graph state. Persistence happens downstream.
func HandleTurn(
	ctx context.Context,
	in *GraphState,
	registry contractx.Registry,
	pol Policy,
) (*GraphState, error) {
	if in == nil || in.Call == nil {
		return nil, fmt.Errorf("%w: graph call state is nil", contractx.ErrValidation)
	}
	pol = pol.Normalize()
	st := in.Call

	// extractor context ends before the utterance being extracted
	window := st.RecentHistory(pol.HistoryWindow)
	st.AppendHistory(statex.Message{Speaker: statex.SpeakerCustomer, Text: in.Text, Timestamp: in.Now})

	switch st.CurrentStep {
	case statex.StepComplete:
		in.Reply = alreadyClosedReply(st)
		return in, nil
	case statex.StepDispatch:
		// the dispatch node owns this turn
		return in, nil
	case statex.StepConfirmBooking:
		return handleConfirm(ctx, in, st, registry, pol, window)
	default:
		return handleCollect(ctx, in, st, registry, pol, window)
	}
}

func handleCollect(
	ctx context.Context,
	in *GraphState,
	st *statex.CallState,
	registry contractx.Registry,
	pol Policy,
	window []statex.Message,
) (*GraphState, error) {
	field := fieldForStep(st.CurrentStep)
	extractor := registry.Extractor(field)
	if extractor == nil {
		return nil, fmt.Errorf("%w: no extractor for field %s", contractx.ErrExtraction, field)
	}

	req := contractx.ExtractionRequest{
		Text:     in.Text,
		History:  window,
		Services: st.AvailableServices,
		Now:      in.Now,
		Location: pol.Location,
	}

	res, err := extractor.Extract(ctx, req)
	if err != nil {
		return nil, err
	}
	applyExtras(st, res.Extra)

	if corrected, next := applyMidFlowCorrection(ctx, in, st, registry, pol, req); corrected {
		in.Reply = next
		return in, nil
	}

	reason := validatex.ReasonOK
	if res.Found {
		verdict := validateField(field, res.Value, st, pol, in.Now)
		if verdict.OK {
			acceptField(st, field, res.Value, false)
			in.Reply = acceptedReply(field, res.Value, st.CurrentStep, st.AvailableServices)
			return in, nil
		}
		reason = verdict.Reason
		log.Debug().
			Str("call_id", st.CallID).
			Str("field", string(field)).
			Str("reason", string(reason)).
			Msg("candidate rejected")
	}

	// address gets one relaxed pass through the speech corrector before a
	// failure is counted
	if field == contractx.FieldAddress {
		if ok, reply := retryWithCorrection(ctx, in, st, registry, pol, req); ok {
			in.Reply = reply
			return in, nil
		}
	}

	if st.IncrementAttempts(string(field)) >= pol.MaxAttempts {
		return degradeField(in, st, field, res, pol)
	}
	in.Reply = retryPrompt(field, reason, pol.Hours, st.AvailableServices)
	return in, nil
}

// retryWithCorrection reruns address extraction over a speech-corrected
// rewrite of the utterance. Acceptance through this path zeroes the attempt
// counter.
func retryWithCorrection(
	ctx context.Context,
	in *GraphState,
	st *statex.CallState,
	registry contractx.Registry,
	pol Policy,
	req contractx.ExtractionRequest,
) (bool, string) {
	corrector := registry.Corrector()
	if corrector == nil {
		return false, ""
	}
	rewritten, err := corrector.Rewrite(ctx, in.Text)
	if err != nil || rewritten == in.Text {
		return false, ""
	}

	req.Text = rewritten
	res, err := registry.Extractor(contractx.FieldAddress).Extract(ctx, req)
	if err != nil || !res.Found {
		return false, ""
	}
	if !validatex.Address(res.Value).OK {
		return false, ""
	}

	st.ResetAttempts(string(contractx.FieldAddress))
	acceptField(st, contractx.FieldAddress, res.Value, false)
	return true, acceptedReply(contractx.FieldAddress, res.Value, st.CurrentStep, st.AvailableServices)
}

func degradeField(
	in *GraphState,
	st *statex.CallState,
	field contractx.FieldKind,
	last contractx.ExtractionResult,
	pol Policy,
) (*GraphState, error) {
	log.Warn().
		Str("call_id", st.CallID).
		Str("field", string(field)).
		Int("attempts", st.Attempts(string(field))).
		Msg("attempts exhausted, taking degraded path")

	switch field {
	case contractx.FieldName:
		value := last.Value
		if value == "" {
			value = in.Text
		}
		proposeField(st, field, value)
		in.Reply = degradedReply(field, value, st.CurrentStep, st.AvailableServices)

	case contractx.FieldPhone, contractx.FieldAddress:
		if last.Found {
			proposeField(st, field, last.Value)
			in.Reply = degradedReply(field, last.Value, st.CurrentStep, st.AvailableServices)
			return in, nil
		}
		terminateCollection(in, st, field)

	case contractx.FieldService:
		if svc, ok := catalogx.FuzzyMatch(st.AvailableServices, in.Text); ok {
			st.SelectedService = &statex.ServiceSelection{Name: svc.Name, Price: svc.Price, LowConfidence: true}
			advance(st)
			in.Reply = degradedReply(field, svc.Name, st.CurrentStep, st.AvailableServices)
			return in, nil
		}
		terminateCollection(in, st, field)

	case contractx.FieldTime:
		slot := nextOpeningSlot(in.Now, pol)
		st.SelectedTime = &statex.TimeSelection{StartsAt: slot, Raw: in.Text, LowConfidence: true}
		advance(st)
		in.Reply = fmt.Sprintf("Let's pencil in %s for now, and we can adjust it before we finish. %s",
			slot.Format("Monday 2 January at 3:04 PM"), recapOrPrompt(st))
	}
	return in, nil
}

func terminateCollection(in *GraphState, st *statex.CallState, field contractx.FieldKind) {
	st.Outcome = statex.OutcomeFailed
	st.EnterStep(statex.StepComplete, string(field))
	in.Reply = collectionFailedClosing(field)
}

func handleConfirm(
	ctx context.Context,
	in *GraphState,
	st *statex.CallState,
	registry contractx.Registry,
	pol Policy,
	window []statex.Message,
) (*GraphState, error) {
	switch {
	case isNegative(in.Text):
		field, ok := disputedField(in.Text)
		if !ok {
			in.Reply = clarifyDispute()
			return in, nil
		}
		resetField(st, field)
		step := stepForField(field)
		st.EnterStep(step, string(field))

		// the dispute often carries the fix, try to take it in one turn
		if extractor := registry.Extractor(field); extractor != nil {
			req := contractx.ExtractionRequest{
				Text:     in.Text,
				History:  window,
				Services: st.AvailableServices,
				Now:      in.Now,
				Location: pol.Location,
			}
			if res, err := extractor.Extract(ctx, req); err == nil && res.Found {
				if validateField(field, res.Value, st, pol, in.Now).OK {
					acceptField(st, field, res.Value, false)
					in.Reply = acceptedReply(field, res.Value, st.CurrentStep, st.AvailableServices)
					if st.CurrentStep == statex.StepConfirmBooking {
						in.Reply = recapMessage(st)
					}
					return in, nil
				}
			}
		}

		in.Reply = reaskMessage(step)
		return in, nil
	case isAffirmative(in.Text):
		st.ConfirmProposed()
		st.EnterStep(statex.StepDispatch, "")
		return in, nil
	default:
		in.Reply = recapMessage(st)
		return in, nil
	}
}

// acceptField commits a value, clears the attempt counter, and moves the
// call to the next incomplete step.
func acceptField(st *statex.CallState, field contractx.FieldKind, value string, lowConfidence bool) {
	switch field {
	case contractx.FieldName, contractx.FieldPhone, contractx.FieldEmail, contractx.FieldAddress:
		if f := st.UserInfo.Field(string(field)); f != nil {
			f.Confirm(value, lowConfidence)
		}
	case contractx.FieldService:
		if svc, ok := catalogx.Match(st.AvailableServices, value); ok {
			st.SelectedService = &statex.ServiceSelection{Name: svc.Name, Price: svc.Price, LowConfidence: lowConfidence}
		}
	case contractx.FieldTime:
		if ts, err := time.Parse(time.RFC3339, value); err == nil {
			st.SelectedTime = &statex.TimeSelection{StartsAt: ts, Raw: value, LowConfidence: lowConfidence}
		}
	}
	st.ResetAttempts(string(field))
	advance(st)
}

// proposeField parks a degraded value as unconfirmed and moves on. The recap
// either promotes it on an affirmative or routes it back for re-collection.
func proposeField(st *statex.CallState, field contractx.FieldKind, value string) {
	if f := st.UserInfo.Field(string(field)); f != nil {
		f.Propose(value, true)
	}
	st.ResetAttempts(string(field))
	advance(st)
}

// advance moves to the earliest step whose requirement is still unmet. A call
// with everything gathered lands on the confirmation recap.
func advance(st *statex.CallState) {
	next := nextStep(st)
	if next != st.CurrentStep {
		st.EnterStep(next, string(fieldForStep(next)))
	}
}

func nextStep(st *statex.CallState) statex.Step {
	switch {
	case !st.UserInfo.Name.IsSet():
		return statex.StepCollectName
	case !st.UserInfo.Phone.IsSet():
		return statex.StepCollectPhone
	case !st.UserInfo.Address.IsSet():
		return statex.StepCollectAddress
	case st.SelectedService == nil:
		return statex.StepSelectService
	case st.SelectedTime == nil:
		return statex.StepSelectTime
	default:
		return statex.StepConfirmBooking
	}
}

// applyExtras fills still-unset contact fields from values the extractor
// volunteered alongside its target. Confirmed fields are never overwritten
// from this path.
func applyExtras(st *statex.CallState, extra map[contractx.FieldKind]string) {
	for kind, value := range extra {
		if value == "" {
			continue
		}
		f := st.UserInfo.Field(string(kind))
		if f == nil || f.Status != statex.FieldUnset {
			continue
		}
		switch kind {
		case contractx.FieldPhone:
			if normalized, ok := normalizedPhone(value); ok {
				f.Confirm(normalized, false)
			}
		case contractx.FieldName:
			if validatex.Name(value).OK {
				f.Confirm(value, false)
			}
		case contractx.FieldAddress:
			if validatex.Address(value).OK {
				f.Confirm(value, false)
			}
		case contractx.FieldEmail:
			f.Confirm(value, false)
		}
	}
}

func validateField(
	field contractx.FieldKind,
	value string,
	st *statex.CallState,
	pol Policy,
	now time.Time,
) validatex.Result {
	switch field {
	case contractx.FieldName:
		return validatex.Name(value)
	case contractx.FieldPhone:
		return validatex.Phone(value)
	case contractx.FieldAddress:
		return validatex.Address(value)
	case contractx.FieldService:
		return validatex.Service(value, st.AvailableServices)
	case contractx.FieldTime:
		return validatex.Time(value, now, pol.Hours)
	default:
		return validatex.Result{OK: true}
	}
}

func fieldForStep(step statex.Step) contractx.FieldKind {
	switch step {
	case statex.StepCollectName:
		return contractx.FieldName
	case statex.StepCollectPhone:
		return contractx.FieldPhone
	case statex.StepCollectAddress:
		return contractx.FieldAddress
	case statex.StepSelectService:
		return contractx.FieldService
	case statex.StepSelectTime:
		return contractx.FieldTime
	default:
		return ""
	}
}

func stepForField(field contractx.FieldKind) statex.Step {
	switch field {
	case contractx.FieldName:
		return statex.StepCollectName
	case contractx.FieldPhone:
		return statex.StepCollectPhone
	case contractx.FieldAddress:
		return statex.StepCollectAddress
	case contractx.FieldService:
		return statex.StepSelectService
	case contractx.FieldTime:
		return statex.StepSelectTime
	default:
		return statex.StepConfirmBooking
	}
}

func resetField(st *statex.CallState, field contractx.FieldKind) {
	switch field {
	case contractx.FieldService:
		st.SelectedService = nil
	case contractx.FieldTime:
		st.SelectedTime = nil
	default:
		if f := st.UserInfo.Field(string(field)); f != nil {
			f.Reset()
		}
	}
}

func recapOrPrompt(st *statex.CallState) string {
	if st.CurrentStep == statex.StepConfirmBooking {
		return recapMessage(st)
	}
	return promptForStep(st.CurrentStep, st.AvailableServices)
}

// nextOpeningSlot is the degraded-time fallback: the first bookable hour
// strictly after now, rolling to the next day's opening when today is done.
func nextOpeningSlot(now time.Time, pol Policy) time.Time {
	local := now.In(pol.Location)
	slot := time.Date(local.Year(), local.Month(), local.Day(), local.Hour()+1, 0, 0, 0, pol.Location)
	if slot.Hour() < pol.Hours.Open {
		slot = time.Date(slot.Year(), slot.Month(), slot.Day(), pol.Hours.Open, 0, 0, 0, pol.Location)
	}
	if slot.Hour() >= pol.Hours.Close {
		next := local.AddDate(0, 0, 1)
		slot = time.Date(next.Year(), next.Month(), next.Day(), pol.Hours.Open, 0, 0, 0, pol.Location)
	}
	return slot
}
