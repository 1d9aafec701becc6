package orchestratornode

import (
	"context"
	"strings"
	"time"

	catalogx "github.com/ringlet/callbook/agent/catalog"
	contractx "github.com/ringlet/callbook/agent/contract"
	extractx "github.com/ringlet/callbook/agent/extract"
	statex "github.com/ringlet/callbook/agent/state"
)

// Mid-flow correction: the customer volunteers a fix for a field that was
// already settled while the call is parked on a later step. The trigger is
// deliberately narrow, a correction phrase plus the field's own keyword, so
// ordinary answers never re-open settled fields.

var correctionPhrases = []string{
	"actually", "wrong", "incorrect", "that's not", "thats not",
	"i meant", "change my", "change the", "not right", "mistake",
}

var fieldKeywords = map[contractx.FieldKind][]string{
	contractx.FieldName:    {"name"},
	contractx.FieldPhone:   {"phone", "number", "mobile"},
	contractx.FieldEmail:   {"email", "e-mail"},
	contractx.FieldAddress: {"address", "street", "suburb"},
	contractx.FieldService: {"service", "job", "booking type"},
	contractx.FieldTime:    {"time", "date", "day", "appointment", "schedule"},
}

func hasCorrectionPhrase(lower string) bool {
	for _, p := range correctionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func mentionedField(lower string) (contractx.FieldKind, bool) {
	for _, kind := range []contractx.FieldKind{
		contractx.FieldName, contractx.FieldPhone, contractx.FieldEmail,
		contractx.FieldAddress, contractx.FieldService, contractx.FieldTime,
	} {
		for _, kw := range fieldKeywords[kind] {
			if strings.Contains(lower, kw) {
				return kind, true
			}
		}
	}
	return "", false
}

// applyMidFlowCorrection re-extracts and overwrites an already settled
// field named in a correction utterance. It reports whether a correction was
// applied along with the reply to send; the call stays on its current step.
func applyMidFlowCorrection(
	ctx context.Context,
	in *GraphState,
	st *statex.CallState,
	registry contractx.Registry,
	pol Policy,
	req contractx.ExtractionRequest,
) (bool, string) {
	lower := strings.ToLower(in.Text)
	if !hasCorrectionPhrase(lower) {
		return false, ""
	}
	field, ok := mentionedField(lower)
	if !ok || field == fieldForStep(st.CurrentStep) {
		return false, ""
	}
	if !fieldSettled(st, field) {
		return false, ""
	}

	extractor := registry.Extractor(field)
	if extractor == nil {
		return false, ""
	}
	res, err := extractor.Extract(ctx, req)
	if err != nil || !res.Found {
		return false, ""
	}
	if !validateField(field, res.Value, st, pol, in.Now).OK {
		return false, ""
	}

	overwriteField(st, field, res.Value)
	return true, correctionAck(field, res.Value, st.CurrentStep, st.AvailableServices)
}

func fieldSettled(st *statex.CallState, field contractx.FieldKind) bool {
	switch field {
	case contractx.FieldService:
		return st.SelectedService != nil
	case contractx.FieldTime:
		return st.SelectedTime != nil
	default:
		f := st.UserInfo.Field(string(field))
		return f != nil && f.IsSet()
	}
}

func overwriteField(st *statex.CallState, field contractx.FieldKind, value string) {
	switch field {
	case contractx.FieldService:
		if svc, ok := catalogx.Match(st.AvailableServices, value); ok {
			st.SelectedService = &statex.ServiceSelection{Name: svc.Name, Price: svc.Price}
		}
	case contractx.FieldTime:
		if ts, err := time.Parse(time.RFC3339, value); err == nil {
			st.SelectedTime = &statex.TimeSelection{StartsAt: ts, Raw: value}
		}
	default:
		if f := st.UserInfo.Field(string(field)); f != nil {
			f.Confirm(value, false)
		}
	}
}

var affirmatives = []string{
	"yes", "yep", "yeah", "correct", "that's right", "thats right",
	"sounds good", "all good", "confirm", "perfect",
}

var negatives = []string{
	"no", "nope", "wrong", "incorrect", "not right", "that's not", "thats not",
}

// matchesAny does whole-word matching for single tokens and substring
// matching for phrases, so "no" never fires on "know" or "now".
func matchesAny(lower string, terms []string) bool {
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && r != '\''
	})
	for _, term := range terms {
		if strings.ContainsRune(term, ' ') {
			if strings.Contains(lower, term) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == term {
				return true
			}
		}
	}
	return false
}

func isAffirmative(text string) bool {
	return matchesAny(strings.ToLower(text), affirmatives)
}

func isNegative(text string) bool {
	return matchesAny(strings.ToLower(text), negatives)
}

// disputedField maps a confirmation rejection onto the field being disputed.
func disputedField(text string) (contractx.FieldKind, bool) {
	return mentionedField(strings.ToLower(text))
}

func normalizedPhone(value string) (string, bool) {
	return extractx.NormalizePhone(value)
}
