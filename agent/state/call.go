package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ringlet/callbook/agent/catalog"
)

// Step is the conversation position of a call. It advances through the fixed
// collection order and only moves backwards on an explicit dispute from the
// confirmation recap.
type Step string

const (
	StepCollectName    Step = "collect_name"
	StepCollectPhone   Step = "collect_phone"
	StepCollectAddress Step = "collect_address"
	StepSelectService  Step = "select_service"
	StepSelectTime     Step = "select_time"
	StepConfirmBooking Step = "confirm_booking"
	StepDispatch       Step = "dispatch"
	StepComplete       Step = "complete"
)

// Steps lists every step in advance order.
var Steps = []Step{
	StepCollectName,
	StepCollectPhone,
	StepCollectAddress,
	StepSelectService,
	StepSelectTime,
	StepConfirmBooking,
	StepDispatch,
	StepComplete,
}

type Speaker string

const (
	SpeakerCustomer  Speaker = "customer"
	SpeakerAssistant Speaker = "assistant"
)

// Message is one history entry. History is append-only and never reordered.
type Message struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type FieldStatus string

const (
	FieldUnset       FieldStatus = "unset"
	FieldUnconfirmed FieldStatus = "unconfirmed"
	FieldConfirmed   FieldStatus = "confirmed"
)

// FieldValue is one collected customer detail. LowConfidence marks values
// accepted through the degraded path after retries were exhausted.
type FieldValue struct {
	Value         string      `json:"value,omitempty"`
	Status        FieldStatus `json:"status"`
	LowConfidence bool        `json:"low_confidence,omitempty"`
}

func (f FieldValue) IsConfirmed() bool {
	return f.Status == FieldConfirmed
}

// IsSet reports whether the field holds any value, confirmed or not.
func (f FieldValue) IsSet() bool {
	return f.Status != FieldUnset
}

// Propose records a value that still needs the customer's sign-off at the
// recap. Degraded accepts land here instead of going straight to confirmed.
func (f *FieldValue) Propose(value string, lowConfidence bool) {
	f.Value = value
	f.Status = FieldUnconfirmed
	f.LowConfidence = lowConfidence
}

func (f *FieldValue) Confirm(value string, lowConfidence bool) {
	f.Value = value
	f.Status = FieldConfirmed
	f.LowConfidence = lowConfidence
}

func (f *FieldValue) Reset() {
	*f = FieldValue{Status: FieldUnset}
}

// UserInfo is the partial customer record built up during collection.
type UserInfo struct {
	Name    FieldValue `json:"name"`
	Phone   FieldValue `json:"phone"`
	Email   FieldValue `json:"email"`
	Address FieldValue `json:"address"`
}

// Field returns the addressable field for a known name, or nil.
func (u *UserInfo) Field(name string) *FieldValue {
	switch name {
	case "name":
		return &u.Name
	case "phone":
		return &u.Phone
	case "email":
		return &u.Email
	case "address":
		return &u.Address
	default:
		return nil
	}
}

// ServiceSelection is a committed catalog choice.
type ServiceSelection struct {
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	LowConfidence bool    `json:"low_confidence,omitempty"`
}

// TimeSelection is a committed appointment slot. Raw keeps the customer's
// wording for the confirmation recap.
type TimeSelection struct {
	StartsAt      time.Time `json:"starts_at"`
	Raw           string    `json:"raw,omitempty"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
}

type Outcome string

const (
	OutcomeBooked Outcome = "booked"
	OutcomeFailed Outcome = "failed"
)

// CallState is the persistent source-of-truth for one phone call. It is
// mutated exactly once per inbound customer message and saved after every
// mutation; history is persisted as a separate append-only list.
type CallState struct {
	CallID      string `json:"call_id"`
	CurrentStep Step   `json:"current_step"`

	// attempts made for the current step's field; reset on step entry
	AttemptCounts map[string]int `json:"attempt_counts,omitempty"`

	UserInfo        UserInfo          `json:"user_info"`
	SelectedService *ServiceSelection `json:"selected_service,omitempty"`
	SelectedTime    *TimeSelection    `json:"selected_time,omitempty"`

	// immutable catalog snapshot supplied at call start
	AvailableServices []catalog.Service `json:"available_services,omitempty"`

	BookingComplete bool    `json:"booking_complete"`
	DispatchDone    bool    `json:"dispatch_done"`
	DispatchFailed  bool    `json:"dispatch_failed,omitempty"`
	BookingRef      string  `json:"booking_ref,omitempty"`
	Outcome         Outcome `json:"outcome,omitempty"`

	// optimistic-concurrency version, managed by the store
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// loaded from the history list, never marshaled with the state record
	History []Message `json:"-"`
}

var (
	ErrStateNotFound = errors.New("call state not found")
	ErrNilCallState  = errors.New("call state is nil")
	ErrInvalidCallID = errors.New("call id is empty")
	ErrConflict      = errors.New("call state version conflict")
	ErrCallBusy      = errors.New("call is already being handled")
	ErrInvalidState  = errors.New("call state is invalid")
)

func NewCallState(callID string, services []catalog.Service, now time.Time) *CallState {
	snapshot := append([]catalog.Service(nil), services...)
	return &CallState{
		CallID:            callID,
		CurrentStep:       StepCollectName,
		AttemptCounts:     make(map[string]int, 4),
		AvailableServices: snapshot,
		CreatedAt:         now.UTC(),
		UpdatedAt:         now.UTC(),
	}
}

func (s *CallState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

func (s *CallState) EnsureAttemptsMap() {
	if s.AttemptCounts == nil {
		s.AttemptCounts = make(map[string]int, 4)
	}
}

// Attempts returns the current attempt count for a field.
func (s *CallState) Attempts(field string) int {
	if s.AttemptCounts == nil {
		return 0
	}
	return s.AttemptCounts[field]
}

// IncrementAttempts bumps the counter for a field and returns the new count.
func (s *CallState) IncrementAttempts(field string) int {
	s.EnsureAttemptsMap()
	s.AttemptCounts[field]++
	return s.AttemptCounts[field]
}

// ResetAttempts zeroes the counter for a field, on acceptance or step entry.
func (s *CallState) ResetAttempts(field string) {
	if s.AttemptCounts == nil {
		return
	}
	delete(s.AttemptCounts, field)
}

// EnterStep moves the call to a step and resets that step's attempt counter.
func (s *CallState) EnterStep(step Step, field string) {
	s.CurrentStep = step
	if field != "" {
		s.ResetAttempts(field)
	}
}

// AppendHistory adds one message to the in-memory history window. Persistence
// of the message is the store's job.
func (s *CallState) AppendHistory(msg Message) {
	s.History = append(s.History, msg)
}

// RecentHistory returns at most n trailing messages for LLM context.
func (s *CallState) RecentHistory(n int) []Message {
	if n <= 0 || len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// ConfirmProposed promotes every unconfirmed field after the customer accepts
// the recap. The low-confidence flag survives the promotion.
func (s *CallState) ConfirmProposed() {
	for _, name := range []string{"name", "phone", "email", "address"} {
		if f := s.UserInfo.Field(name); f != nil && f.Status == FieldUnconfirmed {
			f.Status = FieldConfirmed
		}
	}
}

// InfoComplete reports whether every field required before dispatch is
// confirmed. Email has no dedicated collection step and may stay unset.
func (s *CallState) InfoComplete() bool {
	return s.UserInfo.Name.IsConfirmed() &&
		s.UserInfo.Phone.IsConfirmed() &&
		s.UserInfo.Address.IsConfirmed()
}

// ReadyToDispatch is the DISPATCH entry gate: all required fields confirmed
// and both selections committed.
func (s *CallState) ReadyToDispatch() bool {
	return s.InfoComplete() && s.SelectedService != nil && s.SelectedTime != nil
}

// Validate enforces the structural invariants before every save.
func (s *CallState) Validate() error {
	if s == nil {
		return ErrNilCallState
	}
	if strings.TrimSpace(s.CallID) == "" {
		return ErrInvalidCallID
	}
	if !validStep(s.CurrentStep) {
		return fmt.Errorf("%w: unknown step %q", ErrInvalidState, s.CurrentStep)
	}
	for field, n := range s.AttemptCounts {
		if n < 0 {
			return fmt.Errorf("%w: negative attempts for %s", ErrInvalidState, field)
		}
	}
	if s.CurrentStep == StepDispatch && !s.ReadyToDispatch() {
		return fmt.Errorf("%w: dispatch step requires confirmed info and selections", ErrInvalidState)
	}
	if s.BookingComplete && !s.DispatchDone {
		return fmt.Errorf("%w: booking complete without dispatch", ErrInvalidState)
	}
	return nil
}

func validStep(step Step) bool {
	for _, s := range Steps {
		if s == step {
			return true
		}
	}
	return false
}
