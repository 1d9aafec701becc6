package contract

import (
	"time"

	catalogx "github.com/ringlet/callbook/agent/catalog"
	statex "github.com/ringlet/callbook/agent/state"
)

// FieldKind identifies one collectable booking field.
type FieldKind string

const (
	FieldName    FieldKind = "name"
	FieldPhone   FieldKind = "phone"
	FieldEmail   FieldKind = "email"
	FieldAddress FieldKind = "address"
	FieldService FieldKind = "service"
	FieldTime    FieldKind = "time"
)

// ExtractionRequest carries everything an extractor may consult. History is a
// bounded window ending at the inbound utterance; Now and Location anchor
// relative time expressions.
type ExtractionRequest struct {
	Text     string
	History  []statex.Message
	Services []catalogx.Service
	Now      time.Time
	Location *time.Location
}

// ExtractionResult is the outcome of one extraction pass. Extra holds values
// the model volunteered for other fields in the same utterance; the
// orchestrator decides whether to use them.
type ExtractionResult struct {
	Found      bool
	Value      string
	Confidence float64
	Extra      map[FieldKind]string
}

// NotFound is the zero result shared by all extractors.
func NotFound() ExtractionResult {
	return ExtractionResult{}
}

// Found builds a positive extraction result.
func Found(value string, confidence float64) ExtractionResult {
	return ExtractionResult{Found: true, Value: value, Confidence: confidence}
}

// BookingDetails is the payload handed to the dispatch notifier and the
// booking ledger once a call is confirmed.
type BookingDetails struct {
	CallID       string    `json:"call_id"`
	BookingRef   string    `json:"booking_ref"`
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email,omitempty"`
	Address      string    `json:"address"`
	ServiceName  string    `json:"service_name"`
	ServicePrice float64   `json:"service_price"`
	StartsAt     time.Time `json:"starts_at"`
	BookedAt     time.Time `json:"booked_at"`
}

// AdvanceResult is what one handled inbound message produces for the caller.
type AdvanceResult struct {
	AssistantMessage     string
	UserInfo             statex.UserInfo
	ConversationComplete bool
	CurrentStep          statex.Step
}
