package contract

import "context"

// Extractor derives a candidate value for one field from conversation text.
// Implementations are stateless; their only side effect is the LLM call.
type Extractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (ExtractionResult, error)
}

// Registry resolves the extractor for a field plus the speech-correction
// collaborator used for the address second pass.
type Registry interface {
	Extractor(field FieldKind) Extractor
	Corrector() SpeechCorrector
}

// SpeechCorrector rewrites a raw speech-to-text utterance into a cleaner form.
// Only the input/output contract matters here; the heuristics live elsewhere.
type SpeechCorrector interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

// LLMClient is the opaque completion boundary shared by extractors.
type LLMClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Notifier sends the booking confirmation (email + calendar artifact) exactly
// once per call; the call id doubles as the idempotency token.
type Notifier interface {
	Dispatch(ctx context.Context, details BookingDetails) error
}

// Ledger records completed bookings for reporting. Failures are logged and
// never affect the call outcome.
type Ledger interface {
	Record(ctx context.Context, details BookingDetails) error
}
