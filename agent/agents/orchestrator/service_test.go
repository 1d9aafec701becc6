package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	catalogx "github.com/ringlet/callbook/agent/catalog"
	contractx "github.com/ringlet/callbook/agent/contract"
	statex "github.com/ringlet/callbook/agent/state"
)

type fakeStore struct {
	states   map[string]*statex.CallState
	loadErr  error
	saveErr  error
	saved    []*statex.CallState
	appended []statex.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[string]*statex.CallState)}
}

func (f *fakeStore) Load(ctx context.Context, callID string) (*statex.CallState, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	st, ok := f.states[callID]
	if !ok {
		return nil, statex.ErrStateNotFound
	}
	return cloneCallState(st), nil
}

func (f *fakeStore) Save(ctx context.Context, st *statex.CallState) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	clone := cloneCallState(st)
	f.states[st.CallID] = clone
	f.saved = append(f.saved, clone)
	return nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, callID string, msgs ...statex.Message) error {
	f.appended = append(f.appended, msgs...)
	return nil
}

func cloneCallState(st *statex.CallState) *statex.CallState {
	raw, err := json.Marshal(st)
	if err != nil {
		panic(err)
	}
	var clone statex.CallState
	if err := json.Unmarshal(raw, &clone); err != nil {
		panic(err)
	}
	clone.History = append([]statex.Message(nil), st.History...)
	return &clone
}

type fakeLease struct {
	releases int
}

func (f *fakeLease) Release(ctx context.Context) error {
	f.releases++
	return nil
}

type fakeLeaser struct {
	acquireErr error
	acquires   int
	lease      *fakeLease
}

func (f *fakeLeaser) Acquire(ctx context.Context, callID string) (statex.Lease, error) {
	f.acquires++
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	if f.lease == nil {
		f.lease = &fakeLease{}
	}
	return f.lease, nil
}

type fakeExtractor struct {
	results []contractx.ExtractionResult
	err     error
	calls   int
	texts   []string
}

func (f *fakeExtractor) Extract(ctx context.Context, req contractx.ExtractionRequest) (contractx.ExtractionResult, error) {
	f.calls++
	f.texts = append(f.texts, req.Text)
	if f.err != nil {
		return contractx.ExtractionResult{}, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.results) {
		return contractx.NotFound(), nil
	}
	return f.results[idx], nil
}

type fakeCorrector struct {
	rewrite string
	err     error
	calls   int
}

func (f *fakeCorrector) Rewrite(ctx context.Context, text string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.rewrite == "" {
		return text, nil
	}
	return f.rewrite, nil
}

type fakeRegistry struct {
	extractors map[contractx.FieldKind]*fakeExtractor
	corrector  *fakeCorrector
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		extractors: map[contractx.FieldKind]*fakeExtractor{
			contractx.FieldName:    {},
			contractx.FieldPhone:   {},
			contractx.FieldAddress: {},
			contractx.FieldService: {},
			contractx.FieldTime:    {},
		},
		corrector: &fakeCorrector{},
	}
}

func (f *fakeRegistry) Extractor(field contractx.FieldKind) contractx.Extractor {
	ex, ok := f.extractors[field]
	if !ok {
		return nil
	}
	return ex
}

func (f *fakeRegistry) Corrector() contractx.SpeechCorrector {
	return f.corrector
}

type fakeNotifier struct {
	errs  []error
	calls []contractx.BookingDetails
}

func (f *fakeNotifier) Dispatch(ctx context.Context, details contractx.BookingDetails) error {
	idx := len(f.calls)
	f.calls = append(f.calls, details)
	if idx < len(f.errs) {
		return f.errs[idx]
	}
	return nil
}

type fakeLedger struct {
	records []contractx.BookingDetails
	err     error
}

func (f *fakeLedger) Record(ctx context.Context, details contractx.BookingDetails) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, details)
	return nil
}

func testServices() []catalogx.Service {
	return []catalogx.Service{
		{Name: "Standard Cleaning", Synonyms: []string{"cleaning", "clean"}, Price: 120},
		{Name: "Deep Cleaning", Synonyms: []string{"deep clean"}, Price: 250},
	}
}

func newTestOrchestrator(
	t *testing.T,
	store statex.Store,
	leaser statex.Leaser,
	registry contractx.Registry,
	notifier contractx.Notifier,
	ledger contractx.Ledger,
	cfg Config,
) *Orchestrator {
	t.Helper()
	o, err := New(store, leaser, registry, notifier, ledger, testServices(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	o.now = func() time.Time {
		return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	}
	return o
}

// confirmedCallState builds a call with every field collected, parked on the
// given step.
func confirmedCallState(callID string, step statex.Step) *statex.CallState {
	st := statex.NewCallState(callID, testServices(), time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	st.UserInfo.Name.Confirm("John Smith", false)
	st.UserInfo.Phone.Confirm("0412345678", false)
	st.UserInfo.Address.Confirm("25 Johnson Street", false)
	st.SelectedService = &statex.ServiceSelection{Name: "Standard Cleaning", Price: 120}
	st.SelectedTime = &statex.TimeSelection{StartsAt: time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)}
	st.CurrentStep = step
	return st
}

func TestAdvanceInvalidInput(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, newFakeStore(), &fakeLeaser{}, newFakeRegistry(), &fakeNotifier{}, &fakeLedger{}, Config{})

	_, err := o.Advance(context.Background(), "   ", "hello")
	if !errors.Is(err, ErrInvalidCall) {
		t.Fatalf("expected ErrInvalidCall, got %v", err)
	}

	_, err = o.Advance(context.Background(), "call-1", "   ")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestAdvanceFreshCallCapturesNameAndPhone(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	registry := newFakeRegistry()
	registry.extractors[contractx.FieldName].results = []contractx.ExtractionResult{
		{
			Found:      true,
			Value:      "John Smith",
			Confidence: 0.95,
			Extra:      map[contractx.FieldKind]string{contractx.FieldPhone: "0412 345 678"},
		},
	}
	notifier := &fakeNotifier{}

	o := newTestOrchestrator(t, store, &fakeLeaser{}, registry, notifier, &fakeLedger{}, Config{})

	res, err := o.Advance(context.Background(), "call-a", "Hi I need cleaning, I'm John Smith, 0412 345 678")
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	if !res.UserInfo.Name.IsConfirmed() || res.UserInfo.Name.Value != "John Smith" {
		t.Fatalf("expected confirmed name, got %+v", res.UserInfo.Name)
	}
	if !res.UserInfo.Phone.IsConfirmed() || res.UserInfo.Phone.Value != "0412345678" {
		t.Fatalf("expected confirmed normalized phone, got %+v", res.UserInfo.Phone)
	}
	if res.CurrentStep != statex.StepCollectAddress {
		t.Fatalf("expected collect_address, got %s", res.CurrentStep)
	}
	if res.ConversationComplete {
		t.Fatal("fresh call must not be complete")
	}
	if len(notifier.calls) != 0 {
		t.Fatalf("dispatch must not fire on a fresh call, got %d calls", len(notifier.calls))
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected exactly one save, got %d", len(store.saved))
	}
	if res.AssistantMessage == "" {
		t.Fatal("expected an outbound reply")
	}
}

func TestAdvanceAddressAcceptedAfterSpeechCorrection(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	st := statex.NewCallState("call-b", testServices(), time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	st.UserInfo.Name.Confirm("John Smith", false)
	st.UserInfo.Phone.Confirm("0412345678", false)
	st.CurrentStep = statex.StepCollectAddress
	st.AttemptCounts["address"] = 1
	store.states["call-b"] = st

	registry := newFakeRegistry()
	registry.extractors[contractx.FieldAddress].results = []contractx.ExtractionResult{
		{}, // raw utterance yields nothing
		{Found: true, Value: "1/25 Johnson Street", Confidence: 0.9},
	}
	registry.corrector.rewrite = "my address is 1/25 Johnson Street"

	o := newTestOrchestrator(t, store, &fakeLeaser{}, registry, &fakeNotifier{}, &fakeLedger{}, Config{})

	res, err := o.Advance(context.Background(), "call-b", "1 twenty five Johnson street")
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	if !res.UserInfo.Address.IsConfirmed() || res.UserInfo.Address.Value != "1/25 Johnson Street" {
		t.Fatalf("expected corrected address confirmed, got %+v", res.UserInfo.Address)
	}
	if res.CurrentStep != statex.StepSelectService {
		t.Fatalf("expected select_service, got %s", res.CurrentStep)
	}
	if registry.corrector.calls != 1 {
		t.Fatalf("expected one correction pass, got %d", registry.corrector.calls)
	}
	if got := store.states["call-b"].Attempts("address"); got != 0 {
		t.Fatalf("expected address attempts reset to 0, got %d", got)
	}
}

func TestAdvanceTimeAttemptsExhaustedTakesFallback(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	st := confirmedCallState("call-c", statex.StepSelectTime)
	st.SelectedTime = nil
	store.states["call-c"] = st

	registry := newFakeRegistry() // time extractor never finds a value

	o := newTestOrchestrator(t, store, &fakeLeaser{}, registry, &fakeNotifier{}, &fakeLedger{}, Config{MaxAttempts: 3})

	var res contractx.AdvanceResult
	var err error
	for i := 0; i < 3; i++ {
		res, err = o.Advance(context.Background(), "call-c", "hmm whenever really")
		if err != nil {
			t.Fatalf("Advance() #%d error = %v", i+1, err)
		}
		if got := store.states["call-c"].Attempts("time"); got > 3 {
			t.Fatalf("attempts exceeded bound: %d", got)
		}
	}

	saved := store.states["call-c"]
	if saved.SelectedTime == nil {
		t.Fatal("expected fallback time selection after exhausted attempts")
	}
	if !saved.SelectedTime.LowConfidence {
		t.Fatal("fallback selection must carry the low-confidence flag")
	}
	if res.CurrentStep != statex.StepConfirmBooking {
		t.Fatalf("expected confirm_booking after fallback, got %s", res.CurrentStep)
	}
}

func TestAdvanceConfirmDisputeRoutesToField(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.states["call-d"] = confirmedCallState("call-d", statex.StepConfirmBooking)

	registry := newFakeRegistry() // no inline fix in the dispute utterance

	o := newTestOrchestrator(t, store, &fakeLeaser{}, registry, &fakeNotifier{}, &fakeLedger{}, Config{})

	res, err := o.Advance(context.Background(), "call-d", "no, my address is wrong")
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	if res.CurrentStep != statex.StepCollectAddress {
		t.Fatalf("expected collect_address, got %s", res.CurrentStep)
	}
	saved := store.states["call-d"]
	if saved.UserInfo.Address.Status != statex.FieldUnset {
		t.Fatalf("expected address reset, got %+v", saved.UserInfo.Address)
	}
	if !saved.UserInfo.Name.IsConfirmed() || !saved.UserInfo.Phone.IsConfirmed() {
		t.Fatal("dispute must preserve the other confirmed fields")
	}
	if saved.SelectedService == nil || saved.SelectedTime == nil {
		t.Fatal("dispute must preserve committed selections")
	}
}

func TestAdvanceConfirmDisputeWithInlineFix(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.states["call-e"] = confirmedCallState("call-e", statex.StepConfirmBooking)

	registry := newFakeRegistry()
	registry.extractors[contractx.FieldAddress].results = []contractx.ExtractionResult{
		{Found: true, Value: "7 Baker Street", Confidence: 0.9},
	}

	o := newTestOrchestrator(t, store, &fakeLeaser{}, registry, &fakeNotifier{}, &fakeLedger{}, Config{})

	res, err := o.Advance(context.Background(), "call-e", "no that address is wrong, it's 7 Baker Street")
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	if res.UserInfo.Address.Value != "7 Baker Street" {
		t.Fatalf("expected inline fix applied, got %+v", res.UserInfo.Address)
	}
	if res.CurrentStep != statex.StepConfirmBooking {
		t.Fatalf("expected to return to confirm_booking, got %s", res.CurrentStep)
	}
}

func TestAdvanceConfirmationDispatchesOnce(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.states["call-f"] = confirmedCallState("call-f", statex.StepConfirmBooking)

	notifier := &fakeNotifier{}
	ledger := &fakeLedger{}

	o := newTestOrchestrator(t, store, &fakeLeaser{}, newFakeRegistry(), notifier, ledger, Config{})

	res, err := o.Advance(context.Background(), "call-f", "yes that's right")
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	if !res.ConversationComplete {
		t.Fatal("expected conversation complete after dispatch")
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(notifier.calls))
	}
	details := notifier.calls[0]
	if details.CallID != "call-f" || details.CustomerName != "John Smith" || details.ServiceName != "Standard Cleaning" {
		t.Fatalf("unexpected dispatch payload: %+v", details)
	}
	if details.BookingRef == "" {
		t.Fatal("expected a booking reference")
	}
	if len(ledger.records) != 1 {
		t.Fatalf("expected one ledger record, got %d", len(ledger.records))
	}

	saved := store.states["call-f"]
	if !saved.DispatchDone || !saved.BookingComplete || saved.Outcome != statex.OutcomeBooked {
		t.Fatalf("unexpected saved state: %+v", saved)
	}

	// a follow-up message must not dispatch again
	res, err = o.Advance(context.Background(), "call-f", "great, thank you")
	if err != nil {
		t.Fatalf("Advance() after completion error = %v", err)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("dispatch fired twice, got %d calls", len(notifier.calls))
	}
	if !res.ConversationComplete {
		t.Fatal("completed call must stay complete")
	}
}

func TestAdvanceDispatchFailureSurfaces(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.states["call-g"] = confirmedCallState("call-g", statex.StepConfirmBooking)

	notifier := &fakeNotifier{errs: []error{
		contractx.ErrNotifierUnavailable,
		contractx.ErrNotifierUnavailable,
	}}

	o := newTestOrchestrator(t, store, &fakeLeaser{}, newFakeRegistry(), notifier, &fakeLedger{}, Config{DispatchRetries: 1})

	res, err := o.Advance(context.Background(), "call-g", "yes all correct")
	if !errors.Is(err, contractx.ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}
	if len(notifier.calls) != 2 {
		t.Fatalf("expected 2 dispatch attempts, got %d", len(notifier.calls))
	}
	if res.AssistantMessage == "" || !strings.Contains(res.AssistantMessage, "call you back") {
		t.Fatalf("expected a customer-facing failure message, got %q", res.AssistantMessage)
	}

	saved := store.states["call-g"]
	if !saved.DispatchFailed || saved.DispatchDone {
		t.Fatalf("unexpected saved state: %+v", saved)
	}
	if saved.CurrentStep != statex.StepDispatch {
		t.Fatalf("failed dispatch must stay on the dispatch step, got %s", saved.CurrentStep)
	}
	if res.ConversationComplete {
		t.Fatal("failed dispatch must not close the conversation")
	}
	if saved.BookingComplete {
		t.Fatal("failed dispatch must never mark the booking complete")
	}
}

func TestAdvanceRedrivesDispatchAfterFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.states["call-g2"] = confirmedCallState("call-g2", statex.StepConfirmBooking)

	notifier := &fakeNotifier{errs: []error{
		contractx.ErrNotifierUnavailable,
		contractx.ErrNotifierUnavailable,
	}}
	ledger := &fakeLedger{}

	o := newTestOrchestrator(t, store, &fakeLeaser{}, newFakeRegistry(), notifier, ledger, Config{DispatchRetries: 1})

	_, err := o.Advance(context.Background(), "call-g2", "yes all correct")
	if !errors.Is(err, contractx.ErrDispatchFailed) {
		t.Fatalf("expected ErrDispatchFailed, got %v", err)
	}

	// the next turn re-drives the delivery, which now goes through
	res, err := o.Advance(context.Background(), "call-g2", "hello, are you still there?")
	if err != nil {
		t.Fatalf("Advance() after recovery error = %v", err)
	}
	if len(notifier.calls) != 3 {
		t.Fatalf("expected 3 dispatch attempts in total, got %d", len(notifier.calls))
	}
	if !res.ConversationComplete {
		t.Fatal("expected conversation complete once dispatch recovers")
	}

	saved := store.states["call-g2"]
	if !saved.DispatchDone || saved.DispatchFailed || saved.Outcome != statex.OutcomeBooked {
		t.Fatalf("unexpected saved state after recovery: %+v", saved)
	}
	if len(ledger.records) != 1 {
		t.Fatalf("expected one ledger record, got %d", len(ledger.records))
	}
}

func TestAdvanceDegradedNameStaysUnconfirmed(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	registry := newFakeRegistry() // name extractor never finds a value

	o := newTestOrchestrator(t, store, &fakeLeaser{}, registry, &fakeNotifier{}, &fakeLedger{}, Config{MaxAttempts: 1})

	res, err := o.Advance(context.Background(), "call-n", "just book whatever")
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	saved := store.states["call-n"]
	if saved.UserInfo.Name.Status != statex.FieldUnconfirmed {
		t.Fatalf("degraded name must stay unconfirmed, got %+v", saved.UserInfo.Name)
	}
	if !saved.UserInfo.Name.LowConfidence {
		t.Fatal("degraded name must carry the low-confidence flag")
	}
	if res.CurrentStep != statex.StepCollectPhone {
		t.Fatalf("expected collect_phone after degraded accept, got %s", res.CurrentStep)
	}
}

func TestAdvanceRecapPromotesProposedFields(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	st := confirmedCallState("call-o", statex.StepConfirmBooking)
	st.UserInfo.Name.Propose("John Smith", true)
	store.states["call-o"] = st

	o := newTestOrchestrator(t, store, &fakeLeaser{}, newFakeRegistry(), &fakeNotifier{}, &fakeLedger{}, Config{})

	res, err := o.Advance(context.Background(), "call-o", "yes that's right")
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if !res.ConversationComplete {
		t.Fatal("expected conversation complete after promoted dispatch")
	}

	saved := store.states["call-o"]
	if !saved.UserInfo.Name.IsConfirmed() {
		t.Fatalf("recap acceptance must promote the proposed name, got %+v", saved.UserInfo.Name)
	}
	if !saved.UserInfo.Name.LowConfidence {
		t.Fatal("promotion must keep the low-confidence flag")
	}
	if !saved.DispatchDone || saved.Outcome != statex.OutcomeBooked {
		t.Fatalf("unexpected saved state: %+v", saved)
	}
}

func TestAdvanceCallBusy(t *testing.T) {
	t.Parallel()

	leaser := &fakeLeaser{acquireErr: statex.ErrCallBusy}
	store := newFakeStore()

	o := newTestOrchestrator(t, store, leaser, newFakeRegistry(), &fakeNotifier{}, &fakeLedger{}, Config{})

	_, err := o.Advance(context.Background(), "call-h", "hello")
	if !errors.Is(err, statex.ErrCallBusy) {
		t.Fatalf("expected ErrCallBusy, got %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("busy call must not write state, got %d saves", len(store.saved))
	}
}

func TestAdvanceReleasesLeaseOnError(t *testing.T) {
	t.Parallel()

	leaser := &fakeLeaser{}
	store := newFakeStore()
	store.saveErr = errors.New("redis down")

	registry := newFakeRegistry()
	registry.extractors[contractx.FieldName].results = []contractx.ExtractionResult{
		{Found: true, Value: "John Smith", Confidence: 0.95},
	}

	o := newTestOrchestrator(t, store, leaser, registry, &fakeNotifier{}, &fakeLedger{}, Config{})

	_, err := o.Advance(context.Background(), "call-i", "I'm John Smith")
	if err == nil {
		t.Fatal("expected save error to propagate")
	}
	if leaser.lease == nil || leaser.lease.releases != 1 {
		t.Fatalf("expected lease released exactly once, got %+v", leaser.lease)
	}
}

func TestAdvanceMidFlowCorrectionOverwritesConfirmedField(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	st := statex.NewCallState("call-j", testServices(), time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	st.UserInfo.Name.Confirm("John Smith", false)
	st.UserInfo.Phone.Confirm("0412345678", false)
	st.UserInfo.Address.Confirm("25 Johnson Street", false)
	st.CurrentStep = statex.StepSelectService
	store.states["call-j"] = st

	registry := newFakeRegistry()
	registry.extractors[contractx.FieldAddress].results = []contractx.ExtractionResult{
		{Found: true, Value: "14 Rose Avenue", Confidence: 0.9},
	}

	o := newTestOrchestrator(t, store, &fakeLeaser{}, registry, &fakeNotifier{}, &fakeLedger{}, Config{})

	res, err := o.Advance(context.Background(), "call-j", "actually my address is 14 Rose Avenue")
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	if res.UserInfo.Address.Value != "14 Rose Avenue" {
		t.Fatalf("expected overwritten address, got %+v", res.UserInfo.Address)
	}
	if res.CurrentStep != statex.StepSelectService {
		t.Fatalf("correction must keep the call on its step, got %s", res.CurrentStep)
	}
}
