package orchestratornode

import (
	"strings"
	"testing"
	"time"

	catalogx "github.com/ringlet/callbook/agent/catalog"
	contractx "github.com/ringlet/callbook/agent/contract"
	statex "github.com/ringlet/callbook/agent/state"
	validatex "github.com/ringlet/callbook/agent/validate"
)

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	nowFn := func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }

	if _, err := ValidateRequest(GraphInput{CallID: " ", Text: "hi"}, nowFn); err != ErrInvalidCall {
		t.Fatalf("expected ErrInvalidCall, got %v", err)
	}
	if _, err := ValidateRequest(GraphInput{CallID: "c1", Text: "  "}, nowFn); err != ErrInvalidMessage {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}

	gs, err := ValidateRequest(GraphInput{CallID: " c1 ", Text: " hello "}, nowFn)
	if err != nil {
		t.Fatalf("ValidateRequest() error = %v", err)
	}
	if gs.CallID != "c1" || gs.Text != "hello" {
		t.Fatalf("expected trimmed input, got %+v", gs)
	}
}

func TestAffirmativeAndNegativeDetection(t *testing.T) {
	t.Parallel()

	affirm := []string{"yes", "Yep, all good", "that's right", "perfect"}
	for _, text := range affirm {
		if !isAffirmative(text) {
			t.Errorf("expected affirmative: %q", text)
		}
	}

	negative := []string{"no", "Nope", "that's not my number", "the address is wrong"}
	for _, text := range negative {
		if !isNegative(text) {
			t.Errorf("expected negative: %q", text)
		}
	}

	// short tokens must not fire inside other words
	for _, text := range []string{"I know the place", "see you now", "unknown"} {
		if isNegative(text) {
			t.Errorf("false negative trigger on %q", text)
		}
	}
}

func TestDisputedField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text  string
		want  contractx.FieldKind
		found bool
	}{
		{"no, my address is wrong", contractx.FieldAddress, true},
		{"the phone number is wrong", contractx.FieldPhone, true},
		{"wrong time, I said friday", contractx.FieldTime, true},
		{"that service is not what I asked for", contractx.FieldService, true},
		{"no that's all wrong", "", false},
	}
	for _, tc := range cases {
		got, found := disputedField(tc.text)
		if found != tc.found || got != tc.want {
			t.Errorf("disputedField(%q) = (%s, %v), want (%s, %v)", tc.text, got, found, tc.want, tc.found)
		}
	}
}

func TestNextStepOrder(t *testing.T) {
	t.Parallel()

	st := statex.NewCallState("c1", nil, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	if got := nextStep(st); got != statex.StepCollectName {
		t.Fatalf("expected collect_name, got %s", got)
	}

	st.UserInfo.Name.Confirm("John Smith", false)
	st.UserInfo.Phone.Confirm("0412345678", false)
	if got := nextStep(st); got != statex.StepCollectAddress {
		t.Fatalf("expected collect_address, got %s", got)
	}

	st.UserInfo.Address.Confirm("25 Johnson Street", false)
	st.SelectedService = &statex.ServiceSelection{Name: "Standard Cleaning", Price: 120}
	if got := nextStep(st); got != statex.StepSelectTime {
		t.Fatalf("expected select_time, got %s", got)
	}

	st.SelectedTime = &statex.TimeSelection{StartsAt: time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)}
	if got := nextStep(st); got != statex.StepConfirmBooking {
		t.Fatalf("expected confirm_booking, got %s", got)
	}
}

func TestNextOpeningSlot(t *testing.T) {
	t.Parallel()

	pol := Policy{Hours: validatex.Hours{Open: 8, Close: 18}, Location: time.UTC}.Normalize()

	// mid-morning rolls to the next full hour
	got := nextOpeningSlot(time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC), pol)
	want := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}

	// evening rolls to the next day's opening
	got = nextOpeningSlot(time.Date(2025, 6, 2, 19, 0, 0, 0, time.UTC), pol)
	want = time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}

	// small hours jump to today's opening
	got = nextOpeningSlot(time.Date(2025, 6, 2, 5, 0, 0, 0, time.UTC), pol)
	want = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestServicePromptsListTheCatalog(t *testing.T) {
	t.Parallel()

	services := []catalogx.Service{
		{Name: "Standard Cleaning", Price: 120},
		{Name: "Deep Cleaning", Price: 250},
		{Name: "Window Cleaning", Price: 90},
	}

	prompt := promptForStep(statex.StepSelectService, services)
	if !strings.Contains(prompt, "Standard Cleaning, Deep Cleaning or Window Cleaning") {
		t.Fatalf("expected the offerings listed, got %q", prompt)
	}

	retry := retryPrompt(contractx.FieldService, validatex.ReasonServiceUnknown, validatex.DefaultHours, services)
	if !strings.Contains(retry, "Standard Cleaning") || !strings.Contains(retry, "Window Cleaning") {
		t.Fatalf("expected the offerings in the retry prompt, got %q", retry)
	}

	// an empty catalog falls back to the generic wording
	if got := promptForStep(statex.StepSelectService, nil); strings.Contains(got, "We offer") {
		t.Fatalf("expected generic prompt without a catalog, got %q", got)
	}
}

func TestApplyExtrasFillsOnlyUnsetFields(t *testing.T) {
	t.Parallel()

	st := statex.NewCallState("c1", nil, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	st.UserInfo.Name.Confirm("John Smith", false)

	applyExtras(st, map[contractx.FieldKind]string{
		contractx.FieldName:  "Someone Else",
		contractx.FieldPhone: "0412 345 678",
		contractx.FieldEmail: "john@example.com",
	})

	if st.UserInfo.Name.Value != "John Smith" {
		t.Fatalf("confirmed name must not be overwritten, got %q", st.UserInfo.Name.Value)
	}
	if st.UserInfo.Phone.Value != "0412345678" || !st.UserInfo.Phone.IsConfirmed() {
		t.Fatalf("expected phone filled from extras, got %+v", st.UserInfo.Phone)
	}
	if st.UserInfo.Email.Value != "john@example.com" {
		t.Fatalf("expected email filled from extras, got %+v", st.UserInfo.Email)
	}

	// junk phone digits never land
	st2 := statex.NewCallState("c2", nil, time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	applyExtras(st2, map[contractx.FieldKind]string{contractx.FieldPhone: "12"})
	if st2.UserInfo.Phone.Status != statex.FieldUnset {
		t.Fatalf("expected phone left unset, got %+v", st2.UserInfo.Phone)
	}
}
