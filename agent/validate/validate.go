package validate

import (
	"strings"
	"time"
	"unicode"

	catalogx "github.com/ringlet/callbook/agent/catalog"
	"github.com/ringlet/callbook/agent/extract"
)

// Reason identifies why a candidate value was rejected. Values are stable
// strings suitable for logs and retry prompts.
type Reason string

const (
	ReasonOK              Reason = ""
	ReasonNameTooShort    Reason = "name_too_short"
	ReasonNameNotAlpha    Reason = "name_not_alphabetic"
	ReasonPhoneMalformed  Reason = "phone_malformed"
	ReasonAddressTooShort Reason = "address_too_short"
	ReasonAddressNoNumber Reason = "address_missing_number"
	ReasonServiceUnknown  Reason = "service_not_offered"
	ReasonTimeUnparseable Reason = "time_unparseable"
	ReasonTimeInPast      Reason = "time_in_past"
	ReasonTimeOutOfHours  Reason = "time_outside_service_hours"
)

// Result is the outcome of one field validation.
type Result struct {
	OK     bool
	Reason Reason
}

func accept() Result         { return Result{OK: true} }
func reject(r Reason) Result { return Result{Reason: r} }

// Name accepts any plausible spoken person name: at least two letters,
// letters plus the usual connective punctuation only.
func Name(value string) Result {
	trimmed := strings.TrimSpace(value)
	letters := 0
	for _, r := range trimmed {
		switch {
		case unicode.IsLetter(r):
			letters++
		case r == ' ' || r == '-' || r == '\'' || r == '.':
		default:
			return reject(ReasonNameNotAlpha)
		}
	}
	if letters < 2 {
		return reject(ReasonNameTooShort)
	}
	return accept()
}

// Phone accepts values that normalize to 8 to 15 digits with an optional
// leading plus. The accepted value is the input, not the normalized form;
// normalization happens at extraction time.
func Phone(value string) Result {
	if _, ok := extract.NormalizePhone(value); !ok {
		return reject(ReasonPhoneMalformed)
	}
	return accept()
}

// Address accepts values that look like a street address: a house number
// plus at least two more words.
func Address(value string) Result {
	trimmed := strings.TrimSpace(value)
	words := strings.Fields(trimmed)
	if len(words) < 3 {
		return reject(ReasonAddressTooShort)
	}
	if !strings.ContainsFunc(trimmed, unicode.IsDigit) {
		return reject(ReasonAddressNoNumber)
	}
	return accept()
}

// Service accepts only exact catalog names.
func Service(value string, services []catalogx.Service) Result {
	for _, svc := range services {
		if strings.EqualFold(strings.TrimSpace(value), svc.Name) {
			return accept()
		}
	}
	return reject(ReasonServiceUnknown)
}

// Hours is the bookable daily window in local hours, half open: a slot at
// Open:00 is accepted, a slot at Close:00 is not.
type Hours struct {
	Open  int
	Close int
}

// DefaultHours covers a typical field-service day.
var DefaultHours = Hours{Open: 8, Close: 18}

// Time accepts RFC3339 values that are strictly in the future and fall
// inside the service window.
func Time(value string, now time.Time, hours Hours) Result {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return reject(ReasonTimeUnparseable)
	}
	if !ts.After(now) {
		return reject(ReasonTimeInPast)
	}
	if ts.Hour() < hours.Open || ts.Hour() >= hours.Close {
		return reject(ReasonTimeOutOfHours)
	}
	return accept()
}
