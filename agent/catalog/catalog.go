package catalog

import (
	"strings"
)

// Service is one bookable offering supplied at call start. The slice given to
// a call is treated as an immutable snapshot.
type Service struct {
	Name        string   `json:"name"`
	Synonyms    []string `json:"synonyms,omitempty"`
	Price       float64  `json:"price"`
	Description string   `json:"description,omitempty"`
}

// Match finds the catalog entry whose name or synonyms appear in the given
// text, case-insensitively. The longest matching term wins so "deep cleaning"
// beats "cleaning".
func Match(services []Service, text string) (Service, bool) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return Service{}, false
	}

	var (
		best    Service
		bestLen int
		found   bool
	)
	for _, svc := range services {
		for _, term := range terms(svc) {
			if len(term) > bestLen && strings.Contains(needle, term) {
				best = svc
				bestLen = len(term)
				found = true
			}
		}
	}
	return best, found
}

// FuzzyMatch is the relaxed fallback used once attempts are exhausted: it
// scores services by shared words between the text and the service terms and
// returns the best scorer, if any word overlaps at all.
func FuzzyMatch(services []Service, text string) (Service, bool) {
	words := fields(strings.ToLower(text))
	if len(words) == 0 {
		return Service{}, false
	}

	var (
		best      Service
		bestScore int
	)
	for _, svc := range services {
		score := 0
		for _, term := range terms(svc) {
			for _, tw := range fields(term) {
				for _, w := range words {
					if shareStem(w, tw) {
						score++
					}
				}
			}
		}
		if score > bestScore {
			best = svc
			bestScore = score
		}
	}
	if bestScore == 0 {
		return Service{}, false
	}
	return best, true
}

// Names returns the display names of all services, for selection prompts.
func Names(services []Service) []string {
	out := make([]string, 0, len(services))
	for _, svc := range services {
		out = append(out, svc.Name)
	}
	return out
}

func terms(svc Service) []string {
	out := make([]string, 0, len(svc.Synonyms)+1)
	if name := strings.ToLower(strings.TrimSpace(svc.Name)); name != "" {
		out = append(out, name)
	}
	for _, syn := range svc.Synonyms {
		if s := strings.ToLower(strings.TrimSpace(syn)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func fields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

// shareStem matches "clean" against "cleaning" without pulling in a stemmer:
// one word must prefix the other and the shorter must be at least 4 runes.
func shareStem(a, b string) bool {
	if a == b {
		return len(a) >= 3
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	return len(short) >= 4 && strings.HasPrefix(long, short)
}
