package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/name.txt
	nameRaw string

	//go:embed template/phone.txt
	phoneRaw string

	//go:embed template/address.txt
	addressRaw string

	//go:embed template/service.txt
	serviceRaw string

	//go:embed template/time.txt
	timeRaw string

	//go:embed template/correction.txt
	correctionRaw string
)

// PromptSet holds loaded extraction prompt content.
type PromptSet struct {
	Name       string
	Phone      string
	Address    string
	Service    string
	Time       string
	Correction string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Name:       strings.TrimSpace(nameRaw),
		Phone:      strings.TrimSpace(phoneRaw),
		Address:    strings.TrimSpace(addressRaw),
		Service:    strings.TrimSpace(serviceRaw),
		Time:       strings.TrimSpace(timeRaw),
		Correction: strings.TrimSpace(correctionRaw),
	}
}
