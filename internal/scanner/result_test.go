package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/clamd"
)

func boolPtr(b bool) *bool { return &b }

func TestInterpret(t *testing.T) {
	tests := []struct {
		name        string
		raw         clamd.RawResult
		infected    bool
		threats     []string
		needsFallbk bool
	}{
		{
			name:     "explicit clean verdict",
			raw:      clamd.RawResult{Infected: boolPtr(false)},
			infected: false,
			threats:  []string{},
		},
		{
			name:     "explicit infected with names",
			raw:      clamd.RawResult{Infected: boolPtr(true), Viruses: []string{"Eicar-Test-Signature"}},
			infected: true,
			threats:  []string{"Eicar-Test-Signature"},
		},
		{
			name:     "explicit infected without names synthesizes a label",
			raw:      clamd.RawResult{Infected: boolPtr(true)},
			infected: true,
			threats:  []string{GenericThreat},
		},
		{
			// The explicit verdict is the most trusted source; a stray name
			// does not override it.
			name:     "explicit clean outranks virus list",
			raw:      clamd.RawResult{Infected: boolPtr(false), Viruses: []string{"Ghost.Entry"}},
			infected: false,
			threats:  []string{},
		},
		{
			name:     "virus list without explicit verdict",
			raw:      clamd.RawResult{Viruses: []string{"Trojan.A", "Trojan.B"}},
			infected: true,
			threats:  []string{"Trojan.A", "Trojan.B"},
		},
		{
			name:     "duplicate and blank names normalized",
			raw:      clamd.RawResult{Viruses: []string{" Trojan.A ", "", "Trojan.A"}},
			infected: true,
			threats:  []string{"Trojan.A"},
		},
		{
			name:     "found marker with extractable name",
			raw:      clamd.RawResult{File: "upload.bin FOUND: EICAR-Test-File"},
			infected: true,
			threats:  []string{"EICAR-Test-File"},
		},
		{
			name:     "found marker without extractable name",
			raw:      clamd.RawResult{File: "upload.bin FOUND"},
			infected: true,
			threats:  []string{GenericThreat},
		},
		{
			name:     "infected token in filename field",
			raw:      clamd.RawResult{File: "upload.bin Infected"},
			infected: true,
			threats:  []string{GenericThreat},
		},
		{
			name:     "no rule applies means clean",
			raw:      clamd.RawResult{File: "upload.bin", Raw: "something odd"},
			infected: false,
			threats:  []string{},
		},
		{
			// An unscanned payload must never look infected, whatever else the
			// reply carries.
			name:        "unknown command wins over everything",
			raw:         clamd.RawResult{UnknownCommand: true, Infected: boolPtr(true), Viruses: []string{"X"}},
			infected:    false,
			threats:     []string{},
			needsFallbk: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := interpret(&tt.raw)
			assert.Equal(t, tt.infected, res.Infected)
			assert.Equal(t, tt.threats, res.Threats)
			assert.Equal(t, tt.needsFallbk, res.NeedsFallback)
			assert.Equal(t, MethodStream, res.Method)
			if res.Infected {
				assert.NotEmpty(t, res.Threats, "infected results must always name at least one threat")
			}
		})
	}
}
