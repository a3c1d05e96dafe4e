package scanner

import (
	"regexp"
	"strings"
	"time"

	"github.com/MashaoleMogaleKurtosys/node-clamav-test/internal/clamd"
)

// MethodStream tags scans carried out via the daemon's streaming command.
const MethodStream = "instream"

// GenericThreat is reported when the daemon flags an infection without naming
// the threat, so an infected result never carries an empty threat list.
const GenericThreat = "Unidentified threat"

// Result is the normalized verdict for one scan.
type Result struct {
	// Infected reports whether the daemon found malicious content.
	Infected bool
	// Threats lists detected threat names, in reply order. Empty when clean.
	Threats []string
	// Method describes how the scan was carried out.
	Method string
	// NeedsFallback is set when the daemon does not understand the streaming
	// command. The payload was NOT scanned; callers must not read this as
	// clean.
	NeedsFallback bool
	// PrepTime is the time spent preparing the payload stream.
	PrepTime time.Duration
	// ScanTime is the time spent in the daemon round trip.
	ScanTime time.Duration
	// Elapsed is the total wall-clock time for the scan, queueing included.
	Elapsed time.Duration
}

var foundMarker = regexp.MustCompile(`FOUND:\s*(\S+)`)

type verdict struct {
	infected bool
	threats  []string
}

// extractionRules are evaluated in order of trust against the raw reply; the
// first rule that applies decides the verdict.
var extractionRules = []struct {
	name  string
	apply func(raw *clamd.RawResult) (verdict, bool)
}{
	{"explicit-flag", byExplicitFlag},
	{"virus-list", byVirusList},
	{"found-marker", byFoundMarker},
}

// byExplicitFlag trusts the daemon's own verdict field when present.
func byExplicitFlag(raw *clamd.RawResult) (verdict, bool) {
	if raw.Infected == nil {
		return verdict{}, false
	}
	return verdict{infected: *raw.Infected, threats: raw.Viruses}, true
}

// byVirusList treats any reported threat name as an infection.
func byVirusList(raw *clamd.RawResult) (verdict, bool) {
	if len(raw.Viruses) == 0 {
		return verdict{}, false
	}
	return verdict{infected: true, threats: raw.Viruses}, true
}

// byFoundMarker falls back to a FOUND/Infected token embedded in the
// filename-like reply field, extracting the name after "FOUND:" when present.
func byFoundMarker(raw *clamd.RawResult) (verdict, bool) {
	if !strings.Contains(raw.File, "FOUND") && !strings.Contains(raw.File, "Infected") {
		return verdict{}, false
	}
	v := verdict{infected: true}
	if m := foundMarker.FindStringSubmatch(raw.File); m != nil {
		v.threats = []string{m[1]}
	}
	return v, true
}

// interpret normalizes a raw daemon reply into a Result.
//
// An unrecognized-command reply yields NeedsFallback and is never infected.
// When infection is indicated but no name could be extracted, a single
// generic label is synthesized.
func interpret(raw *clamd.RawResult) *Result {
	res := &Result{Method: MethodStream, Threats: []string{}}

	if raw.UnknownCommand {
		res.NeedsFallback = true
		return res
	}

	for _, rule := range extractionRules {
		v, ok := rule.apply(raw)
		if !ok {
			continue
		}
		res.Infected = v.infected
		if v.infected {
			res.Threats = normalizeThreats(v.threats)
			if len(res.Threats) == 0 {
				res.Threats = []string{GenericThreat}
			}
		}
		return res
	}

	return res
}

// normalizeThreats trims names and drops empties and duplicates, preserving
// reply order.
func normalizeThreats(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
