package clamd

import "strings"

// RawResult is a daemon scan reply broken out into the shapes the verdict
// layer inspects. Daemon builds differ in how they report an infection: some
// carry an explicit verdict, some a list of threat names, and some only embed
// a marker in a filename-like reply field.
type RawResult struct {
	// Infected is the daemon's explicit verdict, when the reply carries one.
	Infected *bool
	// Viruses holds threat names reported by the daemon, in reply order.
	Viruses []string
	// File is the filename-like reply field, which may embed a FOUND marker.
	File string
	// Raw is the reply line as received, with framing stripped.
	Raw string
	// UnknownCommand is set when the daemon did not recognize the command,
	// meaning the payload was not scanned at all.
	UnknownCommand bool
}

// ParseScanReply normalizes a single reply line from the daemon.
//
// Recognized forms:
//
//	stream: OK
//	stream: Eicar-Test-Signature FOUND
//	UNKNOWN COMMAND
//
// Anything else is passed through with only the filename-like field populated
// so the verdict layer can apply its marker extraction.
func ParseScanReply(line string) *RawResult {
	line = strings.TrimSpace(line)
	res := &RawResult{Raw: line}

	if strings.Contains(line, "UNKNOWN COMMAND") || strings.Contains(line, "COMMAND READ TIMED OUT") {
		res.UnknownCommand = true
		return res
	}

	body := line
	if i := strings.Index(body, ":"); i >= 0 && strings.HasPrefix(body, "stream") {
		body = strings.TrimSpace(body[i+1:])
	}

	switch {
	case strings.HasSuffix(body, "FOUND"):
		name := strings.TrimSpace(strings.TrimSuffix(body, "FOUND"))
		infected := true
		res.Infected = &infected
		if name != "" {
			res.Viruses = []string{name}
		}
		res.File = line
	case body == "OK":
		infected := false
		res.Infected = &infected
	default:
		res.File = line
	}

	return res
}
