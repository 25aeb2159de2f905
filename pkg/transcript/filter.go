// Package transcript turns the stdout of a whisper.cpp style engine into a
// single utterance.
package transcript

import (
	"regexp"
	"strings"
)

// Kind classifies one line of engine output.
type Kind int

const (
	Blank Kind = iota
	Segment
	Diagnostic
	Plain
)

// timingRe matches "[00:00:00.000 --> 00:00:02.000]" and shorter forms.
var timingRe = regexp.MustCompile(`\d+:\d+(?::\d+)?(?:[.,]\d+)?\s*-->\s*\d+:\d+(?::\d+)?(?:[.,]\d+)?`)

// DefaultPrefixes are the log prefixes whisper.cpp writes next to the text.
var DefaultPrefixes = []string{
	"whisper_",
	"system_info",
	"main:",
	"ggml_",
	"output_",
}

// PrefixPredicate reports lines starting with any of prefixes.
func PrefixPredicate(prefixes ...string) func(string) bool {
	ps := append([]string(nil), prefixes...)
	return func(line string) bool {
		for _, p := range ps {
			if strings.HasPrefix(line, p) {
				return true
			}
		}
		return false
	}
}

var defaultDiagnostic = PrefixPredicate(DefaultPrefixes...)

// Filter extracts spoken text from raw engine output.
//
// IsDiagnostic decides which unmarked lines are engine logs; nil means
// DefaultPrefixes.
type Filter struct {
	IsDiagnostic func(line string) bool
}

// Classify reports what kind of line line is, after trimming.
func (f Filter) Classify(line string) Kind {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return Blank
	case timingRe.MatchString(line):
		return Segment
	case f.diagnostic(line):
		return Diagnostic
	default:
		return Plain
	}
}

// Apply returns the utterance contained in raw. Segment lines contribute the
// text after their first ']', plain lines contribute themselves, diagnostic
// and blank lines are dropped. The result is "" when nothing was said.
func (f Filter) Apply(raw string) string {
	var kept []string

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)

		switch f.Classify(line) {
		case Segment:
			if _, rest, ok := strings.Cut(line, "]"); ok {
				line = strings.TrimSpace(rest)
			}
		case Plain:
		default:
			continue
		}

		if line != "" {
			kept = append(kept, line)
		}
	}

	return strings.TrimSpace(strings.Join(kept, " "))
}

func (f Filter) diagnostic(line string) bool {
	if f.IsDiagnostic != nil {
		return f.IsDiagnostic(line)
	}
	return defaultDiagnostic(line)
}

// Clean applies the default Filter.
func Clean(raw string) string {
	return Filter{}.Apply(raw)
}
