package gate

import (
	"regexp"
	"strings"
)

// Verdict is a caller-supplied review outcome for a held response.
type Verdict struct {
	Passed bool
	Reason string
}

// verdictPattern matches lines like "GATE_REVIEW: PASS - looks good" or
// "GATE_REVIEW: FAIL - missing the summary section". The reason is optional.
var verdictPattern = regexp.MustCompile(`(?im)^\s*GATE_REVIEW:\s*(PASS|FAIL)\s*(?:-\s*(.*))?$`)

// ParseVerdict extracts a structured verdict from free text. The second
// return value is false when no verdict line is present.
func ParseVerdict(text string) (Verdict, bool) {
	m := verdictPattern.FindStringSubmatch(text)
	if m == nil {
		return Verdict{}, false
	}
	return Verdict{
		Passed: strings.EqualFold(m[1], "PASS"),
		Reason: strings.TrimSpace(m[2]),
	}, true
}
