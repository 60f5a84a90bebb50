package daemon

import "strings"

// Verdict is a reviewer's parsed judgment.
type Verdict string

const (
	VerdictPass    Verdict = "PASS"
	VerdictFail    Verdict = "FAIL"
	VerdictUnknown Verdict = ""
)

// ParseVerdict extracts the verdict and issue list from reviewer
// output. Expected shape:
//
//	VERDICT: PASS|FAIL
//	ISSUES:
//	- file:line: description
//
// Bullets under ISSUES: (- or *) become issue strings; a new section
// header ends the list. Missing or unparseable verdicts return
// VerdictUnknown so the caller can fail the review generically.
func ParseVerdict(output string) (Verdict, []string) {
	verdict := VerdictUnknown
	var issues []string

	lines := strings.Split(output, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)

		if strings.HasPrefix(upper, "VERDICT:") {
			rest := strings.ToUpper(strings.TrimSpace(trimmed[len("VERDICT:"):]))
			switch {
			case strings.Contains(rest, "PASS"):
				verdict = VerdictPass
			case strings.Contains(rest, "FAIL"):
				verdict = VerdictFail
			}
			continue
		}

		if strings.HasPrefix(upper, "ISSUES:") {
			for j := i + 1; j < len(lines); j++ {
				il := strings.TrimSpace(lines[j])
				if il == "" {
					continue
				}
				if strings.HasPrefix(il, "-") || strings.HasPrefix(il, "*") {
					if issue := strings.TrimSpace(il[1:]); issue != "" {
						issues = append(issues, issue)
					}
				} else if strings.HasSuffix(il, ":") {
					break
				}
			}
		}
	}
	return verdict, issues
}
