package driver

import "strings"

// SelfguidedMarker is the phrase a self-guided agent prints in its
// final output when it judges the task complete. Until the marker
// appears the scheduler re-dispatches the task, up to the configured
// iteration ceiling.
const SelfguidedMarker = "SELFGUIDED: COMPLETE"

// SelfguidedAccepted reports whether a run's final output declares the
// self-guided loop finished.
func SelfguidedAccepted(finalText string) bool {
	return strings.Contains(finalText, SelfguidedMarker)
}
