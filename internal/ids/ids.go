// Package ids generates and validates the short identifiers used across
// the store: f-xxxxxx for tasks, e-xxxxxx for epics, r-xxxxxx for reviews
// and runs. The suffix is six characters from a lowercase base32 alphabet.
package ids

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

// Kind is the entity prefix of a short id.
type Kind string

const (
	KindTask   Kind = "f"
	KindEpic   Kind = "e"
	KindReview Kind = "r"
)

// alphabet is lowercase base32 without the ambiguous i/l/o/u.
const alphabet = "abcdefghjkmnpqrstvwxyz23456789"

const suffixLen = 6

var shortIDRe = regexp.MustCompile(`^[fer]-[a-z2-9]{6}$`)

// New returns a fresh short id for the given kind.
func New(kind Kind) string {
	buf := make([]byte, suffixLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; if it does,
		// there is no safe fallback for identity generation.
		panic(fmt.Sprintf("ids: rand.Read: %v", err))
	}
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteByte('-')
	for _, c := range buf {
		b.WriteByte(alphabet[int(c)%len(alphabet)])
	}
	return b.String()
}

// Valid reports whether s is a well-formed short id of any kind.
func Valid(s string) bool {
	return shortIDRe.MatchString(s)
}

// KindOf returns the kind prefix of a well-formed short id.
func KindOf(s string) (Kind, bool) {
	if !Valid(s) {
		return "", false
	}
	return Kind(s[:1]), true
}
