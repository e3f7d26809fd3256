// Package identity derives stable dedup keys for candidate records.
//
// Two records describing the same real person must map to the same key,
// so names are normalized aggressively (case folding, diacritic and
// punctuation stripping) before hashing. A collision between distinct
// people is an accepted false-negative; a record that cannot be keyed at
// all bypasses dedup rather than being dropped.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/outreach-cli/internal/model"
)

var (
	foldCaser = cases.Fold()
	// NFD decomposition followed by removal of combining marks strips
	// diacritics: "José" and "Jose" key identically.
	stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Key maps a candidate record to its dedup key. The second return is
// false when the record has no keyable fields at all; such records pass
// through dedup unfiltered.
func Key(rec model.CandidateRecord) (string, bool) {
	first := Normalize(rec.FirstName)
	last := Normalize(rec.LastName)
	org := Normalize(rec.Organization)

	if first != "" || last != "" {
		return hash("name", first, last, org), true
	}

	// Name fields empty: fall back to email, then profile URL.
	if email := strings.ToLower(strings.TrimSpace(rec.RawEmail)); email != "" {
		return hash("email", email), true
	}
	if url := strings.ToLower(strings.TrimSpace(rec.ProfileURL)); url != "" {
		return hash("url", url), true
	}

	return "", false
}

// Normalize case-folds, strips diacritics and punctuation, and collapses
// interior whitespace.
func Normalize(s string) string {
	stripped, _, err := transform.String(stripMarks, s)
	if err != nil {
		stripped = s
	}
	folded := foldCaser.String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
		// Punctuation and symbols are dropped.
	}
	return strings.TrimSpace(b.String())
}

func hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
