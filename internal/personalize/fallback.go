package personalize

import (
	"fmt"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// fallbackDraft renders the deterministic template used when generation
// fails or returns nothing usable for a contact. Always yields a
// non-empty subject and body.
func fallbackDraft(c model.CandidateRecord, s Signals, sender Sender, rules *Rules) (subject, body string) {
	first := strings.TrimSpace(c.FirstName)
	if first == "" {
		first = "there"
	}

	subject = fmt.Sprintf("Quick question, %s", first)
	if c.Organization != "" {
		subject = fmt.Sprintf("Quick question about %s", c.Organization)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", first)
	b.WriteString(anchorSentence(s))
	b.WriteString(" ")

	switch s.Commonality {
	case CommonalityOrg:
		fmt.Fprintf(&b, "Having spent time at %s myself, I'd value a quick comparison of notes.", s.CommonalityDetail)
	case CommonalityAffiliation:
		fmt.Fprintf(&b, "We overlapped at %s, so I suspect we'd have plenty to compare notes on.", s.CommonalityDetail)
	case CommonalityLocality:
		fmt.Fprintf(&b, "I'm also based around %s and would be glad to grab fifteen minutes.", s.CommonalityDetail)
	default:
		b.WriteString("I'd value fifteen minutes to hear how you're approaching it.")
	}

	if s.Strong() && sender.ResumeLine != "" {
		b.WriteString("\n\nFor context: " + strings.TrimSpace(sender.ResumeLine))
	}

	fmt.Fprintf(&b, "\n\n%s\n%s", rules.SignOff, sender.Name)
	return subject, b.String()
}

// anchorSentence renders the anchor as an opening observation.
func anchorSentence(s Signals) string {
	switch s.Anchor {
	case model.AnchorTransition:
		return fmt.Sprintf("Congrats on the move; I saw you %s.", s.AnchorDetail)
	case model.AnchorTenure:
		return fmt.Sprintf("I noticed you've built %s, which is rare staying power.", s.AnchorDetail)
	default:
		return fmt.Sprintf("I came across your work as %s and wanted to reach out.", s.AnchorDetail)
	}
}

// altAnchorSentence renders a second phrasing of the same anchor, used
// when a batch would otherwise repeat an opening line verbatim.
func altAnchorSentence(s Signals) string {
	switch s.Anchor {
	case model.AnchorTransition:
		return fmt.Sprintf("I saw you %s and wanted to catch you while the move is fresh.", s.AnchorDetail)
	case model.AnchorTenure:
		return fmt.Sprintf("Not many people can point to %s these days.", s.AnchorDetail)
	default:
		return fmt.Sprintf("Your background as %s stood out to me.", s.AnchorDetail)
	}
}
