package personalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Sender is the profile of the person the outreach is written for.
type Sender struct {
	Name         string   `json:"name"`
	Organization string   `json:"organization,omitempty"`
	PriorOrgs    []string `json:"prior_orgs,omitempty"`
	Location     string   `json:"location,omitempty"`
	// ResumeLine is one sentence of background worth citing when the
	// message has a strong hook.
	ResumeLine string `json:"resume_line,omitempty"`
}

// CommonalityKind ranks shared ground between sender and contact.
type CommonalityKind string

const (
	CommonalityOrg         CommonalityKind = "organization" // worked at the same org
	CommonalityAffiliation CommonalityKind = "affiliation"  // overlapping past orgs
	CommonalityLocality    CommonalityKind = "locality"     // same area
	CommonalityNone        CommonalityKind = "none"
)

// Signals are the per-contact inputs to generation: one commonality and
// one anchor, each the strongest available of its kind.
type Signals struct {
	Commonality       CommonalityKind
	CommonalityDetail string
	Anchor            model.AnchorKind
	AnchorDetail      string
}

// Strong reports whether the commonality justifies citing the sender's
// background in the draft.
func (s Signals) Strong() bool {
	return s.Commonality == CommonalityOrg || s.Commonality == CommonalityAffiliation
}

// Derive computes signals for one candidate. now anchors tenure math.
func Derive(c model.CandidateRecord, sender Sender, now time.Time) Signals {
	s := Signals{
		Commonality: CommonalityNone,
	}
	s.Commonality, s.CommonalityDetail = commonality(c, sender)
	s.Anchor, s.AnchorDetail = anchor(c, now)
	return s
}

// commonality finds the strongest shared ground, org beating
// affiliation beating locality. Matching is deliberately conservative:
// a false "we both worked at X" costs more than a missed hook.
func commonality(c model.CandidateRecord, sender Sender) (CommonalityKind, string) {
	senderOrgs := append([]string{sender.Organization}, sender.PriorOrgs...)

	candidateOrgs := []string{c.Organization}
	for _, p := range c.WorkHistory {
		candidateOrgs = append(candidateOrgs, p.Organization)
	}

	// Current org overlap first.
	if orgMatch(sender.Organization, c.Organization) {
		return CommonalityOrg, c.Organization
	}
	for _, so := range senderOrgs {
		for _, co := range candidateOrgs {
			if orgMatch(so, co) {
				return CommonalityAffiliation, co
			}
		}
	}

	if localityMatch(sender.Location, c.Location) {
		return CommonalityLocality, c.Location
	}
	return CommonalityNone, ""
}

// orgMatch requires full normalized equality. Substring matching across
// org names produces too many "Apple" vs "Appleton Partners" hits.
func orgMatch(a, b string) bool {
	na, nb := normalizeOrg(a), normalizeOrg(b)
	return na != "" && na == nb
}

var orgSuffixes = []string{"inc", "llc", "ltd", "corp", "corporation", "co", "company", "gmbh"}

func normalizeOrg(org string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(org)))
	for len(fields) > 0 {
		last := strings.Trim(fields[len(fields)-1], ".,")
		trimmed := false
		for _, suffix := range orgSuffixes {
			if last == suffix {
				fields = fields[:len(fields)-1]
				trimmed = true
				break
			}
		}
		if !trimmed {
			break
		}
	}
	return strings.Join(fields, " ")
}

// localityMatch compares the leading locality token, so "Austin, TX"
// matches "Austin".
func localityMatch(a, b string) bool {
	ca, cb := city(a), city(b)
	return ca != "" && ca == cb
}

func city(location string) string {
	head, _, _ := strings.Cut(location, ",")
	return strings.ToLower(strings.TrimSpace(head))
}

// anchor picks the single most specific career detail to write around:
// a recent move beats long tenure beats the current title.
func anchor(c model.CandidateRecord, now time.Time) (model.AnchorKind, string) {
	year := now.Year()

	current, previous := latestPositions(c)
	if current != nil && previous != nil &&
		current.Organization != "" && previous.Organization != "" &&
		normalizeOrg(current.Organization) != normalizeOrg(previous.Organization) &&
		current.StartYear >= year-1 {
		return model.AnchorTransition, fmt.Sprintf("recently joined %s from %s", current.Organization, previous.Organization)
	}

	if current != nil && current.StartYear > 0 && current.Organization != "" {
		if tenure := year - current.StartYear; tenure >= 5 {
			return model.AnchorTenure, fmt.Sprintf("%d years at %s", tenure, current.Organization)
		}
	}

	title := c.Title
	if title == "" && current != nil {
		title = current.Title
	}
	if title == "" {
		title = "your work"
	}
	return model.AnchorTitle, title
}

// latestPositions returns the current and immediately prior positions,
// ordered by start year. EndYear 0 marks a current position.
func latestPositions(c model.CandidateRecord) (current, previous *model.Position) {
	for i := range c.WorkHistory {
		p := &c.WorkHistory[i]
		if current == nil || p.StartYear > current.StartYear {
			previous = current
			current = p
		} else if previous == nil || p.StartYear > previous.StartYear {
			previous = p
		}
	}
	return current, previous
}
