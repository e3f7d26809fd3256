package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Tier bounds how many contacts a request may ask for and how much
// concurrency the pipeline spends on it.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierScale Tier = "scale"
)

// MaxContacts returns the per-request contact ceiling for the tier.
func (t Tier) MaxContacts() int {
	switch t {
	case TierPro:
		return 25
	case TierScale:
		return 100
	default:
		return 10
	}
}

// MaxWorkers returns the outbound-call concurrency cap for the tier.
func (t Tier) MaxWorkers() int {
	switch t {
	case TierPro:
		return 4
	case TierScale:
		return 5
	default:
		return 3
	}
}

// SearchRequest describes one contact discovery request. Immutable once
// accepted; ID doubles as the idempotency key for the credit charge.
type SearchRequest struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	Role         string `json:"role"`
	Organization string `json:"organization,omitempty"`
	Location     string `json:"location,omitempty"`
	Count        int    `json:"count"`
	Tier         Tier   `json:"tier"`
	// Targeted marks requests aimed at a specific organization the user
	// named, which justifies a resume mention even without a commonality.
	Targeted bool `json:"targeted,omitempty"`
}

// Validate checks request fields and clamps Count to the tier ceiling.
func (r *SearchRequest) Validate() error {
	if r.ID == "" {
		return eris.New("request: missing id")
	}
	if r.AccountID == "" {
		return eris.New("request: missing account id")
	}
	if strings.TrimSpace(r.Role) == "" {
		return eris.New("request: missing role")
	}
	if r.Count <= 0 {
		return eris.New("request: count must be positive")
	}
	if max := r.Tier.MaxContacts(); r.Count > max {
		r.Count = max
	}
	return nil
}

// Position is one entry in a candidate's work history.
type Position struct {
	Title        string `json:"title,omitempty"`
	Organization string `json:"organization,omitempty"`
	StartYear    int    `json:"start_year,omitempty"`
	EndYear      int    `json:"end_year,omitempty"` // 0 = current
}

// CandidateRecord holds the raw fields returned by the people-search
// provider. Never mutated after creation; enrichment derives a new record.
type CandidateRecord struct {
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Title        string     `json:"title,omitempty"`
	Organization string     `json:"organization,omitempty"`
	OrgDomain    string     `json:"org_domain,omitempty"`
	Location     string     `json:"location,omitempty"`
	RawEmail     string     `json:"raw_email,omitempty"`
	ProfileURL   string     `json:"profile_url,omitempty"`
	WorkHistory  []Position `json:"work_history,omitempty"`
}

// FullName joins first and last name for display and prompts.
func (c CandidateRecord) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// EmailConfidence ranks how much we trust a candidate's email address.
type EmailConfidence string

const (
	ConfidencePDL        EmailConfidence = "pdl"        // came with the search record
	ConfidenceVerified   EmailConfidence = "verified"   // finder verified deliverability
	ConfidenceUnverified EmailConfidence = "unverified" // pattern-inferred, not verified
	ConfidenceNone       EmailConfidence = "none"       // no usable address
)

// Rank orders confidence tiers; higher is better.
func (c EmailConfidence) Rank() int {
	switch c {
	case ConfidencePDL:
		return 3
	case ConfidenceVerified:
		return 2
	case ConfidenceUnverified:
		return 1
	default:
		return 0
	}
}

// EnrichedContact is a CandidateRecord plus its dedup key, resolved email
// and, once personalization has run, an outreach draft. Created once per
// surviving candidate; immutable apart from draft state transitions.
type EnrichedContact struct {
	Candidate   CandidateRecord `json:"candidate"`
	IdentityKey string          `json:"identity_key,omitempty"`
	Email       string          `json:"email,omitempty"`
	Confidence  EmailConfidence `json:"confidence"`
	Draft       *OutreachDraft  `json:"draft,omitempty"`
}

// Warning is a recovered stage-local failure surfaced with the result.
type Warning struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// PipelineResult is the consolidated output of one pipeline run.
type PipelineResult struct {
	RequestID          string            `json:"request_id"`
	RunID              string            `json:"run_id,omitempty"`
	Contacts           []EnrichedContact `json:"contacts"`
	CreditsCharged     int               `json:"credits_charged"`
	InsufficientCredit bool              `json:"insufficient_credit,omitempty"`
	Warnings           []Warning         `json:"warnings,omitempty"`
	Stages             []StageResult     `json:"stages,omitempty"`
}
