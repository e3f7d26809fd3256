package model

import "github.com/rotisserie/eris"

// DraftState is the closed lifecycle of an outreach draft.
type DraftState string

const (
	DraftPending   DraftState = "pending"
	DraftGenerated DraftState = "generated"
	DraftCreated   DraftState = "drafted"
	DraftFailed    DraftState = "draft_failed"
)

// AnchorKind names the single personalization detail a message is built on.
type AnchorKind string

const (
	AnchorTransition AnchorKind = "career_transition"
	AnchorTenure     AnchorKind = "tenure"
	AnchorTitle      AnchorKind = "title"
)

// OutreachDraft is a generated subject/body pair for one contact. State
// moves only through Transition: pending → generated → drafted|draft_failed.
// A draft that fails provider-side is still valid output.
type OutreachDraft struct {
	Subject  string     `json:"subject"`
	Body     string     `json:"body"`
	Anchor   AnchorKind `json:"anchor"`
	Fallback bool       `json:"fallback,omitempty"` // deterministic template, not generated
	State    DraftState `json:"state"`
	DraftID  string     `json:"draft_id,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// NewDraft returns a draft in the pending state.
func NewDraft() *OutreachDraft {
	return &OutreachDraft{State: DraftPending}
}

var draftTransitions = map[DraftState][]DraftState{
	DraftPending:   {DraftGenerated},
	DraftGenerated: {DraftCreated, DraftFailed},
}

// Transition moves the draft to the given state, rejecting edges outside
// the lifecycle. All state changes go through here.
func (d *OutreachDraft) Transition(to DraftState) error {
	for _, allowed := range draftTransitions[d.State] {
		if allowed == to {
			d.State = to
			return nil
		}
	}
	return eris.Errorf("draft: invalid transition %s -> %s", d.State, to)
}

// MarkGenerated records the generated subject/body and advances the state.
func (d *OutreachDraft) MarkGenerated(subject, body string, anchor AnchorKind, fallback bool) error {
	if err := d.Transition(DraftGenerated); err != nil {
		return err
	}
	d.Subject = subject
	d.Body = body
	d.Anchor = anchor
	d.Fallback = fallback
	return nil
}

// MarkDrafted records the provider-assigned draft identifier.
func (d *OutreachDraft) MarkDrafted(draftID string) error {
	if err := d.Transition(DraftCreated); err != nil {
		return err
	}
	d.DraftID = draftID
	return nil
}

// MarkFailed records a per-item draft creation failure.
func (d *OutreachDraft) MarkFailed(msg string) error {
	if err := d.Transition(DraftFailed); err != nil {
		return err
	}
	d.Error = msg
	return nil
}
