package domain

import (
	"time"

	"github.com/google/uuid"
)

// Change is a tagged variant describing one proposed or applied edit.
// Exactly one member is non-nil.
type Change struct {
	StopCreation *StopCreation `json:"stop_creation,omitempty"`
	StopUpdate   *StopUpdate   `json:"stop_update,omitempty"`
	StopDeletion *StopDeletion `json:"stop_deletion,omitempty"`
}

type StopCreation struct {
	Stop Stop `json:"stop"`
}

// StopUpdate pairs the stop as the author saw it with the proposed patch.
// Acceptance replaces Original with a fresh load so the patch is filtered
// against current truth.
type StopUpdate struct {
	Original Stop      `json:"original"`
	Patch    StopPatch `json:"patch"`
}

type StopDeletion struct {
	StopID uuid.UUID `json:"stop_id"`
}

// Check validates the one-of invariant.
func (c *Change) Check() error {
	n := 0
	if c.StopCreation != nil {
		n++
	}
	if c.StopUpdate != nil {
		n++
	}
	if c.StopDeletion != nil {
		n++
	}
	if n != 1 {
		return &ConversionError{Reason: "change must carry exactly one variant"}
	}
	return nil
}

// Contribution is a pending, reviewable proposed edit. Once Accepted is
// non-nil the record is terminal and must never be evaluated again.
type Contribution struct {
	ID          uuid.UUID  `json:"id"`
	AuthorID    uuid.UUID  `json:"author_id"`
	Change      Change     `json:"change"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Comment     *string    `json:"comment,omitempty"`
	Accepted    *bool      `json:"accepted,omitempty"`
	EvaluatorID *uuid.UUID `json:"evaluator_id,omitempty"`
	EvaluatedAt *time.Time `json:"evaluated_at,omitempty"`
}

// Decided reports whether the contribution has reached a terminal state.
func (c *Contribution) Decided() bool { return c.Accepted != nil }

// Changeset is one append-only audit entry. Entries are written exactly
// once per successful mutation and never updated.
type Changeset struct {
	ID             int64      `json:"id"`
	AuthorID       uuid.UUID  `json:"author_id"`
	Changes        []Change   `json:"changes"`
	OccurredAt     time.Time  `json:"occurred_at"`
	ContributionID *uuid.UUID `json:"contribution_id,omitempty"`
}
