// Package review evaluates pending contributions. Acceptance applies the
// proposed patch to the live stop, writes the audit changeset and closes
// the contribution, all inside one storage transaction.
package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intermodalpt/backend-sub002/pkg/domain"
)

// Tx is the slice of storage this workflow needs. Every method runs
// against the same transaction; the Store owns begin, commit and rollback.
type Tx interface {
	// ContributionForUpdate loads and row-locks one contribution.
	// Returns domain.ErrNotFound when it does not exist.
	ContributionForUpdate(ctx context.Context, id uuid.UUID) (*domain.Contribution, error)
	// Stop loads one stop. Returns domain.ErrNotFound when it does not exist.
	Stop(ctx context.Context, id uuid.UUID) (*domain.Stop, error)
	InsertStop(ctx context.Context, stop *domain.Stop, actorID uuid.UUID) error
	UpdateStop(ctx context.Context, stop *domain.Stop, actorID uuid.UUID) error
	DeleteStop(ctx context.Context, id uuid.UUID) error
	InsertChangeset(ctx context.Context, authorID uuid.UUID, changes []domain.Change, contributionID *uuid.UUID) error
	CloseContribution(ctx context.Context, id, evaluatorID uuid.UUID, accepted bool, comment *string) error
}

type Store interface {
	// InTx runs fn inside one transaction, committing on nil and rolling
	// back on error.
	InTx(ctx context.Context, fn func(Tx) error) error
}

type Reviewer struct {
	store Store
	log   *zap.Logger
}

func New(store Store, log *zap.Logger) *Reviewer {
	return &Reviewer{store: store, log: log}
}

// Accept applies contribution id as moderator evaluatorID. With verify the
// moderator asserts ground truth, skipping the automatic trust downgrade;
// ignored lists fields to discard before applying. Either every effect is
// committed or none is, and a contribution is accepted at most once.
func (r *Reviewer) Accept(ctx context.Context, id, evaluatorID uuid.UUID, verify bool, ignored map[domain.PatchField]bool, comment *string) error {
	err := r.store.InTx(ctx, func(tx Tx) error {
		contribution, err := tx.ContributionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if contribution.Decided() {
			return fmt.Errorf("contribution %s: %w", id, domain.ErrDependenciesNotMet)
		}
		if err := contribution.Change.Check(); err != nil {
			return err
		}

		switch {
		case contribution.Change.StopUpdate != nil:
			if err := r.acceptUpdate(ctx, tx, contribution, evaluatorID, verify, ignored); err != nil {
				return err
			}
		case contribution.Change.StopCreation != nil:
			if err := r.acceptCreation(ctx, tx, contribution, evaluatorID); err != nil {
				return err
			}
		default:
			if err := r.acceptDeletion(ctx, tx, contribution); err != nil {
				return err
			}
		}

		if err := tx.InsertChangeset(ctx, contribution.AuthorID, []domain.Change{contribution.Change}, &contribution.ID); err != nil {
			return err
		}
		return tx.CloseContribution(ctx, contribution.ID, evaluatorID, true, comment)
	})
	if err != nil {
		return err
	}
	r.log.Info("contribution accepted",
		zap.String("contribution_id", id.String()),
		zap.String("evaluator_id", evaluatorID.String()),
		zap.Bool("verify", verify))
	return nil
}

func (r *Reviewer) acceptUpdate(ctx context.Context, tx Tx, contribution *domain.Contribution, evaluatorID uuid.UUID, verify bool, ignored map[domain.PatchField]bool) error {
	update := contribution.Change.StopUpdate
	stop, err := tx.Stop(ctx, update.Original.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Validationf("stop %s no longer exists", update.Original.ID)
		}
		return err
	}
	// Diff against current truth, not the snapshot taken at submission.
	update.Original = *stop.Clone()

	patch := &update.Patch
	patch.DropFields(ignored)
	if !verify {
		patch.Deverify(domain.DecodeVerification(stop.Verification))
	}
	if err := patch.DropNoops(stop); err != nil {
		return err
	}
	if patch.IsEmpty() {
		return domain.Validationf("patch no longer does anything")
	}

	updated := stop.Clone()
	if err := patch.Apply(updated); err != nil {
		return err
	}
	return tx.UpdateStop(ctx, updated, evaluatorID)
}

func (r *Reviewer) acceptCreation(ctx context.Context, tx Tx, contribution *domain.Contribution, evaluatorID uuid.UUID) error {
	stop := contribution.Change.StopCreation.Stop.Clone()
	if _, err := tx.Stop(ctx, stop.ID); err == nil {
		return domain.Validationf("stop %s already exists", stop.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err := stop.CheckStored(); err != nil {
		return domain.Validationf("proposed stop is invalid: %v", err)
	}
	// Crowdsourced creations always start untrusted.
	stop.Verification = domain.VerificationState{}.Pack()
	return tx.InsertStop(ctx, stop, evaluatorID)
}

func (r *Reviewer) acceptDeletion(ctx context.Context, tx Tx, contribution *domain.Contribution) error {
	id := contribution.Change.StopDeletion.StopID
	if _, err := tx.Stop(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Validationf("stop %s no longer exists", id)
		}
		return err
	}
	return tx.DeleteStop(ctx, id)
}

// Reject closes a contribution without touching any stop. Like acceptance
// it is terminal; a decided contribution cannot be rejected again.
func (r *Reviewer) Reject(ctx context.Context, id, evaluatorID uuid.UUID, comment *string) error {
	err := r.store.InTx(ctx, func(tx Tx) error {
		contribution, err := tx.ContributionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if contribution.Decided() {
			return fmt.Errorf("contribution %s: %w", id, domain.ErrDependenciesNotMet)
		}
		return tx.CloseContribution(ctx, contribution.ID, evaluatorID, false, comment)
	})
	if err != nil {
		return err
	}
	r.log.Info("contribution rejected",
		zap.String("contribution_id", id.String()),
		zap.String("evaluator_id", evaluatorID.String()))
	return nil
}

// Preview reports what acceptance would apply, without persisting
// anything: the patch after the moderator's filters and whether it
// still does something.
type PreviewResult struct {
	Patch   domain.StopPatch `json:"patch"`
	Empty   bool             `json:"empty"`
	Decided bool             `json:"decided"`
}

func (r *Reviewer) Preview(ctx context.Context, id uuid.UUID, verify bool, ignored map[domain.PatchField]bool) (*PreviewResult, error) {
	var out *PreviewResult
	err := r.store.InTx(ctx, func(tx Tx) error {
		contribution, err := tx.ContributionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if contribution.Change.StopUpdate == nil {
			return domain.Validationf("only stop updates can be previewed")
		}
		update := contribution.Change.StopUpdate
		stop, err := tx.Stop(ctx, update.Original.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Validationf("stop %s no longer exists", update.Original.ID)
			}
			return err
		}
		patch := update.Patch
		patch.DropFields(ignored)
		if !verify {
			patch.Deverify(domain.DecodeVerification(stop.Verification))
		}
		if err := patch.DropNoops(stop); err != nil {
			return err
		}
		out = &PreviewResult{Patch: patch, Empty: patch.IsEmpty(), Decided: contribution.Decided()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
