package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intermodalpt/backend-sub002/pkg/domain"
)

// fakeStore keeps committed state in maps and gives every transaction a
// deep copy, publishing it only when the transaction function returns nil.
// That mirrors the rollback behavior the workflow relies on.
type fakeStore struct {
	contributions map[uuid.UUID]*domain.Contribution
	stops         map[uuid.UUID]*domain.Stop
	changesets    []domain.Changeset

	failChangeset bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contributions: map[uuid.UUID]*domain.Contribution{},
		stops:         map[uuid.UUID]*domain.Stop{},
	}
}

func (f *fakeStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx := &fakeTx{
		store:         f,
		contributions: map[uuid.UUID]*domain.Contribution{},
		stops:         map[uuid.UUID]*domain.Stop{},
		changesets:    append([]domain.Changeset(nil), f.changesets...),
	}
	for id, c := range f.contributions {
		tx.contributions[id] = deepCopy(c)
	}
	for id, s := range f.stops {
		tx.stops[id] = s.Clone()
	}
	if err := fn(tx); err != nil {
		return err
	}
	f.contributions = tx.contributions
	f.stops = tx.stops
	f.changesets = tx.changesets
	return nil
}

type fakeTx struct {
	store         *fakeStore
	contributions map[uuid.UUID]*domain.Contribution
	stops         map[uuid.UUID]*domain.Stop
	changesets    []domain.Changeset
}

func (t *fakeTx) ContributionForUpdate(ctx context.Context, id uuid.UUID) (*domain.Contribution, error) {
	c, ok := t.contributions[id]
	if !ok {
		return nil, fmt.Errorf("contribution: %w", domain.ErrNotFound)
	}
	return c, nil
}

func (t *fakeTx) Stop(ctx context.Context, id uuid.UUID) (*domain.Stop, error) {
	s, ok := t.stops[id]
	if !ok {
		return nil, fmt.Errorf("stop: %w", domain.ErrNotFound)
	}
	return s.Clone(), nil
}

func (t *fakeTx) InsertStop(ctx context.Context, stop *domain.Stop, actorID uuid.UUID) error {
	t.stops[stop.ID] = stop.Clone()
	return nil
}

func (t *fakeTx) UpdateStop(ctx context.Context, stop *domain.Stop, actorID uuid.UUID) error {
	if _, ok := t.stops[stop.ID]; !ok {
		return fmt.Errorf("stop: %w", domain.ErrNotFound)
	}
	t.stops[stop.ID] = stop.Clone()
	return nil
}

func (t *fakeTx) DeleteStop(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.stops[id]; !ok {
		return fmt.Errorf("stop: %w", domain.ErrNotFound)
	}
	delete(t.stops, id)
	return nil
}

func (t *fakeTx) InsertChangeset(ctx context.Context, authorID uuid.UUID, changes []domain.Change, contributionID *uuid.UUID) error {
	if t.store.failChangeset {
		return errors.New("changeset insert failed")
	}
	t.changesets = append(t.changesets, domain.Changeset{
		ID:             int64(len(t.changesets) + 1),
		AuthorID:       authorID,
		Changes:        changes,
		OccurredAt:     time.Now().UTC(),
		ContributionID: contributionID,
	})
	return nil
}

func (t *fakeTx) CloseContribution(ctx context.Context, id, evaluatorID uuid.UUID, accepted bool, comment *string) error {
	c, ok := t.contributions[id]
	if !ok {
		return fmt.Errorf("contribution: %w", domain.ErrNotFound)
	}
	if c.Accepted != nil {
		return fmt.Errorf("contribution %s: %w", id, domain.ErrDependenciesNotMet)
	}
	now := time.Now().UTC()
	c.Accepted = &accepted
	c.EvaluatorID = &evaluatorID
	c.EvaluatedAt = &now
	if comment != nil {
		c.Comment = comment
	}
	return nil
}

func deepCopy(c *domain.Contribution) *domain.Contribution {
	b, err := json.Marshal(c)
	if err != nil {
		panic(err)
	}
	var out domain.Contribution
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return &out
}

func ptr[T any](v T) *T { return &v }

func verifiedStop() *domain.Stop {
	return &domain.Stop{
		ID:           uuid.New(),
		Name:         ptr("name"),
		HasShelter:   ptr(true),
		Verification: domain.FullyVerified().Pack(),
	}
}

func updateContribution(stop *domain.Stop, patch domain.StopPatch) *domain.Contribution {
	return &domain.Contribution{
		ID:       uuid.New(),
		AuthorID: uuid.New(),
		Change: domain.Change{
			StopUpdate: &domain.StopUpdate{Original: *stop.Clone(), Patch: patch},
		},
		SubmittedAt: time.Now().UTC(),
	}
}

func newReviewer(f *fakeStore) *Reviewer { return New(f, zap.NewNop()) }

func TestAcceptVerifiedKeepsTrust(t *testing.T) {
	f := newFakeStore()
	stop := verifiedStop()
	f.stops[stop.ID] = stop
	c := updateContribution(stop, domain.StopPatch{HasShelter: domain.SetValue(false)})
	f.contributions[c.ID] = c
	moderator := uuid.New()

	if err := newReviewer(f).Accept(context.Background(), c.ID, moderator, true, nil, nil); err != nil {
		t.Fatalf("accept: %v", err)
	}

	got := f.stops[stop.ID]
	if got.HasShelter == nil || *got.HasShelter {
		t.Fatalf("shelter flag not applied")
	}
	if domain.DecodeVerification(got.Verification) != domain.FullyVerified() {
		t.Fatalf("verify=true must not downgrade trust, got %v", domain.DecodeVerification(got.Verification))
	}
	decided := f.contributions[c.ID]
	if decided.Accepted == nil || !*decided.Accepted || decided.EvaluatorID == nil || *decided.EvaluatorID != moderator {
		t.Fatalf("contribution not closed as accepted: %+v", decided)
	}
	if len(f.changesets) != 1 || f.changesets[0].ContributionID == nil || *f.changesets[0].ContributionID != c.ID {
		t.Fatalf("expected one changeset referencing the contribution")
	}
}

func TestAcceptUnverifiedDowngradesTouchedCategory(t *testing.T) {
	f := newFakeStore()
	stop := verifiedStop()
	f.stops[stop.ID] = stop
	c := updateContribution(stop, domain.StopPatch{HasShelter: domain.SetValue(false)})
	f.contributions[c.ID] = c

	if err := newReviewer(f).Accept(context.Background(), c.ID, uuid.New(), false, nil, nil); err != nil {
		t.Fatalf("accept: %v", err)
	}

	got := domain.DecodeVerification(f.stops[stop.ID].Verification)
	want := domain.VerificationState{
		Position:       domain.Verified,
		Service:        domain.Verified,
		Infrastructure: domain.NotVerified,
	}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAcceptTwiceFails(t *testing.T) {
	f := newFakeStore()
	stop := verifiedStop()
	f.stops[stop.ID] = stop
	c := updateContribution(stop, domain.StopPatch{HasShelter: domain.SetValue(false)})
	f.contributions[c.ID] = c
	r := newReviewer(f)

	if err := r.Accept(context.Background(), c.ID, uuid.New(), true, nil, nil); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	after := f.stops[stop.ID].Clone()

	err := r.Accept(context.Background(), c.ID, uuid.New(), true, nil, nil)
	if !errors.Is(err, domain.ErrDependenciesNotMet) {
		t.Fatalf("second accept: got %v", err)
	}
	if len(f.changesets) != 1 {
		t.Fatalf("retry created a second changeset")
	}
	if *f.stops[stop.ID].HasShelter != *after.HasShelter || f.stops[stop.ID].Verification != after.Verification {
		t.Fatalf("retry changed the stop")
	}
}

func TestAcceptIgnoringOnlyFieldFails(t *testing.T) {
	f := newFakeStore()
	stop := verifiedStop()
	f.stops[stop.ID] = stop
	c := updateContribution(stop, domain.StopPatch{HasShelter: domain.SetValue(false)})
	f.contributions[c.ID] = c
	r := newReviewer(f)

	ignored := map[domain.PatchField]bool{domain.FieldHasShelter: true}
	err := r.Accept(context.Background(), c.ID, uuid.New(), false, ignored, nil)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Reason != "patch no longer does anything" {
		t.Fatalf("expected empty-patch validation failure, got %v", err)
	}
	if f.stops[stop.ID].HasShelter == nil || !*f.stops[stop.ID].HasShelter {
		t.Fatalf("stop must be unchanged")
	}
	if f.contributions[c.ID].Decided() {
		t.Fatalf("contribution must stay pending for a retry")
	}

	// Retried without the ignore set, the same contribution goes through.
	if err := r.Accept(context.Background(), c.ID, uuid.New(), false, nil, nil); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestAcceptSamePatchTwiceEmptiesOnNoops(t *testing.T) {
	f := newFakeStore()
	stop := verifiedStop()
	f.stops[stop.ID] = stop
	r := newReviewer(f)

	first := updateContribution(stop, domain.StopPatch{Name: domain.SetValue("changed")})
	f.contributions[first.ID] = first
	if err := r.Accept(context.Background(), first.ID, uuid.New(), true, nil, nil); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if *f.stops[stop.ID].Name != "changed" {
		t.Fatalf("name not applied")
	}

	second := updateContribution(stop, domain.StopPatch{Name: domain.SetValue("changed")})
	f.contributions[second.ID] = second
	err := r.Accept(context.Background(), second.ID, uuid.New(), true, nil, nil)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if len(f.changesets) != 1 {
		t.Fatalf("no-op acceptance wrote a changeset")
	}
}

func TestAcceptMissingContribution(t *testing.T) {
	f := newFakeStore()
	err := newReviewer(f).Accept(context.Background(), uuid.New(), uuid.New(), false, nil, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestAcceptDeletedStopFails(t *testing.T) {
	f := newFakeStore()
	stop := verifiedStop()
	c := updateContribution(stop, domain.StopPatch{Name: domain.SetValue("x")})
	f.contributions[c.ID] = c

	err := newReviewer(f).Accept(context.Background(), c.ID, uuid.New(), false, nil, nil)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if f.contributions[c.ID].Decided() {
		t.Fatalf("contribution must stay pending")
	}
}

func TestAcceptRollsBackOnChangesetFailure(t *testing.T) {
	f := newFakeStore()
	stop := verifiedStop()
	f.stops[stop.ID] = stop
	c := updateContribution(stop, domain.StopPatch{HasShelter: domain.SetValue(false)})
	f.contributions[c.ID] = c
	f.failChangeset = true

	if err := newReviewer(f).Accept(context.Background(), c.ID, uuid.New(), true, nil, nil); err == nil {
		t.Fatalf("expected failure")
	}
	if f.stops[stop.ID].HasShelter == nil || !*f.stops[stop.ID].HasShelter {
		t.Fatalf("stop mutation leaked out of the failed transaction")
	}
	if f.contributions[c.ID].Decided() {
		t.Fatalf("contribution closure leaked out of the failed transaction")
	}
	if len(f.changesets) != 0 {
		t.Fatalf("changeset leaked out of the failed transaction")
	}
}

func TestRejectIsTerminal(t *testing.T) {
	f := newFakeStore()
	stop := verifiedStop()
	f.stops[stop.ID] = stop
	c := updateContribution(stop, domain.StopPatch{HasShelter: domain.SetValue(false)})
	f.contributions[c.ID] = c
	r := newReviewer(f)

	if err := r.Reject(context.Background(), c.ID, uuid.New(), ptr("blurry photo")); err != nil {
		t.Fatalf("reject: %v", err)
	}
	decided := f.contributions[c.ID]
	if decided.Accepted == nil || *decided.Accepted {
		t.Fatalf("contribution not rejected: %+v", decided)
	}
	if len(f.changesets) != 0 {
		t.Fatalf("rejection must not write a changeset")
	}
	if !errors.Is(r.Accept(context.Background(), c.ID, uuid.New(), true, nil, nil), domain.ErrDependenciesNotMet) {
		t.Fatalf("accept after reject must fail")
	}
}

func TestAcceptCreation(t *testing.T) {
	f := newFakeStore()
	proposed := domain.Stop{ID: uuid.New(), Name: ptr("new stop"), Verification: domain.FullyVerified().Pack()}
	c := &domain.Contribution{
		ID:          uuid.New(),
		AuthorID:    uuid.New(),
		Change:      domain.Change{StopCreation: &domain.StopCreation{Stop: proposed}},
		SubmittedAt: time.Now().UTC(),
	}
	f.contributions[c.ID] = c

	if err := newReviewer(f).Accept(context.Background(), c.ID, uuid.New(), false, nil, nil); err != nil {
		t.Fatalf("accept: %v", err)
	}
	created, ok := f.stops[proposed.ID]
	if !ok {
		t.Fatalf("stop not created")
	}
	if domain.DecodeVerification(created.Verification) != (domain.VerificationState{}) {
		t.Fatalf("created stops must start unverified")
	}
	if len(f.changesets) != 1 {
		t.Fatalf("creation must be audited")
	}
}

func TestAcceptDeletion(t *testing.T) {
	f := newFakeStore()
	stop := verifiedStop()
	f.stops[stop.ID] = stop
	c := &domain.Contribution{
		ID:          uuid.New(),
		AuthorID:    uuid.New(),
		Change:      domain.Change{StopDeletion: &domain.StopDeletion{StopID: stop.ID}},
		SubmittedAt: time.Now().UTC(),
	}
	f.contributions[c.ID] = c

	if err := newReviewer(f).Accept(context.Background(), c.ID, uuid.New(), false, nil, nil); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, ok := f.stops[stop.ID]; ok {
		t.Fatalf("stop not deleted")
	}
}

func TestPreviewDoesNotPersist(t *testing.T) {
	f := newFakeStore()
	stop := verifiedStop()
	f.stops[stop.ID] = stop
	patch := domain.StopPatch{
		Name:       domain.SetValue("name"), // no-op against current truth
		HasShelter: domain.SetValue(false),
	}
	c := updateContribution(stop, patch)
	f.contributions[c.ID] = c

	result, err := newReviewer(f).Preview(context.Background(), c.ID, false, nil)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if result.Empty {
		t.Fatalf("patch still changes the shelter flag")
	}
	if result.Patch.Name.IsSet() {
		t.Fatalf("no-op name edit should be filtered from the preview")
	}
	if result.Patch.Verification == nil || result.Patch.Verification.Infrastructure != domain.NotVerified {
		t.Fatalf("preview should show the trust downgrade")
	}
	if f.contributions[c.ID].Decided() || !*f.stops[stop.ID].HasShelter {
		t.Fatalf("preview must not persist anything")
	}
}
