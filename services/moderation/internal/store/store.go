package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intermodalpt/backend-sub002/pkg/domain"
	"github.com/intermodalpt/backend-sub002/services/moderation/internal/review"
)

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// InTx satisfies review.Store. fn runs against one transaction; commit
// happens only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(review.Tx) error) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type txStore struct{ tx pgx.Tx }

const contributionColumns = `id, author_id, change, submitted_at, comment, accepted, evaluator_id, evaluated_at`

func scanContribution(row pgx.Row) (*domain.Contribution, error) {
	var c domain.Contribution
	var change []byte
	err := row.Scan(&c.ID, &c.AuthorID, &change, &c.SubmittedAt, &c.Comment, &c.Accepted, &c.EvaluatorID, &c.EvaluatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("contribution: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	if err := json.Unmarshal(change, &c.Change); err != nil {
		return nil, &domain.ConversionError{Reason: fmt.Sprintf("contribution %s change: %v", c.ID, err)}
	}
	return &c, nil
}

func (t *txStore) ContributionForUpdate(ctx context.Context, id uuid.UUID) (*domain.Contribution, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE id = $1 FOR UPDATE`, id)
	return scanContribution(row)
}

const stopColumns = `id, lat, lon, name, short_name, locality, street, door, notes, tags,
service_check_date, has_shelter, has_bench, has_trash_can, has_sidewalk, illumination,
infra_check_date, verification, updated_at`

func scanStop(row pgx.Row) (*domain.Stop, error) {
	var s domain.Stop
	err := row.Scan(&s.ID, &s.Lat, &s.Lon, &s.Name, &s.ShortName, &s.Locality, &s.Street,
		&s.Door, &s.Notes, &s.Tags, &s.ServiceCheckDate, &s.HasShelter, &s.HasBench,
		&s.HasTrashCan, &s.HasSidewalk, &s.Illumination, &s.InfraCheckDate,
		&s.Verification, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("stop: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return &s, nil
}

func (t *txStore) Stop(ctx context.Context, id uuid.UUID) (*domain.Stop, error) {
	return scanStop(t.tx.QueryRow(ctx, `SELECT `+stopColumns+` FROM stops WHERE id = $1`, id))
}

func (t *txStore) InsertStop(ctx context.Context, stop *domain.Stop, actorID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO stops(id, lat, lon, name, short_name, locality, street, door, notes, tags,
  service_check_date, has_shelter, has_bench, has_trash_can, has_sidewalk, illumination,
  infra_check_date, verification, updated_at, updated_by)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),$19)
`, stop.ID, stop.Lat, stop.Lon, stop.Name, stop.ShortName, stop.Locality, stop.Street,
		stop.Door, stop.Notes, stop.Tags, stop.ServiceCheckDate, stop.HasShelter, stop.HasBench,
		stop.HasTrashCan, stop.HasSidewalk, stop.Illumination, stop.InfraCheckDate,
		stop.Verification, actorID)
	return err
}

func (t *txStore) UpdateStop(ctx context.Context, stop *domain.Stop, actorID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE stops SET
  lat=$2, lon=$3, name=$4, short_name=$5, locality=$6, street=$7, door=$8, notes=$9,
  tags=$10, service_check_date=$11, has_shelter=$12, has_bench=$13, has_trash_can=$14,
  has_sidewalk=$15, illumination=$16, infra_check_date=$17, verification=$18,
  updated_at=now(), updated_by=$19
WHERE id=$1
`, stop.ID, stop.Lat, stop.Lon, stop.Name, stop.ShortName, stop.Locality, stop.Street,
		stop.Door, stop.Notes, stop.Tags, stop.ServiceCheckDate, stop.HasShelter, stop.HasBench,
		stop.HasTrashCan, stop.HasSidewalk, stop.Illumination, stop.InfraCheckDate,
		stop.Verification, actorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stop %s: %w", stop.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *txStore) DeleteStop(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM stops WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stop %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *txStore) InsertChangeset(ctx context.Context, authorID uuid.UUID, changes []domain.Change, contributionID *uuid.UUID) error {
	b, err := json.Marshal(changes)
	if err != nil {
		return &domain.ConversionError{Reason: fmt.Sprintf("changeset encode: %v", err)}
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO changesets(author_id, changes, occurred_at, contribution_id)
VALUES($1, $2::jsonb, now(), $3)
`, authorID, string(b), contributionID)
	return err
}

func (t *txStore) CloseContribution(ctx context.Context, id, evaluatorID uuid.UUID, accepted bool, comment *string) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE contributions SET accepted=$2, evaluator_id=$3, evaluated_at=now(),
  comment=COALESCE($4, comment)
WHERE id=$1 AND accepted IS NULL
`, id, accepted, evaluatorID, comment)
	if err != nil {
		return err
	}
	// The workflow checks Decided() first; a zero here means a concurrent
	// decision slipped in between the lock and this update.
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contribution %s: %w", id, domain.ErrDependenciesNotMet)
	}
	return nil
}

// Pool-level reads and the submission path, used by the HTTP handlers
// outside any explicit transaction.

func (s *Store) Contribution(ctx context.Context, id uuid.UUID) (*domain.Contribution, error) {
	return scanContribution(s.DB.QueryRow(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE id = $1`, id))
}

func (s *Store) ListContributions(ctx context.Context, onlyPending bool, limit int) ([]*domain.Contribution, error) {
	q := `SELECT ` + contributionColumns + ` FROM contributions`
	if onlyPending {
		q += ` WHERE accepted IS NULL`
	}
	q += ` ORDER BY submitted_at ASC LIMIT $1`
	rows, err := s.DB.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) InsertContribution(ctx context.Context, c *domain.Contribution) error {
	if err := c.Change.Check(); err != nil {
		return err
	}
	b, err := json.Marshal(c.Change)
	if err != nil {
		return &domain.ConversionError{Reason: fmt.Sprintf("change encode: %v", err)}
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO contributions(id, author_id, change, submitted_at, comment)
VALUES($1, $2, $3::jsonb, $4, $5)
`, c.ID, c.AuthorID, string(b), c.SubmittedAt, c.Comment)
	return err
}

func (s *Store) GetStop(ctx context.Context, id uuid.UUID) (*domain.Stop, error) {
	return scanStop(s.DB.QueryRow(ctx, `SELECT `+stopColumns+` FROM stops WHERE id = $1`, id))
}
