// Package postgres implements the authoritative remote store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/points/internal/domain"
)

// Store provides Postgres-backed persistence for point activities and
// per-identity totals.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const activityColumns = `activity_id, kind, points, description, subject_ref, occurred_at`

// Now reports the store's clock. The daily-cap enforcer derives "today" from
// it so a tampered device clock cannot move the check-in window.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	err := s.pool.QueryRow(ctx, `SELECT NOW()`).Scan(&now)
	return now, err
}

// ListActivities returns every activity row for userID, newest first. Row
// ids are store-assigned and returned as the activity id.
func (s *Store) ListActivities(ctx context.Context, userID string) ([]domain.Activity, error) {
	const query = `SELECT ` + activityColumns + `
        FROM point_activities WHERE user_id=$1
        ORDER BY occurred_at DESC, activity_id DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivities(rows)
}

// ListActivitiesInRange returns activities created within [from, to).
func (s *Store) ListActivitiesInRange(ctx context.Context, userID string, from, to time.Time) ([]domain.Activity, error) {
	const query = `SELECT ` + activityColumns + `
        FROM point_activities WHERE user_id=$1 AND occurred_at >= $2 AND occurred_at < $3
        ORDER BY occurred_at DESC, activity_id DESC`

	rows, err := s.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActivities(rows)
}

// InsertActivities inserts the batch row by row, tolerating partial failure:
// every row is attempted, the inserted count is returned, and the first
// error (if any) comes back with it so failed rows stay candidates for the
// next pass. A daily_checkin conflicting with the per-day unique index is
// silently skipped; the existing row already represents the event.
func (s *Store) InsertActivities(ctx context.Context, userID string, activities []domain.Activity) (int, error) {
	const stmt = `INSERT INTO point_activities (user_id, kind, points, description, subject_ref, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT DO NOTHING`

	inserted := 0
	var firstErr error
	for _, a := range activities {
		tag, err := s.pool.Exec(ctx, stmt,
			userID,
			string(a.Kind),
			a.Points,
			a.Description,
			nullIfEmpty(a.SubjectRef),
			a.OccurredAt.UTC(),
		)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, firstErr
}

// CountActivities counts all rows for userID.
func (s *Store) CountActivities(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM point_activities WHERE user_id=$1`, userID,
	).Scan(&count)
	return count, err
}

// CountActivitiesInRange counts rows of kind for userID created within
// [from, to). Used by the daily-cap pre-check.
func (s *Store) CountActivitiesInRange(ctx context.Context, userID string, kind domain.Kind, from, to time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM point_activities
         WHERE user_id=$1 AND kind=$2 AND occurred_at >= $3 AND occurred_at < $4`,
		userID, string(kind), from, to,
	).Scan(&count)
	return count, err
}

// UpsertTotalPoints writes the per-identity scalar total.
func (s *Store) UpsertTotalPoints(ctx context.Context, userID string, total int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO point_totals (user_id, total_points, updated_at)
         VALUES ($1,$2,NOW())
         ON CONFLICT (user_id) DO UPDATE SET total_points=EXCLUDED.total_points, updated_at=NOW()`,
		userID, total,
	)
	return err
}

// TotalPoints reads the scalar total; a missing row reports zero.
func (s *Store) TotalPoints(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT total_points FROM point_totals WHERE user_id=$1`, userID,
	).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return total, err
}

func scanActivities(rows pgx.Rows) ([]domain.Activity, error) {
	var out []domain.Activity
	for rows.Next() {
		var (
			id         int64
			kind       string
			points     int
			desc       string
			subjectRef *string
			occurredAt time.Time
		)
		if err := rows.Scan(&id, &kind, &points, &desc, &subjectRef, &occurredAt); err != nil {
			return nil, err
		}
		a := domain.Activity{
			ID:          strconv.FormatInt(id, 10),
			Kind:        domain.Kind(kind),
			Points:      points,
			Description: desc,
			OccurredAt:  occurredAt,
		}
		if subjectRef != nil {
			a.SubjectRef = *subjectRef
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
