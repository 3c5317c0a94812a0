// Package postgres provides pgx-backed persistence for activities,
// applications, worksheets and their links.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/worklens/worklens/internal/domain"
	"github.com/worklens/worklens/internal/observability"
)

// Repository implements domain.ActivityRepository and
// domain.WorksheetRepository on a shared connection pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `a.activity_id, a.organization_id, a.user_id, a.name, a.kind,
        COALESCE(a.application_id::text, ''), COALESCE(a.process_id, 0), a.browser_url, a.favicon_url,
        a.started_at, a.ended_at, a.created_at, a.updated_at`

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	var a domain.Activity
	err := row.Scan(&a.ID, &a.OrganizationID, &a.UserID, &a.Name, &a.Kind,
		&a.ApplicationID, &a.ProcessID, &a.BrowserURL, &a.FaviconURL,
		&a.StartedAt, &a.EndedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// LatestAutomaticEnd returns the end of the most recent automatic activity
// for the user, or the zero time when none exists.
func (r *Repository) LatestAutomaticEnd(ctx context.Context, organizationID, userID string) (time.Time, error) {
	const query = `SELECT ended_at FROM activities
        WHERE organization_id = $1 AND user_id = $2 AND kind = 'automatic'
        ORDER BY ended_at DESC LIMIT 1`

	var end time.Time
	if err := r.pool.QueryRow(ctx, query, organizationID, userID).Scan(&end); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return end, nil
}

// InsertActivities writes the batch in a single transaction.
func (r *Repository) InsertActivities(ctx context.Context, activities []domain.Activity) error {
	if len(activities) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO activities
        (activity_id, organization_id, user_id, name, kind, application_id, process_id, browser_url, favicon_url, started_at, ended_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	for _, a := range activities {
		if _, err = tx.Exec(ctx, stmt,
			a.ID, a.OrganizationID, a.UserID, a.Name, a.Kind,
			nullIfEmpty(a.ApplicationID), a.ProcessID, a.BrowserURL, a.FaviconURL,
			a.StartedAt, a.EndedAt, a.CreatedAt, a.UpdatedAt,
		); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityPersisted(time.Now().UTC())
	return nil
}

// GetActivity retrieves an activity by id within an organization. A missing
// record yields (nil, nil).
func (r *Repository) GetActivity(ctx context.Context, organizationID, activityID string) (*domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities a
        WHERE a.organization_id = $1 AND a.activity_id = $2`

	activity, err := scanActivity(r.pool.QueryRow(ctx, query, organizationID, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return activity, nil
}

// CreateActivity inserts a single (manual) activity.
func (r *Repository) CreateActivity(ctx context.Context, a domain.Activity) error {
	const stmt = `INSERT INTO activities
        (activity_id, organization_id, user_id, name, kind, application_id, process_id, browser_url, favicon_url, started_at, ended_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err := r.pool.Exec(ctx, stmt,
		a.ID, a.OrganizationID, a.UserID, a.Name, a.Kind,
		nullIfEmpty(a.ApplicationID), a.ProcessID, a.BrowserURL, a.FaviconURL,
		a.StartedAt, a.EndedAt, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// UpdateActivity rewrites the mutable fields of a manual activity. The
// scoping predicates keep the write owner-checked at the store level too.
func (r *Repository) UpdateActivity(ctx context.Context, a domain.Activity) error {
	const stmt = `UPDATE activities
        SET name = $1, started_at = $2, ended_at = $3, updated_at = $4
        WHERE activity_id = $5 AND organization_id = $6 AND user_id = $7 AND kind = 'manual'`

	tag, err := r.pool.Exec(ctx, stmt, a.Name, a.StartedAt, a.EndedAt, a.UpdatedAt, a.ID, a.OrganizationID, a.UserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("activity %s not found", a.ID)
	}
	return nil
}

// FindOrCreateApplication resolves an application by name. The no-op upsert
// makes the call idempotent and returns the existing row, so an existing
// icon is never replaced.
func (r *Repository) FindOrCreateApplication(ctx context.Context, name, icon string) (*domain.Application, error) {
	const stmt = `INSERT INTO applications (application_id, name, icon, created_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING application_id, name, icon, created_at`

	var app domain.Application
	err := r.pool.QueryRow(ctx, stmt, uuid.NewString(), name, icon).
		Scan(&app.ID, &app.Name, &app.Icon, &app.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// ListUnreported returns activities in the window that no worksheet has
// claimed, with the linked application's icon.
func (r *Repository) ListUnreported(ctx context.Context, q domain.UnreportedQuery) ([]domain.ActivityRow, error) {
	args := []interface{}{q.OrganizationID, q.UserID, q.From, q.To, q.Limit}
	query := `SELECT ` + activityColumns + `, COALESCE(ap.icon, '')
        FROM activities a
        LEFT JOIN applications ap ON ap.application_id = a.application_id
        WHERE a.organization_id = $1 AND a.user_id = $2
          AND a.started_at >= $3 AND a.started_at < $4
          AND NOT EXISTS (SELECT 1 FROM worksheet_activities wa WHERE wa.activity_id = a.activity_id)`

	if q.Cursor != nil {
		if q.Descending {
			query += ` AND (a.started_at, a.activity_id) < ($6, $7)`
		} else {
			query += ` AND (a.started_at, a.activity_id) > ($6, $7)`
		}
		args = append(args, q.Cursor.StartedAt, q.Cursor.ID)
	}

	if q.Descending {
		query += ` ORDER BY a.started_at DESC, a.activity_id DESC`
	} else {
		query += ` ORDER BY a.started_at ASC, a.activity_id ASC`
	}
	query += ` LIMIT $5`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityRow, 0, q.Limit)
	for rows.Next() {
		var row domain.ActivityRow
		a := &row.Activity
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.UserID, &a.Name, &a.Kind,
			&a.ApplicationID, &a.ProcessID, &a.BrowserURL, &a.FaviconURL,
			&a.StartedAt, &a.EndedAt, &a.CreatedAt, &a.UpdatedAt,
			&row.ApplicationIcon); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
