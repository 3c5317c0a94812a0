package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/worklens/worklens/internal/domain"
)

const uniqueViolation = "23505"

// AssignActivities runs the whole assignment inside one transaction:
// find-or-create the worksheet, validate ownership of every requested
// activity, then claim the links. The unique index on
// worksheet_activities.activity_id is the sole source of truth for
// exclusivity: a violation on any insert, whether the activity is already
// linked to this worksheet, another worksheet, or a concurrent caller got
// there first, fails the whole call as a conflict. No links survive a
// failed call.
func (r *Repository) AssignActivities(ctx context.Context, input domain.AssignmentInput) (*domain.AssignmentResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	worksheetID, err := r.findOrCreateWorksheet(ctx, tx, input)
	if err != nil {
		return nil, err
	}

	if err = r.validateOwnership(ctx, tx, input); err != nil {
		return nil, err
	}

	result := &domain.AssignmentResult{WorksheetID: worksheetID}
	for _, activityID := range input.ActivityIDs {
		if _, err = tx.Exec(ctx,
			`INSERT INTO worksheet_activities (activity_id, worksheet_id) VALUES ($1, $2)`,
			activityID, worksheetID,
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				err = domain.NewConflict("activity %s is already assigned to a worksheet", activityID)
			}
			return nil, err
		}
		result.AddedActivities++
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// findOrCreateWorksheet upserts on the natural key. Concurrent callers
// racing on the same key converge to a single row; later assignments only
// refresh last_reported_on.
func (r *Repository) findOrCreateWorksheet(ctx context.Context, tx pgx.Tx, input domain.AssignmentInput) (string, error) {
	const stmt = `INSERT INTO worksheets (worksheet_id, name, user_id, organization_id, project_id, work_date, last_reported_on)
        VALUES ($1,$2,$3,$4,$5,$6,NOW())
        ON CONFLICT (name, user_id, organization_id, project_id, work_date)
        DO UPDATE SET last_reported_on = NOW()
        RETURNING worksheet_id`

	var worksheetID string
	err := tx.QueryRow(ctx, stmt,
		uuid.NewString(), input.WorksheetName, input.UserID, input.OrganizationID, input.ProjectID, input.Date,
	).Scan(&worksheetID)
	return worksheetID, err
}

// validateOwnership checks that every requested activity exists and belongs
// to the caller. Any missing or foreign id aborts the whole call.
func (r *Repository) validateOwnership(ctx context.Context, tx pgx.Tx, input domain.AssignmentInput) error {
	rows, err := tx.Query(ctx,
		`SELECT activity_id FROM activities
         WHERE activity_id = ANY($1::uuid[]) AND organization_id = $2 AND user_id = $3`,
		input.ActivityIDs, input.OrganizationID, input.UserID)
	if err != nil {
		return err
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(input.ActivityIDs))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range input.ActivityIDs {
		if _, ok := found[id]; !ok {
			return domain.NewNotFound("activity %s not found for caller", id)
		}
	}
	return nil
}

// ListNames returns worksheet names for one project and date.
func (r *Repository) ListNames(ctx context.Context, organizationID, userID, projectID, date string) ([]string, error) {
	const query = `SELECT name FROM worksheets
        WHERE organization_id = $1 AND user_id = $2 AND project_id = $3 AND work_date = $4
        ORDER BY name`

	rows, err := r.pool.Query(ctx, query, organizationID, userID, projectID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListSummaries returns the caller's worksheets with activity counts and
// summed durations. An empty date means all dates.
func (r *Repository) ListSummaries(ctx context.Context, organizationID, userID, date string) ([]domain.SummaryRow, error) {
	args := []interface{}{organizationID, userID}
	query := `SELECT w.worksheet_id, w.name, w.user_id, w.organization_id, w.project_id, w.work_date, w.last_reported_on,
            COUNT(a.activity_id),
            COALESCE(SUM(EXTRACT(EPOCH FROM (a.ended_at - a.started_at)))::bigint, 0)
        FROM worksheets w
        LEFT JOIN worksheet_activities wa ON wa.worksheet_id = w.worksheet_id
        LEFT JOIN activities a ON a.activity_id = wa.activity_id
        WHERE w.organization_id = $1 AND w.user_id = $2`

	if date != "" {
		query += ` AND w.work_date = $3`
		args = append(args, date)
	}
	query += ` GROUP BY w.worksheet_id ORDER BY w.last_reported_on DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.SummaryRow, 0)
	for rows.Next() {
		var row domain.SummaryRow
		var count, seconds int64
		w := &row.Worksheet
		if err := rows.Scan(&w.ID, &w.Name, &w.UserID, &w.OrganizationID, &w.ProjectID, &w.Date, &w.LastReportedOn,
			&count, &seconds); err != nil {
			return nil, err
		}
		row.ActivityCount = int(count)
		row.TotalSeconds = int(seconds)
		summaries = append(summaries, row)
	}
	return summaries, rows.Err()
}

// ListActivities returns the activities linked to one of the caller's
// worksheets.
func (r *Repository) ListActivities(ctx context.Context, organizationID, userID, worksheetID string) ([]domain.ActivityRow, error) {
	var one int
	err := r.pool.QueryRow(ctx,
		`SELECT 1 FROM worksheets WHERE worksheet_id = $1 AND organization_id = $2 AND user_id = $3`,
		worksheetID, organizationID, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFound("worksheet %s not found", worksheetID)
		}
		return nil, err
	}

	query := `SELECT ` + activityColumns + `, COALESCE(ap.icon, '')
        FROM worksheet_activities wa
        JOIN activities a ON a.activity_id = wa.activity_id
        LEFT JOIN applications ap ON ap.application_id = a.application_id
        WHERE wa.worksheet_id = $1
        ORDER BY a.started_at`

	rows, err := r.pool.Query(ctx, query, worksheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityRow, 0)
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
