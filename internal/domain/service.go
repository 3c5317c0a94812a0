// Package domain defines the business logic for the WorkLens time-tracking
// pipeline: turning extracted sessions into durable activities and curating
// activities into worksheets.
package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActivityRepository captures persistence operations for activities and the
// application registry.
type ActivityRepository interface {
	// LatestAutomaticEnd returns the end time of the most recent automatic
	// activity for the user, or the zero time when none exists.
	LatestAutomaticEnd(ctx context.Context, organizationID, userID string) (time.Time, error)
	InsertActivities(ctx context.Context, activities []Activity) error
	GetActivity(ctx context.Context, organizationID, activityID string) (*Activity, error)
	CreateActivity(ctx context.Context, activity Activity) error
	UpdateActivity(ctx context.Context, activity Activity) error
	// FindOrCreateApplication resolves an application by name, creating it
	// with the supplied icon when first referenced. The icon of an existing
	// application is never overwritten.
	FindOrCreateApplication(ctx context.Context, name, icon string) (*Application, error)
	ListUnreported(ctx context.Context, q UnreportedQuery) ([]ActivityRow, error)
}

// WorksheetRepository captures the transactional assignment and the
// reporting joins.
type WorksheetRepository interface {
	AssignActivities(ctx context.Context, input AssignmentInput) (*AssignmentResult, error)
	ListNames(ctx context.Context, organizationID, userID, projectID, date string) ([]string, error)
	ListSummaries(ctx context.Context, organizationID, userID, date string) ([]SummaryRow, error)
	ListActivities(ctx context.Context, organizationID, userID, worksheetID string) ([]ActivityRow, error)
}

// ActivityRow pairs an activity with the icon of its linked application.
type ActivityRow struct {
	Activity        Activity
	ApplicationIcon string
}

// SummaryRow pairs a worksheet with its aggregated totals.
type SummaryRow struct {
	Worksheet     Worksheet
	ActivityCount int
	TotalSeconds  int
}

// UnreportedQuery is the resolved window for the unreported listing.
type UnreportedQuery struct {
	OrganizationID string
	UserID         string
	From           time.Time
	To             time.Time
	Descending     bool
	Limit          int
	Cursor         *Cursor
}

// ActivityService owns the activity store: persisting extractor output and
// the manual entry path.
type ActivityService struct {
	repo            ActivityRepository
	defaultTimezone string
}

// NewActivityService constructs an ActivityService. defaultTimezone is the
// IANA zone used when a reporting caller supplies none.
func NewActivityService(repo ActivityRepository, defaultTimezone string) *ActivityService {
	if defaultTimezone == "" {
		defaultTimezone = "UTC"
	}
	return &ActivityService{repo: repo, defaultTimezone: defaultTimezone}
}

// PersistSessions converts extractor output into durable activities. Any
// session starting at or before the latest stored automatic activity's end
// is dropped, which makes redelivered batches idempotent. Zero survivors is
// a successful no-op.
func (s *ActivityService) PersistSessions(ctx context.Context, organizationID, userID string, sessions []Session) ([]Activity, error) {
	if len(sessions) == 0 {
		return nil, nil
	}

	latestEnd, err := s.repo.LatestAutomaticEnd(ctx, organizationID, userID)
	if err != nil {
		return nil, WrapInternal(err)
	}

	survivors := sessions[:0:0]
	for _, session := range sessions {
		if !latestEnd.IsZero() && !session.StartedAt.After(latestEnd) {
			continue
		}
		survivors = append(survivors, session)
	}
	if len(survivors) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	activities := make([]Activity, 0, len(survivors))
	for _, session := range survivors {
		app, err := s.repo.FindOrCreateApplication(ctx, session.AppName, session.FaviconURL)
		if err != nil {
			return nil, WrapInternal(err)
		}

		name := strings.TrimSpace(session.WindowTitle)
		if name == "" {
			name = app.Name
		}

		activities = append(activities, Activity{
			ID:             uuid.NewString(),
			OrganizationID: organizationID,
			UserID:         userID,
			Name:           name,
			Kind:           ActivityKindAutomatic,
			ApplicationID:  app.ID,
			ProcessID:      session.ProcessID,
			BrowserURL:     session.BrowserURL,
			FaviconURL:     session.FaviconURL,
			StartedAt:      session.StartedAt.UTC(),
			EndedAt:        session.EndedAt.UTC(),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	if err := s.repo.InsertActivities(ctx, activities); err != nil {
		return nil, WrapInternal(err)
	}
	return activities, nil
}

// ManualActivityInput is the payload for user-entered activities.
type ManualActivityInput struct {
	OrganizationID string
	UserID         string
	Name           string
	StartedAt      time.Time
	EndedAt        time.Time
}

func (in ManualActivityInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return NewValidation("name is required")
	}
	if in.StartedAt.IsZero() || in.EndedAt.IsZero() {
		return NewValidation("started_at and ended_at are required")
	}
	if !in.EndedAt.After(in.StartedAt) {
		return NewValidation("ended_at must be after started_at")
	}
	return nil
}

// CreateManual records a manually logged activity.
func (s *ActivityService) CreateManual(ctx context.Context, input ManualActivityInput) (*Activity, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	activity := Activity{
		ID:             uuid.NewString(),
		OrganizationID: input.OrganizationID,
		UserID:         input.UserID,
		Name:           strings.TrimSpace(input.Name),
		Kind:           ActivityKindManual,
		StartedAt:      input.StartedAt.UTC(),
		EndedAt:        input.EndedAt.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.CreateActivity(ctx, activity); err != nil {
		return nil, WrapInternal(err)
	}
	return &activity, nil
}

// EditManual updates a manual activity. The caller must own the record and
// automatic activities are not editable. Writes are last-write-wins.
func (s *ActivityService) EditManual(ctx context.Context, activityID string, input ManualActivityInput) (*Activity, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetActivity(ctx, input.OrganizationID, activityID)
	if err != nil {
		return nil, WrapInternal(err)
	}
	if existing == nil {
		return nil, NewNotFound("activity %s not found", activityID)
	}
	if existing.UserID != input.UserID {
		return nil, NewAuthorization("activity %s is not owned by the caller", activityID)
	}
	if existing.Kind != ActivityKindManual {
		return nil, NewValidation("only manual activities can be edited")
	}

	updated := *existing
	updated.Name = strings.TrimSpace(input.Name)
	updated.StartedAt = input.StartedAt.UTC()
	updated.EndedAt = input.EndedAt.UTC()
	updated.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateActivity(ctx, updated); err != nil {
		return nil, WrapInternal(err)
	}
	return &updated, nil
}

// UnreportedInput is the caller-facing query for the unreported listing.
type UnreportedInput struct {
	OrganizationID string
	UserID         string
	Date           string // YYYY-MM-DD, empty means today in Timezone
	Timezone       string // IANA zone, empty means the service default
	Descending     bool
	Limit          int
	Cursor         *Cursor
}

// ListUnreported returns the caller's activities for one calendar day that
// no worksheet has claimed, each enriched with a derived icon and computed
// time spent.
func (s *ActivityService) ListUnreported(ctx context.Context, input UnreportedInput) ([]UnreportedActivity, *Cursor, error) {
	zone := input.Timezone
	if zone == "" {
		zone = s.defaultTimezone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, nil, NewValidation("unknown timezone %q", zone)
	}

	var dayStart time.Time
	if input.Date == "" {
		now := time.Now().In(loc)
		dayStart = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	} else {
		dayStart, err = time.ParseInLocation("2006-01-02", input.Date, loc)
		if err != nil {
			return nil, nil, NewValidation("invalid date %q, want YYYY-MM-DD", input.Date)
		}
	}

	limit := input.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.repo.ListUnreported(ctx, UnreportedQuery{
		OrganizationID: input.OrganizationID,
		UserID:         input.UserID,
		From:           dayStart,
		To:             dayStart.AddDate(0, 0, 1),
		Descending:     input.Descending,
		Limit:          limit,
		Cursor:         input.Cursor,
	})
	if err != nil {
		return nil, nil, WrapInternal(err)
	}

	items := make([]UnreportedActivity, 0, len(rows))
	for _, row := range rows {
		items = append(items, UnreportedActivity{
			Activity:  row.Activity,
			Icon:      DerivedIcon(row.Activity.FaviconURL, row.ApplicationIcon),
			TimeSpent: TimeSpentBetween(row.Activity.StartedAt, row.Activity.EndedAt),
		})
	}

	var next *Cursor
	if len(items) == limit {
		last := items[len(items)-1]
		next = &Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return items, next, nil
}

// AssignmentInput is the payload for claiming activities into a worksheet.
type AssignmentInput struct {
	OrganizationID string
	UserID         string
	ProjectID      string
	WorksheetName  string
	Date           string // YYYY-MM-DD
	ActivityIDs    []string
}

// AssignmentResult reports the outcome of a successful assignment.
type AssignmentResult struct {
	WorksheetID       string `json:"worksheet_id"`
	AddedActivities   int    `json:"added_activities"`
	SkippedActivities int    `json:"skipped_activities"`
}

// WorksheetService owns worksheet curation and the worksheet-side reporting
// queries.
type WorksheetService struct {
	repo WorksheetRepository
}

// NewWorksheetService constructs a WorksheetService.
func NewWorksheetService(repo WorksheetRepository) *WorksheetService {
	return &WorksheetService{repo: repo}
}

// Assign validates identifiers and runs the transactional assignment. Each
// activity may belong to at most one worksheet; a conflict anywhere fails
// the whole call.
func (s *WorksheetService) Assign(ctx context.Context, input AssignmentInput) (*AssignmentResult, error) {
	if err := validateAssignment(input); err != nil {
		return nil, err
	}
	result, err := s.repo.AssignActivities(ctx, input)
	if err != nil {
		return nil, WrapInternal(err)
	}
	return result, nil
}

func validateAssignment(input AssignmentInput) error {
	for _, pair := range []struct{ field, value string }{
		{"organization_id", input.OrganizationID},
		{"user_id", input.UserID},
		{"project_id", input.ProjectID},
	} {
		if _, err := uuid.Parse(pair.value); err != nil {
			return NewValidation("%s is not a valid identifier", pair.field)
		}
	}
	if strings.TrimSpace(input.WorksheetName) == "" {
		return NewValidation("worksheet_name is required")
	}
	if _, err := time.Parse("2006-01-02", input.Date); err != nil {
		return NewValidation("invalid date %q, want YYYY-MM-DD", input.Date)
	}
	if len(input.ActivityIDs) == 0 {
		return NewValidation("activity_ids must not be empty")
	}
	for _, id := range input.ActivityIDs {
		if _, err := uuid.Parse(id); err != nil {
			return NewValidation("activity id %q is not a valid identifier", id)
		}
	}
	return nil
}

// ListNames returns the worksheet names for a project and date.
func (s *WorksheetService) ListNames(ctx context.Context, organizationID, userID, projectID, date string) ([]string, error) {
	names, err := s.repo.ListNames(ctx, organizationID, userID, projectID, date)
	if err != nil {
		return nil, WrapInternal(err)
	}
	return names, nil
}

// ListSummaries returns the caller's worksheets with aggregated totals.
func (s *WorksheetService) ListSummaries(ctx context.Context, organizationID, userID, date string) ([]WorksheetSummary, error) {
	rows, err := s.repo.ListSummaries(ctx, organizationID, userID, date)
	if err != nil {
		return nil, WrapInternal(err)
	}
	summaries := make([]WorksheetSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, WorksheetSummary{
			Worksheet:     row.Worksheet,
			ActivityCount: row.ActivityCount,
			TimeSpent:     TimeSpentFromSeconds(row.TotalSeconds),
		})
	}
	return summaries, nil
}

// ListActivities returns the activities inside one worksheet with computed
// durations.
func (s *WorksheetService) ListActivities(ctx context.Context, organizationID, userID, worksheetID string) ([]WorksheetActivity, error) {
	rows, err := s.repo.ListActivities(ctx, organizationID, userID, worksheetID)
	if err != nil {
		return nil, WrapInternal(err)
	}
	items := make([]WorksheetActivity, 0, len(rows))
	for _, row := range rows {
		items = append(items, WorksheetActivity{
			Activity:  row.Activity,
			Icon:      DerivedIcon(row.Activity.FaviconURL, row.ApplicationIcon),
			TimeSpent: TimeSpentBetween(row.Activity.StartedAt, row.Activity.EndedAt),
		})
	}
	return items, nil
}
