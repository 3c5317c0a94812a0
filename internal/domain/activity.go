package domain

import "time"

// ActivityKind distinguishes records derived from the extractor from ones a
// user logged by hand.
type ActivityKind string

const (
	ActivityKindAutomatic ActivityKind = "automatic"
	ActivityKindManual    ActivityKind = "manual"
)

// Activity is the canonical, durable record of a non-overlapping focus
// interval. Automatic activities carry an application reference and a
// process id; manual ones carry neither.
type Activity struct {
	ID             string
	OrganizationID string
	UserID         string
	Name           string
	Kind           ActivityKind
	ApplicationID  string
	ProcessID      int
	BrowserURL     string
	FaviconURL     string
	StartedAt      time.Time
	EndedAt        time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Application is the weak registry of applications referenced by automatic
// activities. Created lazily on first reference, never deleted.
type Application struct {
	ID        string
	Name      string
	Icon      string
	CreatedAt time.Time
}

// Worksheet groups activities for one project, user and calendar day.
type Worksheet struct {
	ID             string
	Name           string
	UserID         string
	OrganizationID string
	ProjectID      string
	Date           string
	LastReportedOn time.Time
}

// Cursor models the keyset-pagination token for activity listings.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

// UnreportedActivity is an activity with no worksheet link, enriched for
// the reporting surface.
type UnreportedActivity struct {
	Activity
	Icon      string
	TimeSpent TimeSpent
}

// WorksheetSummary is a worksheet with its aggregated activity totals.
type WorksheetSummary struct {
	Worksheet
	ActivityCount int
	TimeSpent     TimeSpent
}

// WorksheetActivity is one activity inside a worksheet listing.
type WorksheetActivity struct {
	Activity
	Icon      string
	TimeSpent TimeSpent
}

// DerivedIcon picks the activity favicon when present, else the linked
// application's icon.
func DerivedIcon(faviconURL, applicationIcon string) string {
	if faviconURL != "" {
		return faviconURL
	}
	return applicationIcon
}
