package domain

import (
	"strings"
	"time"
)

// RawEvent is one focus observation reported by the desktop agent. It is
// never persisted; events only exist inside a job payload and, for the
// chronologically-last one, inside the context cache.
type RawEvent struct {
	AppName     string    `json:"app_name"`
	Path        string    `json:"path,omitempty"`
	ProcessID   int       `json:"process_id"`
	BrowserURL  string    `json:"browser_url,omitempty"`
	WindowTitle string    `json:"window_title,omitempty"`
	FaviconURL  string    `json:"favicon_url,omitempty"`
	Kind        string    `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
}

// SameFocus reports whether two events belong to the same session, i.e.
// application, URL and window title all match. Process id is deliberately
// excluded: the same window re-observed under a new pid is still one session.
func (e RawEvent) SameFocus(o RawEvent) bool {
	return e.AppName == o.AppName &&
		e.BrowserURL == o.BrowserURL &&
		e.WindowTitle == o.WindowTitle
}

// SameIdentity additionally compares the process id. Used when deciding
// whether a cached batch-boundary context still matches the next batch.
func (e RawEvent) SameIdentity(o RawEvent) bool {
	return e.SameFocus(o) && e.ProcessID == o.ProcessID
}

// IngestJob is one unit of work on the ingestion queue: a batch of raw
// events for a single user.
type IngestJob struct {
	OrganizationID string     `json:"organization_id"`
	UserID         string     `json:"user_id"`
	Logs           []RawEvent `json:"logs"`
}

// Validate rejects structurally unusable jobs before any processing starts.
func (j IngestJob) Validate() error {
	if strings.TrimSpace(j.OrganizationID) == "" {
		return NewValidation("organization_id is required")
	}
	if strings.TrimSpace(j.UserID) == "" {
		return NewValidation("user_id is required")
	}
	if len(j.Logs) == 0 {
		return NewValidation("logs must not be empty")
	}
	return nil
}

// PartitionKey is the Kafka message key for a job. Keying on the
// organization/user pair pins all of a user's batches to one partition,
// which is what makes cross-batch stitching safe.
func (j IngestJob) PartitionKey() string {
	return j.OrganizationID + ":" + j.UserID
}

// Session is a merged interval of continuous focus, computed by the
// extractor within one run. It either becomes an Activity or is discarded.
type Session struct {
	OrganizationID string
	UserID         string
	AppName        string
	BrowserURL     string
	WindowTitle    string
	ProcessID      int
	FaviconURL     string
	StartedAt      time.Time
	EndedAt        time.Time
}

// Duration returns the session length; non-positive for degenerate sessions.
func (s Session) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}
