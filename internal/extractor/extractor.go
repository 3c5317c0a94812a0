// Package extractor reconstructs non-overlapping activity sessions from
// batches of raw focus events. It is stateful across batches through the
// context cache: the trailing interval of a batch stays open until the next
// batch proves it ended.
package extractor

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/worklens/worklens/internal/contextcache"
	"github.com/worklens/worklens/internal/domain"
)

// Config carries the extraction tunables.
type Config struct {
	// MinSessionDuration drops any session whose computed duration does not
	// exceed it. Zero keeps every session with positive duration.
	MinSessionDuration time.Duration
	// ContextTTL is the lifetime of the cached batch-boundary event.
	ContextTTL time.Duration
}

// Option configures optional behaviour for the Extractor.
type Option func(*Extractor)

// WithLogger overrides the logger used for cache anomalies.
func WithLogger(logger *log.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// Extractor merges contiguous same-context events into session intervals.
type Extractor struct {
	cache  contextcache.Cache
	cfg    Config
	logger *log.Logger
}

// New constructs an Extractor on the provided cache.
func New(cache contextcache.Cache, cfg Config, opts ...Option) *Extractor {
	e := &Extractor{
		cache:  cache,
		cfg:    cfg,
		logger: log.New(log.Writer(), "[extractor] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract processes one job and returns the sessions proven closed by this
// batch. The chronologically-last event is always written back to the
// context cache, refreshing its TTL; that entry is what allows the next
// batch to close the interval left open here.
func (e *Extractor) Extract(ctx context.Context, job domain.IngestJob) ([]domain.Session, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	events := append([]domain.RawEvent(nil), job.Logs...)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	key := contextcache.LastContextKey(job.OrganizationID, job.UserID)
	lastContext, err := e.loadLastContext(ctx, key)
	if err != nil {
		return nil, err
	}

	var sessions []domain.Session
	first := events[0]

	// Cross-batch stitch: the cached event is the start of an interval the
	// previous batch left open. A different first event proves it ended.
	currentStart := first.Timestamp
	if lastContext != nil {
		if lastContext.SameIdentity(first) {
			// Same context continues across the boundary; the open interval
			// reaches back to the cached timestamp.
			currentStart = lastContext.Timestamp
		} else {
			boundary := e.buildSession(job, *lastContext, lastContext.Timestamp, first.Timestamp)
			if e.keep(boundary) {
				sessions = append(sessions, boundary)
			}
		}
	}

	// In-batch scan: a context change closes the open interval at the
	// previous event's timestamp and opens a new one at the current event.
	// The trailing interval is never emitted this batch.
	for i := 1; i < len(events); i++ {
		prev := events[i-1]
		cur := events[i]
		if cur.SameFocus(prev) {
			continue
		}
		closed := e.buildSession(job, prev, currentStart, prev.Timestamp)
		if e.keep(closed) {
			sessions = append(sessions, closed)
		}
		currentStart = cur.Timestamp
	}

	if err := e.storeLastContext(ctx, key, events[len(events)-1]); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (e *Extractor) loadLastContext(ctx context.Context, key string) (*domain.RawEvent, error) {
	raw, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var event domain.RawEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		// A corrupt entry cannot stitch anything; treat it as absent.
		e.logger.Printf("discarding unreadable cache entry (key=%s): %v", key, err)
		return nil, nil
	}
	return &event, nil
}

func (e *Extractor) storeLastContext(ctx context.Context, key string, event domain.RawEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return e.cache.Set(ctx, key, payload, e.cfg.ContextTTL)
}

func (e *Extractor) buildSession(job domain.IngestJob, identity domain.RawEvent, start, end time.Time) domain.Session {
	return domain.Session{
		OrganizationID: job.OrganizationID,
		UserID:         job.UserID,
		AppName:        identity.AppName,
		BrowserURL:     identity.BrowserURL,
		WindowTitle:    identity.WindowTitle,
		ProcessID:      identity.ProcessID,
		FaviconURL:     identity.FaviconURL,
		StartedAt:      start,
		EndedAt:        end,
	}
}

func (e *Extractor) keep(s domain.Session) bool {
	return s.Duration() > e.cfg.MinSessionDuration
}
