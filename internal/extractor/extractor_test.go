package extractor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/worklens/worklens/internal/contextcache"
	"github.com/worklens/worklens/internal/domain"
)

const (
	testOrg  = "org-1"
	testUser = "user-1"
)

func at(hour, min, sec int) time.Time {
	return time.Date(2026, time.March, 2, hour, min, sec, 0, time.UTC)
}

func event(app, title string, ts time.Time) domain.RawEvent {
	return domain.RawEvent{
		AppName:     app,
		WindowTitle: title,
		ProcessID:   100,
		Kind:        "focus",
		Timestamp:   ts,
	}
}

func newTestExtractor(cache contextcache.Cache) *Extractor {
	return New(cache, Config{ContextTTL: 10 * time.Minute})
}

func job(events ...domain.RawEvent) domain.IngestJob {
	return domain.IngestJob{OrganizationID: testOrg, UserID: testUser, Logs: events}
}

func cachedEvent(t *testing.T, cache contextcache.Cache) domain.RawEvent {
	t.Helper()
	raw, ok, err := cache.Get(context.Background(), contextcache.LastContextKey(testOrg, testUser))
	require.NoError(t, err)
	require.True(t, ok)
	var ev domain.RawEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestExtractRejectsMalformedJobs(t *testing.T) {
	ext := newTestExtractor(contextcache.NewMemory())

	for name, bad := range map[string]domain.IngestJob{
		"missing org":  {UserID: testUser, Logs: []domain.RawEvent{event("Chrome", "", at(9, 0, 0))}},
		"missing user": {OrganizationID: testOrg, Logs: []domain.RawEvent{event("Chrome", "", at(9, 0, 0))}},
		"empty logs":   {OrganizationID: testOrg, UserID: testUser},
	} {
		_, err := ext.Extract(context.Background(), bad)
		require.Error(t, err, name)
		require.Equal(t, domain.ErrValidation, domain.CodeOf(err), name)
	}
}

func TestExtractFirstBatchEmitsClosedRunOnly(t *testing.T) {
	// No cached context: Chrome [09:00, 09:05] closes when VSCode takes
	// focus; the trailing VSCode interval stays open.
	cache := contextcache.NewMemory()
	ext := newTestExtractor(cache)

	sessions, err := ext.Extract(context.Background(), job(
		event("Chrome", "Inbox", at(9, 0, 0)),
		event("Chrome", "Inbox", at(9, 5, 0)),
		event("VSCode", "main.go", at(9, 6, 0)),
	))
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	require.Equal(t, "Chrome", sessions[0].AppName)
	require.Equal(t, at(9, 0, 0), sessions[0].StartedAt)
	require.Equal(t, at(9, 5, 0), sessions[0].EndedAt)

	last := cachedEvent(t, cache)
	require.Equal(t, "VSCode", last.AppName)
	require.Equal(t, at(9, 6, 0), last.Timestamp)
}

func TestExtractClosesEveryProvenRun(t *testing.T) {
	ext := newTestExtractor(contextcache.NewMemory())

	sessions, err := ext.Extract(context.Background(), job(
		event("A", "a", at(9, 0, 0)),
		event("A", "a", at(9, 1, 0)),
		event("B", "b", at(9, 2, 0)),
		event("B", "b", at(9, 3, 0)),
		event("A", "a", at(9, 4, 0)),
	))
	require.NoError(t, err)

	// Both completed runs are proven closed by a context change; the
	// trailing A run stays open for the next batch.
	require.Len(t, sessions, 2)
	require.Equal(t, "A", sessions[0].AppName)
	require.Equal(t, at(9, 0, 0), sessions[0].StartedAt)
	require.Equal(t, at(9, 1, 0), sessions[0].EndedAt)
	require.Equal(t, "B", sessions[1].AppName)
	require.Equal(t, at(9, 2, 0), sessions[1].StartedAt)
	require.Equal(t, at(9, 3, 0), sessions[1].EndedAt)
}

func TestExtractSortsEventsBeforeScanning(t *testing.T) {
	ext := newTestExtractor(contextcache.NewMemory())

	sessions, err := ext.Extract(context.Background(), job(
		event("VSCode", "main.go", at(9, 6, 0)),
		event("Chrome", "Inbox", at(9, 0, 0)),
		event("Chrome", "Inbox", at(9, 5, 0)),
	))
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	require.Equal(t, "Chrome", sessions[0].AppName)
	require.Equal(t, at(9, 0, 0), sessions[0].StartedAt)
	require.Equal(t, at(9, 5, 0), sessions[0].EndedAt)
}

func TestExtractStitchesAcrossBatches(t *testing.T) {
	cache := contextcache.NewMemory()
	ext := newTestExtractor(cache)

	_, err := ext.Extract(context.Background(), job(
		event("Chrome", "Inbox", at(9, 0, 0)),
		event("Chrome", "Inbox", at(9, 5, 0)),
	))
	require.NoError(t, err)

	// Batch two opens with a different context, proving the cached Chrome
	// interval ended at the new batch's first timestamp.
	sessions, err := ext.Extract(context.Background(), job(
		event("VSCode", "main.go", at(9, 7, 0)),
	))
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	require.Equal(t, "Chrome", sessions[0].AppName)
	require.Equal(t, at(9, 5, 0), sessions[0].StartedAt)
	require.Equal(t, at(9, 7, 0), sessions[0].EndedAt)

	last := cachedEvent(t, cache)
	require.Equal(t, "VSCode", last.AppName)
}

func TestExtractContinuesSameContextAcrossBatches(t *testing.T) {
	cache := contextcache.NewMemory()
	ext := newTestExtractor(cache)

	_, err := ext.Extract(context.Background(), job(
		event("Chrome", "Inbox", at(9, 0, 0)),
	))
	require.NoError(t, err)

	// Same context continues: no boundary session, and the interval that
	// eventually closes reaches back to the cached timestamp.
	sessions, err := ext.Extract(context.Background(), job(
		event("Chrome", "Inbox", at(9, 4, 0)),
		event("VSCode", "main.go", at(9, 6, 0)),
	))
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	require.Equal(t, "Chrome", sessions[0].AppName)
	require.Equal(t, at(9, 0, 0), sessions[0].StartedAt)
	require.Equal(t, at(9, 4, 0), sessions[0].EndedAt)
}

func TestExtractDropsSessionsAtOrBelowMinimumDuration(t *testing.T) {
	cache := contextcache.NewMemory()
	ext := New(cache, Config{MinSessionDuration: 5 * time.Minute, ContextTTL: 10 * time.Minute})

	sessions, err := ext.Extract(context.Background(), job(
		event("A", "a", at(9, 0, 0)),
		event("A", "a", at(9, 5, 0)), // exactly the minimum: dropped
		event("B", "b", at(9, 6, 0)),
		event("B", "b", at(9, 12, 0)), // six minutes: kept
		event("C", "c", at(9, 13, 0)),
	))
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	require.Equal(t, "B", sessions[0].AppName)
}

func TestExtractDropsZeroLengthSessionsByDefault(t *testing.T) {
	ext := newTestExtractor(contextcache.NewMemory())

	sessions, err := ext.Extract(context.Background(), job(
		event("A", "a", at(9, 0, 0)),
		event("B", "b", at(9, 0, 0)),
		event("B", "b", at(9, 1, 0)),
		event("C", "c", at(9, 2, 0)),
	))
	require.NoError(t, err)

	// The A run is a single instant and is filtered; the B run survives.
	require.Len(t, sessions, 1)
	require.Equal(t, "B", sessions[0].AppName)
	require.Equal(t, at(9, 0, 0), sessions[0].StartedAt)
	require.Equal(t, at(9, 1, 0), sessions[0].EndedAt)
}

func TestExtractRefreshesCacheUnconditionally(t *testing.T) {
	cache := contextcache.NewMemory()
	ext := newTestExtractor(cache)

	_, err := ext.Extract(context.Background(), job(
		event("Chrome", "Inbox", at(9, 0, 0)),
	))
	require.NoError(t, err)

	// A batch that emits nothing still rewrites the boundary context.
	_, err = ext.Extract(context.Background(), job(
		event("Chrome", "Inbox", at(9, 2, 0)),
	))
	require.NoError(t, err)

	last := cachedEvent(t, cache)
	require.Equal(t, at(9, 2, 0), last.Timestamp)
}

func TestExtractIgnoresExpiredContext(t *testing.T) {
	cache := contextcache.NewMemory()
	base := time.Now()
	now := base
	cache.SetClock(func() time.Time { return now })
	ext := New(cache, Config{ContextTTL: time.Minute})

	_, err := ext.Extract(context.Background(), job(
		event("Chrome", "Inbox", at(9, 0, 0)),
	))
	require.NoError(t, err)

	now = base.Add(2 * time.Minute)

	// With the cached context expired there is nothing to stitch; the
	// lone VSCode event opens a fresh interval and emits nothing.
	sessions, err := ext.Extract(context.Background(), job(
		event("VSCode", "main.go", at(9, 10, 0)),
	))
	require.NoError(t, err)
	require.Empty(t, sessions)
}
