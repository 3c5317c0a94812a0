package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/worklens/worklens/internal/contextcache"
	"github.com/worklens/worklens/internal/domain"
	"github.com/worklens/worklens/internal/extractor"
)

type stubPersister struct {
	sessions []domain.Session
	err      error
}

func (p *stubPersister) PersistSessions(_ context.Context, _, _ string, sessions []domain.Session) ([]domain.Activity, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.sessions = append(p.sessions, sessions...)
	activities := make([]domain.Activity, len(sessions))
	return activities, nil
}

func focusEvent(app string, ts time.Time) domain.RawEvent {
	return domain.RawEvent{AppName: app, Kind: "focus", Timestamp: ts}
}

func TestExtractionHandlerPersistsClosedSessions(t *testing.T) {
	ext := extractor.New(contextcache.NewMemory(), extractor.Config{ContextTTL: time.Minute})
	persister := &stubPersister{}
	handler := NewExtractionHandler(ext, persister)

	base := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	job := Job{
		ID:    "job-1",
		Topic: "activity-logs",
		Payload: domain.IngestJob{
			OrganizationID: "org-1",
			UserID:         "user-1",
			Logs: []domain.RawEvent{
				focusEvent("Chrome", base),
				focusEvent("Chrome", base.Add(5*time.Minute)),
				focusEvent("VSCode", base.Add(6*time.Minute)),
			},
		},
	}

	require.NoError(t, handler.Handle(context.Background(), job))
	require.Len(t, persister.sessions, 1)
	require.Equal(t, "Chrome", persister.sessions[0].AppName)
}

func TestExtractionHandlerSkipsPersistenceWhenNothingClosed(t *testing.T) {
	ext := extractor.New(contextcache.NewMemory(), extractor.Config{ContextTTL: time.Minute})
	persister := &stubPersister{err: domain.WrapInternal(context.DeadlineExceeded)}
	handler := NewExtractionHandler(ext, persister)

	// A single event opens an interval but proves nothing closed, so the
	// failing persister is never called.
	job := Job{
		ID:    "job-2",
		Topic: "activity-logs",
		Payload: domain.IngestJob{
			OrganizationID: "org-1",
			UserID:         "user-1",
			Logs:           []domain.RawEvent{focusEvent("Chrome", time.Now().UTC())},
		},
	}

	require.NoError(t, handler.Handle(context.Background(), job))
}

func TestExtractionHandlerPropagatesValidationErrors(t *testing.T) {
	ext := extractor.New(contextcache.NewMemory(), extractor.Config{ContextTTL: time.Minute})
	handler := NewExtractionHandler(ext, &stubPersister{})

	err := handler.Handle(context.Background(), Job{ID: "job-3", Payload: domain.IngestJob{}})
	require.Error(t, err)
	require.Equal(t, domain.ErrValidation, domain.CodeOf(err))
}
