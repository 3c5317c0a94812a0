package consumer

import (
	"context"
	"log"

	"github.com/worklens/worklens/internal/domain"
	"github.com/worklens/worklens/internal/extractor"
)

// ActivityPersister is the slice of the activity service the handler needs.
type ActivityPersister interface {
	PersistSessions(ctx context.Context, organizationID, userID string, sessions []domain.Session) ([]domain.Activity, error)
}

// ExtractionHandler runs one job through the extractor and persists the
// resulting sessions.
type ExtractionHandler struct {
	extractor  *extractor.Extractor
	activities ActivityPersister
	logger     *log.Logger
}

// NewExtractionHandler constructs the handler.
func NewExtractionHandler(ext *extractor.Extractor, activities ActivityPersister) *ExtractionHandler {
	return &ExtractionHandler{
		extractor:  ext,
		activities: activities,
		logger:     log.New(log.Writer(), "[extraction] ", log.LstdFlags),
	}
}

// Handle extracts sessions from the job and writes the survivors to the
// activity store. Errors propagate to the processor, which decides whether
// the job is retried.
func (h *ExtractionHandler) Handle(ctx context.Context, job Job) error {
	sessions, err := h.extractor.Extract(ctx, job.Payload)
	if err != nil {
		return err
	}
	recordSessionsExtracted(job.Topic, len(sessions))
	if len(sessions) == 0 {
		return nil
	}

	created, err := h.activities.PersistSessions(ctx, job.Payload.OrganizationID, job.Payload.UserID, sessions)
	if err != nil {
		return err
	}
	if len(created) < len(sessions) {
		h.logger.Printf("job %s: %d of %d sessions dropped by overlap guard", job.ID, len(sessions)-len(created), len(sessions))
	}
	recordActivitiesPersisted(job.Topic, len(created))
	return nil
}
