package consumer

import (
	"context"
	"encoding/json"
	"log"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/worklens/worklens/internal/domain"
)

func ingestMessage(t *testing.T, offset int64) kafka.Message {
	t.Helper()

	payload, err := json.Marshal(domain.IngestJob{
		OrganizationID: "org-1",
		UserID:         "user-1",
		Logs: []domain.RawEvent{
			{AppName: "Chrome", WindowTitle: "Inbox", Kind: "focus", Timestamp: time.Now().UTC()},
		},
	})
	require.NoError(t, err)

	return kafka.Message{
		Topic:     "activity-logs",
		Partition: 0,
		Offset:    offset,
		Time:      time.Now().UTC(),
		Value:     payload,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte("job-1")},
		},
	}
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := ingestMessage(t, 10)
	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "job-1", handler.last.ID)
	require.Equal(t, "org-1", handler.last.Payload.OrganizationID)
	require.Equal(t, "user-1", handler.last.Payload.UserID)
	require.Len(t, handler.last.Payload.Logs, 1)
}

func TestProcessorSkipsCommitOnTransientError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{ingestMessage(t, 20)},
		after:    contextCanceled,
	}
	handler := &stubHandler{err: domain.WrapInternal(context.DeadlineExceeded)}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Uncommitted offsets are how the consumer group retries the job.
	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsOnValidationError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{ingestMessage(t, 30)},
		after:    contextCanceled,
	}
	handler := &stubHandler{err: domain.NewValidation("logs must not be empty")}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Validation failures never heal; the job is acknowledged and dropped.
	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
}

func TestProcessorCommitsUndecodableMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := kafka.Message{
		Topic:     "activity-logs",
		Partition: 0,
		Offset:    40,
		Time:      time.Now().UTC(),
		Value:     []byte("{not json"),
	}
	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 0, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
}

func TestProcessorFallsBackToOffsetJobID(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := ingestMessage(t, 50)
	msg.Headers = nil
	reader := &stubReader{
		messages: []kafka.Message{msg},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(log.New(testWriter{t}, "", 0)))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, "activity-logs-0-50", handler.last.ID)
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	calls int
	err   error
	last  Job
}

func (h *stubHandler) Handle(_ context.Context, job Job) error {
	h.calls++
	h.last = job
	return h.err
}

type testWriter struct {
	t *testing.T
}

func (tw testWriter) Write(p []byte) (int, error) {
	tw.t.Log(string(p))
	return len(p), nil
}
