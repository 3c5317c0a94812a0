// Package consumer pulls ingestion jobs from Kafka and feeds them through
// the session-extraction pipeline.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/worklens/worklens/internal/domain"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded jobs from Kafka.
type Handler interface {
	Handle(context.Context, Job) error
}

// Job is the decoded representation of one queued batch.
type Job struct {
	ID        string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Payload   domain.IngestJob
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a
// Handler. Failures are classified: permanent faults (undecodable payloads,
// validation errors) are committed so they are never redelivered, while
// transient faults are left uncommitted so the consumer group retries them.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes messages until the context is
// cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		job, decodeErr := decodeJob(msg)
		if decodeErr != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordDecodeError(msg.Topic)
			// Commit malformed messages to avoid poison-pill loops.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, job); handleErr != nil {
			if domain.CodeOf(handleErr) == domain.ErrValidation {
				// Malformed job data is terminal: log, acknowledge, move on.
				p.logger.Printf("rejecting job (id=%s): %v", job.ID, handleErr)
				recordRejected(job)
				if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
					p.logger.Printf("commit error after rejection: %v", commitErr)
				}
				continue
			}
			// Anything else may be a store or cache hiccup; leave the
			// message uncommitted so the group redelivers it.
			p.logger.Printf("handler error (id=%s, user=%s): %v", job.ID, job.Payload.UserID, handleErr)
			recordHandlerError(job)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error: %v", commitErr)
		} else {
			recordProcessed(job)
		}
	}
}

func decodeJob(msg kafka.Message) (Job, error) {
	if len(msg.Value) == 0 {
		return Job{}, errors.New("empty payload")
	}

	var payload domain.IngestJob
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return Job{}, err
	}

	id, ok := headerValue(msg, "job_id")
	if !ok {
		id = []byte(fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset))
	}

	return Job{
		ID:        string(id),
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Payload:   payload,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
