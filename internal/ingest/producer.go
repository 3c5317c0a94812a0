// Package ingest is the enqueue side of the log ingestion queue. Jobs are
// keyed by organization:user so every batch for one user lands on the same
// partition, which is the ordering guarantee the extractor relies on.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/worklens/worklens/internal/domain"
)

// Producer writes ingestion jobs to the configured topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Producer for the given brokers and topic.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		},
	}
}

// Enqueue validates and publishes one job, returning its generated id.
func (p *Producer) Enqueue(ctx context.Context, job domain.IngestJob) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	msg := kafka.Message{
		Key:   []byte(job.PartitionKey()),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(jobID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", err
	}
	return jobID, nil
}

// Close releases the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
