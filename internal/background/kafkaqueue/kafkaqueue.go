// Package kafkaqueue is an alternative background.JobQueue backend for
// multi-process deployments, where chanqueue's in-process channel can't
// hand a BACKGROUND job from the process that received it to a worker
// running elsewhere. Mined from correlator-io-correlator's go.mod, the
// only pack repo declaring segmentio/kafka-go as a dependency.
package kafkaqueue

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/rvbbit/rvbbit/internal/background"
)

// Queue is a segmentio/kafka-go-backed background.JobQueue: jobs are
// JSON-encoded and produced/consumed on a single topic, keyed by job id
// so jobs for the same id land on the same partition.
type Queue struct {
	writer *kafka.Writer
	reader *kafka.Reader
}

// Config names the Kafka connection and topic to use.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// New constructs a Queue from cfg. GroupID defaults to "rvbbit-background"
// when unset, so multiple rvbbit-server processes consuming the same
// topic share the partition load instead of each seeing every job.
func New(cfg Config) *Queue {
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "rvbbit-background"
	}
	return &Queue{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.Hash{},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
			GroupID: groupID,
		}),
	}
}

func (q *Queue) Enqueue(ctx context.Context, job background.Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.writer.WriteMessages(ctx, kafka.Message{Key: []byte(job.ID), Value: b})
}

func (q *Queue) Dequeue(ctx context.Context) (background.Job, error) {
	msg, err := q.reader.ReadMessage(ctx)
	if err != nil {
		return background.Job{}, err
	}
	var job background.Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return background.Job{}, err
	}
	return job, nil
}

// Close releases the underlying writer and reader connections.
func (q *Queue) Close() error {
	werr := q.writer.Close()
	rerr := q.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
