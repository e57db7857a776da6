package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/scrollsafe/doomscroller/deepscan"
)

const (
	deepScanQueueName = "deep_scan"
	deepScanTaskName  = "deep_scan.tasks.process_job"
)

// DeepScanBroker is the deep-scan variant's own AMQP queue, kept separate
// from the main analyze queue since its jobs are heavier (Gemini calls
// against already-extracted frames) and shouldn't compete with the main
// pipeline's prefetch budget.
type DeepScanBroker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// DialDeepScan connects to url and declares the deep_scan queue, no
// priority support since every deep-scan job runs at the same priority.
func DialDeepScan(url string) (*DeepScanBroker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	_, err = ch.QueueDeclare(deepScanQueueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring queue: %w", err)
	}

	return &DeepScanBroker{conn: conn, channel: ch}, nil
}

// Close tears down the channel and connection.
func (b *DeepScanBroker) Close() error {
	chErr := b.channel.Close()
	connErr := b.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}

type deepScanMessage struct {
	Task  string        `json:"task"`
	JobID string        `json:"job_id"`
	Job   deepscan.Job  `json:"payload"`
}

// PublishJob enqueues a deep-scan job, generating and returning its job ID
// (deep-scan job statuses are keyed by an opaque ID rather than the video
// identity, since the same video can be deep-scanned more than once).
func (b *DeepScanBroker) PublishJob(ctx context.Context, job deepscan.Job) (string, error) {
	jobID := uuid.NewString()
	body, err := json.Marshal(deepScanMessage{Task: deepScanTaskName, JobID: jobID, Job: job})
	if err != nil {
		return "", fmt.Errorf("marshaling deep-scan job message: %w", err)
	}

	err = b.channel.PublishWithContext(ctx, "", deepScanQueueName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// Consume returns the raw delivery channel for deep-scan jobs, one at a
// time per worker, acked only after the job's lifecycle finishes.
func (b *DeepScanBroker) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if err := b.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("setting QoS: %w", err)
	}
	deliveries, err := b.channel.Consume(deepScanQueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("starting consumer: %w", err)
	}
	return deliveries, nil
}

// DecodeDeepScanJob parses a delivery body back into a job ID and payload.
func DecodeDeepScanJob(body []byte) (string, deepscan.Job, error) {
	var msg deepScanMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", deepscan.Job{}, fmt.Errorf("decoding deep-scan job message: %w", err)
	}
	return msg.JobID, msg.Job, nil
}
