// Package broker is the priority-queue producer/consumer for analysis jobs.
// It treats RabbitMQ as an at-least-once delivery priority queue: discovery
// publishes AnalysisJob messages at a configurable priority and workers
// consume them one at a time, acking only once a job's lifecycle (or a
// deliberate skip) completes.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/scrollsafe/doomscroller/model"
)

const (
	queueName  = "analyze"
	taskName   = "process_video"
	maxPriority = 9
)

// Broker owns the AMQP connection and channel used to publish and consume
// analysis jobs.
type Broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial connects to url and declares the analyze queue with priority support
// (x-max-priority), matching the broker message contract.
func Dial(url string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{"x-max-priority": int32(maxPriority)},
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring queue: %w", err)
	}

	return &Broker{conn: conn, channel: ch}, nil
}

// Close tears down the channel and connection.
func (b *Broker) Close() error {
	chErr := b.channel.Close()
	connErr := b.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}

// jobMessage is the wire shape of a process_video task, keyword-argument
// style, matching the broker message contract.
type jobMessage struct {
	Task     string  `json:"task"`
	Platform string  `json:"platform"`
	VideoID  string  `json:"video_id"`
	URL      string  `json:"url"`
	Title    *string `json:"title,omitempty"`
	Channel  *string `json:"channel,omitempty"`
	PublishedAt *string `json:"published_at,omitempty"`
	Region      *string `json:"region,omitempty"`
	ViewsPerHour *float64 `json:"views_per_hour,omitempty"`
}

// Publish enqueues job at the given priority (0-9, higher runs sooner).
func (b *Broker) Publish(ctx context.Context, job model.AnalysisJob, priority uint8) error {
	if priority > maxPriority {
		priority = maxPriority
	}

	msg := jobMessage{
		Task:     taskName,
		Platform: job.Platform,
		VideoID:  job.VideoID,
		URL:      job.URL,
	}
	if job.Title != "" {
		msg.Title = &job.Title
	}
	if job.Channel != "" {
		msg.Channel = &job.Channel
	}
	if job.Region != "" {
		msg.Region = &job.Region
	}
	if job.PublishedAt != nil {
		s := job.PublishedAt.Format("2006-01-02T15:04:05Z07:00")
		msg.PublishedAt = &s
	}
	if job.ViewsPerHour != 0 {
		v := job.ViewsPerHour
		msg.ViewsPerHour = &v
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling job message: %w", err)
	}

	return b.channel.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Priority:    priority,
	})
}

// Consume sets prefetch to 1 (one job in flight per worker at a time) and
// returns the raw delivery channel; callers decode with DecodeJob and ack
// only after the job's lifecycle finishes.
func (b *Broker) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if err := b.channel.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("setting QoS: %w", err)
	}
	deliveries, err := b.channel.Consume(
		queueName,
		consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("starting consumer: %w", err)
	}
	return deliveries, nil
}

// DecodeJob parses a delivery body back into an AnalysisJob.
func DecodeJob(body []byte) (model.AnalysisJob, error) {
	var msg jobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return model.AnalysisJob{}, fmt.Errorf("decoding job message: %w", err)
	}

	job := model.AnalysisJob{
		VideoCandidate: model.VideoCandidate{
			Platform: msg.Platform,
			VideoID:  msg.VideoID,
			URL:      msg.URL,
		},
	}
	if msg.Title != nil {
		job.Title = *msg.Title
	}
	if msg.Channel != nil {
		job.Channel = *msg.Channel
	}
	if msg.Region != nil {
		job.Region = *msg.Region
	}
	if msg.PublishedAt != nil {
		if t, err := time.Parse(time.RFC3339, *msg.PublishedAt); err == nil {
			job.PublishedAt = &t
		}
	}
	if msg.ViewsPerHour != nil {
		job.ViewsPerHour = *msg.ViewsPerHour
	}
	return job, nil
}
