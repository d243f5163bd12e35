// Package queue carries analysis jobs from the API to workers over RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/smashers-ai/smashers/internal/config"
	"github.com/smashers-ai/smashers/internal/logging"
	"github.com/smashers-ai/smashers/pkg/models"
)

const (
	AnalysisQueueName      = "analysis_jobs"
	ExchangeName           = "smashers"
	DeadLetterQueueName    = "analysis_jobs_dlq"
	DeadLetterExchangeName = "smashers_dlq"
)

// Handler processes one job. A returned error dead-letters the message.
type Handler func(ctx context.Context, job *models.AnalysisJob) error

// Queue provides message queue operations
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *logging.Logger
}

// URL builds the AMQP connection string
func URL(cfg config.QueueConfig) string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)
}

// New creates a new queue client and declares the topology
func New(cfg config.QueueConfig, logger *logging.Logger) (*Queue, error) {
	conn, err := amqp.Dial(URL(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declare(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	return &Queue{
		conn:    conn,
		channel: channel,
		logger:  logging.OrNop(logger),
	}, nil
}

func declare(channel *amqp.Channel) error {
	for _, name := range []string{ExchangeName, DeadLetterExchangeName} {
		err := channel.ExchangeDeclare(
			name,
			"direct",
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}

	if _, err := channel.QueueDeclare(DeadLetterQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}
	if err := channel.QueueBind(DeadLetterQueueName, AnalysisQueueName, DeadLetterExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange": DeadLetterExchangeName,
	}
	if _, err := channel.QueueDeclare(AnalysisQueueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := channel.QueueBind(AnalysisQueueName, AnalysisQueueName, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// Encode builds the persistent message for a job
func Encode(job *models.AnalysisJob) (amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal job: %w", err)
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    job.ID,
		Body:         body,
		Timestamp:    time.Now(),
	}, nil
}

// PublishJob publishes an analysis job to the queue
func (q *Queue) PublishJob(ctx context.Context, job *models.AnalysisJob) error {
	msg, err := Encode(job)
	if err != nil {
		return err
	}

	err = q.channel.PublishWithContext(ctx,
		ExchangeName,
		AnalysisQueueName,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	q.logger.WithJobID(job.ID).Info("Analysis job published")
	return nil
}

// ConsumeJobs delivers jobs to handler one at a time until ctx is done
func (q *Queue) ConsumeJobs(ctx context.Context, handler Handler) error {
	err := q.channel.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		AnalysisQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				Dispatch(ctx, msg, handler, q.logger)
			}
		}
	}()

	return nil
}

// Dispatch decodes one delivery, runs handler and settles the message.
// Undecodable messages and handler failures are dead-lettered.
func Dispatch(ctx context.Context, msg amqp.Delivery, handler Handler, logger *logging.Logger) {
	logger = logging.OrNop(logger)

	var job models.AnalysisJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		logger.WithError(err).Error("Discarding undecodable job message")
		_ = msg.Nack(false, false)
		return
	}

	if err := handler(ctx, &job); err != nil {
		logger.WithJobID(job.ID).WithError(err).Error("Job failed, moving to dead letter queue")
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}

// GetQueueDepth returns the number of messages in the queue
func (q *Queue) GetQueueDepth() (int, error) {
	info, err := q.channel.QueueInspect(AnalysisQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return info.Messages, nil
}
