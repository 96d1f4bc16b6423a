package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aimd54/addon-ratings/internal/config"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

// NATSQueue publishes tasks to NATS subjects "<prefix>.<task name>". Consume
// joins a queue group so each task is handled by one instance.
type NATSQueue struct {
	conn     *nats.Conn
	prefix   string
	group    string
	registry *Registry
	log      *logger.Logger
}

// NewNATSQueue connects to NATS.
func NewNATSQueue(cfg *config.NATSConfig, registry *Registry, log *logger.Logger) (*NATSQueue, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("addon-ratings"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	log.Info().Str("url", cfg.URL).Str("prefix", cfg.SubjectPrefix).Msg("Connected to NATS")
	return &NATSQueue{
		conn:     conn,
		prefix:   cfg.SubjectPrefix,
		group:    cfg.QueueGroup,
		registry: registry,
		log:      log,
	}, nil
}

// Subject returns the subject a task is published on.
func Subject(prefix, name string) string {
	return strings.TrimSuffix(prefix, ".") + "." + name
}

// Enqueue publishes the task.
func (q *NATSQueue) Enqueue(ctx context.Context, task Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	if err := q.conn.Publish(Subject(q.prefix, task.Name), data); err != nil {
		return fmt.Errorf("failed to publish task %s: %w", task.Name, err)
	}
	return nil
}

// Publish sends an arbitrary payload on "<prefix>.<name>", used for reindex notifications.
func (q *NATSQueue) Publish(name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", name, err)
	}
	return q.conn.Publish(Subject(q.prefix, name), data)
}

// Consume handles tasks until ctx is cancelled.
func (q *NATSQueue) Consume(ctx context.Context) error {
	sub, err := q.conn.QueueSubscribe(Subject(q.prefix, "*"), q.group, func(msg *nats.Msg) {
		task, err := DecodeTask(msg.Data)
		if err != nil {
			q.log.Error().Err(err).Str("subject", msg.Subject).Msg("Dropping malformed task")
			return
		}
		_ = q.registry.Dispatch(ctx, task)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to tasks: %w", err)
	}
	q.log.Info().Str("subject", sub.Subject).Str("group", q.group).Msg("Consuming tasks from NATS")

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		q.log.Warn().Err(err).Msg("Failed to unsubscribe from tasks")
	}
	return nil
}

// Close drains the connection.
func (q *NATSQueue) Close() error {
	return q.conn.Drain()
}

// DecodeTask parses a published task.
func DecodeTask(data []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return Task{}, fmt.Errorf("failed to decode task: %w", err)
	}
	if task.Name == "" {
		return Task{}, fmt.Errorf("task has no name")
	}
	return task, nil
}
