package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the job trigger: it carries only the job id, the job itself
// lives in the database.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	ownsConn bool

	mu          sync.Mutex
	retryQueues map[int64]string // ttl ms -> declared queue
}

type JobMessage struct {
	JobID string `json:"job_id"`
	// failed deliveries so far
	Attempt int `json:"attempt,omitempty"`
}

func decodeMessage(body []byte) (JobMessage, error) {
	var m JobMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return JobMessage{}, err
	}
	if m.JobID == "" {
		return JobMessage{}, errors.New("missing job_id")
	}
	return m, nil
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	p, err := newPublisher(conn, queue)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.ownsConn = true
	return p, nil
}

func newPublisher(conn *amqp.Connection, queue string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue, retryQueues: map[int64]string{}}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.ownsConn && p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishJob implements genjob.Trigger.
func (p *Publisher) PublishJob(ctx context.Context, jobID string) error {
	return p.publish(ctx, p.queue, JobMessage{JobID: jobID})
}

// PublishRetry parks the message on the retry queue for delay; it returns to
// the main queue once delay has passed.
func (p *Publisher) PublishRetry(ctx context.Context, jobID string, attempt int, delay time.Duration) error {
	name, err := p.retryQueue(delay)
	if err != nil {
		return err
	}
	return p.publish(ctx, name, JobMessage{JobID: jobID, Attempt: attempt})
}

func (p *Publisher) retryQueue(delay time.Duration) (string, error) {
	ttl := retryTTL(delay)
	p.mu.Lock()
	defer p.mu.Unlock()
	if name, ok := p.retryQueues[ttl]; ok {
		return name, nil
	}
	name, err := DeclareRetryQueue(p.ch, p.queue, delay)
	if err != nil {
		return "", err
	}
	p.retryQueues[ttl] = name
	return name, nil
}

func (p *Publisher) publish(ctx context.Context, routingKey string, m JobMessage) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",         // default exchange
		routingKey, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}
