package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/genjobs/internal/logger"
)

// Handler processes one job id. A non-nil error asks for redelivery.
type Handler func(ctx context.Context, jobID string) error

type ConsumerConfig struct {
	Queue       string
	Concurrency int
	// deliveries per job before it is dead-lettered
	MaxAttempts int
	// base delay, multiplied by the attempt number
	RetryDelay time.Duration
}

type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	retry retrier
	cfg   ConsumerConfig
	log   *logger.Logger
}

type retrier interface {
	PublishRetry(ctx context.Context, jobID string, attempt int, delay time.Duration) error
}

// acknowledger is the part of amqp.Delivery the handler needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func NewConsumer(url string, cfg ConsumerConfig, log *logger.Logger) (*Consumer, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, cfg.Queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	// strict concurrency control
	if err := ch.Qos(cfg.Concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	pub, err := newPublisher(conn, cfg.Queue)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Consumer{
		conn:  conn,
		ch:    ch,
		retry: pub,
		cfg:   cfg,
		log:   log.With("component", "JobConsumer", "queue", cfg.Queue),
	}, nil
}

func (c *Consumer) Close() error {
	if p, ok := c.retry.(*Publisher); ok {
		_ = p.Close()
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run consumes until ctx is done, then waits for in-flight jobs. In-flight
// handlers are not cancelled by shutdown; their own deadlines bound them.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	msgs, err := c.ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.log.Info("consumer started", "concurrency", c.cfg.Concurrency, "max_attempts", c.cfg.MaxAttempts)

	// worker pool
	jobs := make(chan amqp.Delivery, c.cfg.Concurrency*2)
	workCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(c.cfg.Concurrency)
	for i := 0; i < c.cfg.Concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.handleDelivery(workCtx, workerID, d.Body, d, handle)
			}
		}(i)
	}

	stop := func() {
		close(jobs)
		wg.Wait()
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer shutting down")
			stop()
			return nil

		case d, ok := <-msgs:
			if !ok {
				stop()
				return errors.New("rabbitmq: delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, workerID int, body []byte, ack acknowledger, handle Handler) {
	m, err := decodeMessage(body)
	if err != nil {
		c.log.Warn("bad message, dead-lettering", "worker", workerID, "error", err)
		_ = ack.Nack(false, false)
		return
	}

	start := time.Now()
	if err := handle(ctx, m.JobID); err != nil {
		attempt := m.Attempt + 1
		if attempt >= c.cfg.MaxAttempts {
			c.log.Error("job delivery exhausted, dead-lettering", "worker", workerID, "job_id", m.JobID, "attempts", attempt, "error", err)
			_ = ack.Nack(false, false)
			return
		}
		delay := retryDelay(c.cfg.RetryDelay, attempt)
		if perr := c.retry.PublishRetry(ctx, m.JobID, attempt, delay); perr != nil {
			c.log.Error("schedule retry failed, dead-lettering", "worker", workerID, "job_id", m.JobID, "error", perr)
			_ = ack.Nack(false, false)
			return
		}
		c.log.Warn("job delivery failed, retry scheduled", "worker", workerID, "job_id", m.JobID,
			"attempt", attempt, "delay", delay.String(), "cost", time.Since(start).String(), "error", err)
		_ = ack.Ack(false)
		return
	}

	if err := ack.Ack(false); err != nil {
		c.log.Warn("ack failed", "worker", workerID, "job_id", m.JobID, "error", err)
	}
}

// retryDelay grows linearly with the attempt and is capped at ten times base.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 10 {
		attempt = 10
	}
	return base * time.Duration(attempt)
}
