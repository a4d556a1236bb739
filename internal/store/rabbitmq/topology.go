package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func DeadLetterQueue(queue string) string { return queue + ".dlq" }

// RetryQueue names the retry queue for one delay. Each delay gets its own
// queue with a queue-level TTL, so messages expire in the order they arrive.
func RetryQueue(queue string, delay time.Duration) string {
	return fmt.Sprintf("%s.retry.%dms", queue, retryTTL(delay))
}

// retryTTL is delay in whole milliseconds, at least 1.
func retryTTL(delay time.Duration) int64 {
	if ms := delay.Milliseconds(); ms > 0 {
		return ms
	}
	return 1
}

func retryQueueArgs(queue string, delay time.Duration) amqp.Table {
	return amqp.Table{
		"x-message-ttl":             retryTTL(delay),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
}

// DeclareTopology declares the main queue and its dead letter queue.
// Publisher and consumer both call it so either may start first. Retry
// queues are declared on first use by DeclareRetryQueue.
//
//	main           --nack(requeue=false)--> dlq
//	retry.<delay>  --queue ttl------------> main
func DeclareTopology(ch *amqp.Channel, queue string) error {
	dlqQ := DeadLetterQueue(queue)

	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare %s: %w", dlqQ, err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	); err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	return nil
}

// DeclareRetryQueue declares the retry queue for delay and returns its name.
func DeclareRetryQueue(ch *amqp.Channel, queue string, delay time.Duration) (string, error) {
	name := RetryQueue(queue, delay)
	if _, err := ch.QueueDeclare(name, true, false, false, false, retryQueueArgs(queue, delay)); err != nil {
		return "", fmt.Errorf("declare %s: %w", name, err)
	}
	return name, nil
}
