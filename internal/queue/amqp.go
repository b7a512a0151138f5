package queue

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

const retryHeader = "x-retry-count"

// AMQPQueue maps every topic to a durable queue on the default exchange.
// Consumers ack manually; failed messages are republished with a retry
// counter until MaxRetries and then dropped.
type AMQPQueue struct {
	MaxRetries int
	Prefetch   int

	conn *amqp.Connection
	log  zerolog.Logger

	mu       sync.Mutex
	pub      *amqp.Channel
	declared map[string]bool
	wg       sync.WaitGroup
	closed   chan struct{}
}

func DialAMQP(url string, log zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect to broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open publish channel")
	}
	return &AMQPQueue{
		MaxRetries: 3,
		Prefetch:   16,
		conn:       conn,
		log:        log,
		pub:        ch,
		declared:   map[string]bool{},
		closed:     make(chan struct{}),
	}, nil
}

func declare(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	return errors.Wrapf(err, "declare queue %s", topic)
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, body []byte) error {
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int32) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.declared[topic] {
		if err := declare(q.pub, topic); err != nil {
			return err
		}
		q.declared[topic] = true
	}

	err := q.pub.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: retries},
		Body:         body,
	})
	return errors.Wrapf(err, "publish to %s", topic)
}

// Subscribe starts a consumer on its own channel. It stops when ctx ends.
func (q *AMQPQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open consume channel")
	}
	if err := declare(ch, topic); err != nil {
		ch.Close()
		return err
	}
	if err := ch.Qos(q.Prefetch, 0, false); err != nil {
		ch.Close()
		return errors.Wrap(err, "set prefetch")
	}
	deliveries, err := ch.Consume(
		topic,
		"",
		false, // autoAck off, acked after handling
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return errors.Wrapf(err, "consume %s", topic)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		select {
		case <-ctx.Done():
		case <-q.closed:
		}
		ch.Close()
	}()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for d := range deliveries {
			q.handle(ctx, topic, d, handler)
		}
	}()
	return nil
}

func (q *AMQPQueue) handle(ctx context.Context, topic string, d amqp.Delivery, handler Handler) {
	log := q.log.With().Str("topic", topic).Logger()

	err := handler(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}
	if IsPermanent(err) {
		log.Warn().Err(err).Msg("message dropped")
		_ = d.Ack(false)
		return
	}

	retries := retryCount(d.Headers)
	if retries >= int32(q.MaxRetries) {
		log.Error().Err(err).Int32("retries", retries).Msg("message permanently failed")
		_ = d.Nack(false, false)
		return
	}
	if perr := q.publish(topic, d.Body, retries+1); perr != nil {
		log.Error().Err(perr).Msg("requeue failed, returning message to broker")
		_ = d.Nack(false, true)
		return
	}
	log.Warn().Err(err).Int32("retry", retries+1).Msg("message failed, requeued")
	_ = d.Ack(false)
}

func retryCount(h amqp.Table) int32 {
	switch v := h[retryHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int16:
		return int32(v)
	case int:
		return int32(v)
	default:
		return 0
	}
}

func (q *AMQPQueue) Close() error {
	close(q.closed)
	q.mu.Lock()
	pubErr := q.pub.Close()
	q.mu.Unlock()
	connErr := q.conn.Close()
	q.wg.Wait()
	if pubErr != nil {
		return errors.Wrap(pubErr, "close publish channel")
	}
	return errors.Wrap(connErr, "close broker connection")
}

var _ Queue = (*AMQPQueue)(nil)
