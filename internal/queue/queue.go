package queue

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// TopicEngagement carries model.EngagementEvent documents from the HTTP
// callbacks to the tracker.
const TopicEngagement = "notification_events"

// Handler processes one message body. Returning an error retries the message
// unless it is wrapped with Permanent.
type Handler func(ctx context.Context, body []byte) error

type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type subscriber struct {
	ctx     context.Context
	handler Handler
}

// InMemoryQueue delivers to every subscriber of a topic in its own goroutine
// and retries failures with a linear backoff.
type InMemoryQueue struct {
	MaxRetries int
	Backoff    time.Duration

	mu       sync.Mutex
	handlers map[string][]subscriber
	wg       sync.WaitGroup
	log      zerolog.Logger
}

func NewInMemoryQueue(log zerolog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
		handlers:   make(map[string][]subscriber),
		log:        log,
	}
}

type job struct {
	topic      string
	body       []byte
	retryCount int
}

func (q *InMemoryQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.mu.Lock()
	subs := q.handlers[topic]
	q.mu.Unlock()

	if len(subs) == 0 {
		return errors.Errorf("no subscribers for topic %s", topic)
	}

	for _, s := range subs {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.processJob(s, job{topic: topic, body: body})
		}()
	}
	return nil
}

func (q *InMemoryQueue) processJob(s subscriber, j job) {
	log := q.log.With().Str("topic", j.topic).Logger()
	for {
		err := s.handler(s.ctx, j.body)
		if err == nil {
			log.Debug().Int("attempt", j.retryCount+1).Msg("job processed")
			return
		}
		if IsPermanent(err) {
			log.Warn().Err(err).Msg("job dropped")
			return
		}

		j.retryCount++
		if j.retryCount > q.MaxRetries {
			log.Error().Err(err).Int("attempts", j.retryCount).Msg("job permanently failed")
			return
		}
		log.Warn().Err(err).Int("attempt", j.retryCount).Int("max_retries", q.MaxRetries).Msg("job failed, retrying")

		select {
		case <-time.After(time.Duration(j.retryCount) * q.Backoff):
		case <-s.ctx.Done():
			return
		}
	}
}

// Subscribe adds a handler for a topic. Handlers run with ctx.
func (q *InMemoryQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], subscriber{ctx: ctx, handler: handler})
	return nil
}

// Close waits for in-flight jobs.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
