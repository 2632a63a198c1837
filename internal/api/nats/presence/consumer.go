package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/oshokin/presence-alarm/internal/config"
	"github.com/oshokin/presence-alarm/internal/logger"
	"github.com/oshokin/presence-alarm/internal/service/ingest"
)

const (
	// clientName identifies the monitor in NATS connection listings.
	clientName = "presence-monitor"
	// ackWait is how long JetStream waits for an acknowledgement before redelivery.
	ackWait = 30 * time.Second
	// maxDeliver bounds redeliveries of a message that was never acknowledged.
	maxDeliver = 3
	// fetchRetryDelay is the pause after a failed fetch.
	fetchRetryDelay = time.Second
)

var errURLRequired = errors.New("nats url must be provided")

// Handler receives raw presence events.
type Handler interface {
	Ingest(ctx context.Context, routingKey string, payload []byte) error
}

// fetcher is the part of jetstream.Consumer the loop depends on.
type fetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// Consumer pulls presence snapshots from a durable JetStream consumer and
// hands them to the diff engine one at a time.
type Consumer struct {
	// consumer is the durable pull consumer.
	consumer fetcher
	// handler applies every event.
	handler Handler
	// name is the durable consumer name, used in logs.
	name string
	// batch is the maximum number of messages per fetch.
	batch int
	// wait bounds a single fetch.
	wait time.Duration
	// timeout bounds handling of one message after shutdown was requested.
	timeout time.Duration
}

// Connect opens a NATS connection and a JetStream context.
func Connect(settings config.NATS) (*nats.Conn, jetstream.JetStream, error) {
	if settings.URL == "" {
		return nil, nil, errURLRequired
	}

	nc, err := nats.Connect(settings.URL,
		nats.Name(clientName),
		nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()

		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return nc, js, nil
}

// NewConsumer creates or updates the durable consumer, and the stream itself
// when settings.CreateStream is set.
func NewConsumer(
	ctx context.Context,
	js jetstream.JetStream,
	settings config.NATS,
	handler Handler,
	timeout time.Duration,
) (*Consumer, error) {
	if settings.CreateStream {
		_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     settings.Stream,
			Subjects: []string{settings.Subject},
		})
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", settings.Stream, err)
		}
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, settings.Stream, jetstream.ConsumerConfig{
		Durable:       settings.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    maxDeliver,
		FilterSubject: settings.Subject,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s on stream %s: %w", settings.Consumer, settings.Stream, err)
	}

	logger.InfoKV(ctx, "Presence consumer ready",
		"stream", settings.Stream,
		"consumer", settings.Consumer,
		"subject", settings.Subject)

	return newConsumer(consumer, handler, settings, timeout), nil
}

func newConsumer(consumer fetcher, handler Handler, settings config.NATS, timeout time.Duration) *Consumer {
	c := &Consumer{
		consumer: consumer,
		handler:  handler,
		name:     settings.Consumer,
		batch:    settings.FetchBatch,
		wait:     settings.FetchWait,
		timeout:  timeout,
	}

	if c.batch <= 0 {
		c.batch = config.DefaultFetchBatch
	}

	if c.wait <= 0 {
		c.wait = config.DefaultFetchWait
	}

	if c.timeout <= 0 {
		c.timeout = config.DefaultTimeout
	}

	return c
}

// Run fetches and handles messages until ctx is cancelled. The message being
// handled when ctx is cancelled is finished; the rest of its batch is
// returned to the stream. Only a closed connection ends Run with an error.
func (c *Consumer) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "consumer")

	logger.InfoKV(ctx, "Starting presence consumer", "consumer", c.name)

	for {
		if ctx.Err() != nil {
			logger.Info(ctx, "Presence consumer stopped")

			return nil
		}

		batch, err := c.consumer.Fetch(c.batch, jetstream.FetchMaxWait(c.wait))
		if err != nil {
			if errors.Is(err, nats.ErrConnectionClosed) {
				return fmt.Errorf("fetch presence events: %w", err)
			}

			logger.WarnKV(ctx, "Failed to fetch presence events", "error", err)

			select {
			case <-ctx.Done():
			case <-time.After(fetchRetryDelay):
			}

			continue
		}

		for msg := range batch.Messages() {
			if ctx.Err() != nil {
				c.release(ctx, msg)

				continue
			}

			c.handle(ctx, msg)
		}

		if fetchErr := batch.Error(); fetchErr != nil && !isIdle(fetchErr) {
			logger.WarnKV(ctx, "Presence fetch ended with error", "error", fetchErr)
		}
	}
}

// handle applies one message and settles it. Malformed events are
// terminated; any other outcome is acknowledged because the next snapshot of
// the network supersedes a failed one.
func (c *Consumer) handle(ctx context.Context, msg jetstream.Msg) {
	msgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	err := c.handler.Ingest(msgCtx, msg.Subject(), msg.Data())

	switch {
	case errors.Is(err, ingest.ErrMalformedEvent):
		if termErr := msg.Term(); termErr != nil {
			logger.WarnKV(ctx, "Failed to terminate presence event", "subject", msg.Subject(), "error", termErr)
		}

		return
	case err != nil:
		logger.ErrorKV(ctx, "Failed to apply presence event", "subject", msg.Subject(), "error", err)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		logger.WarnKV(ctx, "Failed to acknowledge presence event", "subject", msg.Subject(), "error", ackErr)
	}
}

// release returns an unhandled message to the stream for redelivery.
func (c *Consumer) release(ctx context.Context, msg jetstream.Msg) {
	if err := msg.Nak(); err != nil {
		logger.WarnKV(ctx, "Failed to release presence event", "subject", msg.Subject(), "error", err)
	}
}

// isIdle reports whether a fetch simply found nothing to deliver.
func isIdle(err error) bool {
	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, jetstream.ErrNoMessages)
}
