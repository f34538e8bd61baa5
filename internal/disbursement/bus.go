package disbursement

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gyeh/brillestotte/internal/model"
)

// RedisBus publishes batches on one channel and listens for confirmations
// on another.
type RedisBus struct {
	client       *redis.Client
	topic        string
	confirmTopic string
	log          zerolog.Logger
	now          func() time.Time
}

// NewRedisBus creates a bus over client.
func NewRedisBus(client *redis.Client, topic, confirmTopic string, log zerolog.Logger) *RedisBus {
	return &RedisBus{
		client:       client,
		topic:        topic,
		confirmTopic: confirmTopic,
		log:          log.With().Str("component", "disbursement").Str("channel", "redis").Logger(),
		now:          time.Now,
	}
}

// Submit publishes the batch. A publish nobody receives is still an error:
// the payout side must be subscribed before batches leave NY.
func (b *RedisBus) Submit(ctx context.Context, batch *model.Batch, resubmission bool) error {
	data, err := json.Marshal(NewMessage(batch, resubmission, b.now()))
	if err != nil {
		return fmt.Errorf("marshal batch %s: %w", batch.ID, err)
	}

	receivers, err := b.client.Publish(ctx, b.topic, data).Result()
	if err != nil {
		return fmt.Errorf("publish batch %s: %w", batch.ID, err)
	}
	if receivers == 0 {
		return fmt.Errorf("publish batch %s: no subscribers on %s", batch.ID, b.topic)
	}

	b.log.Info().
		Str("batch_id", batch.ID).
		Int("payments", len(batch.Payments)).
		Int64("total", batch.Total()).
		Bool("resubmission", resubmission).
		Msg("batch published")
	return nil
}

// Confirmations delivers confirmations to handle until ctx is cancelled,
// reconnecting with exponential backoff when the subscription drops.
// Handler errors are logged; the message is not redelivered.
func (b *RedisBus) Confirmations(ctx context.Context, handle ConfirmFunc) error {
	wait := time.Second
	const maxWait = 30 * time.Second

	for {
		err := b.subscribe(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		b.log.Warn().Err(err).Str("topic", b.confirmTopic).Dur("backoff", wait).
			Msg("confirmation subscription dropped, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, maxWait)
	}
}

func (b *RedisBus) subscribe(ctx context.Context, handle ConfirmFunc) error {
	sub := b.client.Subscribe(ctx, b.confirmTopic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.confirmTopic, err)
	}
	b.log.Info().Str("topic", b.confirmTopic).Msg("listening for confirmations")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			batchID, paidOn, err := ParseConfirmation([]byte(msg.Payload))
			if err != nil {
				b.log.Warn().Err(err).Str("payload", msg.Payload).Msg("dropping confirmation")
				continue
			}
			if err := handle(ctx, batchID, paidOn); err != nil {
				b.log.Error().Err(err).Str("batch_id", batchID).Msg("confirmation failed")
			}
		}
	}
}
