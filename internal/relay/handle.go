package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

type disposition int

const (
	delivered disposition = iota
	retryLater
	rejected
	exhausted
)

// decide maps a delivery outcome to what happens to the row. The attempt
// being settled counts toward MaxAttempts.
func (r *Relay) decide(event models.OutboxEvent, deliveryErr error) disposition {
	if deliveryErr == nil {
		return delivered
	}
	var final registry.NonRetryableError
	if errors.As(deliveryErr, &final) || errors.Is(deliveryErr, pubsub.ErrUnknownTopic) {
		return rejected
	}
	if event.AttemptCount+1 >= r.settings.MaxAttempts {
		return exhausted
	}
	return retryLater
}

func (r *Relay) handle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	})

	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topic":    resolved.Descriptor.Topic,
	})

	deliveryErr := r.deliver(ctx, event, resolved)
	switch r.decide(event, deliveryErr) {
	case delivered:
		if err := r.events.MarkPublished(tx, event.ID, r.now().UTC()); err != nil {
			return fmt.Errorf("mark %s published: %w", event.ID, err)
		}
		r.logg.Info(ctx, "outbox event published")
	case retryLater:
		if err := r.events.MarkFailed(tx, event.ID, deliveryErr); err != nil {
			return fmt.Errorf("mark %s failed: %w", event.ID, err)
		}
		r.logg.Warn(r.logg.WithField(ctx, "error", deliveryErr.Error()), "outbox publish failed, will retry")
	case exhausted:
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", deliveryErr))
	case rejected:
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, deliveryErr)
	}
	return nil
}

// deliver claims the envelope id, sends, and gives the claim back on failure.
// An id that is already claimed was delivered by an earlier attempt.
func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	eventID := resolved.Envelope.EventID
	if eventID == "" {
		eventID = event.ID.String()
	}

	claimed, err := r.guard.Claim(ctx, eventID)
	if err != nil {
		return fmt.Errorf("claim %s: %w", eventID, err)
	}
	if !claimed {
		r.logg.Info(ctx, "outbox event already delivered")
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.settings.PublishTimeout)
	defer cancel()
	messageID, err := r.sender.Send(sendCtx, resolved.Descriptor.Topic, message(event, eventID))
	if err != nil {
		if releaseErr := r.guard.Release(ctx, eventID); releaseErr != nil {
			r.logg.Error(ctx, "release delivery claim", releaseErr)
		}
		return err
	}
	r.logg.Debug(r.logg.WithField(ctx, "message_id", messageID), "pubsub acknowledged")
	return nil
}

func message(event models.OutboxEvent, eventID string) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       eventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	if err := r.deadLetters.Insert(tx, outbox.NewDeadLetter(event, reason, cause, r.now())); err != nil {
		return fmt.Errorf("dead-letter %s: %w", event.ID, err)
	}
	if err := r.events.MarkDeadLettered(tx, event.ID, cause, r.settings.MaxAttempts); err != nil {
		return fmt.Errorf("mark %s dead-lettered: %w", event.ID, err)
	}
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	}), "outbox event dead-lettered")
	return nil
}
