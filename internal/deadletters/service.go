// Package deadletters lets operators inspect outbox events the relay gave up
// on and push them back onto the outbox once the cause is fixed.
package deadletters

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type store interface {
	List(ctx context.Context, reason enums.OutboxDLQErrorReason, limit int) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, id uuid.UUID) (models.OutboxEvent, error)
}

// ListFilter narrows the dead letter listing.
type ListFilter struct {
	Reason         enums.OutboxDLQErrorReason
	Limit          int
	IncludePayload bool
}

type Service interface {
	List(ctx context.Context, filter ListFilter) ([]DeadLetterDTO, error)
	Requeue(ctx context.Context, id uuid.UUID) (*RequeueResult, error)
}

type service struct {
	store store
	logg  *logger.Logger
}

func NewService(store store, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("dead letter store required")
	}
	return &service{store: store, logg: logg}, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]DeadLetterDTO, error) {
	if filter.Reason != "" && !filter.Reason.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown dead letter reason %q", filter.Reason)
	}
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	rows, err := s.store.List(ctx, filter.Reason, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters")
	}
	out := make([]DeadLetterDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row, filter.IncludePayload))
	}
	return out, nil
}

func (s *service) Requeue(ctx context.Context, id uuid.UUID) (*RequeueResult, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dead letter id required")
	}
	event, err := s.store.Requeue(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue dead letter")
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"dead_letter_id": id.String(),
			"event_id":       event.ID.String(),
			"event_type":     string(event.EventType),
		})
		s.logg.Info(ctx, "dead letter requeued")
	}
	return &RequeueResult{DeadLetterID: id, EventID: event.ID, EventType: event.EventType}, nil
}
