package deadletters

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// DeadLetterDTO is the admin view of an outbox row that stopped retrying.
type DeadLetterDTO struct {
	ID            uuid.UUID                  `json:"id"`
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Reason        enums.OutboxDLQErrorReason `json:"reason"`
	Message       string                     `json:"message,omitempty"`
	AttemptCount  int                        `json:"attempt_count"`
	FailedAt      time.Time                  `json:"failed_at"`
	Payload       json.RawMessage            `json:"payload,omitempty"`
}

// RequeueResult points at the outbox row that replaces a dead letter.
type RequeueResult struct {
	DeadLetterID uuid.UUID             `json:"dead_letter_id"`
	EventID      uuid.UUID             `json:"event_id"`
	EventType    enums.OutboxEventType `json:"event_type"`
}

func fromModel(row models.OutboxDLQ, withPayload bool) DeadLetterDTO {
	dto := DeadLetterDTO{
		ID:            row.ID,
		EventID:       row.EventID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Reason:        row.ErrorReason,
		AttemptCount:  row.AttemptCount,
		FailedAt:      row.FailedAt,
	}
	if row.ErrorMessage != nil {
		dto.Message = *row.ErrorMessage
	}
	if withPayload {
		dto.Payload = row.Payload
	}
	return dto
}
