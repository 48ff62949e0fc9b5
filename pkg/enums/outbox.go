package enums

import "strings"

// OutboxAggregateType names the entity an outbox row is about.
type OutboxAggregateType string

const (
	AggregateOrder  OutboxAggregateType = "order"
	AggregateCoupon OutboxAggregateType = "coupon"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregateCoupon
}

// OutboxEventType is "<aggregate>.<what happened>".
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order.created"
	EventOrderStatusChanged OutboxEventType = "order.status_changed"
	EventCouponConsumed     OutboxEventType = "coupon.consumed"
	EventCouponReleased     OutboxEventType = "coupon.released"
)

func (e OutboxEventType) IsValid() bool {
	switch e {
	case EventOrderCreated, EventOrderStatusChanged, EventCouponConsumed, EventCouponReleased:
		return true
	}
	return false
}

// Aggregate returns the aggregate named by the event's prefix.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	prefix, _, _ := strings.Cut(string(e), ".")
	return OutboxAggregateType(prefix)
}
