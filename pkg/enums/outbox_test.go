package enums

import "testing"

func TestOutboxEventAggregate(t *testing.T) {
	cases := map[OutboxEventType]OutboxAggregateType{
		EventOrderCreated:       AggregateOrder,
		EventOrderStatusChanged: AggregateOrder,
		EventCouponConsumed:     AggregateCoupon,
		EventCouponReleased:     AggregateCoupon,
	}
	for event, want := range cases {
		if !event.IsValid() {
			t.Fatalf("%s should be valid", event)
		}
		if got := event.Aggregate(); got != want || !got.IsValid() {
			t.Fatalf("%s: expected aggregate %s, got %s", event, want, got)
		}
	}
	if OutboxEventType("order.refunded").IsValid() {
		t.Fatal("unknown event type accepted")
	}
}

func TestParseOutboxDLQErrorReason(t *testing.T) {
	if _, err := ParseOutboxDLQErrorReason("max_attempts"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseOutboxDLQErrorReason("timeout"); err == nil {
		t.Fatal("expected error for unknown reason")
	}
}
