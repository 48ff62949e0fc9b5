package metrics

import "github.com/prometheus/client_golang/prometheus"

// Checkout results.
const (
	CheckoutPlaced            = "placed"
	CheckoutEmptyCart         = "empty_cart"
	CheckoutUnavailable       = "unavailable_product"
	CheckoutInsufficientStock = "insufficient_stock"
	CheckoutCouponRejected    = "coupon_rejected"
	CheckoutInvalidAmount     = "invalid_amount"
	CheckoutError             = "error"
)

// Storefront holds the pricing pipeline collectors.
type Storefront struct {
	checkouts         *prometheus.CounterVec
	couponValidations *prometheus.CounterVec
	orderTransitions  *prometheus.CounterVec
}

func NewStorefront(reg prometheus.Registerer) *Storefront {
	if reg == nil {
		return &Storefront{}
	}
	m := &Storefront{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by result.",
		}, []string{"result"}),
		couponValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coupon_validations_total",
			Help:      "Coupon validations by outcome.",
		}, []string{"outcome"}),
		orderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions.",
		}, []string{"from", "to"}),
	}
	reg.MustRegister(m.checkouts, m.couponValidations, m.orderTransitions)
	return m
}

func (m *Storefront) Checkout(result string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(result)).Inc()
}

// CouponValidation records a validator outcome ("valid" or a rejection reason).
func (m *Storefront) CouponValidation(outcome string) {
	if m == nil || m.couponValidations == nil {
		return
	}
	m.couponValidations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Storefront) OrderTransition(from, to string) {
	if m == nil || m.orderTransitions == nil {
		return
	}
	m.orderTransitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}
