package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubCouponService struct {
	coupons.Service
	result      *coupons.ValidationDTO
	err         error
	gotCode     string
	gotSubtotal decimal.Decimal
}

func (s *stubCouponService) Validate(ctx context.Context, userID uuid.UUID, code string, subtotal decimal.Decimal) (*coupons.ValidationDTO, error) {
	s.gotCode, s.gotSubtotal = code, subtotal
	return s.result, s.err
}

func TestCouponValidateUsesCartSubtotal(t *testing.T) {
	t.Parallel()

	svc := &stubCouponService{result: &coupons.ValidationDTO{
		Valid:   false,
		Code:    "BIG",
		Message: "minimum purchase of 500.00 required",
	}}
	carts := &stubCartService{view: &cart.ViewDTO{Subtotal: decimal.RequireFromString("120.50")}}

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", strings.NewReader(`{"code":"big"}`)), uuid.New())
	resp := httptest.NewRecorder()
	CouponValidate(svc, carts, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !svc.gotSubtotal.Equal(decimal.RequireFromString("120.50")) {
		t.Fatalf("expected cart subtotal, got %s", svc.gotSubtotal)
	}
	if !strings.Contains(resp.Body.String(), "500.00") {
		t.Fatalf("expected threshold in message: %s", resp.Body.String())
	}
}

func TestCouponValidatePrefersExplicitSubtotal(t *testing.T) {
	t.Parallel()

	svc := &stubCouponService{result: &coupons.ValidationDTO{Valid: true, Code: "TEN"}}
	carts := &stubCartService{err: pkgerrors.New(pkgerrors.CodeInternal, "should not load cart")}

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", strings.NewReader(`{"code":"TEN","subtotal":"80"}`)), uuid.New())
	resp := httptest.NewRecorder()
	CouponValidate(svc, carts, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !svc.gotSubtotal.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("expected explicit subtotal, got %s", svc.gotSubtotal)
	}
}

func TestCouponValidateRateLimited(t *testing.T) {
	t.Parallel()

	svc := &stubCouponService{err: pkgerrors.New(pkgerrors.CodeRateLimit, "too many coupon checks, slow down")}
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", strings.NewReader(`{"code":"A","subtotal":"1"}`)), uuid.New())
	resp := httptest.NewRecorder()
	CouponValidate(svc, &stubCartService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}
