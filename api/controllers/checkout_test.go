package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubCheckoutService struct {
	order *models.Order
	quote *checkout.QuoteDTO
	err   error
	input checkout.Input
	code  string
}

func (s *stubCheckoutService) Quote(ctx context.Context, userID uuid.UUID, couponCode string) (*checkout.QuoteDTO, error) {
	s.code = couponCode
	return s.quote, s.err
}

func (s *stubCheckoutService) Place(ctx context.Context, userID uuid.UUID, input checkout.Input) (*models.Order, error) {
	s.input = input
	return s.order, s.err
}

func withUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func TestCheckoutSuccess(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	code := "SPRING"
	svc := &stubCheckoutService{order: &models.Order{
		ID:             uuid.New(),
		UserID:         userID,
		Status:         enums.OrderStatusPending,
		OriginalAmount: decimal.RequireFromString("120.00"),
		DiscountAmount: decimal.RequireFromString("20.00"),
		FinalAmount:    decimal.RequireFromString("100.00"),
		CouponCode:     &code,
	}}

	body := `{"coupon_code":" spring ","recipient_name":"Ana","recipient_phone":"555-0100","shipping_address":"1 Main St"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body)), userID)
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.input.CouponCode != "spring" {
		t.Fatalf("expected trimmed coupon code, got %q", svc.input.CouponCode)
	}
	if svc.input.Note != nil {
		t.Fatalf("expected nil note")
	}

	var envelope struct {
		Data struct {
			FinalAmount string `json:"final_amount"`
			Status      string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.FinalAmount != "100" {
		t.Fatalf("unexpected final amount %q", envelope.Data.FinalAmount)
	}
	if envelope.Data.Status != string(enums.OrderStatusPending) {
		t.Fatalf("unexpected status %q", envelope.Data.Status)
	}
}

func TestCheckoutRequiresRecipient(t *testing.T) {
	t.Parallel()

	svc := &stubCheckoutService{}
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"recipient_phone":"1","shipping_address":"x"}`)), uuid.New())
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCheckoutSurfacesServiceError(t *testing.T) {
	t.Parallel()

	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeValidation, "invalid order amount")}
	body := `{"recipient_name":"Ana","recipient_phone":"555","shipping_address":"1 Main St"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body)), uuid.New())
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "invalid order amount") {
		t.Fatalf("expected message in body: %s", resp.Body.String())
	}
}

func TestCheckoutRequiresUser(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	Checkout(&stubCheckoutService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCheckoutQuotePassesCode(t *testing.T) {
	t.Parallel()

	svc := &stubCheckoutService{quote: &checkout.QuoteDTO{ItemCount: 2}}
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/quote", strings.NewReader(`{"coupon_code":"WELCOME"}`)), uuid.New())
	resp := httptest.NewRecorder()
	CheckoutQuote(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.code != "WELCOME" {
		t.Fatalf("expected code forwarded, got %q", svc.code)
	}
}
