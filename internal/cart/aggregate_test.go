package cart

import (
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestSubtotalSkipsUnresolvedLines(t *testing.T) {
	t.Parallel()

	tea := models.Product{ID: uuid.New(), Name: "Tea", Price: decimal.RequireFromString("120.50"), Stock: 10, IsActive: true}
	cup := models.Product{ID: uuid.New(), Name: "Cup", Price: decimal.RequireFromString("300"), Stock: 1, IsActive: true}
	retired := models.Product{ID: uuid.New(), Name: "Old", Price: decimal.RequireFromString("50"), Stock: 5, IsActive: false}
	missing := uuid.New()

	rows := []models.CartItem{
		{ProductID: tea.ID, Quantity: 2},
		{ProductID: cup.ID, Quantity: 3},
		{ProductID: missing, Quantity: 4},
		{ProductID: retired.ID, Quantity: 1},
	}
	lines := Hydrate(rows, map[uuid.UUID]models.Product{tea.ID: tea, cup.ID: cup, retired.ID: retired})

	if got := Subtotal(lines); !got.Equal(decimal.RequireFromString("1141")) {
		t.Fatalf("expected subtotal 1141, got %s", got)
	}

	shortfalls := StockShortfalls(lines)
	if len(shortfalls) != 1 {
		t.Fatalf("expected one shortfall, got %+v", shortfalls)
	}
	want := Shortfall{ProductID: cup.ID, Name: "Cup", Requested: 3, Available: 1}
	if shortfalls[0] != want {
		t.Fatalf("unexpected shortfall %+v", shortfalls[0])
	}

	unavailable := Unavailable(lines)
	if len(unavailable) != 2 || unavailable[0] != missing || unavailable[1] != retired.ID {
		t.Fatalf("unexpected unavailable set %v", unavailable)
	}

	if w := lines[2].Warnings(); len(w) != 1 || w[0] != enums.CartLineWarningNotAvailable {
		t.Fatalf("expected not_available warning, got %v", w)
	}
	if w := lines[1].Warnings(); len(w) != 1 || w[0] != enums.CartLineWarningInsufficientStock {
		t.Fatalf("expected insufficient_stock warning, got %v", w)
	}
}

func TestSubtotalEmpty(t *testing.T) {
	t.Parallel()

	if !Subtotal(nil).IsZero() {
		t.Fatal("expected zero subtotal for empty cart")
	}
	if StockShortfalls(nil) != nil {
		t.Fatal("expected no shortfalls for empty cart")
	}
}
