package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedResults []string

func (r *recordedResults) Checkout(result string) { *r = append(*r, result) }

type checkoutFixture struct {
	svc     Service
	conn    *gorm.DB
	results *recordedResults
	user    uuid.UUID
}

func newCheckoutFixture(t *testing.T) checkoutFixture {
	t.Helper()
	client := repo.OpenClient(t)
	conn := client.DB()

	products, err := product.NewService(product.NewRepository(conn), nil)
	require.NoError(t, err)
	carts, err := cart.NewService(cart.NewRepository(conn), client, products, nil)
	require.NoError(t, err)
	couponSvc, err := coupons.NewService(coupons.ServiceParams{Repo: coupons.NewRepository(conn)})
	require.NoError(t, err)

	results := &recordedResults{}
	svc, err := NewService(ServiceParams{
		Tx:      client,
		Cart:    carts,
		Coupons: couponSvc,
		Stock:   products,
		Orders:  orders.NewRepository(conn),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), nil),
		Metrics: results,
	})
	require.NoError(t, err)
	return checkoutFixture{svc: svc, conn: conn, results: results, user: uuid.New()}
}

func (f checkoutFixture) product(t *testing.T, price string, stock int) models.Product {
	t.Helper()
	p := models.Product{Name: "Item " + price, Price: decimal.RequireFromString(price), Stock: stock, IsActive: true, ImageURL: "products/main/1_abcdef.png"}
	require.NoError(t, f.conn.Create(&p).Error)
	return p
}

// cartLine writes the row directly so tests can exceed stock.
func (f checkoutFixture) cartLine(t *testing.T, productID uuid.UUID, qty int) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.CartItem{UserID: f.user, ProductID: productID, Quantity: qty}).Error)
}

func (f checkoutFixture) coupon(t *testing.T, mutate func(c *models.Coupon)) models.Coupon {
	t.Helper()
	maxDiscount := decimal.RequireFromString("80")
	c := models.Coupon{
		Code:          "SAVE10",
		Name:          "Save ten",
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: decimal.RequireFromString("10"),
		MaxDiscount:   &maxDiscount,
		ValidFrom:     time.Now().UTC().Add(-time.Hour),
		ValidUntil:    time.Now().UTC().Add(time.Hour),
		IsActive:      true,
	}
	if mutate != nil {
		mutate(&c)
	}
	require.NoError(t, f.conn.Create(&c).Error)
	return c
}

func (f checkoutFixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Count(&n).Error)
	return n
}

func recipient(code string) Input {
	return Input{
		CouponCode:      code,
		RecipientName:   "Lin",
		RecipientPhone:  "0912345678",
		ShippingAddress: "1 Market Rd",
	}
}

func TestPlaceAppliesCappedCoupon(t *testing.T) {
	t.Parallel()
	f := newCheckoutFixture(t)
	ctx := context.Background()
	p := f.product(t, "500", 5)
	f.cartLine(t, p.ID, 2)
	c := f.coupon(t, nil)

	order, err := f.svc.Place(ctx, f.user, recipient(" save10 "))
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.True(t, order.OriginalAmount.Equal(decimal.RequireFromString("1000")))
	assert.True(t, order.DiscountAmount.Equal(decimal.RequireFromString("80")))
	assert.True(t, order.FinalAmount.Equal(decimal.RequireFromString("920")))
	require.NotNil(t, order.CouponCode)
	assert.Equal(t, "SAVE10", *order.CouponCode)

	var stored models.Product
	require.NoError(t, f.conn.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, 3, stored.Stock)

	var used models.Coupon
	require.NoError(t, f.conn.First(&used, "id = ?", c.ID).Error)
	assert.Equal(t, 1, used.UsedCount)

	var lines []models.OrderLine
	require.NoError(t, f.conn.Where("order_id = ?", order.ID).Find(&lines).Error)
	require.Len(t, lines, 1)
	assert.Equal(t, p.Name, lines[0].ProductName)
	assert.True(t, lines[0].LineTotal.Equal(decimal.RequireFromString("1000")))

	assert.Zero(t, f.count(t, &models.CartItem{}))
	var events []models.OutboxEvent
	require.NoError(t, f.conn.Order("created_at ASC").Find(&events).Error)
	types := []enums.OutboxEventType{}
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventCouponConsumed, enums.EventOrderCreated}, types)
	assert.Equal(t, []string{metrics.CheckoutPlaced}, []string(*f.results))
}

func TestPlaceRejectsShortfallBeforeWriting(t *testing.T) {
	t.Parallel()
	f := newCheckoutFixture(t)
	ctx := context.Background()
	p := f.product(t, "100", 3)
	f.cartLine(t, p.ID, 5)

	_, err := f.svc.Place(ctx, f.user, recipient(""))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, "insufficient stock", pkgerrors.As(err).Message())
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	shortfalls := details["shortfalls"].([]cart.Shortfall)
	require.Len(t, shortfalls, 1)
	assert.Equal(t, 5, shortfalls[0].Requested)
	assert.Equal(t, 3, shortfalls[0].Available)

	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))
	assert.EqualValues(t, 1, f.count(t, &models.CartItem{}))
	var stored models.Product
	require.NoError(t, f.conn.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, 3, stored.Stock)
	assert.Equal(t, []string{metrics.CheckoutInsufficientStock}, []string(*f.results))
}

func TestPlaceRejections(t *testing.T) {
	t.Parallel()

	t.Run("empty cart", func(t *testing.T) {
		f := newCheckoutFixture(t)
		_, err := f.svc.Place(context.Background(), f.user, recipient(""))
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		assert.Equal(t, []string{metrics.CheckoutEmptyCart}, []string(*f.results))
	})

	t.Run("missing recipient", func(t *testing.T) {
		f := newCheckoutFixture(t)
		_, err := f.svc.Place(context.Background(), f.user, Input{RecipientName: "Lin"})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	})

	t.Run("unavailable product", func(t *testing.T) {
		f := newCheckoutFixture(t)
		f.cartLine(t, uuid.New(), 1)
		_, err := f.svc.Place(context.Background(), f.user, recipient(""))
		require.Error(t, err)
		assert.Equal(t, "cart contains unavailable products", pkgerrors.As(err).Message())
	})

	t.Run("rejected coupon", func(t *testing.T) {
		f := newCheckoutFixture(t)
		p := f.product(t, "100", 5)
		f.cartLine(t, p.ID, 1)
		f.coupon(t, func(c *models.Coupon) {
			threshold := decimal.RequireFromString("500")
			c.MinPurchase = &threshold
		})
		_, err := f.svc.Place(context.Background(), f.user, recipient("SAVE10"))
		require.Error(t, err)
		assert.Contains(t, pkgerrors.As(err).Message(), "500.00")
		assert.Zero(t, f.count(t, &models.Order{}))
		assert.Equal(t, []string{metrics.CheckoutCouponRejected}, []string(*f.results))
	})

	t.Run("unknown coupon", func(t *testing.T) {
		f := newCheckoutFixture(t)
		p := f.product(t, "100", 5)
		f.cartLine(t, p.ID, 1)
		_, err := f.svc.Place(context.Background(), f.user, recipient("NOPE"))
		require.Error(t, err)
		assert.Equal(t, "coupon not found", pkgerrors.As(err).Message())
	})

	t.Run("discount consumes whole amount", func(t *testing.T) {
		f := newCheckoutFixture(t)
		p := f.product(t, "50", 5)
		f.cartLine(t, p.ID, 1)
		f.coupon(t, func(c *models.Coupon) {
			c.DiscountType = enums.DiscountTypeFixed
			c.DiscountValue = decimal.RequireFromString("100")
			c.MaxDiscount = nil
		})
		_, err := f.svc.Place(context.Background(), f.user, recipient("SAVE10"))
		require.Error(t, err)
		assert.Equal(t, "invalid order amount", pkgerrors.As(err).Message())
		assert.Equal(t, []string{metrics.CheckoutInvalidAmount}, []string(*f.results))
	})
}

func TestPlaceRollsBackWhenStockRaceIsLost(t *testing.T) {
	t.Parallel()
	f := newCheckoutFixture(t)
	a := f.product(t, "100", 5)
	b := f.product(t, "200", 5)
	f.cartLine(t, a.ID, 2)
	f.cartLine(t, b.ID, 2)

	// Another buyer takes b's stock after the cart was validated.
	racing := &racingStock{inner: nil, conn: f.conn, target: b.ID}
	svc := f.svc.(*service)
	racing.inner = svc.stock
	svc.stock = racing

	_, err := f.svc.Place(context.Background(), f.user, recipient(""))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var stored models.Product
	require.NoError(t, f.conn.First(&stored, "id = ?", a.ID).Error)
	assert.Equal(t, 5, stored.Stock)
	assert.Zero(t, f.count(t, &models.Order{}))
	assert.EqualValues(t, 2, f.count(t, &models.CartItem{}))
	assert.Equal(t, []string{metrics.CheckoutInsufficientStock}, []string(*f.results))
}

type racingStock struct {
	inner  stockDecrementer
	conn   *gorm.DB
	target uuid.UUID
}

func (r *racingStock) DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if productID == r.target {
		if err := tx.Model(&models.Product{}).Where("id = ?", productID).Update("stock", 1).Error; err != nil {
			return err
		}
	}
	return r.inner.DecrementStock(ctx, tx, productID, qty)
}

func TestPlaceFailsWhenCouponIsUsedUpConcurrently(t *testing.T) {
	t.Parallel()
	f := newCheckoutFixture(t)
	p := f.product(t, "100", 5)
	f.cartLine(t, p.ID, 1)
	limit := 1
	c := f.coupon(t, func(c *models.Coupon) { c.UsageLimit = &limit })

	svc := f.svc.(*service)
	svc.coupons = &exhaustingCoupons{couponService: svc.coupons, conn: f.conn, id: c.ID}

	_, err := f.svc.Place(context.Background(), f.user, recipient("SAVE10"))
	require.Error(t, err)
	assert.Equal(t, "usage limit reached", pkgerrors.As(err).Message())
	var stored models.Product
	require.NoError(t, f.conn.First(&stored, "id = ?", p.ID).Error)
	assert.Equal(t, 5, stored.Stock)
	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Equal(t, []string{metrics.CheckoutCouponRejected}, []string(*f.results))
}

// exhaustingCoupons lets validation pass, then spends the last use before
// the conditional increment runs.
type exhaustingCoupons struct {
	couponService
	conn *gorm.DB
	id   uuid.UUID
}

func (e *exhaustingCoupons) Consume(ctx context.Context, tx *gorm.DB, couponID, userID, orderID uuid.UUID) (*models.Coupon, error) {
	if err := tx.Model(&models.Coupon{}).Where("id = ?", e.id).Update("used_count", 1).Error; err != nil {
		return nil, err
	}
	return e.couponService.Consume(ctx, tx, couponID, userID, orderID)
}

func TestQuoteDoesNotWrite(t *testing.T) {
	t.Parallel()
	f := newCheckoutFixture(t)
	p := f.product(t, "500", 5)
	f.cartLine(t, p.ID, 2)
	f.coupon(t, nil)

	quote, err := f.svc.Quote(context.Background(), f.user, "save10")
	require.NoError(t, err)
	assert.True(t, quote.Final.Equal(decimal.RequireFromString("920")))
	require.NotNil(t, quote.Coupon)
	assert.True(t, quote.Coupon.Valid)
	assert.Equal(t, 2, quote.ItemCount)
	assert.Zero(t, f.count(t, &models.Order{}))

	var c models.Coupon
	require.NoError(t, f.conn.First(&c, "code = ?", "SAVE10").Error)
	assert.Zero(t, c.UsedCount)
}

func TestComputeTotals(t *testing.T) {
	t.Parallel()
	got := ComputeTotals(decimal.RequireFromString("1000"), decimal.RequireFromString("80"))
	assert.True(t, got.Final.Equal(decimal.RequireFromString("920")))
	got = ComputeTotals(decimal.RequireFromString("10"), decimal.RequireFromString("-5"))
	assert.True(t, got.Discount.IsZero())
	assert.True(t, got.Final.Equal(decimal.RequireFromString("10")))
}
