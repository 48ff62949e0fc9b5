package orders

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/memberships"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type transitions [][2]string

func (r *transitions) OrderTransition(from, to string) { *r = append(*r, [2]string{from, to}) }

type orderFixture struct {
	svc     Service
	conn    *gorm.DB
	user    *models.User
	product models.Product
	seen    *transitions
}

func newOrderFixture(t *testing.T) orderFixture {
	t.Helper()
	ctx := context.Background()
	client := repo.OpenClient(t)
	conn := client.DB()

	tiers, err := memberships.NewService(memberships.NewRepository(conn), client, nil)
	require.NoError(t, err)
	require.NoError(t, tiers.EnsureDefaults(ctx))
	userSvc, err := users.NewService(users.NewRepository(conn), client, tiers, nil)
	require.NoError(t, err)
	products, err := product.NewService(product.NewRepository(conn), nil)
	require.NoError(t, err)
	couponSvc, err := coupons.NewService(coupons.ServiceParams{Repo: coupons.NewRepository(conn)})
	require.NoError(t, err)

	user, err := userSvc.Create(ctx, users.CreateUserDTO{Email: "buyer@example.com", PasswordHash: "h", DisplayName: "Buyer"})
	require.NoError(t, err)
	p := models.Product{Name: "Lamp", Price: decimal.RequireFromString("2500"), Stock: 3, IsActive: true}
	require.NoError(t, conn.Create(&p).Error)

	seen := &transitions{}
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Tx:      client,
		Outbox:  outbox.NewService(outbox.NewRepository(conn), nil),
		Stock:   products,
		Coupons: couponSvc,
		Loyalty: userSvc,
		Metrics: seen,
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return orderFixture{svc: svc, conn: conn, user: user, product: p, seen: seen}
}

// placeOrder stores a pending order for two units as checkout would leave it.
func (f orderFixture) placeOrder(t *testing.T, coupon *models.Coupon, createdAt time.Time) *models.Order {
	t.Helper()
	final := decimal.RequireFromString("5000")
	order := &models.Order{
		UserID:          f.user.ID,
		Status:          enums.OrderStatusPending,
		OriginalAmount:  final,
		DiscountAmount:  decimal.Zero,
		FinalAmount:     final,
		RecipientName:   "Buyer",
		RecipientPhone:  "0900000000",
		ShippingAddress: "2 Harbour St",
		CreatedAt:       createdAt,
		Items: []models.OrderLine{{
			ProductID:   f.product.ID,
			ProductName: f.product.Name,
			UnitPrice:   f.product.Price,
			Quantity:    2,
			LineTotal:   final,
		}},
	}
	if coupon != nil {
		order.CouponID = &coupon.ID
		order.CouponCode = &coupon.Code
	}
	require.NoError(t, f.conn.Create(order).Error)
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", f.product.ID).Update("stock", 1).Error)
	return order
}

func (f orderFixture) reloadUser(t *testing.T) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, f.conn.First(&u, "id = ?", f.user.ID).Error)
	return u
}

func (f orderFixture) stock(t *testing.T) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.conn.First(&p, "id = ?", f.product.ID).Error)
	return p.Stock
}

func (f orderFixture) levelName(t *testing.T, id *uuid.UUID) string {
	t.Helper()
	require.NotNil(t, id)
	var level models.MembershipLevel
	require.NoError(t, f.conn.First(&level, "id = ?", *id).Error)
	return level.Name
}

func TestPaidAwardsPointsAndResolvesTier(t *testing.T) {
	t.Parallel()
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, nil, fixedNow)

	dto, err := f.svc.UpdateStatus(ctx, StatusInput{OrderID: order.ID, Status: enums.OrderStatusPaid})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, dto.Status)
	assert.Equal(t, 500, dto.PointsAwarded)
	require.NotNil(t, dto.PaidAt)

	u := f.reloadUser(t)
	assert.Equal(t, 500, u.Points)
	assert.True(t, u.TotalSpent.Equal(decimal.RequireFromString("5000")))
	assert.Equal(t, "Silver", f.levelName(t, u.MembershipLevelID))
	assert.Equal(t, transitions{{"pending", "paid"}}, *f.seen)
}

func TestTransitionsFollowTheLifecycle(t *testing.T) {
	t.Parallel()
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, nil, fixedNow)

	_, err := f.svc.UpdateStatus(ctx, StatusInput{OrderID: order.ID, Status: enums.OrderStatusShipped})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	for _, next := range []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusShipped, enums.OrderStatusDelivered} {
		_, err := f.svc.UpdateStatus(ctx, StatusInput{OrderID: order.ID, Status: next})
		require.NoError(t, err, "moving to %s", next)
	}

	_, err = f.svc.UpdateStatus(ctx, StatusInput{OrderID: order.ID, Status: enums.OrderStatusCancelled})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.UpdateStatus(ctx, StatusInput{OrderID: order.ID, Status: "refunded"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateStatus(ctx, StatusInput{OrderID: uuid.New(), Status: enums.OrderStatusPaid})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderStatusChanged).Count(&events).Error)
	assert.EqualValues(t, 3, events)
}

func TestCancelMineRestoresStockAndReleasesCoupon(t *testing.T) {
	t.Parallel()
	f := newOrderFixture(t)
	ctx := context.Background()

	limit := 1
	coupon := models.Coupon{
		Code: "ONCE", Name: "Once", DiscountType: enums.DiscountTypeFixed,
		DiscountValue: decimal.RequireFromString("100"),
		ValidFrom:     fixedNow.Add(-time.Hour), ValidUntil: fixedNow.Add(time.Hour),
		UsageLimit: &limit, UsedCount: 1, IsActive: true,
	}
	require.NoError(t, f.conn.Create(&coupon).Error)
	order := f.placeOrder(t, &coupon, fixedNow)
	usedAt := fixedNow
	claim := models.UserCoupon{UserID: f.user.ID, CouponID: coupon.ID, ClaimedAt: fixedNow.Add(-time.Minute), Used: true, UsedAt: &usedAt, OrderID: &order.ID}
	require.NoError(t, f.conn.Create(&claim).Error)

	_, err := f.svc.CancelMine(ctx, uuid.New(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	dto, err := f.svc.CancelMine(ctx, f.user.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, dto.Status)
	require.NotNil(t, dto.CancelledAt)
	assert.Equal(t, 3, f.stock(t))

	var reloaded models.Coupon
	require.NoError(t, f.conn.First(&reloaded, "id = ?", coupon.ID).Error)
	assert.Zero(t, reloaded.UsedCount)
	var reopened models.UserCoupon
	require.NoError(t, f.conn.First(&reopened, "id = ?", claim.ID).Error)
	assert.False(t, reopened.Used)
	assert.Nil(t, reopened.OrderID)

	var released int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventCouponReleased).Count(&released).Error)
	assert.EqualValues(t, 1, released)

	_, err = f.svc.CancelMine(ctx, f.user.ID, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestCancelMineRejectsPaidOrders(t *testing.T) {
	t.Parallel()
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, nil, fixedNow)
	_, err := f.svc.UpdateStatus(ctx, StatusInput{OrderID: order.ID, Status: enums.OrderStatusPaid})
	require.NoError(t, err)

	_, err = f.svc.CancelMine(ctx, f.user.ID, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestAdminCancelOfPaidOrderReversesPoints(t *testing.T) {
	t.Parallel()
	f := newOrderFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t, nil, fixedNow)
	_, err := f.svc.UpdateStatus(ctx, StatusInput{OrderID: order.ID, Status: enums.OrderStatusPaid})
	require.NoError(t, err)

	reason := "customer request"
	_, err = f.svc.UpdateStatus(ctx, StatusInput{OrderID: order.ID, Status: enums.OrderStatusCancelled, Reason: &reason})
	require.NoError(t, err)

	u := f.reloadUser(t)
	assert.Zero(t, u.Points)
	assert.True(t, u.TotalSpent.IsZero())
	assert.Equal(t, "Bronze", f.levelName(t, u.MembershipLevelID))
	assert.Equal(t, 3, f.stock(t))
}

func TestExpirePendingCancelsOnlyStaleOrders(t *testing.T) {
	t.Parallel()
	f := newOrderFixture(t)
	ctx := context.Background()
	stale := f.placeOrder(t, nil, fixedNow.Add(-80*time.Hour))
	fresh := f.placeOrder(t, nil, fixedNow.Add(-time.Hour))

	n, err := f.svc.ExpirePending(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, got.Status)
	got, err = f.svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, got.Status)
}

func TestListings(t *testing.T) {
	t.Parallel()
	f := newOrderFixture(t)
	ctx := context.Background()
	first := f.placeOrder(t, nil, fixedNow.Add(-2*time.Hour))
	second := f.placeOrder(t, nil, fixedNow.Add(-time.Hour))
	_, err := f.svc.UpdateStatus(ctx, StatusInput{OrderID: first.ID, Status: enums.OrderStatusPaid})
	require.NoError(t, err)

	page, err := f.svc.ListMine(ctx, f.user.ID, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, second.ID, page.Items[0].ID)
	require.NotEmpty(t, page.NextCursor)
	assert.Len(t, page.Items[0].Items, 1)

	next, err := f.svc.ListMine(ctx, f.user.ID, pagination.Params{Limit: 1, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Equal(t, first.ID, next.Items[0].ID)

	other, err := f.svc.ListMine(ctx, uuid.New(), pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, other.Items)

	paid := enums.OrderStatusPaid
	filtered, err := f.svc.List(ctx, &paid, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, filtered.Items, 1)
	assert.Equal(t, first.ID, filtered.Items[0].ID)

	_, err = f.svc.List(ctx, nil, pagination.Params{Cursor: "not-a-cursor!"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.GetMine(ctx, uuid.New(), first.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
