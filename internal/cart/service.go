package cart

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// View is a cart hydrated with products and its derived totals.
type View struct {
	Lines       []Line
	Subtotal    decimal.Decimal
	Shortfalls  []Shortfall
	Unavailable []uuid.UUID
}

// Service exposes cart mutations and the aggregate read used by checkout.
type Service interface {
	AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*MutationDTO, error)
	UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*MutationDTO, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) error
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
	Load(ctx context.Context, userID uuid.UUID) (*View, error)
	Get(ctx context.Context, userID uuid.UUID) (*ViewDTO, error)
}

type service struct {
	repo     *Repository
	tx       txRunner
	products productReader
	logg     *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo *Repository, tx txRunner, products productReader, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product reader required")
	}
	return &service{repo: repo, tx: tx, products: products, logg: logg}, nil
}

// AddItem increments the existing line for the product or creates it. The
// resulting quantity is clamped to stock with a warning.
func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*MutationDTO, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	product, err := s.purchasable(ctx, productID)
	if err != nil {
		return nil, err
	}

	var result *MutationDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current := 0
		existing, err := repo.FindLineForUpdate(ctx, userID, productID)
		switch {
		case err == nil:
			current = existing.Quantity
		case !db.IsNotFound(err):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart line")
		}

		result = clamp(productID, current+qty, product.Stock)
		line := &models.CartItem{UserID: userID, ProductID: productID, Quantity: result.Quantity}
		if err := repo.Upsert(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart line")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateQuantity sets an existing line to qty, clamped to stock.
func (s *service) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*MutationDTO, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	product, err := s.purchasable(ctx, productID)
	if err != nil {
		return nil, err
	}
	result := clamp(productID, qty, product.Stock)
	found, err := s.repo.SetQuantity(ctx, userID, productID, result.Quantity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart line")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	return result, nil
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	found, err := s.repo.Delete(ctx, userID, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart line")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	return nil
}

// Clear empties the cart, inside tx when one is given.
func (s *service) Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	if _, err := repo.Clear(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// Load reads the cart, hydrates every line with one product query and
// derives the subtotal, shortfalls and unavailable lines.
func (s *service) Load(ctx context.Context, userID uuid.UUID) (*View, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := Hydrate(rows, products)
	view := &View{
		Lines:       lines,
		Subtotal:    Subtotal(lines),
		Shortfalls:  StockShortfalls(lines),
		Unavailable: Unavailable(lines),
	}
	if len(view.Unavailable) > 0 && s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"user_id":     userID.String(),
			"product_ids": view.Unavailable,
		}), "cart references unavailable products")
	}
	return view, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*ViewDTO, error) {
	view, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	dto := viewToDTO(view)
	return &dto, nil
}

func (s *service) purchasable(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	found, err := s.products.FindByIDs(ctx, []uuid.UUID{productID})
	if err != nil {
		return nil, err
	}
	product, ok := found[productID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}
	if product.Stock <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is out of stock")
	}
	return &product, nil
}

func clamp(productID uuid.UUID, requested, stock int) *MutationDTO {
	result := &MutationDTO{ProductID: productID, Quantity: requested}
	if requested > stock {
		warning := enums.CartLineWarningClampedToStock
		result.Quantity = stock
		result.Warning = &warning
		result.Message = fmt.Sprintf("only %d in stock; quantity adjusted", stock)
	}
	return result
}
