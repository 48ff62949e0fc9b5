package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/storage/objectpath"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const maxHoverImages = 8

// Service exposes catalog management and the stock guards used by checkout.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, productID uuid.UUID) error
	GetProduct(ctx context.Context, productID uuid.UUID, includeInactive bool) (*ProductDTO, error)
	ListProducts(ctx context.Context, input ListProductsInput) (pagination.Page[ProductDTO], error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	RestoreStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// ListProductsInput captures storefront and console listing filters.
type ListProductsInput struct {
	Category        string
	IncludeInactive bool
	Page            pagination.Params
}

type service struct {
	repo *Repository
	logg *logger.Logger
}

// NewService constructs a product service instance.
func NewService(repo *Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	product := &models.Product{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Price:       input.Price,
		Stock:       input.Stock,
		Category:    strings.TrimSpace(input.Category),
		ImageURL:    strings.TrimSpace(input.ImageURL),
		HoverImages: pq.StringArray(input.HoverImages),
		IsActive:    input.IsActive,
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	dto := FromModel(*product)
	return &dto, nil
}

func (s *service) UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, s.lookupError(ctx, productID, err)
	}
	applyUpdate(product, input)
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	dto := FromModel(*product)
	return &dto, nil
}

// DeleteProduct removes the catalog row. Cart lines pointing at it surface as
// unavailable until the shopper removes them; order lines keep their snapshot.
func (s *service) DeleteProduct(ctx context.Context, productID uuid.UUID) error {
	found, err := s.repo.DeleteProduct(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	if !found {
		return s.lookupError(ctx, productID, gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *service) GetProduct(ctx context.Context, productID uuid.UUID, includeInactive bool) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, s.lookupError(ctx, productID, err)
	}
	if !product.IsActive && !includeInactive {
		return nil, s.lookupError(ctx, productID, gorm.ErrRecordNotFound)
	}
	dto := FromModel(*product)
	return &dto, nil
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (pagination.Page[ProductDTO], error) {
	rows, err := s.repo.List(ctx, ListFilter{
		Category:   input.Category,
		ActiveOnly: !input.IncludeInactive,
		Page:       input.Page,
	})
	if err != nil {
		return pagination.Page[ProductDTO]{}, listError(err)
	}
	dtos := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	return pagination.Build(dtos, input.Page.Limit, func(p ProductDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}), nil
}

func (s *service) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	products, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	return products, nil
}

// DecrementStock atomically takes qty units; losing the race is a conflict.
func (s *service) DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	ok, err := s.repo.WithTx(tx).DecrementStock(ctx, productID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
			WithDetails(map[string]any{"product_id": productID, "requested": qty})
	}
	return nil
}

// RestoreStock returns qty units; a deleted product is logged and skipped.
func (s *service) RestoreStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	ok, err := s.repo.WithTx(tx).RestoreStock(ctx, productID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
	}
	if !ok && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "product_id", productID.String()), "stock restore skipped for missing product")
	}
	return nil
}

func (s *service) lookupError(ctx context.Context, id uuid.UUID, err error) error {
	if db.IsNotFound(err) {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "product_id", id.String()), "product not found")
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
}

func applyUpdate(product *models.Product, input UpdateProductInput) {
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		product.Description = *input.Description
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}
	if input.Category != nil {
		product.Category = strings.TrimSpace(*input.Category)
	}
	if input.ImageURL != nil {
		product.ImageURL = strings.TrimSpace(*input.ImageURL)
	}
	if input.HoverImages != nil {
		product.HoverImages = pq.StringArray(*input.HoverImages)
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
}

func validateProduct(product *models.Product) error {
	if product.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if !product.Price.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero")
	}
	if product.Stock < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock must be >= 0")
	}
	if product.ImageURL != "" {
		if err := objectpath.Validate(objectpath.ProductMain, product.ImageURL); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid image_url")
		}
	}
	if len(product.HoverImages) > maxHoverImages {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d hover images allowed", maxHoverImages)
	}
	for _, ref := range product.HoverImages {
		if err := objectpath.Validate(objectpath.ProductHover, ref); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid hover image")
		}
	}
	return nil
}

func listError(err error) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
}
