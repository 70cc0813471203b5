package store

import (
	"context"
	"errors"

	"puntoventa/backend/internal/domain"
)

// ErrNotFound is returned by plain reads for an absent row. Sale-path
// failures use the fault taxonomy instead so they carry a code.
var ErrNotFound = errors.New("not found")

// Repository is the storage surface of the sale engine. CreateSale is the
// stock-aware order writer: an all-or-nothing transaction that locks product
// rows in ascending SKU order, re-validates, decrements stock and inserts the
// sale header, lines and payment.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)

	// CreateProduct and SetStock exist for seeding and admin correction;
	// product CRUD proper belongs to the inventory subsystem.
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SetStock(ctx context.Context, sku string, qty int) error

	CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error)
	// DeleteSale removes a committed sale (admin correction), cascading to
	// its lines and payment and restoring the decremented stock.
	DeleteSale(ctx context.Context, id int64) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
