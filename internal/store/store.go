package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"puntoventa/backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnavailable     = errors.New("datastore unavailable")
)

// InsufficientStockError aborts a sale whose stock check failed. Available is
// the stock seen under the row lock, after decrements from earlier lines of
// the same call.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

// NotFoundError wraps ErrNotFound with the entity that was missing so callers
// can report which reference was dangling mid-transaction.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// SaleInput is the validated form of a sale handed to the datastore. Items
// keep caller order: repeated products are checked line by line against the
// progressively decremented stock.
type SaleInput struct {
	ClientID *int64
	SaleDate time.Time
	Items    []domain.SaleItemInput
}

type PurchaseInput struct {
	SupplierID   *int64
	PurchaseDate time.Time
	Items        []domain.SaleItemInput
}

type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	RecordSale(ctx context.Context, sale SaleInput) (*domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)

	RecordPurchase(ctx context.Context, purchase PurchaseInput) (*domain.Purchase, error)
	GetPurchase(ctx context.Context, id int64) (*domain.Purchase, error)
	ListPurchases(ctx context.Context) ([]domain.Purchase, error)

	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	DeleteClient(ctx context.Context, id int64) error

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id int64) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id int64) error

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)

	ReportSales(ctx context.Context, from time.Time, to time.Time) (*domain.SalesReport, error)
	ReportPurchases(ctx context.Context, from time.Time, to time.Time) (*domain.PurchasesReport, error)
	ReportProfitByProduct(ctx context.Context, from time.Time, to time.Time) (*domain.ProfitReport, error)
	ReportLowStock(ctx context.Context) ([]domain.LowStockEntry, error)
	ReportStockCatalog(ctx context.Context) ([]domain.StockCatalogEntry, error)
}
