package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/store"
)

func newIntegrationStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	databaseURL := os.Getenv("PUNTOVENTA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PUNTOVENTA_TEST_DATABASE_URL to run postgres integration tests")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, ctx
}

func seedIntegrationProduct(t *testing.T, ctx context.Context, s *Store, stock int) domain.Product {
	t.Helper()
	name := fmt.Sprintf("Producto IT %d", time.Now().UnixNano())
	created, err := s.CreateProduct(ctx, domain.Product{
		Name:      name,
		CostPrice: decimal.RequireFromString("10.00"),
		MarginPct: decimal.RequireFromString("50"),
		SalePrice: decimal.RequireFromString("15.00"),
		Stock:     stock,
		MinStock:  1,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM Detalle_Ventas WHERE id_producto = $1`, created.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM Productos WHERE id_producto = $1`, created.ID)
	})
	return *created
}

func TestRecordSaleDecrementsStock(t *testing.T) {
	s, ctx := newIntegrationStore(t)
	product := seedIntegrationProduct(t, ctx, s, 5)

	sale, err := s.RecordSale(ctx, store.SaleInput{
		SaleDate: time.Now(),
		Items: []domain.SaleItemInput{
			{ProductID: product.ID, Qty: 3, UnitPrice: decimal.RequireFromString("15.00")},
		},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM Detalle_Ventas WHERE id_venta = $1`, sale.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM Ventas WHERE id_venta = $1`, sale.ID)
	})

	if !sale.Total.Equal(decimal.RequireFromString("45.00")) {
		t.Fatalf("total = %s, want 45.00", sale.Total)
	}

	after, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 2 {
		t.Fatalf("stock = %d, want 2", after.Stock)
	}
}

func TestRecordSaleDuplicateLinesRollBack(t *testing.T) {
	s, ctx := newIntegrationStore(t)
	product := seedIntegrationProduct(t, ctx, s, 3)

	_, err := s.RecordSale(ctx, store.SaleInput{
		SaleDate: time.Now(),
		Items: []domain.SaleItemInput{
			{ProductID: product.ID, Qty: 2, UnitPrice: decimal.RequireFromString("15.00")},
			{ProductID: product.ID, Qty: 2, UnitPrice: decimal.RequireFromString("15.00")},
		},
	})
	var insufficient *store.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientStockError", err)
	}
	if insufficient.Available != 1 || insufficient.Requested != 2 {
		t.Fatalf("second line should see 1 remaining after the first: %+v", insufficient)
	}

	after, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Stock != 3 {
		t.Fatalf("stock = %d, want untouched 3", after.Stock)
	}
}

func TestRecordSaleUnknownProduct(t *testing.T) {
	s, ctx := newIntegrationStore(t)

	_, err := s.RecordSale(ctx, store.SaleInput{
		SaleDate: time.Now(),
		Items: []domain.SaleItemInput{
			{ProductID: -12345, Qty: 1, UnitPrice: decimal.RequireFromString("1.00")},
		},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
