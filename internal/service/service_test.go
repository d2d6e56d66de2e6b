package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"puntoventa/backend/internal/cache"
	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/store"
	"puntoventa/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopReportCache{}, 0, nil)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func vendorCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "vendedor", Role: "vendedor"})
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func decPtr(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d := dec(t, s)
	return &d
}

func mustCreateProduct(t *testing.T, svc *Service, req domain.ProductCreateRequest) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminCtx(), req)
	if err != nil {
		t.Fatalf("create product %q failed: %v", req.Name, err)
	}
	return product
}

func TestCreateProductDerivesSalePrice(t *testing.T) {
	svc := newTestService()

	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{
		Name:      "Azucar 1kg",
		CostPrice: decPtr(t, "10.00"),
		MarginPct: decPtr(t, "50"),
		Stock:     20,
		MinStock:  5,
	})
	if !product.SalePrice.Equal(dec(t, "15.00")) {
		t.Fatalf("sale price = %s, want 15.00", product.SalePrice)
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(vendorCtx(), domain.ProductCreateRequest{Name: "Cafe 500g"})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestUpdateProductRederivesOnCostChange(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{
		Name:      "Cafe 500g",
		CostPrice: decPtr(t, "60.00"),
		MarginPct: decPtr(t, "25"),
	})

	updated, err := svc.UpdateProduct(adminCtx(), product.ID, domain.ProductUpdateRequest{
		CostPrice: decPtr(t, "80.00"),
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !updated.SalePrice.Equal(dec(t, "100.00")) {
		t.Fatalf("sale price = %s, want 100.00", updated.SalePrice)
	}
}

func TestUpdateProductEmptyRequestRejected(t *testing.T) {
	svc := newTestService()
	_, err := svc.UpdateProduct(adminCtx(), 1, domain.ProductUpdateRequest{})
	if !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestRecordSaleDepletesStockExactly(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{
		Name:      "Leche 1L",
		CostPrice: decPtr(t, "14.00"),
		MarginPct: decPtr(t, "20"),
		Stock:     5,
	})

	resp, err := svc.RecordSale(vendorCtx(), domain.RecordSaleRequest{
		SaleDate: "2026-08-30",
		Items: []domain.SaleItemInput{
			{ProductID: product.ID, Qty: 5, UnitPrice: dec(t, "16.80")},
		},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if !resp.Total.Equal(dec(t, "84.00")) {
		t.Fatalf("total = %s, want 84.00", resp.Total)
	}

	after, err := svc.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.Stock != 0 {
		t.Fatalf("stock = %d, want 0", after.Stock)
	}
}

func TestRecordSaleInsufficientStockLeavesStockUntouched(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{
		Name:  "Harina 1kg",
		Stock: 0,
	})

	_, err := svc.RecordSale(vendorCtx(), domain.RecordSaleRequest{
		SaleDate: "2026-08-30",
		Items: []domain.SaleItemInput{
			{ProductID: product.ID, Qty: 1, UnitPrice: dec(t, "20.00")},
		},
	})
	var insufficient *store.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientStockError", err)
	}
	if insufficient.ProductID != product.ID || insufficient.Available != 0 || insufficient.Requested != 1 {
		t.Fatalf("unexpected error detail: %+v", insufficient)
	}

	after, _ := svc.GetProduct(context.Background(), product.ID)
	if after.Stock != 0 {
		t.Fatalf("stock = %d, want 0", after.Stock)
	}
	sales, _ := svc.ListSales(context.Background())
	if len(sales) != 0 {
		t.Fatalf("expected no recorded sales, got %d", len(sales))
	}
}

func TestRecordSaleDuplicateLinesCheckedProgressively(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{
		Name:  "Atun lata",
		Stock: 3,
	})

	_, err := svc.RecordSale(vendorCtx(), domain.RecordSaleRequest{
		SaleDate: "2026-08-30",
		Items: []domain.SaleItemInput{
			{ProductID: product.ID, Qty: 2, UnitPrice: dec(t, "18.00")},
			{ProductID: product.ID, Qty: 2, UnitPrice: dec(t, "18.00")},
		},
	})
	var insufficient *store.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientStockError", err)
	}
	if insufficient.Available != 1 || insufficient.Requested != 2 {
		t.Fatalf("second line should see 1 remaining: %+v", insufficient)
	}

	after, _ := svc.GetProduct(context.Background(), product.ID)
	if after.Stock != 3 {
		t.Fatalf("failed sale must roll back fully, stock = %d, want 3", after.Stock)
	}
}

func TestRecordSaleUnknownProductRollsBack(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{Name: "Jabon", Stock: 10})

	_, err := svc.RecordSale(vendorCtx(), domain.RecordSaleRequest{
		SaleDate: "2026-08-30",
		Items: []domain.SaleItemInput{
			{ProductID: product.ID, Qty: 1, UnitPrice: dec(t, "9.00")},
			{ProductID: 9999, Qty: 1, UnitPrice: dec(t, "5.00")},
		},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	after, _ := svc.GetProduct(context.Background(), product.ID)
	if after.Stock != 10 {
		t.Fatalf("stock = %d, want 10", after.Stock)
	}
}

func TestRecordSaleIgnoresCallerTotal(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{Name: "Pan", Stock: 10})

	resp, err := svc.RecordSale(vendorCtx(), domain.RecordSaleRequest{
		SaleDate: "2026-08-30",
		Total:    decPtr(t, "1.00"),
		Items: []domain.SaleItemInput{
			{ProductID: product.ID, Qty: 3, UnitPrice: dec(t, "7.50")},
		},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if !resp.Total.Equal(dec(t, "22.50")) {
		t.Fatalf("total = %s, want recomputed 22.50", resp.Total)
	}
}

func TestRecordSaleValidationFailsFast(t *testing.T) {
	svc := newTestService()

	cases := []struct {
		name string
		req  domain.RecordSaleRequest
	}{
		{"no items", domain.RecordSaleRequest{SaleDate: "2026-08-30"}},
		{"zero qty", domain.RecordSaleRequest{SaleDate: "2026-08-30", Items: []domain.SaleItemInput{{ProductID: 1, Qty: 0}}}},
		{"negative price", domain.RecordSaleRequest{SaleDate: "2026-08-30", Items: []domain.SaleItemInput{{ProductID: 1, Qty: 1, UnitPrice: decimal.NewFromInt(-1)}}}},
		{"bad date", domain.RecordSaleRequest{SaleDate: "30/08/2026", Items: []domain.SaleItemInput{{ProductID: 1, Qty: 1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordSale(vendorCtx(), tc.req)
			if !errors.Is(err, store.ErrInvalidArgument) {
				t.Fatalf("got %v, want ErrInvalidArgument", err)
			}
		})
	}

	sales, _ := svc.ListSales(context.Background())
	if len(sales) != 0 {
		t.Fatalf("invalid requests must not record sales, got %d", len(sales))
	}
}

func TestRecordSaleConcurrentNoOversell(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{Name: "Ultimo", Stock: 1})

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordSale(vendorCtx(), domain.RecordSaleRequest{
				SaleDate: "2026-08-30",
				Items: []domain.SaleItemInput{
					{ProductID: product.ID, Qty: 1, UnitPrice: dec(t, "10.00")},
				},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, failed int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *store.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("unexpected error: %v", err)
		}
		failed++
	}
	if succeeded != 1 || failed != 1 {
		t.Fatalf("want exactly one winner, got %d ok / %d rejected", succeeded, failed)
	}

	after, _ := svc.GetProduct(context.Background(), product.ID)
	if after.Stock != 0 {
		t.Fatalf("stock = %d, want 0", after.Stock)
	}
}

func TestRecordPurchaseIncreasesStock(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{Name: "Galletas", Stock: 2})
	supplierID := int64(1)

	resp, err := svc.RecordPurchase(adminCtx(), domain.RecordPurchaseRequest{
		SupplierID:   &supplierID,
		PurchaseDate: "2026-08-29",
		Items: []domain.SaleItemInput{
			{ProductID: product.ID, Qty: 10, UnitPrice: dec(t, "6.00")},
		},
	})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if !resp.Total.Equal(dec(t, "60.00")) {
		t.Fatalf("total = %s, want 60.00", resp.Total)
	}

	after, _ := svc.GetProduct(context.Background(), product.ID)
	if after.Stock != 12 {
		t.Fatalf("stock = %d, want 12", after.Stock)
	}
}

func TestReportSalesFiltersByRange(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{Name: "Refresco", Stock: 100})

	record := func(date string, qty int) {
		t.Helper()
		_, err := svc.RecordSale(vendorCtx(), domain.RecordSaleRequest{
			SaleDate: date,
			Items: []domain.SaleItemInput{
				{ProductID: product.ID, Qty: qty, UnitPrice: dec(t, "12.00")},
			},
		})
		if err != nil {
			t.Fatalf("sale on %s failed: %v", date, err)
		}
	}
	record("2026-08-01", 1)
	record("2026-08-15", 2)
	record("2026-09-01", 3)

	report, err := svc.ReportSales(vendorCtx(), "2026-08-01", "2026-08-31")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if len(report.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(report.Entries))
	}
	if !report.SumTotal.Equal(dec(t, "36.00")) {
		t.Fatalf("sum = %s, want 36.00", report.SumTotal)
	}

	entrySum := decimal.Zero
	for _, entry := range report.Entries {
		entrySum = entrySum.Add(entry.Total)
	}
	if !entrySum.Equal(report.SumTotal) {
		t.Fatalf("entry sum %s disagrees with reported sum %s", entrySum, report.SumTotal)
	}
}

func TestReportRangeBoundsInclusive(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{Name: "Yogurt", Stock: 10})

	_, err := svc.RecordSale(vendorCtx(), domain.RecordSaleRequest{
		SaleDate: "2026-08-31",
		Items:    []domain.SaleItemInput{{ProductID: product.ID, Qty: 1, UnitPrice: dec(t, "8.00")}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	report, err := svc.ReportSales(vendorCtx(), "2026-08-31", "2026-08-31")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if len(report.Entries) != 1 {
		t.Fatalf("a sale on the boundary date must be included, got %d entries", len(report.Entries))
	}
}

func TestReportRejectsInvertedRange(t *testing.T) {
	svc := newTestService()
	_, err := svc.ReportSales(vendorCtx(), "2026-09-01", "2026-08-01")
	if !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestReportProfitUsesCurrentCostPrice(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{
		Name:      "Queso 400g",
		CostPrice: decPtr(t, "30.00"),
		MarginPct: decPtr(t, "50"),
		Stock:     10,
	})

	_, err := svc.RecordSale(vendorCtx(), domain.RecordSaleRequest{
		SaleDate: "2026-08-10",
		Items:    []domain.SaleItemInput{{ProductID: product.ID, Qty: 2, UnitPrice: dec(t, "45.00")}},
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	// Restating the cost restates historical profit.
	if _, err := svc.UpdateProduct(adminCtx(), product.ID, domain.ProductUpdateRequest{CostPrice: decPtr(t, "40.00")}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	report, err := svc.ReportProfitByProduct(vendorCtx(), "2026-08-01", "2026-08-31")
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	var row *domain.ProductProfit
	for i := range report.PerProduct {
		if report.PerProduct[i].ProductName == "Queso 400g" {
			row = &report.PerProduct[i]
		}
	}
	if row == nil {
		t.Fatalf("product missing from profit report")
	}
	if !row.TotalCost.Equal(dec(t, "80.00")) {
		t.Fatalf("cost = %s, want 80.00 at current cost price", row.TotalCost)
	}
	if !row.Profit.Equal(dec(t, "10.00")) {
		t.Fatalf("profit = %s, want 10.00", row.Profit)
	}
}

func TestReportLowStockIncludesBoundary(t *testing.T) {
	svc := newTestService()
	mustCreateProduct(t, svc, domain.ProductCreateRequest{Name: "Velas", Stock: 4, MinStock: 4})
	mustCreateProduct(t, svc, domain.ProductCreateRequest{Name: "Fosforos", Stock: 5, MinStock: 4})

	entries, err := svc.ReportLowStock(vendorCtx())
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	var foundBoundary, foundAbove bool
	for _, entry := range entries {
		if entry.Name == "Velas" {
			foundBoundary = true
		}
		if entry.Name == "Fosforos" {
			foundAbove = true
		}
	}
	if !foundBoundary {
		t.Fatalf("stock == minimum must count as low")
	}
	if foundAbove {
		t.Fatalf("stock above minimum must not count as low")
	}
}

func TestReportStockCatalogSortedByName(t *testing.T) {
	svc := newTestService()

	entries, err := svc.ReportStockCatalog(vendorCtx())
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("seeded catalog too small: %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Name > entries[i].Name {
			t.Fatalf("catalog not sorted: %q before %q", entries[i-1].Name, entries[i].Name)
		}
	}
}

func TestCreateUserDuplicateUsernameConflicts(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{Username: "admin", Password: "otroPassword1"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{Username: "nuevo", Password: "password1", Role: "superuser"})
	if !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateUser(vendorCtx(), domain.UserCreateRequest{Username: "nuevo", Password: "password1"})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestDeleteSupplierReferencedByProductConflicts(t *testing.T) {
	svc := newTestService()

	// Supplier 1 backs the seeded products.
	err := svc.DeleteSupplier(adminCtx(), 1)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}
