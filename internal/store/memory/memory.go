// Package memory implements the store.Repository contract in process memory.
// It backs the unit tests and DATABASE_URL-less dev runs. One mutex serializes
// whole transactions, which gives the same no-oversell guarantee the postgres
// store gets from row locks.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/store"
)

type Store struct {
	mu sync.Mutex

	products  map[int64]domain.Product
	sales     map[int64]domain.Sale
	purchases map[int64]domain.Purchase
	clients   map[int64]domain.Client
	suppliers map[int64]domain.Supplier
	users     map[string]domain.UserAccount

	nextProductID  int64
	nextSaleID     int64
	nextLineID     int64
	nextPurchaseID int64
	nextClientID   int64
	nextSupplierID int64
	nextUserID     int64
}

func New() *Store {
	return &Store{
		products:  make(map[int64]domain.Product),
		sales:     make(map[int64]domain.Sale),
		purchases: make(map[int64]domain.Purchase),
		clients:   make(map[int64]domain.Client),
		suppliers: make(map[int64]domain.Supplier),
		users:     make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with demo data. Seed credentials come
// from SEED_ADMIN_PASSWORD / SEED_VENDOR_PASSWORD, with dev defaults when
// unset; the seeded store is never used once DATABASE_URL is configured.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()

	supplier, _ := s.CreateSupplier(ctx, domain.Supplier{Name: "Distribuidora Central", Address: "Av. Principal 120", Phone: "555-0101", Email: "ventas@central.example"})
	_, _ = s.CreateClient(ctx, domain.Client{Name: "Cliente Mostrador", Address: "", Phone: "", Email: ""})

	seedProducts := []domain.Product{
		{Name: "Arroz 1kg", Description: "Arroz grano largo", CostPrice: dec("18.50"), MarginPct: dec("25"), SalePrice: dec("23.13"), Stock: 40, MinStock: 10, SupplierID: &supplier.ID},
		{Name: "Frijol 1kg", Description: "Frijol negro", CostPrice: dec("22.00"), MarginPct: dec("20"), SalePrice: dec("26.40"), Stock: 25, MinStock: 8, SupplierID: &supplier.ID},
		{Name: "Aceite 900ml", Description: "Aceite vegetal", CostPrice: dec("31.00"), MarginPct: dec("30"), SalePrice: dec("40.30"), Stock: 12, MinStock: 6, SupplierID: &supplier.ID},
	}
	for _, p := range seedProducts {
		_, _ = s.CreateProduct(ctx, p)
	}

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123!")
	vendorPwd := envOr("SEED_VENDOR_PASSWORD", "vendedor123!")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_VENDOR_PASSWORD") == "" {
		slog.Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_VENDOR_PASSWORD to override")
	}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"vendedor", vendorPwd, "vendedor"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			continue
		}
		_, _ = s.CreateUser(ctx, domain.UserAccount{Username: u.username, Password: string(hash), Role: u.role})
	}
	return s
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.SupplierID != nil {
		if _, ok := s.suppliers[*product.SupplierID]; !ok {
			return nil, &store.NotFoundError{Entity: "proveedor", ID: *product.SupplierID}
		}
	}
	s.nextProductID++
	product.ID = s.nextProductID
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, &store.NotFoundError{Entity: "producto", ID: id}
	}
	found := product
	return &found, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		products = append(products, product)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return nil, &store.NotFoundError{Entity: "producto", ID: product.ID}
	}
	if product.SupplierID != nil {
		if _, ok := s.suppliers[*product.SupplierID]; !ok {
			return nil, &store.NotFoundError{Entity: "proveedor", ID: *product.SupplierID}
		}
	}
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return &store.NotFoundError{Entity: "producto", ID: id}
	}
	for _, sale := range s.sales {
		for _, line := range sale.Lines {
			if line.ProductID == id {
				return fmt.Errorf("%w: producto %d is referenced by sale lines", store.ErrConflict, id)
			}
		}
	}
	for _, purchase := range s.purchases {
		for _, line := range purchase.Lines {
			if line.ProductID == id {
				return fmt.Errorf("%w: producto %d is referenced by purchase lines", store.ErrConflict, id)
			}
		}
	}
	delete(s.products, id)
	return nil
}

// RecordSale applies the per-line lock/read/check/decrement cycle under the
// store mutex. Stock changes land on a scratch map first, so a failed line
// leaves every product untouched.
func (s *Store) RecordSale(_ context.Context, sale store.SaleInput) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("%w: sale needs at least one line", store.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ClientID != nil {
		if _, ok := s.clients[*sale.ClientID]; !ok {
			return nil, &store.NotFoundError{Entity: "cliente", ID: *sale.ClientID}
		}
	}

	pending := make(map[int64]int, len(sale.Items))
	total := decimal.Zero
	for _, item := range sale.Items {
		product, ok := s.products[item.ProductID]
		if !ok {
			return nil, &store.NotFoundError{Entity: "producto", ID: item.ProductID}
		}
		stock, touched := pending[item.ProductID]
		if !touched {
			stock = product.Stock
		}
		if stock < item.Qty {
			return nil, &store.InsufficientStockError{
				ProductID: item.ProductID,
				Available: stock,
				Requested: item.Qty,
			}
		}
		pending[item.ProductID] = stock - item.Qty
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty))))
	}
	total = total.Round(2)

	for productID, stock := range pending {
		product := s.products[productID]
		product.Stock = stock
		s.products[productID] = product
	}

	s.nextSaleID++
	result := domain.Sale{
		ID:       s.nextSaleID,
		SaleDate: sale.SaleDate,
		ClientID: sale.ClientID,
		Total:    total,
		Lines:    make([]domain.SaleLine, 0, len(sale.Items)),
	}
	for _, item := range sale.Items {
		s.nextLineID++
		result.Lines = append(result.Lines, domain.SaleLine{
			ID:        s.nextLineID,
			SaleID:    result.ID,
			ProductID: item.ProductID,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
		})
	}
	s.sales[result.ID] = result
	recorded := result
	return &recorded, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, &store.NotFoundError{Entity: "venta", ID: id}
	}
	found := sale
	found.Lines = append([]domain.SaleLine(nil), sale.Lines...)
	return &found, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		header := sale
		header.Lines = nil
		sales = append(sales, header)
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].ID < sales[j].ID })
	return sales, nil
}

func (s *Store) RecordPurchase(_ context.Context, purchase store.PurchaseInput) (*domain.Purchase, error) {
	if len(purchase.Items) == 0 {
		return nil, fmt.Errorf("%w: purchase needs at least one line", store.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if purchase.SupplierID != nil {
		if _, ok := s.suppliers[*purchase.SupplierID]; !ok {
			return nil, &store.NotFoundError{Entity: "proveedor", ID: *purchase.SupplierID}
		}
	}

	total := decimal.Zero
	for _, item := range purchase.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return nil, &store.NotFoundError{Entity: "producto", ID: item.ProductID}
		}
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty))))
	}
	total = total.Round(2)

	for _, item := range purchase.Items {
		product := s.products[item.ProductID]
		product.Stock += item.Qty
		s.products[item.ProductID] = product
	}

	s.nextPurchaseID++
	result := domain.Purchase{
		ID:           s.nextPurchaseID,
		PurchaseDate: purchase.PurchaseDate,
		SupplierID:   purchase.SupplierID,
		Total:        total,
		Lines:        make([]domain.PurchaseLine, 0, len(purchase.Items)),
	}
	for _, item := range purchase.Items {
		s.nextLineID++
		result.Lines = append(result.Lines, domain.PurchaseLine{
			ID:         s.nextLineID,
			PurchaseID: result.ID,
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			UnitPrice:  item.UnitPrice,
		})
	}
	s.purchases[result.ID] = result
	recorded := result
	return &recorded, nil
}

func (s *Store) GetPurchase(_ context.Context, id int64) (*domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchase, ok := s.purchases[id]
	if !ok {
		return nil, &store.NotFoundError{Entity: "compra", ID: id}
	}
	found := purchase
	found.Lines = append([]domain.PurchaseLine(nil), purchase.Lines...)
	return &found, nil
}

func (s *Store) ListPurchases(_ context.Context) ([]domain.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purchases := make([]domain.Purchase, 0, len(s.purchases))
	for _, purchase := range s.purchases {
		header := purchase
		header.Lines = nil
		purchases = append(purchases, header)
	}
	sort.Slice(purchases, func(i, j int) bool { return purchases[i].ID < purchases[j].ID })
	return purchases, nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextClientID++
	client.ID = s.nextClientID
	s.clients[client.ID] = client
	created := client
	return &created, nil
}

func (s *Store) GetClient(_ context.Context, id int64) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, &store.NotFoundError{Entity: "cliente", ID: id}
	}
	found := client
	return &found, nil
}

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := make([]domain.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients, nil
}

func (s *Store) UpdateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client.ID]; !ok {
		return nil, &store.NotFoundError{Entity: "cliente", ID: client.ID}
	}
	s.clients[client.ID] = client
	updated := client
	return &updated, nil
}

func (s *Store) DeleteClient(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[id]; !ok {
		return &store.NotFoundError{Entity: "cliente", ID: id}
	}
	for _, sale := range s.sales {
		if sale.ClientID != nil && *sale.ClientID == id {
			return fmt.Errorf("%w: cliente %d is referenced by sales", store.ErrConflict, id)
		}
	}
	delete(s.clients, id)
	return nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSupplierID++
	supplier.ID = s.nextSupplierID
	s.suppliers[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) GetSupplier(_ context.Context, id int64) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, ok := s.suppliers[id]
	if !ok {
		return nil, &store.NotFoundError{Entity: "proveedor", ID: id}
	}
	found := supplier
	return &found, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, supplier := range s.suppliers {
		suppliers = append(suppliers, supplier)
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].ID < suppliers[j].ID })
	return suppliers, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliers[supplier.ID]; !ok {
		return nil, &store.NotFoundError{Entity: "proveedor", ID: supplier.ID}
	}
	s.suppliers[supplier.ID] = supplier
	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliers[id]; !ok {
		return &store.NotFoundError{Entity: "proveedor", ID: id}
	}
	for _, product := range s.products {
		if product.SupplierID != nil && *product.SupplierID == id {
			return fmt.Errorf("%w: proveedor %d is referenced by products", store.ErrConflict, id)
		}
	}
	for _, purchase := range s.purchases {
		if purchase.SupplierID != nil && *purchase.SupplierID == id {
			return fmt.Errorf("%w: proveedor %d is referenced by purchases", store.ErrConflict, id)
		}
	}
	delete(s.suppliers, id)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Username]; ok {
		return nil, fmt.Errorf("%w: username %q already exists", store.ErrConflict, user.Username)
	}
	s.nextUserID++
	user.ID = s.nextUserID
	s.users[user.Username] = user
	created := user
	return &created, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := user
	return &found, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func sameDateOrLater(d, bound time.Time) bool {
	return !dateOnly(d).Before(dateOnly(bound))
}

func sameDateOrEarlier(d, bound time.Time) bool {
	return !dateOnly(d).After(dateOnly(bound))
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Store) ReportSales(_ context.Context, from time.Time, to time.Time) (*domain.SalesReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &domain.SalesReport{
		From:     from.Format(time.DateOnly),
		To:       to.Format(time.DateOnly),
		SumTotal: decimal.Zero,
		Entries:  make([]domain.SalesReportEntry, 0, len(s.sales)),
	}
	for _, sale := range s.sales {
		if !sameDateOrLater(sale.SaleDate, from) || !sameDateOrEarlier(sale.SaleDate, to) {
			continue
		}
		entry := domain.SalesReportEntry{
			ID:       sale.ID,
			Date:     sale.SaleDate.Format(time.DateOnly),
			Total:    sale.Total,
			ClientID: sale.ClientID,
		}
		if sale.ClientID != nil {
			entry.ClientName = s.clients[*sale.ClientID].Name
		}
		report.Entries = append(report.Entries, entry)
		report.SumTotal = report.SumTotal.Add(sale.Total)
	}
	sort.Slice(report.Entries, func(i, j int) bool {
		if report.Entries[i].Date == report.Entries[j].Date {
			return report.Entries[i].ID < report.Entries[j].ID
		}
		return report.Entries[i].Date < report.Entries[j].Date
	})
	return report, nil
}

func (s *Store) ReportPurchases(_ context.Context, from time.Time, to time.Time) (*domain.PurchasesReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &domain.PurchasesReport{
		From:     from.Format(time.DateOnly),
		To:       to.Format(time.DateOnly),
		SumTotal: decimal.Zero,
		Entries:  make([]domain.PurchasesReportEntry, 0, len(s.purchases)),
	}
	for _, purchase := range s.purchases {
		if !sameDateOrLater(purchase.PurchaseDate, from) || !sameDateOrEarlier(purchase.PurchaseDate, to) {
			continue
		}
		entry := domain.PurchasesReportEntry{
			ID:         purchase.ID,
			Date:       purchase.PurchaseDate.Format(time.DateOnly),
			Total:      purchase.Total,
			SupplierID: purchase.SupplierID,
		}
		if purchase.SupplierID != nil {
			entry.SupplierName = s.suppliers[*purchase.SupplierID].Name
		}
		report.Entries = append(report.Entries, entry)
		report.SumTotal = report.SumTotal.Add(purchase.Total)
	}
	sort.Slice(report.Entries, func(i, j int) bool {
		if report.Entries[i].Date == report.Entries[j].Date {
			return report.Entries[i].ID < report.Entries[j].ID
		}
		return report.Entries[i].Date < report.Entries[j].Date
	})
	return report, nil
}

func (s *Store) ReportProfitByProduct(_ context.Context, from time.Time, to time.Time) (*domain.ProfitReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &domain.ProfitReport{
		From:        from.Format(time.DateOnly),
		To:          to.Format(time.DateOnly),
		TotalProfit: decimal.Zero,
	}
	byName := make(map[string]*domain.ProductProfit)
	for _, sale := range s.sales {
		if !sameDateOrLater(sale.SaleDate, from) || !sameDateOrEarlier(sale.SaleDate, to) {
			continue
		}
		for _, line := range sale.Lines {
			product, ok := s.products[line.ProductID]
			if !ok {
				continue
			}
			row, ok := byName[product.Name]
			if !ok {
				row = &domain.ProductProfit{
					ProductName:  product.Name,
					TotalRevenue: decimal.Zero,
					TotalCost:    decimal.Zero,
					Profit:       decimal.Zero,
				}
				byName[product.Name] = row
			}
			qty := decimal.NewFromInt(int64(line.Qty))
			row.QuantitySold += int64(line.Qty)
			row.TotalRevenue = row.TotalRevenue.Add(qty.Mul(line.UnitPrice))
			row.TotalCost = row.TotalCost.Add(qty.Mul(product.CostPrice))
			row.Profit = row.Profit.Add(qty.Mul(line.UnitPrice.Sub(product.CostPrice)))
		}
	}

	report.PerProduct = make([]domain.ProductProfit, 0, len(byName))
	for _, row := range byName {
		report.PerProduct = append(report.PerProduct, *row)
		report.TotalProfit = report.TotalProfit.Add(row.Profit)
	}
	sort.Slice(report.PerProduct, func(i, j int) bool {
		return report.PerProduct[i].ProductName < report.PerProduct[j].ProductName
	})
	return report, nil
}

func (s *Store) ReportLowStock(_ context.Context) ([]domain.LowStockEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]domain.LowStockEntry, 0, len(s.products))
	for _, product := range s.products {
		if product.Stock <= product.MinStock {
			entries = append(entries, domain.LowStockEntry{Name: product.Name, Stock: product.Stock, MinStock: product.MinStock})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *Store) ReportStockCatalog(_ context.Context) ([]domain.StockCatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]domain.StockCatalogEntry, 0, len(s.products))
	for _, product := range s.products {
		entries = append(entries, domain.StockCatalogEntry{Name: product.Name, Stock: product.Stock})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
