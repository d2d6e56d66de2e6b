package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"puntoventa/backend/internal/cache"
	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/pricing"
	"puntoventa/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	reportTTL time.Duration
	logger    *slog.Logger
}

func New(repo store.Repository, reports cache.ReportCache, reportTTL time.Duration, logger *slog.Logger) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		reports:   reports,
		reportTTL: reportTTL,
		logger:    logger,
	}
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("%w: admin role required", store.ErrForbidden)
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", store.ErrInvalidArgument, value)
	}
	return t, nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	fromDate, err := parseDate(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	toDate, err := parseDate(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if fromDate.After(toDate) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: range start %s is after end %s", store.ErrInvalidArgument, from, to)
	}
	return fromDate, toDate, nil
}

func validateItems(items []domain.SaleItemInput) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one line item is required", store.ErrInvalidArgument)
	}
	for i, item := range items {
		if item.ProductID < 1 {
			return fmt.Errorf("%w: line %d has no product", store.ErrInvalidArgument, i+1)
		}
		if item.Qty < 1 {
			return fmt.Errorf("%w: line %d quantity must be positive", store.ErrInvalidArgument, i+1)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d unit price must not be negative", store.ErrInvalidArgument, i+1)
		}
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrInvalidArgument)
	}
	if req.Stock < 0 || req.MinStock < 0 {
		return domain.Product{}, fmt.Errorf("%w: stock and minimum stock must not be negative", store.ErrInvalidArgument)
	}

	cost, margin, sale, err := pricing.ResolveCreate(req)
	if err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		CostPrice:   cost,
		MarginPct:   margin,
		SalePrice:   sale,
		Stock:       req.Stock,
		MinStock:    req.MinStock,
		SupplierID:  req.SupplierID,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("product created", "id", created.ID, "name", created.Name, "sale_price", created.SalePrice)
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if req.Empty() {
		return domain.Product{}, fmt.Errorf("%w: no fields to update", store.ErrInvalidArgument)
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return domain.Product{}, fmt.Errorf("%w: name must not be empty", store.ErrInvalidArgument)
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	merged, err := pricing.ResolveUpdate(*existing, req)
	if err != nil {
		return domain.Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, merged)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.Info("product updated", "id", updated.ID, "sale_price", updated.SalePrice)
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, id)
}

// RecordSale validates the request without touching the datastore, then hands
// the whole sale to the repository as one atomic unit. A caller-declared
// total is ignored: the recorded total is always recomputed from the lines.
func (s *Service) RecordSale(ctx context.Context, req domain.RecordSaleRequest) (domain.RecordSaleResponse, error) {
	if err := validateItems(req.Items); err != nil {
		return domain.RecordSaleResponse{}, err
	}
	saleDate, err := parseDate(req.SaleDate)
	if err != nil {
		return domain.RecordSaleResponse{}, err
	}

	sale, err := s.repo.RecordSale(ctx, store.SaleInput{
		ClientID: req.ClientID,
		SaleDate: saleDate,
		Items:    req.Items,
	})
	if err != nil {
		return domain.RecordSaleResponse{}, err
	}

	if req.Total != nil && !req.Total.Equal(sale.Total) {
		s.logger.Warn("caller-declared sale total ignored", "sale_id", sale.ID, "declared", req.Total, "recorded", sale.Total)
	}
	s.logger.Info("sale recorded", "sale_id", sale.ID, "lines", len(req.Items), "total", sale.Total)
	return domain.RecordSaleResponse{SaleID: sale.ID, Total: sale.Total}, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) RecordPurchase(ctx context.Context, req domain.RecordPurchaseRequest) (domain.RecordPurchaseResponse, error) {
	if err := validateItems(req.Items); err != nil {
		return domain.RecordPurchaseResponse{}, err
	}
	purchaseDate, err := parseDate(req.PurchaseDate)
	if err != nil {
		return domain.RecordPurchaseResponse{}, err
	}

	purchase, err := s.repo.RecordPurchase(ctx, store.PurchaseInput{
		SupplierID:   req.SupplierID,
		PurchaseDate: purchaseDate,
		Items:        req.Items,
	})
	if err != nil {
		return domain.RecordPurchaseResponse{}, err
	}
	s.logger.Info("purchase recorded", "purchase_id", purchase.ID, "lines", len(req.Items), "total", purchase.Total)
	return domain.RecordPurchaseResponse{PurchaseID: purchase.ID, Total: purchase.Total}, nil
}

func (s *Service) GetPurchase(ctx context.Context, id int64) (domain.Purchase, error) {
	purchase, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		return domain.Purchase{}, err
	}
	return *purchase, nil
}

func (s *Service) ListPurchases(ctx context.Context) ([]domain.Purchase, error) {
	return s.repo.ListPurchases(ctx)
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Client{}, fmt.Errorf("%w: name is required", store.ErrInvalidArgument)
	}
	created, err := s.repo.CreateClient(ctx, domain.Client{
		Name:    req.Name,
		Address: strings.TrimSpace(req.Address),
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
	})
	if err != nil {
		return domain.Client{}, err
	}
	return *created, nil
}

func (s *Service) GetClient(ctx context.Context, id int64) (domain.Client, error) {
	client, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.repo.ListClients(ctx)
}

func (s *Service) UpdateClient(ctx context.Context, id int64, req domain.ClientUpdateRequest) (domain.Client, error) {
	if req.Empty() {
		return domain.Client{}, fmt.Errorf("%w: no fields to update", store.ErrInvalidArgument)
	}
	existing, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	merged := *existing
	if req.Name != nil {
		merged.Name = strings.TrimSpace(*req.Name)
		if merged.Name == "" {
			return domain.Client{}, fmt.Errorf("%w: name must not be empty", store.ErrInvalidArgument)
		}
	}
	if req.Address != nil {
		merged.Address = strings.TrimSpace(*req.Address)
	}
	if req.Phone != nil {
		merged.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		merged.Email = strings.TrimSpace(*req.Email)
	}
	updated, err := s.repo.UpdateClient(ctx, merged)
	if err != nil {
		return domain.Client{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteClient(ctx context.Context, id int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteClient(ctx, id)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, fmt.Errorf("%w: name is required", store.ErrInvalidArgument)
	}
	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:    req.Name,
		Address: strings.TrimSpace(req.Address),
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

func (s *Service) GetSupplier(ctx context.Context, id int64) (domain.Supplier, error) {
	supplier, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) UpdateSupplier(ctx context.Context, id int64, req domain.SupplierUpdateRequest) (domain.Supplier, error) {
	if req.Empty() {
		return domain.Supplier{}, fmt.Errorf("%w: no fields to update", store.ErrInvalidArgument)
	}
	existing, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	merged := *existing
	if req.Name != nil {
		merged.Name = strings.TrimSpace(*req.Name)
		if merged.Name == "" {
			return domain.Supplier{}, fmt.Errorf("%w: name must not be empty", store.ErrInvalidArgument)
		}
	}
	if req.Address != nil {
		merged.Address = strings.TrimSpace(*req.Address)
	}
	if req.Phone != nil {
		merged.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		merged.Email = strings.TrimSpace(*req.Email)
	}
	updated, err := s.repo.UpdateSupplier(ctx, merged)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id int64) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteSupplier(ctx, id)
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.UserAccount{}, err
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return domain.UserAccount{}, fmt.Errorf("%w: username and password are required", store.ErrInvalidArgument)
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = "vendedor"
	}
	if role != "admin" && role != "vendedor" {
		return domain.UserAccount{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidArgument, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserAccount{}, err
	}
	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username: req.Username,
		Password: string(hash),
		Role:     role,
	})
	if err != nil {
		return domain.UserAccount{}, err
	}
	s.logger.Info("user created", "username", created.Username, "role", created.Role)
	return *created, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

func (s *Service) ReportSales(ctx context.Context, from, to string) (domain.SalesReport, error) {
	fromDate, toDate, err := parseRange(from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}

	key := fmt.Sprintf("reporte:ventas:%s:%s", fromDate.Format(time.DateOnly), toDate.Format(time.DateOnly))
	var cached domain.SalesReport
	if hit, err := s.reports.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	} else if err != nil {
		s.logger.Warn("report cache read failed", "key", key, "err", err)
	}

	report, err := s.repo.ReportSales(ctx, fromDate, toDate)
	if err != nil {
		return domain.SalesReport{}, err
	}
	if err := s.reports.Set(ctx, key, report, s.reportTTL); err != nil {
		s.logger.Warn("report cache write failed", "key", key, "err", err)
	}
	return *report, nil
}

func (s *Service) ReportPurchases(ctx context.Context, from, to string) (domain.PurchasesReport, error) {
	fromDate, toDate, err := parseRange(from, to)
	if err != nil {
		return domain.PurchasesReport{}, err
	}

	key := fmt.Sprintf("reporte:compras:%s:%s", fromDate.Format(time.DateOnly), toDate.Format(time.DateOnly))
	var cached domain.PurchasesReport
	if hit, err := s.reports.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	} else if err != nil {
		s.logger.Warn("report cache read failed", "key", key, "err", err)
	}

	report, err := s.repo.ReportPurchases(ctx, fromDate, toDate)
	if err != nil {
		return domain.PurchasesReport{}, err
	}
	if err := s.reports.Set(ctx, key, report, s.reportTTL); err != nil {
		s.logger.Warn("report cache write failed", "key", key, "err", err)
	}
	return *report, nil
}

func (s *Service) ReportProfitByProduct(ctx context.Context, from, to string) (domain.ProfitReport, error) {
	fromDate, toDate, err := parseRange(from, to)
	if err != nil {
		return domain.ProfitReport{}, err
	}

	key := fmt.Sprintf("reporte:ganancias:%s:%s", fromDate.Format(time.DateOnly), toDate.Format(time.DateOnly))
	var cached domain.ProfitReport
	if hit, err := s.reports.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	} else if err != nil {
		s.logger.Warn("report cache read failed", "key", key, "err", err)
	}

	report, err := s.repo.ReportProfitByProduct(ctx, fromDate, toDate)
	if err != nil {
		return domain.ProfitReport{}, err
	}
	if err := s.reports.Set(ctx, key, report, s.reportTTL); err != nil {
		s.logger.Warn("report cache write failed", "key", key, "err", err)
	}
	return *report, nil
}

// Low-stock and catalog snapshots change with every sale, so they skip the
// report cache and always read through.
func (s *Service) ReportLowStock(ctx context.Context) ([]domain.LowStockEntry, error) {
	return s.repo.ReportLowStock(ctx)
}

func (s *Service) ReportStockCatalog(ctx context.Context) ([]domain.StockCatalogEntry, error) {
	return s.repo.ReportStockCatalog(ctx)
}
