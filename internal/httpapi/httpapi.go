package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/service"
	"puntoventa/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	validate      *validator.Validate
	loginLimiter  *attemptLimiter
	logger        *slog.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		validate:      validator.New(),
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        logger,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.cors)

	r.Get("/health", a.handleHealth)
	r.Post("/login", a.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth("vendedor", "admin"))

		r.Get("/productos", a.handleListProducts)
		r.Get("/productos/{id}", a.handleGetProduct)
		r.Post("/ventas", a.handleRecordSale)
		r.Get("/ventas", a.handleListSales)
		r.Get("/ventas/{id}", a.handleGetSale)
		r.Post("/compras", a.handleRecordPurchase)
		r.Get("/compras", a.handleListPurchases)
		r.Get("/compras/{id}", a.handleGetPurchase)

		r.Post("/clientes", a.handleCreateClient)
		r.Get("/clientes", a.handleListClients)
		r.Get("/clientes/{id}", a.handleGetClient)
		r.Put("/clientes/{id}", a.handleUpdateClient)

		r.Post("/proveedores", a.handleCreateSupplier)
		r.Get("/proveedores", a.handleListSuppliers)
		r.Get("/proveedores/{id}", a.handleGetSupplier)
		r.Put("/proveedores/{id}", a.handleUpdateSupplier)

		r.Get("/reportes/ventas", a.handleReportSales)
		r.Get("/reportes/compras", a.handleReportPurchases)
		r.Get("/reportes/ganancias", a.handleReportProfit)
		r.Get("/reportes/existencias_minimas", a.handleReportLowStock)
		r.Get("/reportes/existencias", a.handleReportStockCatalog)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth("admin"))

		r.Post("/productos", a.handleCreateProduct)
		r.Put("/productos/{id}", a.handleUpdateProduct)
		r.Delete("/productos/{id}", a.handleDeleteProduct)
		r.Delete("/clientes/{id}", a.handleDeleteClient)
		r.Delete("/proveedores/{id}", a.handleDeleteSupplier)
		r.Post("/usuarios", a.handleCreateUser)
		r.Get("/usuarios", a.handleListUsers)
	})

	return r
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			actor, err := a.auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}
			allowed := false
			for _, role := range roles {
				if actor.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				writeProblem(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeProblem(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
		return
	}

	var req domain.LoginRequest
	if !a.decode(w, r, &req) {
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			writeProblem(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		}
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	product, err := a.service.GetProduct(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.ProductUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), id, req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.service.DeleteProduct(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": 1})
}

func (a *API) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req domain.RecordSaleRequest
	if !a.decode(w, r, &req) {
		return
	}
	resp, err := a.service.RecordSale(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sale, err := a.service.GetSale(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListSales(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (a *API) handleRecordPurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.RecordPurchaseRequest
	if !a.decode(w, r, &req) {
		return
	}
	resp, err := a.service.RecordPurchase(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	purchase, err := a.service.GetPurchase(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (a *API) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := a.service.ListPurchases(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purchases)
}

func (a *API) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req domain.ClientCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	client, err := a.service.CreateClient(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (a *API) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	client, err := a.service.GetClient(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (a *API) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := a.service.ListClients(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (a *API) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.ClientUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	client, err := a.service.UpdateClient(r.Context(), id, req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (a *API) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.service.DeleteClient(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": 1})
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	supplier, err := a.service.CreateSupplier(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, supplier)
}

func (a *API) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	supplier, err := a.service.GetSupplier(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, supplier)
}

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := a.service.ListSuppliers(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suppliers)
}

func (a *API) handleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.SupplierUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	supplier, err := a.service.UpdateSupplier(r.Context(), id, req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, supplier)
}

func (a *API) handleDeleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.service.DeleteSupplier(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": 1})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := a.service.CreateUser(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.service.ListUsers(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleReportSales(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.ReportSales(r.Context(), r.URL.Query().Get("desde"), r.URL.Query().Get("hasta"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleReportPurchases(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.ReportPurchases(r.Context(), r.URL.Query().Get("desde"), r.URL.Query().Get("hasta"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleReportProfit(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.ReportProfitByProduct(r.Context(), r.URL.Query().Get("desde"), r.URL.Query().Get("hasta"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleReportLowStock(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.ReportLowStock(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleReportStockCatalog(w http.ResponseWriter, r *http.Request) {
	entries, err := a.service.ReportStockCatalog(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_argument", "malformed JSON body")
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeProblem(w, http.StatusBadRequest, "invalid_argument", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

type problem struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeProblem(w http.ResponseWriter, status int, kind string, message string) {
	writeJSON(w, status, problem{Kind: kind, Error: message})
}

// writeError maps domain errors to stable kind tags and HTTP statuses. Raw
// datastore error text is never surfaced to callers.
func (a *API) writeError(w http.ResponseWriter, err error) {
	var insufficient *store.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, struct {
			problem
			ProductID int64 `json:"id_producto"`
			Available int   `json:"disponible"`
			Requested int   `json:"solicitado"`
		}{
			problem:   problem{Kind: "insufficient_stock", Error: insufficient.Error()},
			ProductID: insufficient.ProductID,
			Available: insufficient.Available,
			Requested: insufficient.Requested,
		})
	case errors.Is(err, store.ErrInvalidArgument):
		writeProblem(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrConflict):
		writeProblem(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, store.ErrForbidden):
		writeProblem(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, store.ErrUnavailable):
		writeProblem(w, http.StatusServiceUnavailable, "datastore_unavailable", "datastore unavailable")
	default:
		a.logger.Error("request failed", "err", err)
		writeProblem(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
