package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product mirrors the Productos table. SalePrice is derived from CostPrice and
// MarginPct by the pricing engine; it only diverges from the derived value when
// the caller set it explicitly.
type Product struct {
	ID          int64           `json:"id_producto"`
	Name        string          `json:"nombre"`
	Description string          `json:"descripcion"`
	CostPrice   decimal.Decimal `json:"precio_compra"`
	MarginPct   decimal.Decimal `json:"porcentaje_ganancia"`
	SalePrice   decimal.Decimal `json:"precio_venta"`
	Stock       int             `json:"stock"`
	MinStock    int             `json:"stock_minimo"`
	SupplierID  *int64          `json:"id_proveedor,omitempty"`
}

type ProductCreateRequest struct {
	Name        string           `json:"nombre" validate:"required"`
	Description string           `json:"descripcion"`
	CostPrice   *decimal.Decimal `json:"precio_compra,omitempty"`
	MarginPct   *decimal.Decimal `json:"porcentaje_ganancia,omitempty"`
	SalePrice   *decimal.Decimal `json:"precio_venta,omitempty"`
	Stock       int              `json:"stock" validate:"gte=0"`
	MinStock    int              `json:"stock_minimo" validate:"gte=0"`
	SupplierID  *int64           `json:"id_proveedor,omitempty"`
}

// ProductUpdateRequest carries only the fields the caller wants to change.
// A nil pointer means "leave as is". If CostPrice or MarginPct is present and
// SalePrice is not, the sale price is re-derived from the merged pair.
type ProductUpdateRequest struct {
	Name        *string          `json:"nombre,omitempty"`
	Description *string          `json:"descripcion,omitempty"`
	CostPrice   *decimal.Decimal `json:"precio_compra,omitempty"`
	MarginPct   *decimal.Decimal `json:"porcentaje_ganancia,omitempty"`
	SalePrice   *decimal.Decimal `json:"precio_venta,omitempty"`
	Stock       *int             `json:"stock,omitempty"`
	MinStock    *int             `json:"stock_minimo,omitempty"`
	SupplierID  *int64           `json:"id_proveedor,omitempty"`
}

func (r ProductUpdateRequest) Empty() bool {
	return r.Name == nil && r.Description == nil && r.CostPrice == nil &&
		r.MarginPct == nil && r.SalePrice == nil && r.Stock == nil &&
		r.MinStock == nil && r.SupplierID == nil
}

// Sale is a Ventas header. Total is always the recomputed sum of its lines.
type Sale struct {
	ID       int64           `json:"id_venta"`
	SaleDate time.Time       `json:"fecha_venta"`
	ClientID *int64          `json:"id_cliente,omitempty"`
	Total    decimal.Decimal `json:"total"`
	Lines    []SaleLine      `json:"detalle,omitempty"`
}

// SaleLine is one Detalle_Ventas row. UnitPrice is a snapshot taken when the
// sale was recorded and does not follow later product price changes.
type SaleLine struct {
	ID        int64           `json:"id_detalle"`
	SaleID    int64           `json:"id_venta"`
	ProductID int64           `json:"id_producto"`
	Qty       int             `json:"cantidad"`
	UnitPrice decimal.Decimal `json:"precio_unitario"`
}

type SaleItemInput struct {
	ProductID int64           `json:"id_producto" validate:"required,gt=0"`
	Qty       int             `json:"cantidad" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"precio_unitario"`
}

// RecordSaleRequest creates a sale header plus its lines in one transaction.
// Total, if supplied by the caller, is ignored: the service recomputes it from
// the lines so the header can never disagree with them.
type RecordSaleRequest struct {
	ClientID *int64           `json:"id_cliente,omitempty"`
	SaleDate string           `json:"fecha_venta" validate:"required"`
	Total    *decimal.Decimal `json:"total,omitempty"`
	Items    []SaleItemInput  `json:"items" validate:"required,min=1,dive"`
}

type RecordSaleResponse struct {
	SaleID int64           `json:"id_venta"`
	Total  decimal.Decimal `json:"total"`
}

// Purchase / PurchaseLine mirror Sale / SaleLine over Compras and
// Detalle_Compras, increasing stock instead of decreasing it.
type Purchase struct {
	ID           int64           `json:"id_compra"`
	PurchaseDate time.Time       `json:"fecha_compra"`
	SupplierID   *int64          `json:"id_proveedor,omitempty"`
	Total        decimal.Decimal `json:"total"`
	Lines        []PurchaseLine  `json:"detalle,omitempty"`
}

type PurchaseLine struct {
	ID         int64           `json:"id_detalle"`
	PurchaseID int64           `json:"id_compra"`
	ProductID  int64           `json:"id_producto"`
	Qty        int             `json:"cantidad"`
	UnitPrice  decimal.Decimal `json:"precio_unitario"`
}

type RecordPurchaseRequest struct {
	SupplierID   *int64          `json:"id_proveedor,omitempty"`
	PurchaseDate string          `json:"fecha_compra" validate:"required"`
	Items        []SaleItemInput `json:"items" validate:"required,min=1,dive"`
}

type RecordPurchaseResponse struct {
	PurchaseID int64           `json:"id_compra"`
	Total      decimal.Decimal `json:"total"`
}

type Client struct {
	ID      int64  `json:"id_cliente"`
	Name    string `json:"nombre"`
	Address string `json:"direccion"`
	Phone   string `json:"telefono"`
	Email   string `json:"email"`
}

type ClientCreateRequest struct {
	Name    string `json:"nombre" validate:"required"`
	Address string `json:"direccion"`
	Phone   string `json:"telefono"`
	Email   string `json:"email"`
}

type ClientUpdateRequest struct {
	Name    *string `json:"nombre,omitempty"`
	Address *string `json:"direccion,omitempty"`
	Phone   *string `json:"telefono,omitempty"`
	Email   *string `json:"email,omitempty"`
}

func (r ClientUpdateRequest) Empty() bool {
	return r.Name == nil && r.Address == nil && r.Phone == nil && r.Email == nil
}

type Supplier struct {
	ID      int64  `json:"id_proveedor"`
	Name    string `json:"nombre"`
	Address string `json:"direccion"`
	Phone   string `json:"telefono"`
	Email   string `json:"email"`
}

type SupplierCreateRequest struct {
	Name    string `json:"nombre" validate:"required"`
	Address string `json:"direccion"`
	Phone   string `json:"telefono"`
	Email   string `json:"email"`
}

type SupplierUpdateRequest struct {
	Name    *string `json:"nombre,omitempty"`
	Address *string `json:"direccion,omitempty"`
	Phone   *string `json:"telefono,omitempty"`
	Email   *string `json:"email,omitempty"`
}

func (r SupplierUpdateRequest) Empty() bool {
	return r.Name == nil && r.Address == nil && r.Phone == nil && r.Email == nil
}

type UserAccount struct {
	ID       int64  `json:"id_usuario"`
	Username string `json:"username"`
	Password string `json:"-"`
	Role     string `json:"rol"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"rol"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"rol"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// Report shapes. Dates travel as YYYY-MM-DD strings, amounts with two
// fractional digits.

type SalesReportEntry struct {
	ID         int64           `json:"id"`
	Date       string          `json:"fecha_venta"`
	Total      decimal.Decimal `json:"total"`
	ClientID   *int64          `json:"id_cliente,omitempty"`
	ClientName string          `json:"cliente,omitempty"`
}

type SalesReport struct {
	From     string             `json:"desde"`
	To       string             `json:"hasta"`
	SumTotal decimal.Decimal    `json:"suma_total"`
	Entries  []SalesReportEntry `json:"ventas"`
}

type PurchasesReportEntry struct {
	ID           int64           `json:"id"`
	Date         string          `json:"fecha_compra"`
	Total        decimal.Decimal `json:"total"`
	SupplierID   *int64          `json:"id_proveedor,omitempty"`
	SupplierName string          `json:"proveedor,omitempty"`
}

type PurchasesReport struct {
	From     string                 `json:"desde"`
	To       string                 `json:"hasta"`
	SumTotal decimal.Decimal        `json:"suma_total"`
	Entries  []PurchasesReportEntry `json:"compras"`
}

// ProductProfit prices cost with the product's current cost price, not a
// point-in-time snapshot, so restating a cost restates historical profit.
type ProductProfit struct {
	ProductName  string          `json:"producto"`
	QuantitySold int64           `json:"cantidad_vendida"`
	TotalRevenue decimal.Decimal `json:"total_ventas"`
	TotalCost    decimal.Decimal `json:"total_costo"`
	Profit       decimal.Decimal `json:"ganancia"`
}

type ProfitReport struct {
	From        string          `json:"desde"`
	To          string          `json:"hasta"`
	TotalProfit decimal.Decimal `json:"ganancia_total"`
	PerProduct  []ProductProfit `json:"ganancias_por_producto"`
}

type LowStockEntry struct {
	Name     string `json:"nombre"`
	Stock    int    `json:"stock"`
	MinStock int    `json:"stock_minimo"`
}

type StockCatalogEntry struct {
	Name  string `json:"nombre"`
	Stock int    `json:"stock"`
}
