package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO Productos (nombre, descripcion, precio_compra, porcentaje_ganancia, precio_venta, stock, stock_minimo, id_proveedor)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id_producto
	`, product.Name, product.Description, product.CostPrice, product.MarginPct, product.SalePrice,
		product.Stock, product.MinStock, nullID(product.SupplierID)).Scan(&product.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, &store.NotFoundError{Entity: "proveedor", ID: derefID(product.SupplierID)}
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT id_producto, nombre, descripcion, precio_compra, porcentaje_ganancia, precio_venta, stock, stock_minimo, id_proveedor
		FROM Productos
		WHERE id_producto = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.NotFoundError{Entity: "producto", ID: id}
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id_producto, nombre, descripcion, precio_compra, porcentaje_ganancia, precio_venta, stock, stock_minimo, id_proveedor
		FROM Productos
		ORDER BY id_producto
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE Productos
		SET nombre = $2, descripcion = $3, precio_compra = $4, porcentaje_ganancia = $5,
			precio_venta = $6, stock = $7, stock_minimo = $8, id_proveedor = $9
		WHERE id_producto = $1
	`, product.ID, product.Name, product.Description, product.CostPrice, product.MarginPct,
		product.SalePrice, product.Stock, product.MinStock, nullID(product.SupplierID))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, &store.NotFoundError{Entity: "proveedor", ID: derefID(product.SupplierID)}
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &store.NotFoundError{Entity: "producto", ID: product.ID}
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM Productos WHERE id_producto = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: producto %d is referenced by sale or purchase lines", store.ErrConflict, id)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &store.NotFoundError{Entity: "producto", ID: id}
	}
	return nil
}

// lockProductStock acquires an exclusive row lock on the product, scoped to
// the enclosing transaction, and returns the stock seen under that lock.
func lockProductStock(ctx context.Context, tx *sql.Tx, productID int64) (int, error) {
	var stock int
	err := tx.QueryRowContext(ctx, `
		SELECT stock
		FROM Productos
		WHERE id_producto = $1
		FOR UPDATE
	`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &store.NotFoundError{Entity: "producto", ID: productID}
		}
		return 0, err
	}
	return stock, nil
}

// RecordSale writes the sale header, its lines and the stock decrements in a
// single transaction. Each line locks its product row and checks stock in
// caller order, so a later line for the same product sees the decrements of
// the earlier ones and two lines can never jointly oversell.
func (s *Store) RecordSale(ctx context.Context, sale store.SaleInput) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("%w: sale needs at least one line", store.ErrInvalidArgument)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	total := decimal.Zero
	for _, item := range sale.Items {
		stock, err := lockProductStock(ctx, tx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if stock < item.Qty {
			return nil, &store.InsufficientStockError{
				ProductID: item.ProductID,
				Available: stock,
				Requested: item.Qty,
			}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE Productos
			SET stock = stock - $1
			WHERE id_producto = $2
		`, item.Qty, item.ProductID)
		if err != nil {
			return nil, err
		}
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty))))
	}
	total = total.Round(2)

	result := domain.Sale{SaleDate: sale.SaleDate, ClientID: sale.ClientID, Total: total}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO Ventas (fecha_venta, id_cliente, total)
		VALUES ($1,$2,$3)
		RETURNING id_venta
	`, sale.SaleDate, nullID(sale.ClientID), total).Scan(&result.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, &store.NotFoundError{Entity: "cliente", ID: derefID(sale.ClientID)}
		}
		return nil, err
	}

	for _, item := range sale.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO Detalle_Ventas (id_venta, id_producto, cantidad, precio_unitario)
			VALUES ($1,$2,$3,$4)
		`, result.ID, item.ProductID, item.Qty, item.UnitPrice)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	var clientID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id_venta, fecha_venta, id_cliente, total
		FROM Ventas
		WHERE id_venta = $1
	`, id).Scan(&sale.ID, &sale.SaleDate, &clientID, &sale.Total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.NotFoundError{Entity: "venta", ID: id}
		}
		return nil, err
	}
	if clientID.Valid {
		sale.ClientID = &clientID.Int64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id_detalle, id_venta, id_producto, cantidad, precio_unitario
		FROM Detalle_Ventas
		WHERE id_venta = $1
		ORDER BY id_detalle
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.Qty, &line.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sale.Lines = lines
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id_venta, fecha_venta, id_cliente, total
		FROM Ventas
		ORDER BY id_venta
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		var clientID sql.NullInt64
		if err := rows.Scan(&sale.ID, &sale.SaleDate, &clientID, &sale.Total); err != nil {
			return nil, err
		}
		if clientID.Valid {
			sale.ClientID = &clientID.Int64
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// RecordPurchase mirrors RecordSale but increases stock; there is no stock
// check to fail, only the existence of each product. Rows are still locked in
// caller order so purchases and sales touching the same products cannot
// deadlock on lock order.
func (s *Store) RecordPurchase(ctx context.Context, purchase store.PurchaseInput) (*domain.Purchase, error) {
	if len(purchase.Items) == 0 {
		return nil, fmt.Errorf("%w: purchase needs at least one line", store.ErrInvalidArgument)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	total := decimal.Zero
	for _, item := range purchase.Items {
		if _, err := lockProductStock(ctx, tx, item.ProductID); err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE Productos
			SET stock = stock + $1
			WHERE id_producto = $2
		`, item.Qty, item.ProductID)
		if err != nil {
			return nil, err
		}
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Qty))))
	}
	total = total.Round(2)

	result := domain.Purchase{PurchaseDate: purchase.PurchaseDate, SupplierID: purchase.SupplierID, Total: total}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO Compras (fecha_compra, id_proveedor, total)
		VALUES ($1,$2,$3)
		RETURNING id_compra
	`, purchase.PurchaseDate, nullID(purchase.SupplierID), total).Scan(&result.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, &store.NotFoundError{Entity: "proveedor", ID: derefID(purchase.SupplierID)}
		}
		return nil, err
	}

	for _, item := range purchase.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO Detalle_Compras (id_compra, id_producto, cantidad, precio_unitario)
			VALUES ($1,$2,$3,$4)
		`, result.ID, item.ProductID, item.Qty, item.UnitPrice)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Store) GetPurchase(ctx context.Context, id int64) (*domain.Purchase, error) {
	var purchase domain.Purchase
	var supplierID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id_compra, fecha_compra, id_proveedor, total
		FROM Compras
		WHERE id_compra = $1
	`, id).Scan(&purchase.ID, &purchase.PurchaseDate, &supplierID, &purchase.Total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.NotFoundError{Entity: "compra", ID: id}
		}
		return nil, err
	}
	if supplierID.Valid {
		purchase.SupplierID = &supplierID.Int64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id_detalle, id_compra, id_producto, cantidad, precio_unitario
		FROM Detalle_Compras
		WHERE id_compra = $1
		ORDER BY id_detalle
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.PurchaseLine, 0, 8)
	for rows.Next() {
		var line domain.PurchaseLine
		if err := rows.Scan(&line.ID, &line.PurchaseID, &line.ProductID, &line.Qty, &line.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	purchase.Lines = lines
	return &purchase, nil
}

func (s *Store) ListPurchases(ctx context.Context) ([]domain.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id_compra, fecha_compra, id_proveedor, total
		FROM Compras
		ORDER BY id_compra
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 64)
	for rows.Next() {
		var purchase domain.Purchase
		var supplierID sql.NullInt64
		if err := rows.Scan(&purchase.ID, &purchase.PurchaseDate, &supplierID, &purchase.Total); err != nil {
			return nil, err
		}
		if supplierID.Valid {
			purchase.SupplierID = &supplierID.Int64
		}
		purchases = append(purchases, purchase)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO Clientes (nombre, direccion, telefono, email)
		VALUES ($1,$2,$3,$4)
		RETURNING id_cliente
	`, client.Name, client.Address, client.Phone, client.Email).Scan(&client.ID)
	if err != nil {
		return nil, err
	}
	created := client
	return &created, nil
}

func (s *Store) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	var client domain.Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id_cliente, nombre, direccion, telefono, email
		FROM Clientes
		WHERE id_cliente = $1
	`, id).Scan(&client.ID, &client.Name, &client.Address, &client.Phone, &client.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.NotFoundError{Entity: "cliente", ID: id}
		}
		return nil, err
	}
	return &client, nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id_cliente, nombre, direccion, telefono, email
		FROM Clientes
		ORDER BY id_cliente
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 64)
	for rows.Next() {
		var client domain.Client
		if err := rows.Scan(&client.ID, &client.Name, &client.Address, &client.Phone, &client.Email); err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE Clientes
		SET nombre = $2, direccion = $3, telefono = $4, email = $5
		WHERE id_cliente = $1
	`, client.ID, client.Name, client.Address, client.Phone, client.Email)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &store.NotFoundError{Entity: "cliente", ID: client.ID}
	}
	updated := client
	return &updated, nil
}

func (s *Store) DeleteClient(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM Clientes WHERE id_cliente = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: cliente %d is referenced by sales", store.ErrConflict, id)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &store.NotFoundError{Entity: "cliente", ID: id}
	}
	return nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO Proveedores (nombre, direccion, telefono, email)
		VALUES ($1,$2,$3,$4)
		RETURNING id_proveedor
	`, supplier.Name, supplier.Address, supplier.Phone, supplier.Email).Scan(&supplier.ID)
	if err != nil {
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) GetSupplier(ctx context.Context, id int64) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id_proveedor, nombre, direccion, telefono, email
		FROM Proveedores
		WHERE id_proveedor = $1
	`, id).Scan(&supplier.ID, &supplier.Name, &supplier.Address, &supplier.Phone, &supplier.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &store.NotFoundError{Entity: "proveedor", ID: id}
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id_proveedor, nombre, direccion, telefono, email
		FROM Proveedores
		ORDER BY id_proveedor
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var supplier domain.Supplier
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.Address, &supplier.Phone, &supplier.Email); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, supplier)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE Proveedores
		SET nombre = $2, direccion = $3, telefono = $4, email = $5
		WHERE id_proveedor = $1
	`, supplier.ID, supplier.Name, supplier.Address, supplier.Phone, supplier.Email)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, &store.NotFoundError{Entity: "proveedor", ID: supplier.ID}
	}
	updated := supplier
	return &updated, nil
}

func (s *Store) DeleteSupplier(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM Proveedores WHERE id_proveedor = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: proveedor %d is referenced by products or purchases", store.ErrConflict, id)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &store.NotFoundError{Entity: "proveedor", ID: id}
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO Usuarios (username, password, rol)
		VALUES ($1,$2,$3)
		RETURNING id_usuario
	`, user.Username, user.Password, user.Role).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username %q already exists", store.ErrConflict, user.Username)
		}
		return nil, err
	}
	created := user
	return &created, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id_usuario, username, password, rol
		FROM Usuarios
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.Password, &user.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id_usuario, username, password, rol
		FROM Usuarios
		ORDER BY id_usuario
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Username, &user.Password, &user.Role); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) ReportSales(ctx context.Context, from time.Time, to time.Time) (*domain.SalesReport, error) {
	report := &domain.SalesReport{
		From:     from.Format(time.DateOnly),
		To:       to.Format(time.DateOnly),
		SumTotal: decimal.Zero,
		Entries:  make([]domain.SalesReportEntry, 0, 64),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id_venta, v.fecha_venta, v.total, c.id_cliente, COALESCE(c.nombre, '')
		FROM Ventas v
		LEFT JOIN Clientes c ON v.id_cliente = c.id_cliente
		WHERE v.fecha_venta BETWEEN $1 AND $2
		ORDER BY v.fecha_venta, v.id_venta
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.SalesReportEntry
		var date time.Time
		var clientID sql.NullInt64
		if err := rows.Scan(&entry.ID, &date, &entry.Total, &clientID, &entry.ClientName); err != nil {
			return nil, err
		}
		entry.Date = date.Format(time.DateOnly)
		if clientID.Valid {
			entry.ClientID = &clientID.Int64
		}
		report.Entries = append(report.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0)
		FROM Ventas
		WHERE fecha_venta BETWEEN $1 AND $2
	`, from, to).Scan(&report.SumTotal)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) ReportPurchases(ctx context.Context, from time.Time, to time.Time) (*domain.PurchasesReport, error) {
	report := &domain.PurchasesReport{
		From:     from.Format(time.DateOnly),
		To:       to.Format(time.DateOnly),
		SumTotal: decimal.Zero,
		Entries:  make([]domain.PurchasesReportEntry, 0, 64),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id_compra, c.fecha_compra, c.total, p.id_proveedor, COALESCE(p.nombre, '')
		FROM Compras c
		LEFT JOIN Proveedores p ON c.id_proveedor = p.id_proveedor
		WHERE c.fecha_compra BETWEEN $1 AND $2
		ORDER BY c.fecha_compra, c.id_compra
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.PurchasesReportEntry
		var date time.Time
		var supplierID sql.NullInt64
		if err := rows.Scan(&entry.ID, &date, &entry.Total, &supplierID, &entry.SupplierName); err != nil {
			return nil, err
		}
		entry.Date = date.Format(time.DateOnly)
		if supplierID.Valid {
			entry.SupplierID = &supplierID.Int64
		}
		report.Entries = append(report.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0)
		FROM Compras
		WHERE fecha_compra BETWEEN $1 AND $2
	`, from, to).Scan(&report.SumTotal)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) ReportProfitByProduct(ctx context.Context, from time.Time, to time.Time) (*domain.ProfitReport, error) {
	report := &domain.ProfitReport{
		From:        from.Format(time.DateOnly),
		To:          to.Format(time.DateOnly),
		TotalProfit: decimal.Zero,
		PerProduct:  make([]domain.ProductProfit, 0, 32),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.nombre,
			SUM(dv.cantidad),
			SUM(dv.cantidad * dv.precio_unitario),
			SUM(dv.cantidad * p.precio_compra),
			SUM(dv.cantidad * (dv.precio_unitario - p.precio_compra))
		FROM Detalle_Ventas dv
		JOIN Ventas v ON dv.id_venta = v.id_venta
		JOIN Productos p ON dv.id_producto = p.id_producto
		WHERE v.fecha_venta BETWEEN $1 AND $2
		GROUP BY p.nombre
		ORDER BY p.nombre
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var row domain.ProductProfit
		if err := rows.Scan(&row.ProductName, &row.QuantitySold, &row.TotalRevenue, &row.TotalCost, &row.Profit); err != nil {
			return nil, err
		}
		report.PerProduct = append(report.PerProduct, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(dv.cantidad * (dv.precio_unitario - p.precio_compra)), 0)
		FROM Detalle_Ventas dv
		JOIN Ventas v ON dv.id_venta = v.id_venta
		JOIN Productos p ON dv.id_producto = p.id_producto
		WHERE v.fecha_venta BETWEEN $1 AND $2
	`, from, to).Scan(&report.TotalProfit)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) ReportLowStock(ctx context.Context) ([]domain.LowStockEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT nombre, stock, stock_minimo
		FROM Productos
		WHERE stock <= stock_minimo
		ORDER BY nombre
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LowStockEntry, 0, 32)
	for rows.Next() {
		var entry domain.LowStockEntry
		if err := rows.Scan(&entry.Name, &entry.Stock, &entry.MinStock); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ReportStockCatalog(ctx context.Context) ([]domain.StockCatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT nombre, stock
		FROM Productos
		ORDER BY nombre
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockCatalogEntry, 0, 64)
	for rows.Next() {
		var entry domain.StockCatalogEntry
		if err := rows.Scan(&entry.Name, &entry.Stock); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var product domain.Product
	var supplierID sql.NullInt64
	err := row.Scan(&product.ID, &product.Name, &product.Description, &product.CostPrice,
		&product.MarginPct, &product.SalePrice, &product.Stock, &product.MinStock, &supplierID)
	if err != nil {
		return nil, err
	}
	if supplierID.Valid {
		product.SupplierID = &supplierID.Int64
	}
	return &product, nil
}

func nullID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
