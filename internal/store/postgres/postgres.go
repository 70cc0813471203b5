package postgres

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/fault"
	"puntoventa/backend/internal/pricing"
	"puntoventa/backend/internal/store"
	"puntoventa/backend/internal/xid"
)

// maxSaleAttempts bounds the writer's retry loop on serialization conflicts.
const maxSaleAttempts = 3

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
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, unit_price, stock_quantity
		FROM product
		ORDER BY sku
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.UnitPrice, &p.StockQuantity); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT sku, name, unit_price, stock_quantity
		FROM product
		WHERE sku = $1
	`, sku).Scan(&p.SKU, &p.Name, &p.UnitPrice, &p.StockQuantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sku, name, unit_price, stock_quantity
		FROM product
		WHERE sku = ANY($1)
	`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.Name, &p.UnitPrice, &p.StockQuantity); err != nil {
			return nil, err
		}
		result[p.SKU] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.UnitPrice < 1 || product.StockQuantity < 0 {
		return nil, fault.New(fault.InvalidLine, "invalid product fields")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product (sku, name, unit_price, stock_quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,now(),now())
	`, product.SKU, product.Name, product.UnitPrice, product.StockQuantity)
	if err != nil {
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) SetStock(ctx context.Context, sku string, qty int) error {
	if sku == "" || qty < 0 {
		return fault.New(fault.InvalidLine, "invalid stock adjustment")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE product
		SET stock_quantity = $2, updated_at = now()
		WHERE sku = $1
	`, sku, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateSale is the stock-aware order writer. The whole write is one
// SERIALIZABLE transaction: lock the referenced product rows in ascending SKU
// order, re-validate every line against live stock, decrement stock, insert
// the sale header, one line per SKU and the payment split, then commit. Any
// failure rolls the whole thing back. Serialization conflicts are retried a
// bounded number of times with jittered backoff before surfacing as a
// retryable fault.
func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxSaleAttempts; attempt++ {
		sale, err := s.createSaleOnce(ctx, draft)
		if err == nil {
			return sale, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
		if attempt < maxSaleAttempts {
			select {
			case <-time.After(backoffWithJitter(attempt)):
			case <-ctx.Done():
				return nil, fault.Storage(ctx.Err())
			}
		}
	}
	return nil, fault.Conflict(lastErr)
}

func (s *Store) createSaleOnce(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	quantities := mergeQuantities(draft.Lines)
	skus := make([]string, 0, len(quantities))
	for sku := range quantities {
		skus = append(skus, sku)
	}
	// Ascending SKU order gives every concurrent sale the same lock
	// acquisition order, which rules out circular wait between sales
	// sharing SKUs.
	sort.Strings(skus)

	rows, err := tx.QueryContext(ctx, `
		SELECT sku, unit_price, stock_quantity
		FROM product
		WHERE sku = ANY($1)
		ORDER BY sku
		FOR UPDATE
	`, skus)
	if err != nil {
		return nil, classify(err)
	}
	locked := make(map[string]domain.Product, len(skus))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.SKU, &p.UnitPrice, &p.StockQuantity); err != nil {
			_ = rows.Close()
			return nil, classify(err)
		}
		locked[p.SKU] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, classify(err)
	}
	_ = rows.Close()

	subtotal := int64(0)
	lines := make([]domain.SaleLine, 0, len(skus))
	for _, sku := range skus {
		qty := quantities[sku]
		product, exists := locked[sku]
		if !exists {
			return nil, fault.ForSKU(fault.UnknownSKU, sku, "product does not exist")
		}
		if product.StockQuantity < qty {
			return nil, fault.Stock(sku, qty, product.StockQuantity)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE product
			SET stock_quantity = stock_quantity - $1, updated_at = now()
			WHERE sku = $2
		`, qty, sku)
		if err != nil {
			return nil, classify(err)
		}

		lineSubtotal := product.UnitPrice * int64(qty)
		subtotal += lineSubtotal
		lines = append(lines, domain.SaleLine{
			SKU:      sku,
			Quantity: qty,
			Subtotal: lineSubtotal,
		})
	}

	totals := pricing.Calculate(subtotal, draft.Discount, draft.TaxRate)
	if draft.CashPaid+draft.CardPaid != totals.Total {
		return nil, fault.Newf(fault.PaymentMismatch,
			"paid %d, authoritative total is %d", draft.CashPaid+draft.CardPaid, totals.Total)
	}

	sale := domain.Sale{
		Cashier:   draft.Cashier,
		Subtotal:  totals.Subtotal,
		Discount:  draft.Discount,
		Tax:       totals.Tax,
		Total:     totals.Total,
		CashPaid:  draft.CashPaid,
		CardPaid:  draft.CardPaid,
		CreatedAt: time.Now().UTC(),
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO sale (cashier, subtotal, discount, tax, total, cash_paid, card_paid, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, sale.Cashier, sale.Subtotal, sale.Discount, sale.Tax, sale.Total, sale.CashPaid, sale.CardPaid, sale.CreatedAt).Scan(&sale.ID)
	if err != nil {
		return nil, classify(err)
	}

	for i := range lines {
		lines[i].SaleID = sale.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_line (sale_id, sku, quantity, subtotal)
			VALUES ($1,$2,$3,$4)
		`, sale.ID, lines[i].SKU, lines[i].Quantity, lines[i].Subtotal)
		if err != nil {
			return nil, classify(err)
		}
	}

	if draft.TaxDocument {
		sale.TaxDocRef = xid.New("dte")
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tax_document (sale_id, reference, created_at)
			VALUES ($1,$2,$3)
		`, sale.ID, sale.TaxDocRef, sale.CreatedAt)
		if err != nil {
			return nil, classify(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}

	sale.Lines = lines
	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	var taxDocRef sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.cashier, s.subtotal, s.discount, s.tax, s.total,
			s.cash_paid, s.card_paid, s.created_at, td.reference
		FROM sale s
		LEFT JOIN tax_document td ON td.sale_id = s.id
		WHERE s.id = $1
	`, id).Scan(
		&sale.ID,
		&sale.Cashier,
		&sale.Subtotal,
		&sale.Discount,
		&sale.Tax,
		&sale.Total,
		&sale.CashPaid,
		&sale.CardPaid,
		&sale.CreatedAt,
		&taxDocRef,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if taxDocRef.Valid {
		sale.TaxDocRef = taxDocRef.String
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, sku, quantity, subtotal
		FROM sale_line
		WHERE sale_id = $1
		ORDER BY sku
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.SaleID, &line.SKU, &line.Quantity, &line.Subtotal); err != nil {
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

// DeleteSale removes a sale as an admin correction. The lines cascade via the
// foreign key; the decremented stock is restored in the same transaction so
// stock conservation holds across corrections.
func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT sku, quantity
		FROM sale_line
		WHERE sale_id = $1
		ORDER BY sku
	`, id)
	if err != nil {
		return err
	}
	type restock struct {
		sku string
		qty int
	}
	restocks := make([]restock, 0, 8)
	for rows.Next() {
		var r restock
		if err := rows.Scan(&r.sku, &r.qty); err != nil {
			_ = rows.Close()
			return err
		}
		restocks = append(restocks, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	res, err := tx.ExecContext(ctx, `DELETE FROM sale WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	for _, r := range restocks {
		_, err = tx.ExecContext(ctx, `
			UPDATE product
			SET stock_quantity = stock_quantity + $1, updated_at = now()
			WHERE sku = $2
		`, r.qty, r.sku)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_user (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_user
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE app_user
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// mergeQuantities collapses duplicate SKUs in the request into one quantity
// per distinct SKU, matching the cart invariant of one line per SKU.
func mergeQuantities(lines []domain.SaleLineRequest) map[string]int {
	merged := make(map[string]int, len(lines))
	for _, line := range lines {
		merged[line.SKU] += line.Quantity
	}
	return merged
}

// classify wraps raw database errors that are not already faults. Fault-typed
// errors and serialization failures pass through untouched so the retry loop
// and callers can match on them.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := fault.As(err); ok {
		return err
	}
	if isSerializationFailure(err) {
		return err
	}
	return fault.Storage(err)
}

// isSerializationFailure matches SQLSTATE 40001 (serialization_failure) and
// 40P01 (deadlock_detected).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func backoffWithJitter(attempt int) time.Duration {
	base := time.Duration(attempt) * 25 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(20 * time.Millisecond)))
	return base + jitter
}

var _ store.Repository = (*Store)(nil)
