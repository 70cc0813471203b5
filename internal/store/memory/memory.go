// Package memory is an in-memory Repository used in dev mode and by unit
// tests. The single mutex plays the role of the database's row locks: every
// sale write is serialized, so the same stock-check-then-decrement semantics
// hold under concurrent callers.
package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/fault"
	"puntoventa/backend/internal/pricing"
	"puntoventa/backend/internal/store"
	"puntoventa/backend/internal/xid"
)

type Store struct {
	mu         sync.Mutex
	products   map[string]domain.Product
	salesByID  map[int64]domain.Sale
	nextSaleID int64
	users      map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:   make(map[string]domain.Product),
		salesByID:  make(map[int64]domain.Sale),
		nextSaleID: 1,
		users:      make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store pre-loaded with demo products and the dev user
// accounts, matching what the schema seed provides on postgres.
func NewSeeded() *Store {
	s := New()
	for _, p := range []domain.Product{
		{SKU: "SK-1", Name: "Arroz Grado 1 1kg", UnitPrice: 500, StockQuantity: 120},
		{SKU: "SK-2", Name: "Aceite Vegetal 900ml", UnitPrice: 2190, StockQuantity: 60},
		{SKU: "SK-3", Name: "Azucar 1kg", UnitPrice: 1290, StockQuantity: 80},
		{SKU: "SK-4", Name: "Harina 1kg", UnitPrice: 1090, StockQuantity: 45},
		{SKU: "SK-5", Name: "Leche Entera 1L", UnitPrice: 990, StockQuantity: 90},
		{SKU: "SK-6", Name: "Pan de Molde", UnitPrice: 1890, StockQuantity: 30},
		{SKU: "SK-7", Name: "Cafe Instantaneo 170g", UnitPrice: 4290, StockQuantity: 25},
		{SKU: "SK-8", Name: "Detergente 1L", UnitPrice: 2990, StockQuantity: 40},
	} {
		s.products[p.SKU] = p
	}
	s.users = seedUsers()
	return s
}

// seedUsers builds the dev/demo accounts. Credentials come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded defaults are used
// with a warning when unset. These accounts are never used in production (the
// backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cajera123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cajera", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].SKU < products[j].SKU })
	return products, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[sku]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (s *Store) GetProductsBySKUs(_ context.Context, skus []string) (map[string]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]domain.Product, len(skus))
	for _, sku := range skus {
		if p, ok := s.products[sku]; ok {
			result[sku] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.UnitPrice < 1 || product.StockQuantity < 0 {
		return nil, fault.New(fault.InvalidLine, "invalid product fields")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.products[product.SKU] = product
	created := product
	return &created, nil
}

func (s *Store) SetStock(_ context.Context, sku string, qty int) error {
	if sku == "" || qty < 0 {
		return fault.New(fault.InvalidLine, "invalid stock adjustment")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[sku]
	if !ok {
		return store.ErrNotFound
	}
	p.StockQuantity = qty
	s.products[sku] = p
	return nil
}

// CreateSale mirrors the postgres writer: re-validate, check every line
// against live stock, decrement, record the sale. The mutex makes the whole
// check-and-decrement atomic, so concurrent sales contending for the same SKU
// serialize exactly like they do behind the row lock.
func (s *Store) CreateSale(_ context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	quantities := make(map[string]int, len(draft.Lines))
	for _, line := range draft.Lines {
		quantities[line.SKU] += line.Quantity
	}
	skus := make([]string, 0, len(quantities))
	for sku := range quantities {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	subtotal := int64(0)
	lines := make([]domain.SaleLine, 0, len(skus))
	for _, sku := range skus {
		qty := quantities[sku]
		product, ok := s.products[sku]
		if !ok {
			return nil, fault.ForSKU(fault.UnknownSKU, sku, "product does not exist")
		}
		if product.StockQuantity < qty {
			return nil, fault.Stock(sku, qty, product.StockQuantity)
		}
		lineSubtotal := product.UnitPrice * int64(qty)
		subtotal += lineSubtotal
		lines = append(lines, domain.SaleLine{SKU: sku, Quantity: qty, Subtotal: lineSubtotal})
	}

	totals := pricing.Calculate(subtotal, draft.Discount, draft.TaxRate)
	if draft.CashPaid+draft.CardPaid != totals.Total {
		return nil, fault.Newf(fault.PaymentMismatch,
			"paid %d, authoritative total is %d", draft.CashPaid+draft.CardPaid, totals.Total)
	}

	// All checks passed; apply the decrement and the inserts together.
	for _, sku := range skus {
		p := s.products[sku]
		p.StockQuantity -= quantities[sku]
		s.products[sku] = p
	}

	sale := domain.Sale{
		ID:        s.nextSaleID,
		Cashier:   draft.Cashier,
		Subtotal:  totals.Subtotal,
		Discount:  draft.Discount,
		Tax:       totals.Tax,
		Total:     totals.Total,
		CashPaid:  draft.CashPaid,
		CardPaid:  draft.CardPaid,
		CreatedAt: time.Now().UTC(),
	}
	s.nextSaleID++
	for i := range lines {
		lines[i].SaleID = sale.ID
	}
	sale.Lines = lines
	if draft.TaxDocument {
		sale.TaxDocRef = xid.New("dte")
	}

	s.salesByID[sale.ID] = sale
	saved := sale
	return &saved, nil
}

func (s *Store) GetSaleByID(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := sale
	copied.Lines = append([]domain.SaleLine(nil), sale.Lines...)
	return &copied, nil
}

func (s *Store) DeleteSale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, line := range sale.Lines {
		if p, exists := s.products[line.SKU]; exists {
			p.StockQuantity += line.Quantity
			s.products[line.SKU] = p
		}
	}
	delete(s.salesByID, id)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Username]; exists {
		return fault.New(fault.InvalidLine, "username already exists")
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

var _ store.Repository = (*Store)(nil)
