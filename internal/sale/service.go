// Package sale coordinates sale submission: request validation, the
// transactional write, and the response shape handed back to the register.
package sale

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"puntoventa/backend/internal/cache"
	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/fault"
	"puntoventa/backend/internal/metrics"
	"puntoventa/backend/internal/pricing"
	"puntoventa/backend/internal/store"
)

const productCacheTTL = 5 * time.Minute

var ErrForbidden = errors.New("forbidden")

type contextKey string

const actorContextKey contextKey = "actor"

// WithActor attaches the authenticated cashier to the request context.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	cache   cache.ProductCache
	metrics *metrics.Metrics
	taxRate float64
}

func New(repo store.Repository, productCache cache.ProductCache, m *metrics.Metrics, taxRate float64) *Service {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if taxRate <= 0 {
		taxRate = pricing.DefaultTaxRate
	}
	return &Service{repo: repo, cache: productCache, metrics: m, taxRate: taxRate}
}

// Submit runs a finalized sale request through validation and the
// transactional writer. On success the sale is fully committed: stock
// decremented and all rows inserted. On any failure nothing was written.
func (s *Service) Submit(ctx context.Context, req domain.SaleRequest) (*domain.SaleResponse, error) {
	started := time.Now()
	sale, err := s.submit(ctx, req)
	if s.metrics != nil {
		s.metrics.SaleDuration.Observe(time.Since(started).Seconds())
		if err != nil {
			if f, ok := fault.As(err); ok {
				s.metrics.SaleFailures.WithLabelValues(string(f.Code)).Inc()
				if f.Code == fault.TransactionConflict {
					s.metrics.ConflictRetry.Inc()
				}
			} else {
				s.metrics.SaleFailures.WithLabelValues(string(fault.StorageFailure)).Inc()
			}
		} else {
			s.metrics.SalesCommitted.Inc()
		}
	}
	if err != nil {
		return nil, err
	}
	return &domain.SaleResponse{
		SaleID:    sale.ID,
		Total:     sale.Total,
		Timestamp: sale.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) submit(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cashier := "unknown"
	if actor, ok := ActorFromContext(ctx); ok {
		cashier = actor.Username
	}

	draft := domain.SaleDraft{
		Cashier:     cashier,
		Lines:       req.Lines,
		Discount:    req.Discount,
		CashPaid:    req.CashPaid,
		CardPaid:    req.CardPaid,
		TaxRate:     s.taxRate,
		TaxDocument: req.TaxDocument,
	}

	sale, err := s.repo.CreateSale(ctx, draft)
	if err != nil {
		if f, ok := fault.As(err); ok && f.Code == fault.StorageFailure {
			log.Printf("[sale] storage failure for cashier %s: %v", cashier, err)
		}
		return nil, err
	}
	return sale, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.repo.GetSaleByID(ctx, id)
}

// DeleteSale is the admin correction flow: the sale and its lines are removed
// and the sold quantities are returned to stock.
func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("%w: sale deletion requires admin role", ErrForbidden)
	}
	return s.repo.DeleteSale(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// GetProduct reads through the product cache. Cache misses and cache errors
// both fall back to storage; a failed refill only logs.
func (s *Service) GetProduct(ctx context.Context, sku string) (*domain.Product, error) {
	if cached, hit, err := s.cache.Get(ctx, sku); err == nil && hit {
		return cached, nil
	} else if err != nil {
		log.Printf("[sale] product cache read failed for %s: %v", sku, err)
	}

	product, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, sku, product, productCacheTTL); err != nil {
		log.Printf("[sale] product cache write failed for %s: %v", sku, err)
	}
	return product, nil
}

// Preview recomputes totals for a cart the way the writer will, letting the
// register show the authoritative figure before payment is taken.
func (s *Service) Preview(ctx context.Context, req domain.SaleRequest) (pricing.Totals, error) {
	if err := req.Validate(); err != nil {
		return pricing.Totals{}, err
	}

	skus := make([]string, 0, len(req.Lines))
	for _, line := range req.Lines {
		skus = append(skus, line.SKU)
	}
	products, err := s.repo.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return pricing.Totals{}, fault.Storage(err)
	}

	subtotal := int64(0)
	for _, line := range req.Lines {
		product, ok := products[line.SKU]
		if !ok {
			return pricing.Totals{}, fault.ForSKU(fault.UnknownSKU, line.SKU, "product does not exist")
		}
		subtotal += product.UnitPrice * int64(line.Quantity)
	}
	return pricing.Calculate(subtotal, req.Discount, s.taxRate), nil
}
