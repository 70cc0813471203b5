// Package cart implements the client-resident cart aggregator. It accumulates
// line items from product selection, keeps derived totals, and emits a
// finalized sale request. It performs no I/O and never touches stock; stock
// truth lives server-side.
package cart

import (
	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/pricing"
)

// Cart holds at most one line per SKU, in insertion order. The order carries
// no semantics; it just keeps the on-screen list stable.
type Cart struct {
	lines    []domain.LineItem
	index    map[string]int
	discount int64
	taxRate  float64
}

func New(taxRate float64) *Cart {
	if taxRate <= 0 {
		taxRate = pricing.DefaultTaxRate
	}
	return &Cart{
		index:   make(map[string]int),
		taxRate: taxRate,
	}
}

// AddOrIncrement bumps the quantity for an already-present SKU or appends a
// new line with quantity 1.
func (c *Cart) AddOrIncrement(product domain.Product) {
	if pos, ok := c.index[product.SKU]; ok {
		c.lines[pos].Quantity++
		return
	}
	c.index[product.SKU] = len(c.lines)
	c.lines = append(c.lines, domain.LineItem{
		SKU:       product.SKU,
		Name:      product.Name,
		UnitPrice: product.UnitPrice,
		Quantity:  1,
	})
}

// Decrement lowers a line's quantity by one, removing the line when it
// reaches zero. No-op for an absent SKU.
func (c *Cart) Decrement(sku string) {
	pos, ok := c.index[sku]
	if !ok {
		return
	}
	c.lines[pos].Quantity--
	if c.lines[pos].Quantity <= 0 {
		c.removeAt(pos)
	}
}

// Remove drops a line unconditionally. No-op for an absent SKU.
func (c *Cart) Remove(sku string) {
	if pos, ok := c.index[sku]; ok {
		c.removeAt(pos)
	}
}

func (c *Cart) removeAt(pos int) {
	delete(c.index, c.lines[pos].SKU)
	c.lines = append(c.lines[:pos], c.lines[pos+1:]...)
	for i := pos; i < len(c.lines); i++ {
		c.index[c.lines[i].SKU] = i
	}
}

// Clear empties the cart. Called after a committed sale or an explicit cancel.
func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[string]int)
	c.discount = 0
}

// SetDiscount records a cart-level discount. Reserved: the current UI always
// leaves it at zero.
func (c *Cart) SetDiscount(amount int64) {
	if amount < 0 {
		amount = 0
	}
	c.discount = amount
}

func (c *Cart) Len() int { return len(c.lines) }

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []domain.LineItem {
	out := make([]domain.LineItem, len(c.lines))
	copy(out, c.lines)
	return out
}

// Totals recomputes subtotal, tax and total from the live lines on every call.
// Totals are never cached; a stale total can never be observed after a
// mutation.
func (c *Cart) Totals() pricing.Totals {
	subtotal := int64(0)
	for _, line := range c.lines {
		subtotal += line.UnitPrice * int64(line.Quantity)
	}
	return pricing.Calculate(subtotal, c.discount, c.taxRate)
}

// Request emits the finalized sale request for the current cart contents and
// the given payment split. The server recomputes all amounts; the request
// intentionally carries no prices.
func (c *Cart) Request(cashPaid, cardPaid int64, taxDocument bool) domain.SaleRequest {
	lines := make([]domain.SaleLineRequest, 0, len(c.lines))
	for _, line := range c.lines {
		lines = append(lines, domain.SaleLineRequest{SKU: line.SKU, Quantity: line.Quantity})
	}
	return domain.SaleRequest{
		Lines:       lines,
		CashPaid:    cashPaid,
		CardPaid:    cardPaid,
		Discount:    c.discount,
		TaxDocument: taxDocument,
	}
}
