// Package pricing holds the single shared tax/total computation used by both
// the optimistic cart preview and the authoritative server-side recompute, so
// the two always agree exactly on integer inputs.
package pricing

import "math"

// DefaultTaxRate is the deployment's fixed IVA rate.
const DefaultTaxRate = 0.19

// Totals carries the derived amounts for a cart or sale. All values are whole
// currency units; the deployment currency has no fractional subdivision.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Taxable  int64 `json:"taxable"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// Calculate derives taxable, tax and total from a subtotal and discount.
// taxable = max(subtotal-discount, 0); tax = round-half-up(taxable × rate);
// total = taxable + tax. Rounding happens here and nowhere else.
func Calculate(subtotal, discount int64, taxRate float64) Totals {
	taxable := subtotal - discount
	if taxable < 0 {
		taxable = 0
	}
	tax := int64(math.Round(float64(taxable) * taxRate))
	return Totals{
		Subtotal: subtotal,
		Taxable:  taxable,
		Tax:      tax,
		Total:    taxable + tax,
	}
}
