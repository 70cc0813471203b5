package domain

import "puntoventa/backend/internal/fault"

// Validate runs the structural checks on a sale request, in order, failing
// fast on the first violation. It is stateless and side-effect free: the
// client may call it for UX feedback, the service calls it before opening a
// transaction, and the writer re-runs it inside the transaction because
// client-submitted data is never trusted as authoritative. The payment-total
// equality check needs live prices and therefore lives with the writer.
func (r SaleRequest) Validate() error {
	if len(r.Lines) == 0 {
		return fault.New(fault.EmptyCart, "no lines submitted")
	}
	for _, line := range r.Lines {
		if line.SKU == "" {
			return fault.New(fault.InvalidLine, "line with empty sku")
		}
		if line.Quantity < 1 {
			return fault.ForSKU(fault.InvalidLine, line.SKU, "quantity must be at least 1")
		}
	}
	if r.CashPaid < 0 || r.CardPaid < 0 {
		return fault.New(fault.InvalidPayment, "payment components must be non-negative")
	}
	if r.Discount < 0 {
		return fault.New(fault.InvalidPayment, "discount must be non-negative")
	}
	return nil
}

// Validate applies the same structural checks to a draft inside the writer.
func (d SaleDraft) Validate() error {
	req := SaleRequest{
		Lines:    d.Lines,
		CashPaid: d.CashPaid,
		CardPaid: d.CardPaid,
		Discount: d.Discount,
	}
	return req.Validate()
}
