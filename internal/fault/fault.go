// Package fault defines the closed error taxonomy surfaced by the sale
// engine. Every failure the engine reports to a caller carries one of these
// codes; raw storage errors are classified and never leak their internal text.
package fault

import (
	"errors"
	"fmt"
)

type Code string

const (
	EmptyCart           Code = "EMPTY_CART"
	InvalidLine         Code = "INVALID_LINE"
	InvalidPayment      Code = "INVALID_PAYMENT"
	PaymentMismatch     Code = "PAYMENT_MISMATCH"
	UnknownSKU          Code = "UNKNOWN_SKU"
	InsufficientStock   Code = "INSUFFICIENT_STOCK"
	TransactionConflict Code = "TRANSACTION_CONFLICT"
	StorageFailure      Code = "STORAGE_FAILURE"
)

// Fault is a classified failure. SKU and Deficit are set only for the codes
// that carry them (UNKNOWN_SKU, INSUFFICIENT_STOCK).
type Fault struct {
	Code    Code
	Detail  string
	SKU     string
	Deficit int
	cause   error
}

func (f *Fault) Error() string {
	if f.SKU != "" {
		return fmt.Sprintf("%s: %s (sku=%s)", f.Code, f.Detail, f.SKU)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Detail)
}

func (f *Fault) Unwrap() error { return f.cause }

// Retryable reports whether resubmitting the identical request may succeed
// without the caller changing anything. Only serialization conflicts qualify;
// every other code requires cart or payment correction first.
func (f *Fault) Retryable() bool { return f.Code == TransactionConflict }

func New(code Code, detail string) *Fault {
	return &Fault{Code: code, Detail: detail}
}

func Newf(code Code, format string, args ...any) *Fault {
	return &Fault{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// ForSKU builds a fault tied to a specific product line.
func ForSKU(code Code, sku string, detail string) *Fault {
	return &Fault{Code: code, SKU: sku, Detail: detail}
}

// Stock builds an INSUFFICIENT_STOCK fault carrying the offending SKU and the
// deficit (requested minus available).
func Stock(sku string, requested, available int) *Fault {
	return &Fault{
		Code:    InsufficientStock,
		SKU:     sku,
		Deficit: requested - available,
		Detail:  fmt.Sprintf("requested %d, only %d in stock", requested, available),
	}
}

// Storage wraps an unclassified storage error. The wrapped cause is kept for
// logging but Report never exposes it to clients.
func Storage(cause error) *Fault {
	return &Fault{Code: StorageFailure, Detail: "storage failure", cause: cause}
}

// Conflict wraps a store-detected serialization conflict after retries
// exhausted.
func Conflict(cause error) *Fault {
	return &Fault{Code: TransactionConflict, Detail: "transaction conflict, retry the request", cause: cause}
}

// As extracts a *Fault from an error chain.
func As(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Has reports whether err carries the given code.
func Has(err error, code Code) bool {
	if f, ok := As(err); ok {
		return f.Code == code
	}
	return false
}

// Report is the wire representation of a failure.
type Report struct {
	ErrorCode    Code   `json:"error_code"`
	Detail       string `json:"detail"`
	OffendingSKU string `json:"offending_sku,omitempty"`
	Retryable    bool   `json:"retryable"`
}

// ReportOf renders err as a user-facing report. Unclassified errors are
// reported as STORAGE_FAILURE with a generic detail so internal error text
// never reaches a client.
func ReportOf(err error) Report {
	f, ok := As(err)
	if !ok {
		f = Storage(err)
	}
	detail := f.Detail
	if f.Code == StorageFailure {
		detail = "internal storage failure"
	}
	return Report{
		ErrorCode:    f.Code,
		Detail:       detail,
		OffendingSKU: f.SKU,
		Retryable:    f.Retryable(),
	}
}
