package domain

import (
	"testing"

	"puntoventa/backend/internal/fault"
)

func TestValidate_OrderOfChecks(t *testing.T) {
	// An empty cart wins over any other defect.
	err := SaleRequest{CashPaid: -1}.Validate()
	if !fault.Has(err, fault.EmptyCart) {
		t.Fatalf("expected EMPTY_CART first, got %v", err)
	}

	// A bad line wins over a bad payment.
	err = SaleRequest{
		Lines:    []SaleLineRequest{{SKU: "SK-1", Quantity: 0}},
		CashPaid: -1,
	}.Validate()
	if !fault.Has(err, fault.InvalidLine) {
		t.Fatalf("expected INVALID_LINE before INVALID_PAYMENT, got %v", err)
	}
}

func TestValidate_AcceptsWellFormedRequest(t *testing.T) {
	err := SaleRequest{
		Lines: []SaleLineRequest{
			{SKU: "SK-1", Quantity: 1},
			{SKU: "SK-2", Quantity: 3},
		},
		CashPaid: 100,
		CardPaid: 50,
		Discount: 10,
	}.Validate()
	if err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestValidate_NegativeDiscount(t *testing.T) {
	err := SaleRequest{
		Lines:    []SaleLineRequest{{SKU: "SK-1", Quantity: 1}},
		Discount: -5,
	}.Validate()
	if !fault.Has(err, fault.InvalidPayment) {
		t.Fatalf("expected INVALID_PAYMENT for negative discount, got %v", err)
	}
}
