package domain

import "time"

// Product is owned by the inventory subsystem. The sale engine reads price and
// stock and decrements stock as a side effect of a committed sale; it never
// creates or deletes products.
type Product struct {
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	UnitPrice     int64  `json:"unit_price"`
	StockQuantity int    `json:"stock_quantity"`
}

// LineItem is a client-resident cart entry, keyed by SKU.
type LineItem struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

type SaleLineRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// SaleRequest is a finalized cart plus its payment split. Prices are absent on
// purpose: the server never trusts client-supplied prices and recomputes the
// total from live product rows.
type SaleRequest struct {
	Lines       []SaleLineRequest `json:"lines"`
	CashPaid    int64             `json:"cash_paid"`
	CardPaid    int64             `json:"card_paid"`
	Discount    int64             `json:"discount,omitempty"`
	TaxDocument bool              `json:"tax_document,omitempty"`
}

// SaleDraft is the writer's input: the validated request plus the cashier
// identity and the deployment tax rate, passed explicitly rather than read
// from ambient state.
type SaleDraft struct {
	Cashier     string
	Lines       []SaleLineRequest
	Discount    int64
	CashPaid    int64
	CardPaid    int64
	TaxRate     float64
	TaxDocument bool
}

type SaleLine struct {
	SaleID   int64  `json:"sale_id"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Subtotal int64  `json:"subtotal"`
}

// Sale is a committed purchase header. Immutable once created; deletion is an
// admin correction flow that cascades to lines and restores stock.
// The payment split lives in the cash_paid/card_paid columns of the header,
// with cash_paid + card_paid = total as an invariant.
type Sale struct {
	ID        int64      `json:"id"`
	Cashier   string     `json:"cashier"`
	Subtotal  int64      `json:"subtotal"`
	Discount  int64      `json:"discount"`
	Tax       int64      `json:"tax"`
	Total     int64      `json:"total"`
	CashPaid  int64      `json:"cash_paid"`
	CardPaid  int64      `json:"card_paid"`
	TaxDocRef string     `json:"tax_doc_ref,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Lines     []SaleLine `json:"lines"`
}

type SaleResponse struct {
	SaleID    int64  `json:"sale_id"`
	Total     int64  `json:"total"`
	Timestamp string `json:"timestamp"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated cashier identity threaded through request
// handling into the writer.
type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
