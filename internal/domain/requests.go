package domain

// ItemRequest creates or updates a catalog item.
type ItemRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	ModelNo     string  `json:"modelNo"`
	PriceCents  int64   `json:"priceCents"`
	GSTPercent  float64 `json:"gstPercent"`
	Stock       int     `json:"stock"`
}

// OrderLineRequest references a catalog item by id. Price, name and GST are
// never taken from the request; they are frozen from the live item.
type OrderLineRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// PaymentRequest declares how an order was paid. Date is "2006-01-02" or
// RFC 3339; it is required when Status is "partial".
type PaymentRequest struct {
	Status          string `json:"status"`
	AmountPaidCents int64  `json:"amountPaidCents"`
	Method          string `json:"method"`
	Date            string `json:"date"`
}

// OrderRequest creates or updates an order. On update a nil Payment keeps
// the existing payment state; a supplied one is revalidated against the
// recomputed total and appended to the history.
//
// TotalAmountCents, TotalGSTCents and PaymentHistory are accepted for
// compatibility with clients that echo the stored shape back, but they are
// never trusted: totals are recomputed from the live catalog and the
// stored history is append-only.
type OrderRequest struct {
	Customer         Customer              `json:"customer"`
	Delivery         Delivery              `json:"delivery"`
	Items            []OrderLineRequest    `json:"items"`
	Payment          *PaymentRequest       `json:"payment"`
	TotalAmountCents int64                 `json:"totalAmountCents,omitempty"`
	TotalGSTCents    int64                 `json:"totalGstCents,omitempty"`
	PaymentHistory   []PaymentHistoryEntry `json:"paymentHistory,omitempty"`
}

// DebtRequest creates or updates a debt record. Dates are "2006-01-02" or
// RFC 3339.
type DebtRequest struct {
	PersonName  string `json:"personName"`
	AmountCents int64  `json:"amountCents"`
	Contact     string `json:"contact"`
	Status      string `json:"status"`
	DateGiven   string `json:"dateGiven"`
	DueDate     string `json:"dueDate"`
	Notes       string `json:"notes"`
}

// PurchaseOrderLineRequest is one supplier line item; totals are computed
// server side.
type PurchaseOrderLineRequest struct {
	Name       string  `json:"name"`
	HSN        string  `json:"hsn"`
	Quantity   int     `json:"quantity"`
	PriceCents int64   `json:"priceCents"`
	GSTPercent float64 `json:"gstPercent"`
}

// PurchaseOrderRequest creates or updates a purchase order.
type PurchaseOrderRequest struct {
	Supplier  Supplier                   `json:"supplier"`
	Items     []PurchaseOrderLineRequest `json:"items"`
	OrderDate string                     `json:"orderDate"`
	Notes     string                     `json:"notes"`
}

// RegisterRequest creates a login account.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest authenticates an account.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
