package domain

import "time"

// Payment status values on an order.
const (
	PaymentStatusPaid    = "paid"
	PaymentStatusPartial = "partial"
)

// Debt status values.
const (
	DebtStatusPaid   = "paid"
	DebtStatusUnpaid = "unpaid"
)

// Item is a catalog product with live stock.
type Item struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Description           string     `json:"description,omitempty"`
	Category              string     `json:"category,omitempty"`
	ModelNo               string     `json:"modelNo,omitempty"`
	PriceCents            int64      `json:"priceCents"`
	GSTPercent            float64    `json:"gstPercent"`
	Stock                 int        `json:"stock"`
	LastLowStockAlertSent *time.Time `json:"lastLowStockAlertSent,omitempty"`
	CreatedBy             string     `json:"createdBy,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Customer is the buyer snapshot embedded in an order.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Delivery is the shipping snapshot embedded in an order.
type Delivery struct {
	Address string `json:"address,omitempty"`
	Note    string `json:"note,omitempty"`
}

// OrderLine is a line item frozen from the catalog at order time.
// Price and GST never change after the order is written even if the
// catalog item is edited later.
type OrderLine struct {
	ItemID            string  `json:"itemId"`
	Name              string  `json:"name"`
	PriceCents        int64   `json:"priceCents"`
	Quantity          int     `json:"quantity"`
	GSTPercent        float64 `json:"gstPercent"`
	GSTAmountCents    int64   `json:"gstAmountCents"`
	SubtotalCents     int64   `json:"subtotalCents"`
	TotalWithGSTCents int64   `json:"totalWithGstCents"`
}

// Payment is the current payment state of an order.
type Payment struct {
	Status                string    `json:"status"`
	AmountPaidCents       int64     `json:"amountPaidCents"`
	RemainingBalanceCents int64     `json:"remainingBalanceCents"`
	Method                string    `json:"method"`
	Date                  time.Time `json:"date"`
}

// PaymentHistoryEntry records one payment event. Entries are append-only.
type PaymentHistoryEntry struct {
	AmountCents int64     `json:"amountCents"`
	Date        time.Time `json:"date"`
	Method      string    `json:"method"`
	Note        string    `json:"note,omitempty"`
}

// Order is a customer sale with frozen line items and payment tracking.
type Order struct {
	ID               string                `json:"id"`
	Customer         Customer              `json:"customer"`
	Delivery         Delivery              `json:"delivery"`
	Items            []OrderLine           `json:"items"`
	TotalGSTCents    int64                 `json:"totalGstCents"`
	TotalAmountCents int64                 `json:"totalAmountCents"`
	Payment          Payment               `json:"payment"`
	PaymentHistory   []PaymentHistoryEntry `json:"paymentHistory"`
	CreatedBy        string                `json:"createdBy,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}

// Debt is money lent out, tracked until marked paid.
type Debt struct {
	ID          string     `json:"id"`
	PersonName  string     `json:"personName"`
	AmountCents int64      `json:"amountCents"`
	Contact     string     `json:"contact,omitempty"`
	Status      string     `json:"status"`
	DateGiven   time.Time  `json:"dateGiven"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Supplier is the vendor snapshot embedded in a purchase order.
type Supplier struct {
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	GSTNumber string `json:"gstNumber,omitempty"`
	Address   string `json:"address,omitempty"`
}

// PurchaseOrderLine is a line item on a purchase order. Purchase orders do
// not touch catalog stock.
type PurchaseOrderLine struct {
	Name              string  `json:"name"`
	HSN               string  `json:"hsn,omitempty"`
	Quantity          int     `json:"quantity"`
	PriceCents        int64   `json:"priceCents"`
	GSTPercent        float64 `json:"gstPercent"`
	GSTAmountCents    int64   `json:"gstAmountCents"`
	SubtotalCents     int64   `json:"subtotalCents"`
	TotalWithGSTCents int64   `json:"totalWithGstCents"`
}

// PurchaseOrder is an order placed with a supplier.
type PurchaseOrder struct {
	ID               string              `json:"id"`
	Supplier         Supplier            `json:"supplier"`
	Items            []PurchaseOrderLine `json:"items"`
	TotalGSTCents    int64               `json:"totalGstCents"`
	TotalAmountCents int64               `json:"totalAmountCents"`
	OrderDate        time.Time           `json:"orderDate"`
	Notes            string              `json:"notes,omitempty"`
	CreatedBy        string              `json:"createdBy,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// UserAccount is a login account. PasswordHash and RefreshTokenHash never
// leave the store layer.
type UserAccount struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	RefreshTokenHash string    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Actor is the authenticated account a request runs as.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// StockDelta is one stock adjustment in an atomic batch. Negative Delta
// draws stock down, positive restocks. Name rides along so insufficiency
// errors can name the item.
type StockDelta struct {
	ItemID string
	Name   string
	Delta  int
}

// MonthlySales is one month's aggregate of order count and revenue.
type MonthlySales struct {
	Year         int   `json:"year"`
	Month        int   `json:"month"`
	OrderCount   int64 `json:"orderCount"`
	RevenueCents int64 `json:"revenueCents"`
}

// ItemQuery filters and pages an item listing.
type ItemQuery struct {
	OwnerID    string
	Search     string
	Categories []string
	Page       int
	Limit      int
}

// ItemPage is one page of an item listing.
type ItemPage struct {
	Items      []Item `json:"items"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	TotalPages int    `json:"totalPages"`
}

// DebtQuery filters and pages a debt listing. A search term of exactly
// "paid" or "unpaid" filters by status instead of by name.
type DebtQuery struct {
	Search string
	Page   int
	Limit  int
}

// DebtPage is one page of a debt listing.
type DebtPage struct {
	Debts      []Debt `json:"debts"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	TotalPages int    `json:"totalPages"`
}

// PurchaseOrderQuery filters and pages a purchase-order listing.
type PurchaseOrderQuery struct {
	Search string
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

// PurchaseOrderPage is one page of a purchase-order listing.
type PurchaseOrderPage struct {
	PurchaseOrders []PurchaseOrder `json:"purchaseOrders"`
	Total          int64           `json:"total"`
	Page           int             `json:"page"`
	TotalPages     int             `json:"totalPages"`
}

// DashboardStats is the summary block on the dashboard.
type DashboardStats struct {
	TotalProducts        int64   `json:"totalProducts"`
	TotalOrders          int64   `json:"totalOrders"`
	TotalRevenueCents    int64   `json:"totalRevenueCents"`
	OutstandingDebtCents int64   `json:"outstandingDebtCents"`
	LowStockItems        []Item  `json:"lowStockItems"`
	RecentOrders         []Order `json:"recentOrders"`
}
