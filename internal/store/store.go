package store

import (
	"context"
	"errors"
	"time"

	"kihaan/backend/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrValidation is returned when a request fails a business rule.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock is returned when a stock draw would go negative.
	// Wrapped messages name the offending item.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict is returned on unique-constraint violations, e.g. a
	// duplicate account email.
	ErrConflict = errors.New("record conflict")
)

// Repository is the persistence boundary. Implementations must make
// ApplyStockDeltas atomic: either every delta lands or none do.
type Repository interface {
	// Items.
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	GetItem(ctx context.Context, id, ownerID string) (*domain.Item, error)
	GetItemsByIDs(ctx context.Context, ids []string) (map[string]domain.Item, error)
	ListItems(ctx context.Context, q domain.ItemQuery) (*domain.ItemPage, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	DeleteItem(ctx context.Context, id, ownerID string) error

	// ApplyStockDeltas adjusts stock for a batch of items in one atomic
	// step. A draw that would take any item below zero fails the whole
	// batch with ErrInsufficientStock and leaves every stock level
	// untouched. A draw on an unknown item fails with ErrNotFound; a
	// restock for an item no longer in the catalog is dropped so orders
	// referencing deleted items can still shrink or be removed.
	ApplyStockDeltas(ctx context.Context, deltas []domain.StockDelta) error

	// ListLowStockItems returns items with stock strictly below threshold,
	// lowest stock first, capped at limit (0 means no cap).
	ListLowStockItems(ctx context.Context, threshold, limit int) ([]domain.Item, error)
	// MarkLowStockAlerted stamps lastLowStockAlertSent on the given items.
	MarkLowStockAlerted(ctx context.Context, ids []string, at time.Time) error

	// Orders.
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error

	// Debts.
	CreateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error)
	GetDebt(ctx context.Context, id string) (*domain.Debt, error)
	ListDebts(ctx context.Context, q domain.DebtQuery) (*domain.DebtPage, error)
	UpdateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error)
	DeleteDebt(ctx context.Context, id string) error

	// Purchase orders.
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, q domain.PurchaseOrderQuery) (*domain.PurchaseOrderPage, error)
	UpdatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	DeletePurchaseOrder(ctx context.Context, id string) error

	// Dashboard aggregates.
	CountItems(ctx context.Context) (int64, error)
	CountOrders(ctx context.Context) (int64, error)
	SumOrderTotals(ctx context.Context) (int64, error)
	SumOutstandingBalances(ctx context.Context) (int64, error)
	MonthlySales(ctx context.Context, year, month int) ([]domain.MonthlySales, error)

	// Accounts.
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	UpdateUserRefreshToken(ctx context.Context, userID, refreshTokenHash string) error
}
