package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kihaan/backend/internal/domain"
	"kihaan/backend/internal/store"
	"kihaan/backend/internal/xid"
)

// Store is an in-memory Repository used for development and tests.
type Store struct {
	mu             sync.RWMutex
	items          map[string]domain.Item
	orders         map[string]domain.Order
	debts          map[string]domain.Debt
	purchaseOrders map[string]domain.PurchaseOrder
	users          map[string]domain.UserAccount
}

// New returns an empty store.
func New() *Store {
	return &Store{
		items:          make(map[string]domain.Item),
		orders:         make(map[string]domain.Order),
		debts:          make(map[string]domain.Debt),
		purchaseOrders: make(map[string]domain.PurchaseOrder),
		users:          make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with a demo account and a small
// electronics catalog.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	hash, err := bcrypt.GenerateFromPassword([]byte("admin12345"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("seed user hash: %v", err))
	}
	admin := domain.UserAccount{
		ID:           "user-seed-admin",
		Name:         "Admin",
		Email:        "admin@kihaan.local",
		PasswordHash: string(hash),
		CreatedAt:    now,
	}
	s.users[admin.ID] = admin

	seedItems := []domain.Item{
		{ID: "item-seed-fan", Name: "Ceiling Fan 1200mm", Category: "fans", ModelNo: "CF-1200", PriceCents: 185000, GSTPercent: 18, Stock: 24},
		{ID: "item-seed-mixer", Name: "Mixer Grinder 750W", Category: "kitchen", ModelNo: "MG-750", PriceCents: 329900, GSTPercent: 18, Stock: 12},
		{ID: "item-seed-geyser", Name: "Storage Geyser 15L", Category: "heating", ModelNo: "SG-15", PriceCents: 749000, GSTPercent: 18, Stock: 6},
		{ID: "item-seed-bulb", Name: "LED Bulb 9W", Category: "lighting", ModelNo: "LB-9", PriceCents: 9900, GSTPercent: 12, Stock: 140},
	}
	for _, it := range seedItems {
		it.CreatedBy = admin.ID
		it.CreatedAt = now
		it.UpdatedAt = now
		s.items[it.ID] = it
	}
	return s
}

// Close satisfies the server wiring; the memory store holds no resources.
func (s *Store) Close() error { return nil }

// ---- items ----

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = xid.New("item")
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.items[item.ID] = item
	return cloneItem(item), nil
}

func (s *Store) GetItem(_ context.Context, id, ownerID string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok || (ownerID != "" && item.CreatedBy != ownerID) {
		return nil, store.ErrNotFound
	}
	return cloneItem(item), nil
}

func (s *Store) GetItemsByIDs(_ context.Context, ids []string) (map[string]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Item, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out[id] = *cloneItem(item)
		}
	}
	return out, nil
}

func (s *Store) ListItems(_ context.Context, q domain.ItemQuery) (*domain.ItemPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	var matched []domain.Item
	for _, item := range s.items {
		if q.OwnerID != "" && item.CreatedBy != q.OwnerID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(item.Name), search) {
			continue
		}
		if len(q.Categories) > 0 && !containsFold(q.Categories, item.Category) {
			continue
		}
		matched = append(matched, item)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page, limit := normalizePage(q.Page, q.Limit)
	total := int64(len(matched))
	window := pageWindow(matched, page, limit)
	out := make([]domain.Item, 0, len(window))
	for _, item := range window {
		out = append(out, *cloneItem(item))
	}
	return &domain.ItemPage{
		Items:      out,
		Total:      total,
		Page:       page,
		TotalPages: totalPages(total, limit),
	}, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[item.ID]
	if !ok || (item.CreatedBy != "" && existing.CreatedBy != item.CreatedBy) {
		return nil, store.ErrNotFound
	}
	item.CreatedAt = existing.CreatedAt
	item.CreatedBy = existing.CreatedBy
	item.LastLowStockAlertSent = existing.LastLowStockAlertSent
	item.UpdatedAt = time.Now().UTC()
	s.items[item.ID] = item
	return cloneItem(item), nil
}

func (s *Store) DeleteItem(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok || (ownerID != "" && item.CreatedBy != ownerID) {
		return store.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Store) ApplyStockDeltas(_ context.Context, deltas []domain.StockDelta) error {
	if len(deltas) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every delta before touching anything so a failure leaves
	// no partial mutation. A restock for an item that has since left the
	// catalog is dropped; a draw on an unknown item fails the batch.
	for _, d := range deltas {
		item, ok := s.items[d.ItemID]
		if !ok {
			if d.Delta > 0 {
				continue
			}
			return fmt.Errorf("%w: item %s", store.ErrNotFound, d.ItemID)
		}
		if item.Stock+d.Delta < 0 {
			return fmt.Errorf("%w for item %s: have %d, need %d",
				store.ErrInsufficientStock, deltaName(d), item.Stock, -d.Delta)
		}
	}

	now := time.Now().UTC()
	for _, d := range deltas {
		item, ok := s.items[d.ItemID]
		if !ok {
			continue
		}
		item.Stock += d.Delta
		item.UpdatedAt = now
		s.items[d.ItemID] = item
	}
	return nil
}

func (s *Store) ListLowStockItems(_ context.Context, threshold, limit int) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var low []domain.Item
	for _, item := range s.items {
		if item.Stock < threshold {
			low = append(low, item)
		}
	}
	sort.Slice(low, func(i, j int) bool { return low[i].Stock < low[j].Stock })
	if limit > 0 && len(low) > limit {
		low = low[:limit]
	}
	out := make([]domain.Item, 0, len(low))
	for _, item := range low {
		out = append(out, *cloneItem(item))
	}
	return out, nil
}

func (s *Store) MarkLowStockAlerted(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		item, ok := s.items[id]
		if !ok {
			continue
		}
		stamp := at
		item.LastLowStockAlertSent = &stamp
		s.items[id] = item
	}
	return nil
}

// ---- orders ----

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	s.orders[order.ID] = *cloneOrder(order)
	return cloneOrder(order), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (s *Store) ListOrders(_ context.Context, limit int) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		out = append(out, *cloneOrder(order))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.orders[order.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	order.CreatedAt = existing.CreatedAt
	order.CreatedBy = existing.CreatedBy
	order.UpdatedAt = time.Now().UTC()
	s.orders[order.ID] = *cloneOrder(order)
	return cloneOrder(order), nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

// ---- debts ----

func (s *Store) CreateDebt(_ context.Context, debt domain.Debt) (*domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if debt.ID == "" {
		debt.ID = xid.New("debt")
	}
	now := time.Now().UTC()
	debt.CreatedAt = now
	debt.UpdatedAt = now
	s.debts[debt.ID] = debt
	return cloneDebt(debt), nil
}

func (s *Store) GetDebt(_ context.Context, id string) (*domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debt, ok := s.debts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneDebt(debt), nil
}

func (s *Store) ListDebts(_ context.Context, q domain.DebtQuery) (*domain.DebtPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	var matched []domain.Debt
	for _, debt := range s.debts {
		switch search {
		case "":
			// keep
		case domain.DebtStatusPaid, domain.DebtStatusUnpaid:
			if debt.Status != search {
				continue
			}
		default:
			if !strings.Contains(strings.ToLower(debt.PersonName), search) {
				continue
			}
		}
		matched = append(matched, debt)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page, limit := normalizePage(q.Page, q.Limit)
	total := int64(len(matched))
	window := pageWindow(matched, page, limit)
	out := make([]domain.Debt, 0, len(window))
	for _, debt := range window {
		out = append(out, *cloneDebt(debt))
	}
	return &domain.DebtPage{
		Debts:      out,
		Total:      total,
		Page:       page,
		TotalPages: totalPages(total, limit),
	}, nil
}

func (s *Store) UpdateDebt(_ context.Context, debt domain.Debt) (*domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.debts[debt.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	debt.CreatedAt = existing.CreatedAt
	debt.CreatedBy = existing.CreatedBy
	debt.UpdatedAt = time.Now().UTC()
	s.debts[debt.ID] = debt
	return cloneDebt(debt), nil
}

func (s *Store) DeleteDebt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.debts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.debts, id)
	return nil
}

// ---- purchase orders ----

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.ID == "" {
		po.ID = xid.New("po")
	}
	now := time.Now().UTC()
	po.CreatedAt = now
	po.UpdatedAt = now
	s.purchaseOrders[po.ID] = *clonePurchaseOrder(po)
	return clonePurchaseOrder(po), nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, ok := s.purchaseOrders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePurchaseOrder(po), nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, q domain.PurchaseOrderQuery) (*domain.PurchaseOrderPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	var matched []domain.PurchaseOrder
	for _, po := range s.purchaseOrders {
		if search != "" && !purchaseOrderMatches(po, search) {
			continue
		}
		if q.From != nil && po.OrderDate.Before(*q.From) {
			continue
		}
		if q.To != nil && po.OrderDate.After(*q.To) {
			continue
		}
		matched = append(matched, po)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].OrderDate.After(matched[j].OrderDate)
	})

	page, limit := normalizePage(q.Page, q.Limit)
	total := int64(len(matched))
	window := pageWindow(matched, page, limit)
	out := make([]domain.PurchaseOrder, 0, len(window))
	for _, po := range window {
		out = append(out, *clonePurchaseOrder(po))
	}
	return &domain.PurchaseOrderPage{
		PurchaseOrders: out,
		Total:          total,
		Page:           page,
		TotalPages:     totalPages(total, limit),
	}, nil
}

func (s *Store) UpdatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.purchaseOrders[po.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	po.CreatedAt = existing.CreatedAt
	po.CreatedBy = existing.CreatedBy
	po.UpdatedAt = time.Now().UTC()
	s.purchaseOrders[po.ID] = *clonePurchaseOrder(po)
	return clonePurchaseOrder(po), nil
}

func (s *Store) DeletePurchaseOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.purchaseOrders[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.purchaseOrders, id)
	return nil
}

// ---- dashboard aggregates ----

func (s *Store) CountItems(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.items)), nil
}

func (s *Store) CountOrders(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.orders)), nil
}

func (s *Store) SumOrderTotals(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, order := range s.orders {
		sum += order.TotalAmountCents
	}
	return sum, nil
}

func (s *Store) SumOutstandingBalances(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, order := range s.orders {
		if order.Payment.Status == domain.PaymentStatusPartial {
			sum += order.Payment.RemainingBalanceCents
		}
	}
	return sum, nil
}

func (s *Store) MonthlySales(_ context.Context, year, month int) ([]domain.MonthlySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byMonth := make(map[int]*domain.MonthlySales)
	for _, order := range s.orders {
		created := order.CreatedAt.UTC()
		if created.Year() != year {
			continue
		}
		m := int(created.Month())
		if month > 0 && m != month {
			continue
		}
		agg, ok := byMonth[m]
		if !ok {
			agg = &domain.MonthlySales{Year: year, Month: m}
			byMonth[m] = agg
		}
		agg.OrderCount++
		agg.RevenueCents += order.TotalAmountCents
	}

	out := make([]domain.MonthlySales, 0, len(byMonth))
	for _, agg := range byMonth {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// ---- accounts ----

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	for _, existing := range s.users {
		if strings.ToLower(existing.Email) == email {
			return nil, fmt.Errorf("%w: email already registered", store.ErrConflict)
		}
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	user.CreatedAt = time.Now().UTC()
	s.users[user.ID] = user
	out := user
	return &out, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(email)
	for _, user := range s.users {
		if strings.ToLower(user.Email) == email {
			out := user
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := user
	return &out, nil
}

func (s *Store) UpdateUserRefreshToken(_ context.Context, userID, refreshTokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.RefreshTokenHash = refreshTokenHash
	s.users[userID] = user
	return nil
}

// ---- helpers ----

func cloneItem(item domain.Item) *domain.Item {
	out := item
	if item.LastLowStockAlertSent != nil {
		t := *item.LastLowStockAlertSent
		out.LastLowStockAlertSent = &t
	}
	return &out
}

func cloneOrder(order domain.Order) *domain.Order {
	out := order
	out.Items = append([]domain.OrderLine(nil), order.Items...)
	out.PaymentHistory = append([]domain.PaymentHistoryEntry(nil), order.PaymentHistory...)
	return &out
}

func cloneDebt(debt domain.Debt) *domain.Debt {
	out := debt
	if debt.DueDate != nil {
		t := *debt.DueDate
		out.DueDate = &t
	}
	return &out
}

func clonePurchaseOrder(po domain.PurchaseOrder) *domain.PurchaseOrder {
	out := po
	out.Items = append([]domain.PurchaseOrderLine(nil), po.Items...)
	return &out
}

func purchaseOrderMatches(po domain.PurchaseOrder, search string) bool {
	if strings.Contains(strings.ToLower(po.Supplier.Name), search) {
		return true
	}
	for _, line := range po.Items {
		if strings.Contains(strings.ToLower(line.Name), search) {
			return true
		}
	}
	return false
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}

func deltaName(d domain.StockDelta) string {
	if d.Name != "" {
		return d.Name
	}
	return d.ItemID
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func pageWindow[T any](all []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(all) {
		return nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func totalPages(total int64, limit int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
