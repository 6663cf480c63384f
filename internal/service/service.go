package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"kihaan/backend/internal/cache"
	"kihaan/backend/internal/domain"
	"kihaan/backend/internal/invoice"
	"kihaan/backend/internal/mailer"
	"kihaan/backend/internal/store"
)

const dashboardCacheKey = "dashboard:stats"

type actorKey struct{}

// WithActor attaches the authenticated account to the context.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the account the request runs as.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}

// Options tunes non-persistence behavior.
type Options struct {
	DashboardCacheTTL time.Duration
	LowStockThreshold int
	CompanyName       string
}

// Service holds the business rules on top of the Repository.
type Service struct {
	repo        store.Repository
	cache       cache.DashboardCache
	mail        mailer.Mailer
	cacheTTL    time.Duration
	lowStock    int
	companyName string
}

func New(repo store.Repository, c cache.DashboardCache, m mailer.Mailer, opts Options) *Service {
	if c == nil {
		c = cache.NoopDashboardCache{}
	}
	if m == nil {
		m = mailer.Noop{}
	}
	if opts.DashboardCacheTTL <= 0 {
		opts.DashboardCacheTTL = 30 * time.Second
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = 10
	}
	if opts.CompanyName == "" {
		opts.CompanyName = "Kihaan Enterprises"
	}
	return &Service{
		repo:        repo,
		cache:       c,
		mail:        m,
		cacheTTL:    opts.DashboardCacheTTL,
		lowStock:    opts.LowStockThreshold,
		companyName: opts.CompanyName,
	}
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrValidation, fmt.Sprintf(format, args...))
}

// ---- items ----

func (s *Service) CreateItem(ctx context.Context, req domain.ItemRequest) (*domain.Item, error) {
	if err := validateItemRequest(req); err != nil {
		return nil, err
	}
	item := domain.Item{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		ModelNo:     strings.TrimSpace(req.ModelNo),
		PriceCents:  req.PriceCents,
		GSTPercent:  req.GSTPercent,
		Stock:       req.Stock,
	}
	if actor, ok := ActorFromContext(ctx); ok {
		item.CreatedBy = actor.ID
	}
	return s.repo.CreateItem(ctx, item)
}

func (s *Service) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	return s.repo.GetItem(ctx, id, actorID(ctx))
}

func (s *Service) ListItems(ctx context.Context, search string, categories []string, page, limit int) (*domain.ItemPage, error) {
	return s.repo.ListItems(ctx, domain.ItemQuery{
		OwnerID:    actorID(ctx),
		Search:     search,
		Categories: categories,
		Page:       page,
		Limit:      limit,
	})
}

func (s *Service) UpdateItem(ctx context.Context, id string, req domain.ItemRequest) (*domain.Item, error) {
	if err := validateItemRequest(req); err != nil {
		return nil, err
	}
	return s.repo.UpdateItem(ctx, domain.Item{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		ModelNo:     strings.TrimSpace(req.ModelNo),
		PriceCents:  req.PriceCents,
		GSTPercent:  req.GSTPercent,
		Stock:       req.Stock,
		CreatedBy:   actorID(ctx),
	})
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	return s.repo.DeleteItem(ctx, id, actorID(ctx))
}

func validateItemRequest(req domain.ItemRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return validationErr("item name is required")
	}
	if req.PriceCents < 0 {
		return validationErr("item price cannot be negative")
	}
	if req.GSTPercent < 0 || req.GSTPercent > 100 {
		return validationErr("gst percent must be between 0 and 100")
	}
	if req.Stock < 0 {
		return validationErr("stock cannot be negative")
	}
	return nil
}

// ---- orders ----

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	lines, err := normalizeLines(req.Items)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Customer.Name) == "" {
		return nil, validationErr("customer name is required")
	}

	frozen, totalGST, total, err := s.freezeLines(ctx, lines)
	if err != nil {
		return nil, err
	}
	payment, entry, err := derivePayment(req.Payment, total, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	deltas := make([]domain.StockDelta, 0, len(frozen))
	for _, line := range frozen {
		deltas = append(deltas, domain.StockDelta{ItemID: line.ItemID, Name: line.Name, Delta: -line.Quantity})
	}
	if err := s.repo.ApplyStockDeltas(ctx, deltas); err != nil {
		return nil, err
	}

	order := domain.Order{
		Customer:         req.Customer,
		Delivery:         req.Delivery,
		Items:            frozen,
		TotalGSTCents:    totalGST,
		TotalAmountCents: total,
		Payment:          payment,
		PaymentHistory:   []domain.PaymentHistoryEntry{entry},
		CreatedBy:        actorID(ctx),
	}
	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		s.compensateDeltas(deltas)
		return nil, err
	}

	s.sendInvoiceAsync(created)
	return created, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, limit)
}

func (s *Service) UpdateOrder(ctx context.Context, id string, req domain.OrderRequest) (*domain.Order, error) {
	existing, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := normalizeLines(req.Items)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Customer.Name) == "" {
		return nil, validationErr("customer name is required")
	}

	frozen, totalGST, total, err := s.freezeLines(ctx, lines)
	if err != nil {
		return nil, err
	}

	var payment domain.Payment
	history := existing.PaymentHistory
	if req.Payment != nil {
		var entry domain.PaymentHistoryEntry
		payment, entry, err = derivePayment(req.Payment, total, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		history = append(append([]domain.PaymentHistoryEntry(nil), history...), entry)
	} else {
		payment, err = rebalancePayment(existing.Payment, total)
		if err != nil {
			return nil, err
		}
	}

	deltas := reconcileDeltas(existing.Items, frozen)
	if err := s.repo.ApplyStockDeltas(ctx, deltas); err != nil {
		return nil, err
	}

	updated := domain.Order{
		ID:               existing.ID,
		Customer:         req.Customer,
		Delivery:         req.Delivery,
		Items:            frozen,
		TotalGSTCents:    totalGST,
		TotalAmountCents: total,
		Payment:          payment,
		PaymentHistory:   history,
		CreatedBy:        existing.CreatedBy,
		CreatedAt:        existing.CreatedAt,
	}
	out, err := s.repo.UpdateOrder(ctx, updated)
	if err != nil {
		s.compensateDeltas(deltas)
		return nil, err
	}
	return out, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	existing, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}

	deltas := make([]domain.StockDelta, 0, len(existing.Items))
	for _, line := range existing.Items {
		deltas = append(deltas, domain.StockDelta{ItemID: line.ItemID, Name: line.Name, Delta: line.Quantity})
	}
	if err := s.repo.ApplyStockDeltas(ctx, deltas); err != nil {
		return err
	}
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		s.compensateDeltas(deltas)
		return err
	}
	return nil
}

// InvoiceHTML renders the printable invoice for an order.
func (s *Service) InvoiceHTML(ctx context.Context, id string) (string, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return "", err
	}
	return invoice.Render(order, s.companyName)
}

// normalizeLines rejects bad quantities and merges duplicate item ids into
// one line.
func normalizeLines(reqLines []domain.OrderLineRequest) ([]domain.OrderLineRequest, error) {
	if len(reqLines) == 0 {
		return nil, validationErr("order needs at least one item")
	}
	index := make(map[string]int)
	var out []domain.OrderLineRequest
	for _, line := range reqLines {
		if strings.TrimSpace(line.ItemID) == "" {
			return nil, validationErr("order line is missing an item id")
		}
		if line.Quantity <= 0 {
			return nil, validationErr("quantity for item %s must be positive", line.ItemID)
		}
		if i, ok := index[line.ItemID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.ItemID] = len(out)
		out = append(out, line)
	}
	return out, nil
}

// freezeLines resolves lines against the live catalog and snapshots name,
// price and GST so later catalog edits cannot change the order.
func (s *Service) freezeLines(ctx context.Context, lines []domain.OrderLineRequest) ([]domain.OrderLine, int64, int64, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ItemID)
	}
	items, err := s.repo.GetItemsByIDs(ctx, ids)
	if err != nil {
		return nil, 0, 0, err
	}

	frozen := make([]domain.OrderLine, 0, len(lines))
	var totalGST, total int64
	for _, line := range lines {
		item, ok := items[line.ItemID]
		if !ok {
			return nil, 0, 0, fmt.Errorf("%w: item %s", store.ErrNotFound, line.ItemID)
		}
		subtotal := item.PriceCents * int64(line.Quantity)
		gstAmount := int64(math.Round(float64(subtotal) * item.GSTPercent / 100))
		frozen = append(frozen, domain.OrderLine{
			ItemID:            item.ID,
			Name:              item.Name,
			PriceCents:        item.PriceCents,
			Quantity:          line.Quantity,
			GSTPercent:        item.GSTPercent,
			GSTAmountCents:    gstAmount,
			SubtotalCents:     subtotal,
			TotalWithGSTCents: subtotal + gstAmount,
		})
		totalGST += gstAmount
		total += subtotal + gstAmount
	}
	return frozen, totalGST, total, nil
}

// reconcileDeltas turns the difference between the stored lines and the new
// lines into one stock batch. Items dropped from the order restock fully,
// quantity changes adjust by the difference.
func reconcileDeltas(prev, next []domain.OrderLine) []domain.StockDelta {
	prevQty := make(map[string]int, len(prev))
	names := make(map[string]string, len(prev)+len(next))
	for _, line := range prev {
		prevQty[line.ItemID] += line.Quantity
		names[line.ItemID] = line.Name
	}

	var deltas []domain.StockDelta
	seen := make(map[string]bool, len(next))
	for _, line := range next {
		seen[line.ItemID] = true
		names[line.ItemID] = line.Name
		if d := prevQty[line.ItemID] - line.Quantity; d != 0 {
			deltas = append(deltas, domain.StockDelta{ItemID: line.ItemID, Name: line.Name, Delta: d})
		}
	}
	for id, qty := range prevQty {
		if !seen[id] && qty != 0 {
			deltas = append(deltas, domain.StockDelta{ItemID: id, Name: names[id], Delta: qty})
		}
	}
	return deltas
}

// compensateDeltas undoes an applied batch after a later step failed.
func (s *Service) compensateDeltas(deltas []domain.StockDelta) {
	inverse := make([]domain.StockDelta, 0, len(deltas))
	for _, d := range deltas {
		d.Delta = -d.Delta
		inverse = append(inverse, d)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.repo.ApplyStockDeltas(ctx, inverse); err != nil {
		log.Printf("[service] stock compensation failed: %v", err)
	}
}

// derivePayment computes the payment state and the history entry for a
// declared payment against the computed order total.
func derivePayment(req *domain.PaymentRequest, totalCents int64, now time.Time) (domain.Payment, domain.PaymentHistoryEntry, error) {
	status := domain.PaymentStatusPaid
	var amountPaid int64
	method := "unknown"
	date := now

	if req != nil {
		if req.Status != "" {
			status = req.Status
		}
		amountPaid = req.AmountPaidCents
		if req.Method != "" {
			method = req.Method
		}
		if req.Date != "" {
			parsed, err := parseDate(req.Date)
			if err != nil {
				return domain.Payment{}, domain.PaymentHistoryEntry{}, validationErr("invalid payment date %q", req.Date)
			}
			date = parsed
		}
	}

	switch status {
	case domain.PaymentStatusPaid:
		if amountPaid == 0 {
			amountPaid = totalCents
		}
		if amountPaid != totalCents {
			return domain.Payment{}, domain.PaymentHistoryEntry{}, validationErr("paid orders must settle the full amount")
		}
	case domain.PaymentStatusPartial:
		if amountPaid <= 0 {
			return domain.Payment{}, domain.PaymentHistoryEntry{}, validationErr("partial payment amount must be positive")
		}
		if amountPaid > totalCents {
			return domain.Payment{}, domain.PaymentHistoryEntry{}, validationErr("partial payment cannot exceed the order total")
		}
		if req == nil || req.Date == "" {
			return domain.Payment{}, domain.PaymentHistoryEntry{}, validationErr("partial payment requires a date")
		}
	default:
		return domain.Payment{}, domain.PaymentHistoryEntry{}, validationErr("unknown payment status %q", status)
	}

	payment := domain.Payment{
		Status:          status,
		AmountPaidCents: amountPaid,
		Method:          method,
		Date:            date,
	}
	if status == domain.PaymentStatusPartial {
		payment.RemainingBalanceCents = totalCents - amountPaid
	}

	note := "full payment"
	if status == domain.PaymentStatusPartial {
		note = "partial payment"
	}
	entry := domain.PaymentHistoryEntry{
		AmountCents: amountPaid,
		Date:        date,
		Method:      method,
		Note:        note,
	}
	return payment, entry, nil
}

// rebalancePayment recomputes the remaining balance of an untouched payment
// after the order total changed.
func rebalancePayment(payment domain.Payment, totalCents int64) (domain.Payment, error) {
	switch payment.Status {
	case domain.PaymentStatusPaid:
		payment.AmountPaidCents = totalCents
		payment.RemainingBalanceCents = 0
	case domain.PaymentStatusPartial:
		if payment.AmountPaidCents > totalCents {
			return domain.Payment{}, validationErr("amount already paid exceeds the new order total")
		}
		payment.RemainingBalanceCents = totalCents - payment.AmountPaidCents
	}
	return payment, nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// sendInvoiceAsync emails the invoice to the customer when an address is
// present. Failures are logged and never affect the order.
func (s *Service) sendInvoiceAsync(order *domain.Order) {
	if order == nil || strings.TrimSpace(order.Customer.Email) == "" {
		return
	}
	snapshot := *order
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		html, err := invoice.Render(&snapshot, s.companyName)
		if err != nil {
			log.Printf("[service] invoice render for %s failed: %v", snapshot.ID, err)
			return
		}
		subject := fmt.Sprintf("Invoice %s from %s", snapshot.ID, s.companyName)
		if err := s.mail.Send(ctx, []string{snapshot.Customer.Email}, subject, html); err != nil {
			log.Printf("[service] invoice email for %s failed: %v", snapshot.ID, err)
		}
	}()
}

// ---- debts ----

func (s *Service) CreateDebt(ctx context.Context, req domain.DebtRequest) (*domain.Debt, error) {
	debt, err := debtFromRequest(req)
	if err != nil {
		return nil, err
	}
	debt.CreatedBy = actorID(ctx)
	return s.repo.CreateDebt(ctx, *debt)
}

func (s *Service) GetDebt(ctx context.Context, id string) (*domain.Debt, error) {
	return s.repo.GetDebt(ctx, id)
}

func (s *Service) ListDebts(ctx context.Context, search string, page, limit int) (*domain.DebtPage, error) {
	return s.repo.ListDebts(ctx, domain.DebtQuery{Search: search, Page: page, Limit: limit})
}

func (s *Service) UpdateDebt(ctx context.Context, id string, req domain.DebtRequest) (*domain.Debt, error) {
	debt, err := debtFromRequest(req)
	if err != nil {
		return nil, err
	}
	debt.ID = id
	return s.repo.UpdateDebt(ctx, *debt)
}

func (s *Service) DeleteDebt(ctx context.Context, id string) error {
	return s.repo.DeleteDebt(ctx, id)
}

func debtFromRequest(req domain.DebtRequest) (*domain.Debt, error) {
	if strings.TrimSpace(req.PersonName) == "" {
		return nil, validationErr("person name is required")
	}
	if req.AmountCents <= 0 {
		return nil, validationErr("debt amount must be positive")
	}
	status := req.Status
	if status == "" {
		status = domain.DebtStatusUnpaid
	}
	if status != domain.DebtStatusPaid && status != domain.DebtStatusUnpaid {
		return nil, validationErr("unknown debt status %q", status)
	}

	dateGiven := time.Now().UTC()
	if req.DateGiven != "" {
		parsed, err := parseDate(req.DateGiven)
		if err != nil {
			return nil, validationErr("invalid dateGiven %q", req.DateGiven)
		}
		dateGiven = parsed
	}
	var dueDate *time.Time
	if req.DueDate != "" {
		parsed, err := parseDate(req.DueDate)
		if err != nil {
			return nil, validationErr("invalid dueDate %q", req.DueDate)
		}
		dueDate = &parsed
	}
	return &domain.Debt{
		PersonName:  strings.TrimSpace(req.PersonName),
		AmountCents: req.AmountCents,
		Contact:     strings.TrimSpace(req.Contact),
		Status:      status,
		DateGiven:   dateGiven,
		DueDate:     dueDate,
		Notes:       strings.TrimSpace(req.Notes),
	}, nil
}

// ---- purchase orders ----

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderRequest) (*domain.PurchaseOrder, error) {
	po, err := purchaseOrderFromRequest(req)
	if err != nil {
		return nil, err
	}
	po.CreatedBy = actorID(ctx)
	return s.repo.CreatePurchaseOrder(ctx, *po)
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

func (s *Service) ListPurchaseOrders(ctx context.Context, q domain.PurchaseOrderQuery) (*domain.PurchaseOrderPage, error) {
	return s.repo.ListPurchaseOrders(ctx, q)
}

func (s *Service) UpdatePurchaseOrder(ctx context.Context, id string, req domain.PurchaseOrderRequest) (*domain.PurchaseOrder, error) {
	po, err := purchaseOrderFromRequest(req)
	if err != nil {
		return nil, err
	}
	po.ID = id
	return s.repo.UpdatePurchaseOrder(ctx, *po)
}

func (s *Service) DeletePurchaseOrder(ctx context.Context, id string) error {
	return s.repo.DeletePurchaseOrder(ctx, id)
}

func purchaseOrderFromRequest(req domain.PurchaseOrderRequest) (*domain.PurchaseOrder, error) {
	if strings.TrimSpace(req.Supplier.Name) == "" {
		return nil, validationErr("supplier name is required")
	}
	if len(req.Items) == 0 {
		return nil, validationErr("purchase order needs at least one item")
	}

	lines := make([]domain.PurchaseOrderLine, 0, len(req.Items))
	var totalGST, total int64
	for _, line := range req.Items {
		if strings.TrimSpace(line.Name) == "" {
			return nil, validationErr("purchase order line is missing a name")
		}
		if line.Quantity <= 0 {
			return nil, validationErr("quantity for %s must be positive", line.Name)
		}
		if line.PriceCents < 0 {
			return nil, validationErr("price for %s cannot be negative", line.Name)
		}
		if line.GSTPercent < 0 || line.GSTPercent > 100 {
			return nil, validationErr("gst percent for %s must be between 0 and 100", line.Name)
		}
		subtotal := line.PriceCents * int64(line.Quantity)
		gstAmount := int64(math.Round(float64(subtotal) * line.GSTPercent / 100))
		lines = append(lines, domain.PurchaseOrderLine{
			Name:              strings.TrimSpace(line.Name),
			HSN:               strings.TrimSpace(line.HSN),
			Quantity:          line.Quantity,
			PriceCents:        line.PriceCents,
			GSTPercent:        line.GSTPercent,
			GSTAmountCents:    gstAmount,
			SubtotalCents:     subtotal,
			TotalWithGSTCents: subtotal + gstAmount,
		})
		totalGST += gstAmount
		total += subtotal + gstAmount
	}

	orderDate := time.Now().UTC()
	if req.OrderDate != "" {
		parsed, err := parseDate(req.OrderDate)
		if err != nil {
			return nil, validationErr("invalid orderDate %q", req.OrderDate)
		}
		orderDate = parsed
	}
	return &domain.PurchaseOrder{
		Supplier:         req.Supplier,
		Items:            lines,
		TotalGSTCents:    totalGST,
		TotalAmountCents: total,
		OrderDate:        orderDate,
		Notes:            strings.TrimSpace(req.Notes),
	}, nil
}

// ---- dashboard ----

func (s *Service) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	if cached, ok, err := s.cache.Get(ctx, dashboardCacheKey); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] dashboard cache read failed: %v", err)
	}

	totalProducts, err := s.repo.CountItems(ctx)
	if err != nil {
		return nil, err
	}
	totalOrders, err := s.repo.CountOrders(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := s.repo.SumOrderTotals(ctx)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.repo.SumOutstandingBalances(ctx)
	if err != nil {
		return nil, err
	}
	lowStock, err := s.repo.ListLowStockItems(ctx, s.lowStock, 5)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.ListOrders(ctx, 5)
	if err != nil {
		return nil, err
	}

	stats := &domain.DashboardStats{
		TotalProducts:        totalProducts,
		TotalOrders:          totalOrders,
		TotalRevenueCents:    revenue,
		OutstandingDebtCents: outstanding,
		LowStockItems:        lowStock,
		RecentOrders:         recent,
	}
	if err := s.cache.Set(ctx, dashboardCacheKey, stats, s.cacheTTL); err != nil {
		log.Printf("[service] dashboard cache write failed: %v", err)
	}
	return stats, nil
}

func (s *Service) MonthlySalesReport(ctx context.Context, year, month int) ([]domain.MonthlySales, error) {
	if year < 2000 || year > 2200 {
		return nil, validationErr("year %d is out of range", year)
	}
	if month < 0 || month > 12 {
		return nil, validationErr("month %d is out of range", month)
	}
	return s.repo.MonthlySales(ctx, year, month)
}

func actorID(ctx context.Context) string {
	actor, _ := ActorFromContext(ctx)
	return actor.ID
}
