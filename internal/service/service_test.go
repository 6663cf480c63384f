package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kihaan/backend/internal/domain"
	"kihaan/backend/internal/store"
	"kihaan/backend/internal/store/memory"
)

func testContext() context.Context {
	return WithActor(context.Background(), domain.Actor{ID: "user-1", Name: "Tester", Email: "tester@example.com"})
}

func newTestService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	svc := New(memory.New(), nil, nil, Options{})
	return svc, testContext()
}

func mustCreateItem(t *testing.T, svc *Service, ctx context.Context, name string, priceCents int64, gst float64, stock int) *domain.Item {
	t.Helper()
	item, err := svc.CreateItem(ctx, domain.ItemRequest{
		Name: name, PriceCents: priceCents, GSTPercent: gst, Stock: stock,
	})
	if err != nil {
		t.Fatalf("create item %s: %v", name, err)
	}
	return item
}

func itemStock(t *testing.T, svc *Service, ctx context.Context, id string) int {
	t.Helper()
	item, err := svc.GetItem(ctx, id)
	if err != nil {
		t.Fatalf("get item %s: %v", id, err)
	}
	return item.Stock
}

func TestCreateOrderDrawsStockAndFreezesLines(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 100000, 18, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if got := itemStock(t, svc, ctx, item.ID); got != 7 {
		t.Fatalf("stock after order = %d, want 7", got)
	}
	if len(order.Items) != 1 {
		t.Fatalf("line count = %d, want 1", len(order.Items))
	}
	line := order.Items[0]
	if line.SubtotalCents != 300000 || line.GSTAmountCents != 54000 || line.TotalWithGSTCents != 354000 {
		t.Fatalf("line totals = %d/%d/%d", line.SubtotalCents, line.GSTAmountCents, line.TotalWithGSTCents)
	}
	if order.TotalAmountCents != 354000 || order.TotalGSTCents != 54000 {
		t.Fatalf("order totals = %d/%d", order.TotalAmountCents, order.TotalGSTCents)
	}
	if order.Payment.Status != domain.PaymentStatusPaid ||
		order.Payment.AmountPaidCents != 354000 ||
		order.Payment.RemainingBalanceCents != 0 {
		t.Fatalf("default payment = %+v", order.Payment)
	}
	if len(order.PaymentHistory) != 1 || order.PaymentHistory[0].AmountCents != 354000 {
		t.Fatalf("payment history = %+v", order.PaymentHistory)
	}

	// Later catalog edits must not leak into the stored order.
	if _, err := svc.UpdateItem(ctx, item.ID, domain.ItemRequest{
		Name: "Fan", PriceCents: 999999, GSTPercent: 18, Stock: 7,
	}); err != nil {
		t.Fatalf("update item: %v", err)
	}
	stored, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.Items[0].PriceCents != 100000 {
		t.Fatalf("frozen price changed to %d", stored.Items[0].PriceCents)
	}
}

func TestCreateOrderMergesDuplicateLines(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Bulb", 9900, 12, 20)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items: []domain.OrderLineRequest{
			{ItemID: item.ID, Quantity: 2},
			{ItemID: item.ID, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 5 {
		t.Fatalf("merged lines = %+v", order.Items)
	}
	if got := itemStock(t, svc, ctx, item.ID); got != 15 {
		t.Fatalf("stock = %d, want 15", got)
	}
}

func TestCreateOrderInsufficientStockLeavesNothingBehind(t *testing.T) {
	svc, ctx := newTestService(t)
	a := mustCreateItem(t, svc, ctx, "A", 1000, 0, 10)
	b := mustCreateItem(t, svc, ctx, "B", 1000, 0, 1)

	_, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items: []domain.OrderLineRequest{
			{ItemID: a.ID, Quantity: 5},
			{ItemID: b.ID, Quantity: 2},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	if got := itemStock(t, svc, ctx, a.ID); got != 10 {
		t.Fatalf("stock of A mutated: %d", got)
	}
	if got := itemStock(t, svc, ctx, b.ID); got != 1 {
		t.Fatalf("stock of B mutated: %d", got)
	}
	orders, err := svc.ListOrders(ctx, 0)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("order was created despite failed stock draw")
	}
}

func TestCreateOrderUnknownItem(t *testing.T) {
	svc, ctx := newTestService(t)

	_, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: "item-missing", Quantity: 1}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateOrderSameQuantitiesIsNetZero(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 1000, 0, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := svc.UpdateOrder(ctx, order.ID, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 4}},
	}); err != nil {
		t.Fatalf("update order: %v", err)
	}
	if got := itemStock(t, svc, ctx, item.ID); got != 6 {
		t.Fatalf("stock = %d, want 6", got)
	}
}

func TestUpdateOrderPartialRestock(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 1000, 0, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if got := itemStock(t, svc, ctx, item.ID); got != 5 {
		t.Fatalf("stock after create = %d, want 5", got)
	}

	if _, err := svc.UpdateOrder(ctx, order.ID, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 2}},
	}); err != nil {
		t.Fatalf("update order: %v", err)
	}
	if got := itemStock(t, svc, ctx, item.ID); got != 8 {
		t.Fatalf("stock after shrink = %d, want 8", got)
	}
}

func TestUpdateOrderRestocksRemovedItem(t *testing.T) {
	svc, ctx := newTestService(t)
	a := mustCreateItem(t, svc, ctx, "A", 1000, 0, 10)
	b := mustCreateItem(t, svc, ctx, "B", 1000, 0, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items: []domain.OrderLineRequest{
			{ItemID: a.ID, Quantity: 3},
			{ItemID: b.ID, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := svc.UpdateOrder(ctx, order.ID, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: a.ID, Quantity: 3}},
	}); err != nil {
		t.Fatalf("update order: %v", err)
	}
	if got := itemStock(t, svc, ctx, b.ID); got != 10 {
		t.Fatalf("removed item stock = %d, want full restock to 10", got)
	}
	if got := itemStock(t, svc, ctx, a.ID); got != 7 {
		t.Fatalf("kept item stock = %d, want 7", got)
	}
}

func TestUpdateOrderRejectedIncreaseLeavesStock(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 1000, 0, 5)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	_, err = svc.UpdateOrder(ctx, order.ID, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 9}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if got := itemStock(t, svc, ctx, item.ID); got != 1 {
		t.Fatalf("stock = %d, want 1", got)
	}
	stored, _ := svc.GetOrder(ctx, order.ID)
	if stored.Items[0].Quantity != 4 {
		t.Fatalf("order mutated despite rejected update: qty %d", stored.Items[0].Quantity)
	}
}

func TestDeleteOrderRoundTripRestoresStock(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 1000, 0, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 6}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := svc.DeleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("delete order: %v", err)
	}

	if got := itemStock(t, svc, ctx, item.ID); got != 10 {
		t.Fatalf("stock after round trip = %d, want 10", got)
	}
	if _, err := svc.GetOrder(ctx, order.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("order still readable after delete: %v", err)
	}
}

func TestDeleteOrderAfterItemRemovedFromCatalog(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 1000, 0, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := svc.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}

	if err := svc.DeleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("delete order with vanished item: %v", err)
	}
	if _, err := svc.GetOrder(ctx, order.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("order still readable after delete: %v", err)
	}
}

func TestUpdateOrderDropsLineForRemovedCatalogItem(t *testing.T) {
	svc, ctx := newTestService(t)
	a := mustCreateItem(t, svc, ctx, "A", 1000, 0, 10)
	b := mustCreateItem(t, svc, ctx, "B", 1000, 0, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items: []domain.OrderLineRequest{
			{ItemID: a.ID, Quantity: 3},
			{ItemID: b.ID, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := svc.DeleteItem(ctx, b.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}

	// Dropping the vanished item's line restocks nothing for it but the
	// update still succeeds.
	updated, err := svc.UpdateOrder(ctx, order.ID, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: a.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("update order: %v", err)
	}
	if len(updated.Items) != 1 || updated.Items[0].ItemID != a.ID {
		t.Fatalf("updated lines = %+v", updated.Items)
	}
	if got := itemStock(t, svc, ctx, a.ID); got != 9 {
		t.Fatalf("stock of A = %d, want 9", got)
	}
}

func TestPartialPaymentDerivation(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 500, 0, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 2}},
		Payment: &domain.PaymentRequest{
			Status:          domain.PaymentStatusPartial,
			AmountPaidCents: 400,
			Method:          "upi",
			Date:            "2026-03-01",
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.TotalAmountCents != 1000 {
		t.Fatalf("total = %d, want 1000", order.TotalAmountCents)
	}
	if order.Payment.RemainingBalanceCents != 600 {
		t.Fatalf("remaining = %d, want 600", order.Payment.RemainingBalanceCents)
	}
	if len(order.PaymentHistory) != 1 {
		t.Fatalf("history len = %d, want 1", len(order.PaymentHistory))
	}
	entry := order.PaymentHistory[0]
	if entry.AmountCents != 400 || entry.Method != "upi" || entry.Note != "partial payment" {
		t.Fatalf("history entry = %+v", entry)
	}
	wantDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !entry.Date.Equal(wantDate) {
		t.Fatalf("entry date = %v, want %v", entry.Date, wantDate)
	}
}

func TestPartialPaymentEqualToTotalIsAccepted(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 500, 0, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 2}},
		Payment: &domain.PaymentRequest{
			Status:          domain.PaymentStatusPartial,
			AmountPaidCents: 1000,
			Date:            "2026-03-01",
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Payment.RemainingBalanceCents != 0 {
		t.Fatalf("remaining = %d, want 0", order.Payment.RemainingBalanceCents)
	}
	if order.Payment.Status != domain.PaymentStatusPartial {
		t.Fatalf("status = %q, want partial", order.Payment.Status)
	}
}

func TestPartialPaymentValidation(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 500, 0, 50)

	cases := []struct {
		name    string
		payment domain.PaymentRequest
	}{
		{"missing date", domain.PaymentRequest{Status: domain.PaymentStatusPartial, AmountPaidCents: 100}},
		{"zero amount", domain.PaymentRequest{Status: domain.PaymentStatusPartial, Date: "2026-03-01"}},
		{"negative amount", domain.PaymentRequest{Status: domain.PaymentStatusPartial, AmountPaidCents: -5, Date: "2026-03-01"}},
		{"overpayment", domain.PaymentRequest{Status: domain.PaymentStatusPartial, AmountPaidCents: 99999, Date: "2026-03-01"}},
		{"unknown status", domain.PaymentRequest{Status: "pending", AmountPaidCents: 100}},
		{"bad date", domain.PaymentRequest{Status: domain.PaymentStatusPartial, AmountPaidCents: 100, Date: "03/01/2026"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payment := tc.payment
			_, err := svc.CreateOrder(ctx, domain.OrderRequest{
				Customer: domain.Customer{Name: "Asha"},
				Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 1}},
				Payment:  &payment,
			})
			if !errors.Is(err, store.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}

	// Rejected orders must not draw stock.
	if got := itemStock(t, svc, ctx, item.ID); got != 50 {
		t.Fatalf("stock = %d, want 50", got)
	}
}

func TestUpdateOrderAppendsPaymentHistory(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 500, 0, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 2}},
		Payment: &domain.PaymentRequest{
			Status:          domain.PaymentStatusPartial,
			AmountPaidCents: 300,
			Date:            "2026-03-01",
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	updated, err := svc.UpdateOrder(ctx, order.ID, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 2}},
		Payment: &domain.PaymentRequest{
			Status:          domain.PaymentStatusPartial,
			AmountPaidCents: 700,
			Method:          "cash",
			Date:            "2026-03-05",
		},
	})
	if err != nil {
		t.Fatalf("update order: %v", err)
	}

	if len(updated.PaymentHistory) != 2 {
		t.Fatalf("history len = %d, want 2", len(updated.PaymentHistory))
	}
	if updated.PaymentHistory[0].AmountCents != 300 {
		t.Fatalf("first entry changed: %+v", updated.PaymentHistory[0])
	}
	if updated.PaymentHistory[1].AmountCents != 700 || updated.PaymentHistory[1].Method != "cash" {
		t.Fatalf("second entry = %+v", updated.PaymentHistory[1])
	}
	if updated.Payment.RemainingBalanceCents != 300 {
		t.Fatalf("remaining = %d, want 300", updated.Payment.RemainingBalanceCents)
	}
}

func TestUpdateOrderWithoutPaymentRebalances(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 500, 0, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 2}},
		Payment: &domain.PaymentRequest{
			Status:          domain.PaymentStatusPartial,
			AmountPaidCents: 400,
			Date:            "2026-03-01",
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// Growing the order without a new payment stretches the balance.
	updated, err := svc.UpdateOrder(ctx, order.ID, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("update order: %v", err)
	}
	if updated.TotalAmountCents != 2000 || updated.Payment.RemainingBalanceCents != 1600 {
		t.Fatalf("total/remaining = %d/%d, want 2000/1600", updated.TotalAmountCents, updated.Payment.RemainingBalanceCents)
	}
	if len(updated.PaymentHistory) != 1 {
		t.Fatalf("history grew without a payment: %d entries", len(updated.PaymentHistory))
	}

	// Shrinking below what was already paid is rejected.
	cheap := mustCreateItem(t, svc, ctx, "Cheap", 100, 0, 10)
	_, err = svc.UpdateOrder(ctx, order.ID, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: cheap.ID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if got := itemStock(t, svc, ctx, cheap.ID); got != 10 {
		t.Fatalf("rejected update drew stock: %d", got)
	}
}

func TestCallerTotalsAndHistoryAreIgnored(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 500, 0, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer:         domain.Customer{Name: "Asha"},
		Items:            []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 2}},
		TotalAmountCents: 1,
		TotalGSTCents:    1,
		PaymentHistory:   []domain.PaymentHistoryEntry{{AmountCents: 999}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.TotalAmountCents != 1000 {
		t.Fatalf("caller total trusted: %d", order.TotalAmountCents)
	}
	if len(order.PaymentHistory) != 1 || order.PaymentHistory[0].AmountCents == 999 {
		t.Fatalf("caller history accepted: %+v", order.PaymentHistory)
	}

	// A replacement history array on update must not overwrite the log.
	updated, err := svc.UpdateOrder(ctx, order.ID, domain.OrderRequest{
		Customer:       domain.Customer{Name: "Asha"},
		Items:          []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 2}},
		PaymentHistory: []domain.PaymentHistoryEntry{},
	})
	if err != nil {
		t.Fatalf("update order: %v", err)
	}
	if len(updated.PaymentHistory) != 1 {
		t.Fatalf("history replaced: %+v", updated.PaymentHistory)
	}
}

type failingMailer struct{}

func (failingMailer) Send(context.Context, []string, string, string) error {
	return errors.New("smtp down")
}

type recordingMailer struct {
	sent chan []string
}

func (m *recordingMailer) Send(_ context.Context, to []string, _, _ string) error {
	m.sent <- to
	return nil
}

func TestInvoiceEmailFailureDoesNotFailOrder(t *testing.T) {
	svc := New(memory.New(), nil, failingMailer{}, Options{})
	ctx := testContext()
	item := mustCreateItem(t, svc, ctx, "Fan", 500, 0, 10)

	order, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha", Email: "asha@example.com"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID == "" {
		t.Fatal("order id missing")
	}
}

func TestInvoiceEmailSentToCustomer(t *testing.T) {
	rec := &recordingMailer{sent: make(chan []string, 1)}
	svc := New(memory.New(), nil, rec, Options{})
	ctx := testContext()
	item := mustCreateItem(t, svc, ctx, "Fan", 500, 0, 10)

	if _, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha", Email: "asha@example.com"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 1}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	select {
	case to := <-rec.sent:
		if len(to) != 1 || to[0] != "asha@example.com" {
			t.Fatalf("sent to %v", to)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("invoice email never sent")
	}
}

func TestDashboardStats(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 500, 0, 100)
	mustCreateItem(t, svc, ctx, "Low", 500, 0, 2)

	if _, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Asha"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 2}},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := svc.CreateOrder(ctx, domain.OrderRequest{
		Customer: domain.Customer{Name: "Ravi"},
		Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 2}},
		Payment: &domain.PaymentRequest{
			Status:          domain.PaymentStatusPartial,
			AmountPaidCents: 250,
			Date:            "2026-03-01",
		},
	}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	stats, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalProducts != 2 || stats.TotalOrders != 2 {
		t.Fatalf("counts = %d products, %d orders", stats.TotalProducts, stats.TotalOrders)
	}
	if stats.TotalRevenueCents != 2000 {
		t.Fatalf("revenue = %d, want 2000", stats.TotalRevenueCents)
	}
	if stats.OutstandingDebtCents != 750 {
		t.Fatalf("outstanding = %d, want 750", stats.OutstandingDebtCents)
	}
	if len(stats.LowStockItems) != 1 || stats.LowStockItems[0].Name != "Low" {
		t.Fatalf("low stock = %+v", stats.LowStockItems)
	}
	if len(stats.RecentOrders) != 2 {
		t.Fatalf("recent orders = %d, want 2", len(stats.RecentOrders))
	}
}

func TestMonthlySalesReport(t *testing.T) {
	svc, ctx := newTestService(t)
	item := mustCreateItem(t, svc, ctx, "Fan", 500, 0, 100)

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateOrder(ctx, domain.OrderRequest{
			Customer: domain.Customer{Name: "Asha"},
			Items:    []domain.OrderLineRequest{{ItemID: item.ID, Quantity: 1}},
		}); err != nil {
			t.Fatalf("create order: %v", err)
		}
	}

	now := time.Now().UTC()
	report, err := svc.MonthlySalesReport(ctx, now.Year(), 0)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report) != 1 {
		t.Fatalf("report months = %d, want 1", len(report))
	}
	if report[0].Month != int(now.Month()) || report[0].OrderCount != 3 || report[0].RevenueCents != 1500 {
		t.Fatalf("report = %+v", report[0])
	}

	if _, err := svc.MonthlySalesReport(ctx, now.Year(), 13); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("month 13 err = %v, want ErrValidation", err)
	}
}

func TestDebtLifecycle(t *testing.T) {
	svc, ctx := newTestService(t)

	debt, err := svc.CreateDebt(ctx, domain.DebtRequest{
		PersonName:  "Ravi",
		AmountCents: 50000,
		DateGiven:   "2026-01-15",
		DueDate:     "2026-06-15",
	})
	if err != nil {
		t.Fatalf("create debt: %v", err)
	}
	if debt.Status != domain.DebtStatusUnpaid {
		t.Fatalf("default status = %q, want unpaid", debt.Status)
	}

	updated, err := svc.UpdateDebt(ctx, debt.ID, domain.DebtRequest{
		PersonName:  "Ravi",
		AmountCents: 50000,
		Status:      domain.DebtStatusPaid,
		DateGiven:   "2026-01-15",
	})
	if err != nil {
		t.Fatalf("update debt: %v", err)
	}
	if updated.Status != domain.DebtStatusPaid {
		t.Fatalf("status = %q, want paid", updated.Status)
	}

	if _, err := svc.CreateDebt(ctx, domain.DebtRequest{PersonName: "X", AmountCents: 0}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("zero amount err = %v, want ErrValidation", err)
	}
}

func TestPurchaseOrderTotals(t *testing.T) {
	svc, ctx := newTestService(t)

	po, err := svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderRequest{
		Supplier: domain.Supplier{Name: "Sharma Distributors", GSTNumber: "22AAAAA0000A1Z5"},
		Items: []domain.PurchaseOrderLineRequest{
			{Name: "Fan", Quantity: 10, PriceCents: 100000, GSTPercent: 18},
			{Name: "Bulb", Quantity: 50, PriceCents: 5000, GSTPercent: 12},
		},
		OrderDate: "2026-02-10",
	})
	if err != nil {
		t.Fatalf("create purchase order: %v", err)
	}
	// Fan: 1000000 + 180000 GST; Bulb: 250000 + 30000 GST.
	if po.TotalGSTCents != 210000 || po.TotalAmountCents != 1460000 {
		t.Fatalf("totals = %d/%d", po.TotalGSTCents, po.TotalAmountCents)
	}

	_, err = svc.CreatePurchaseOrder(ctx, domain.PurchaseOrderRequest{
		Supplier: domain.Supplier{Name: "Sharma Distributors"},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("empty items err = %v, want ErrValidation", err)
	}
}
