package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kihaan/backend/internal/domain"
	"kihaan/backend/internal/store"
	"kihaan/backend/internal/xid"
)

// Store is the postgres-backed Repository. Nested order and supplier
// snapshots live in jsonb columns; everything aggregated over lives in
// plain columns.
type Store struct {
	db *sql.DB
}

// Open connects, pings and ensures the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			refresh_token_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			model_no TEXT NOT NULL DEFAULT '',
			price_cents BIGINT NOT NULL,
			gst_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			stock INTEGER NOT NULL CHECK (stock >= 0),
			last_low_stock_alert_sent TIMESTAMPTZ,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			customer JSONB NOT NULL,
			delivery JSONB NOT NULL,
			line_items JSONB NOT NULL,
			total_gst_cents BIGINT NOT NULL,
			total_amount_cents BIGINT NOT NULL,
			payment_status TEXT NOT NULL,
			amount_paid_cents BIGINT NOT NULL,
			remaining_balance_cents BIGINT NOT NULL,
			payment_method TEXT NOT NULL DEFAULT '',
			payment_date TIMESTAMPTZ NOT NULL,
			payment_history JSONB NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS debts (
			id TEXT PRIMARY KEY,
			person_name TEXT NOT NULL,
			amount_cents BIGINT NOT NULL,
			contact TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			date_given TIMESTAMPTZ NOT NULL,
			due_date TIMESTAMPTZ,
			notes TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS purchase_orders (
			id TEXT PRIMARY KEY,
			supplier JSONB NOT NULL,
			line_items JSONB NOT NULL,
			total_gst_cents BIGINT NOT NULL,
			total_amount_cents BIGINT NOT NULL,
			order_date TIMESTAMPTZ NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_created_by ON items (created_by)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_purchase_orders_order_date ON purchase_orders (order_date DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// ---- items ----

const itemColumns = `id, name, description, category, model_no, price_cents, gst_percent, stock, last_low_stock_alert_sent, created_by, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*domain.Item, error) {
	var item domain.Item
	var alertAt sql.NullTime
	err := row.Scan(&item.ID, &item.Name, &item.Description, &item.Category, &item.ModelNo,
		&item.PriceCents, &item.GSTPercent, &item.Stock, &alertAt, &item.CreatedBy,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if alertAt.Valid {
		t := alertAt.Time
		item.LastLowStockAlertSent = &t
	}
	return &item, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, description, category, model_no, price_cents, gst_percent, stock, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.Name, item.Description, item.Category, item.ModelNo,
		item.PriceCents, item.GSTPercent, item.Stock, item.CreatedBy, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return &item, nil
}

func (s *Store) GetItem(ctx context.Context, id, ownerID string) (*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	args := []any{id}
	if ownerID != "" {
		query += ` AND created_by = $2`
		args = append(args, ownerID)
	}
	item, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (s *Store) GetItemsByIDs(ctx context.Context, ids []string) (map[string]domain.Item, error) {
	out := make(map[string]domain.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get items by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out[item.ID] = *item
	}
	return out, rows.Err()
}

func (s *Store) ListItems(ctx context.Context, q domain.ItemQuery) (*domain.ItemPage, error) {
	page, limit := normalizePage(q.Page, q.Limit)

	where := []string{"1=1"}
	var args []any
	if q.OwnerID != "" {
		args = append(args, q.OwnerID)
		where = append(where, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if strings.TrimSpace(q.Search) != "" {
		args = append(args, "%"+strings.TrimSpace(q.Search)+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if len(q.Categories) > 0 {
		cats := make([]string, 0, len(q.Categories))
		for _, c := range q.Categories {
			if c = strings.TrimSpace(c); c != "" {
				cats = append(cats, strings.ToLower(c))
			}
		}
		if len(cats) > 0 {
			args = append(args, cats)
			where = append(where, fmt.Sprintf("LOWER(category) = ANY($%d)", len(args)))
		}
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM items WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		itemColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0, limit)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &domain.ItemPage{
		Items:      items,
		Total:      total,
		Page:       page,
		TotalPages: totalPages(total, limit),
	}, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	query := `
		UPDATE items SET name = $2, description = $3, category = $4, model_no = $5,
			price_cents = $6, gst_percent = $7, stock = $8, updated_at = $9
		WHERE id = $1`
	args := []any{item.ID, item.Name, item.Description, item.Category, item.ModelNo,
		item.PriceCents, item.GSTPercent, item.Stock, time.Now().UTC()}
	if item.CreatedBy != "" {
		query += ` AND created_by = $10`
		args = append(args, item.CreatedBy)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetItem(ctx, item.ID, item.CreatedBy)
}

func (s *Store) DeleteItem(ctx context.Context, id, ownerID string) error {
	query := `DELETE FROM items WHERE id = $1`
	args := []any{id}
	if ownerID != "" {
		query += ` AND created_by = $2`
		args = append(args, ownerID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ApplyStockDeltas locks every touched row, checks each draw against
// current stock and applies the whole batch in one transaction. Rows are
// locked in id order so concurrent batches cannot deadlock.
func (s *Store) ApplyStockDeltas(ctx context.Context, deltas []domain.StockDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	ordered := append([]domain.StockDelta(nil), deltas...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ItemID < ordered[j].ItemID })

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin stock tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, d := range ordered {
		var name string
		var stock int
		err := tx.QueryRowContext(ctx,
			`SELECT name, stock FROM items WHERE id = $1 FOR UPDATE`, d.ItemID).
			Scan(&name, &stock)
		if errors.Is(err, sql.ErrNoRows) {
			// Restocks for items removed from the catalog are dropped so
			// an old order can still shrink or be deleted. Draws on
			// unknown items fail the batch.
			if d.Delta > 0 {
				continue
			}
			return fmt.Errorf("%w: item %s", store.ErrNotFound, d.ItemID)
		}
		if err != nil {
			return fmt.Errorf("lock item %s: %w", d.ItemID, err)
		}
		if stock+d.Delta < 0 {
			return fmt.Errorf("%w for item %s: have %d, need %d",
				store.ErrInsufficientStock, name, stock, -d.Delta)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET stock = stock + $2, updated_at = $3 WHERE id = $1`,
			d.ItemID, d.Delta, now); err != nil {
			return fmt.Errorf("adjust stock for %s: %w", d.ItemID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stock tx: %w", err)
	}
	return nil
}

func (s *Store) ListLowStockItems(ctx context.Context, threshold, limit int) ([]domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE stock < $1 ORDER BY stock ASC`
	args := []any{threshold}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *Store) MarkLowStockAlerted(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE items SET last_low_stock_alert_sent = $2 WHERE id = ANY($1)`, ids, at)
	if err != nil {
		return fmt.Errorf("mark low stock alerted: %w", err)
	}
	return nil
}

// ---- orders ----

const orderColumns = `id, customer, delivery, line_items, total_gst_cents, total_amount_cents,
	payment_status, amount_paid_cents, remaining_balance_cents, payment_method, payment_date,
	payment_history, created_by, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var order domain.Order
	var customer, delivery, lineItems, history []byte
	err := row.Scan(&order.ID, &customer, &delivery, &lineItems,
		&order.TotalGSTCents, &order.TotalAmountCents,
		&order.Payment.Status, &order.Payment.AmountPaidCents, &order.Payment.RemainingBalanceCents,
		&order.Payment.Method, &order.Payment.Date,
		&history, &order.CreatedBy, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(customer, &order.Customer); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	if err := json.Unmarshal(delivery, &order.Delivery); err != nil {
		return nil, fmt.Errorf("decode delivery: %w", err)
	}
	if err := json.Unmarshal(lineItems, &order.Items); err != nil {
		return nil, fmt.Errorf("decode line items: %w", err)
	}
	if err := json.Unmarshal(history, &order.PaymentHistory); err != nil {
		return nil, fmt.Errorf("decode payment history: %w", err)
	}
	return &order, nil
}

func orderJSON(order domain.Order) (customer, delivery, lineItems, history []byte, err error) {
	if customer, err = json.Marshal(order.Customer); err != nil {
		return
	}
	if delivery, err = json.Marshal(order.Delivery); err != nil {
		return
	}
	if lineItems, err = json.Marshal(order.Items); err != nil {
		return
	}
	history, err = json.Marshal(order.PaymentHistory)
	return
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	customer, delivery, lineItems, history, err := orderJSON(order)
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, customer, delivery, line_items, total_gst_cents, total_amount_cents,
			payment_status, amount_paid_cents, remaining_balance_cents, payment_method, payment_date,
			payment_history, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		order.ID, customer, delivery, lineItems, order.TotalGSTCents, order.TotalAmountCents,
		order.Payment.Status, order.Payment.AmountPaidCents, order.Payment.RemainingBalanceCents,
		order.Payment.Method, order.Payment.Date, history, order.CreatedBy,
		order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return &order, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func (s *Store) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $1"
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (s *Store) UpdateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	customer, delivery, lineItems, history, err := orderJSON(order)
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET customer = $2, delivery = $3, line_items = $4,
			total_gst_cents = $5, total_amount_cents = $6,
			payment_status = $7, amount_paid_cents = $8, remaining_balance_cents = $9,
			payment_method = $10, payment_date = $11, payment_history = $12, updated_at = $13
		WHERE id = $1`,
		order.ID, customer, delivery, lineItems, order.TotalGSTCents, order.TotalAmountCents,
		order.Payment.Status, order.Payment.AmountPaidCents, order.Payment.RemainingBalanceCents,
		order.Payment.Method, order.Payment.Date, history, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOrder(ctx, order.ID)
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- debts ----

const debtColumns = `id, person_name, amount_cents, contact, status, date_given, due_date, notes, created_by, created_at, updated_at`

func scanDebt(row interface{ Scan(...any) error }) (*domain.Debt, error) {
	var debt domain.Debt
	var due sql.NullTime
	err := row.Scan(&debt.ID, &debt.PersonName, &debt.AmountCents, &debt.Contact, &debt.Status,
		&debt.DateGiven, &due, &debt.Notes, &debt.CreatedBy, &debt.CreatedAt, &debt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if due.Valid {
		t := due.Time
		debt.DueDate = &t
	}
	return &debt, nil
}

func (s *Store) CreateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error) {
	if debt.ID == "" {
		debt.ID = xid.New("debt")
	}
	now := time.Now().UTC()
	debt.CreatedAt = now
	debt.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO debts (id, person_name, amount_cents, contact, status, date_given, due_date, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		debt.ID, debt.PersonName, debt.AmountCents, debt.Contact, debt.Status,
		debt.DateGiven, debt.DueDate, debt.Notes, debt.CreatedBy, debt.CreatedAt, debt.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert debt: %w", err)
	}
	return &debt, nil
}

func (s *Store) GetDebt(ctx context.Context, id string) (*domain.Debt, error) {
	debt, err := scanDebt(s.db.QueryRowContext(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get debt: %w", err)
	}
	return debt, nil
}

func (s *Store) ListDebts(ctx context.Context, q domain.DebtQuery) (*domain.DebtPage, error) {
	page, limit := normalizePage(q.Page, q.Limit)

	cond := "1=1"
	var args []any
	switch search := strings.ToLower(strings.TrimSpace(q.Search)); search {
	case "":
	case domain.DebtStatusPaid, domain.DebtStatusUnpaid:
		args = append(args, search)
		cond = "status = $1"
	default:
		args = append(args, "%"+search+"%")
		cond = "person_name ILIKE $1"
	}

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM debts WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count debts: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM debts WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		debtColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	debts := make([]domain.Debt, 0, limit)
	for rows.Next() {
		debt, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		debts = append(debts, *debt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &domain.DebtPage{
		Debts:      debts,
		Total:      total,
		Page:       page,
		TotalPages: totalPages(total, limit),
	}, nil
}

func (s *Store) UpdateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE debts SET person_name = $2, amount_cents = $3, contact = $4, status = $5,
			date_given = $6, due_date = $7, notes = $8, updated_at = $9
		WHERE id = $1`,
		debt.ID, debt.PersonName, debt.AmountCents, debt.Contact, debt.Status,
		debt.DateGiven, debt.DueDate, debt.Notes, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update debt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetDebt(ctx, debt.ID)
}

func (s *Store) DeleteDebt(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM debts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete debt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- purchase orders ----

const purchaseOrderColumns = `id, supplier, line_items, total_gst_cents, total_amount_cents, order_date, notes, created_by, created_at, updated_at`

func scanPurchaseOrder(row interface{ Scan(...any) error }) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	var supplier, lineItems []byte
	err := row.Scan(&po.ID, &supplier, &lineItems, &po.TotalGSTCents, &po.TotalAmountCents,
		&po.OrderDate, &po.Notes, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(supplier, &po.Supplier); err != nil {
		return nil, fmt.Errorf("decode supplier: %w", err)
	}
	if err := json.Unmarshal(lineItems, &po.Items); err != nil {
		return nil, fmt.Errorf("decode line items: %w", err)
	}
	return &po, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	now := time.Now().UTC()
	po.CreatedAt = now
	po.UpdatedAt = now

	supplier, err := json.Marshal(po.Supplier)
	if err != nil {
		return nil, fmt.Errorf("encode supplier: %w", err)
	}
	lineItems, err := json.Marshal(po.Items)
	if err != nil {
		return nil, fmt.Errorf("encode line items: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, supplier, line_items, total_gst_cents, total_amount_cents, order_date, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		po.ID, supplier, lineItems, po.TotalGSTCents, po.TotalAmountCents,
		po.OrderDate, po.Notes, po.CreatedBy, po.CreatedAt, po.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert purchase order: %w", err)
	}
	return &po, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	po, err := scanPurchaseOrder(s.db.QueryRowContext(ctx,
		`SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get purchase order: %w", err)
	}
	return po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, q domain.PurchaseOrderQuery) (*domain.PurchaseOrderPage, error) {
	page, limit := normalizePage(q.Page, q.Limit)

	where := []string{"1=1"}
	var args []any
	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, "%"+search+"%")
		where = append(where, fmt.Sprintf(
			"(supplier->>'name' ILIKE $%d OR line_items::text ILIKE $%d)", len(args), len(args)))
	}
	if q.From != nil {
		args = append(args, *q.From)
		where = append(where, fmt.Sprintf("order_date >= $%d", len(args)))
	}
	if q.To != nil {
		args = append(args, *q.To)
		where = append(where, fmt.Sprintf("order_date <= $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purchase_orders WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count purchase orders: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM purchase_orders WHERE %s ORDER BY order_date DESC LIMIT $%d OFFSET $%d`,
		purchaseOrderColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("list purchase orders: %w", err)
	}
	defer rows.Close()

	pos := make([]domain.PurchaseOrder, 0, limit)
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase order: %w", err)
		}
		pos = append(pos, *po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &domain.PurchaseOrderPage{
		PurchaseOrders: pos,
		Total:          total,
		Page:           page,
		TotalPages:     totalPages(total, limit),
	}, nil
}

func (s *Store) UpdatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	supplier, err := json.Marshal(po.Supplier)
	if err != nil {
		return nil, fmt.Errorf("encode supplier: %w", err)
	}
	lineItems, err := json.Marshal(po.Items)
	if err != nil {
		return nil, fmt.Errorf("encode line items: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE purchase_orders SET supplier = $2, line_items = $3, total_gst_cents = $4,
			total_amount_cents = $5, order_date = $6, notes = $7, updated_at = $8
		WHERE id = $1`,
		po.ID, supplier, lineItems, po.TotalGSTCents, po.TotalAmountCents,
		po.OrderDate, po.Notes, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update purchase order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetPurchaseOrder(ctx, po.ID)
}

func (s *Store) DeletePurchaseOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete purchase order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- dashboard aggregates ----

func (s *Store) CountItems(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n)
	return n, err
}

func (s *Store) CountOrders(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n)
	return n, err
}

func (s *Store) SumOrderTotals(ctx context.Context) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_amount_cents), 0) FROM orders`).Scan(&sum)
	return sum, err
}

func (s *Store) SumOutstandingBalances(ctx context.Context) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(remaining_balance_cents), 0) FROM orders WHERE payment_status = $1`,
		domain.PaymentStatusPartial).Scan(&sum)
	return sum, err
}

func (s *Store) MonthlySales(ctx context.Context, year, month int) ([]domain.MonthlySales, error) {
	query := `
		SELECT EXTRACT(MONTH FROM created_at AT TIME ZONE 'UTC')::int AS month,
			COUNT(*), COALESCE(SUM(total_amount_cents), 0)
		FROM orders
		WHERE EXTRACT(YEAR FROM created_at AT TIME ZONE 'UTC') = $1`
	args := []any{year}
	if month > 0 {
		args = append(args, month)
		query += ` AND EXTRACT(MONTH FROM created_at AT TIME ZONE 'UTC') = $2`
	}
	query += ` GROUP BY month ORDER BY month`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monthly sales: %w", err)
	}
	defer rows.Close()

	var out []domain.MonthlySales
	for rows.Next() {
		ms := domain.MonthlySales{Year: year}
		if err := rows.Scan(&ms.Month, &ms.OrderCount, &ms.RevenueCents); err != nil {
			return nil, fmt.Errorf("scan monthly sales: %w", err)
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}

// ---- accounts ----

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, refresh_token_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Name, user.Email, user.PasswordHash,
		user.RefreshTokenHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: email already registered", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, refresh_token_hash, created_at
		FROM users WHERE email = LOWER($1)`, email).
		Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash,
			&user.RefreshTokenHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, refresh_token_hash, created_at
		FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash,
			&user.RefreshTokenHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &user, nil
}

func (s *Store) UpdateUserRefreshToken(ctx context.Context, userID, refreshTokenHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET refresh_token_hash = $2 WHERE id = $1`, userID, refreshTokenHash)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- helpers ----

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

func totalPages(total int64, limit int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
