package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-marketplace-backoffice/internal/events"
	"github.com/flicky/go-marketplace-backoffice/internal/model"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockTx records undo steps and replays them on rollback, so tests can see
// exactly what a failed transaction left behind.
type mockTx struct {
	pgx.Tx
	undo      []func()
	closed    bool
	committed bool
	commitErr error
}

func (t *mockTx) onRollback(fn func()) { t.undo = append(t.undo, fn) }

func (t *mockTx) Commit(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	if t.commitErr != nil {
		return t.commitErr
	}
	t.closed, t.committed = true, true
	return nil
}

func (t *mockTx) Rollback(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	return nil
}

func journal(tx pgx.Tx, fn func()) {
	if mt, ok := tx.(*mockTx); ok {
		mt.onRollback(fn)
	}
}

type mockTransactor struct {
	mu        sync.Mutex
	begun     int
	beginErr  error
	commitErr error
}

func (m *mockTransactor) BeginTx(context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	m.begun++
	return &mockTx{commitErr: m.commitErr}, nil
}

func (m *mockTransactor) Begun() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begun
}

// mockDB is the shared in-memory state behind the repository mocks.
type mockDB struct {
	mu           sync.Mutex
	users        map[uuid.UUID]*model.User
	products     map[uuid.UUID]*model.Product
	orders       map[uuid.UUID]*model.Order
	decrementErr error
}

func newMockDB() *mockDB {
	return &mockDB{
		users:    make(map[uuid.UUID]*model.User),
		products: make(map[uuid.UUID]*model.Product),
		orders:   make(map[uuid.UUID]*model.Order),
	}
}

func (db *mockDB) product(id uuid.UUID) *model.Product {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.products[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (db *mockDB) orderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.orders)
}

type mockUserRepo struct{ db *mockDB }

func (m mockUserRepo) Create(_ context.Context, u *model.User) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u.ID = uuid.New()
	if u.Status == "" {
		u.Status = model.UserStatusActive
	}
	u.CreatedAt = time.Now()
	cp := *u
	m.db.users[u.ID] = &cp
	return nil
}

func (m mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	u, ok := m.db.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

type mockProductRepo struct{ db *mockDB }

func (m mockProductRepo) Create(_ context.Context, p *model.Product) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	cp := *p
	m.db.products[p.ID] = &cp
	return nil
}

func (m mockProductRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	return m.db.product(id), nil
}

func (m mockProductRepo) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*model.Product, error) {
	return m.db.product(id), nil
}

func (m mockProductRepo) ListActive(context.Context) ([]model.Product, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.Product
	for _, p := range m.db.products {
		if p.DeletedAt == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m mockProductRepo) ListDeleted(_ context.Context, supplierID uuid.UUID) ([]model.Product, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.Product
	for _, p := range m.db.products {
		if p.DeletedAt != nil && (supplierID == uuid.Nil || p.SupplierID == supplierID) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m mockProductRepo) Update(_ context.Context, tx pgx.Tx, p *model.Product) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	prev, ok := m.db.products[p.ID]
	if !ok {
		return nil
	}
	cp := *p
	m.db.products[p.ID] = &cp
	journal(tx, func() {
		m.db.mu.Lock()
		defer m.db.mu.Unlock()
		m.db.products[prev.ID] = prev
	})
	return nil
}

func (m mockProductRepo) SoftDelete(_ context.Context, id uuid.UUID) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.products[id]
	if !ok {
		return false, nil
	}
	now := time.Now()
	p.DeletedAt = &now
	return true, nil
}

func (m mockProductRepo) Restore(_ context.Context, id uuid.UUID) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.products[id]
	if !ok {
		return false, nil
	}
	p.DeletedAt = nil
	return true, nil
}

func (m mockProductRepo) HardDelete(_ context.Context, id uuid.UUID) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.products[id]; !ok {
		return false, nil
	}
	delete(m.db.products, id)
	return true, nil
}

// DecrementStock mirrors the guarded UPDATE: check and write happen under one lock.
func (m mockProductRepo) DecrementStock(_ context.Context, tx pgx.Tx, id uuid.UUID, qty int) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.decrementErr != nil {
		return false, m.db.decrementErr
	}
	p, ok := m.db.products[id]
	if !ok || p.DeletedAt != nil || p.Quantity < qty {
		return false, nil
	}
	p.Quantity -= qty
	journal(tx, func() { m.adjust(id, qty) })
	return true, nil
}

func (m mockProductRepo) IncrementStock(_ context.Context, tx pgx.Tx, id uuid.UUID, qty int) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.products[id]
	if !ok {
		return false, nil
	}
	p.Quantity += qty
	journal(tx, func() { m.adjust(id, -qty) })
	return true, nil
}

func (m mockProductRepo) adjust(id uuid.UUID, delta int) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if p, ok := m.db.products[id]; ok {
		p.Quantity += delta
	}
}

type mockOrderRepo struct {
	db        *mockDB
	createErr error
}

// withSupplier resolves the owner the way the LEFT JOIN on products does.
// Callers hold db.mu.
func (m mockOrderRepo) withSupplier(o *model.Order) *model.Order {
	cp := *o
	cp.SupplierID = uuid.Nil
	if p, ok := m.db.products[o.ProductID]; ok {
		cp.SupplierID = p.SupplierID
	}
	return &cp
}

func (m mockOrderRepo) Create(_ context.Context, tx pgx.Tx, o *model.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	o.ID = uuid.New()
	o.OrderDate = time.Now()
	o.UpdatedAt = o.OrderDate
	cp := *o
	m.db.orders[o.ID] = &cp
	journal(tx, func() {
		m.db.mu.Lock()
		defer m.db.mu.Unlock()
		delete(m.db.orders, cp.ID)
	})
	return nil
}

func (m mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	o, ok := m.db.orders[id]
	if !ok {
		return nil, nil
	}
	return m.withSupplier(o), nil
}

func (m mockOrderRepo) GetForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*model.Order, error) {
	return m.GetByID(ctx, id)
}

func (m mockOrderRepo) UpdateStatus(_ context.Context, tx pgx.Tx, id uuid.UUID, status model.OrderStatus) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	o, ok := m.db.orders[id]
	if !ok {
		return nil
	}
	prev := o.Status
	o.Status = status
	journal(tx, func() {
		m.db.mu.Lock()
		defer m.db.mu.Unlock()
		o.Status = prev
	})
	return nil
}

func (m mockOrderRepo) list(keep func(*model.Order) bool) []model.Order {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []model.Order
	for _, o := range m.db.orders {
		resolved := m.withSupplier(o)
		if keep(resolved) {
			out = append(out, *resolved)
		}
	}
	return out
}

func (m mockOrderRepo) ListByBuyer(_ context.Context, buyerID uuid.UUID) ([]model.Order, error) {
	return m.list(func(o *model.Order) bool { return o.BuyerID == buyerID }), nil
}

func (m mockOrderRepo) ListBySupplier(_ context.Context, supplierID uuid.UUID) ([]model.Order, error) {
	return m.list(func(o *model.Order) bool { return o.SupplierID == supplierID }), nil
}

func (m mockOrderRepo) ListAll(context.Context) ([]model.Order, error) {
	return m.list(func(*model.Order) bool { return true }), nil
}

func (m mockOrderRepo) CountByProduct(_ context.Context, productID uuid.UUID) (int, error) {
	return len(m.list(func(o *model.Order) bool { return o.ProductID == productID })), nil
}

type mockCartStore struct {
	mu    sync.Mutex
	carts map[string]map[uuid.UUID]int
	err   error
}

func newMockCartStore() *mockCartStore {
	return &mockCartStore{carts: make(map[string]map[uuid.UUID]int)}
}

func (m *mockCartStore) Get(_ context.Context, session string) (*model.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	items := make(map[uuid.UUID]int, len(m.carts[session]))
	for id, q := range m.carts[session] {
		items[id] = q
	}
	return &model.Cart{SessionID: session, Items: items}, nil
}

func (m *mockCartStore) AddItem(_ context.Context, session string, productID uuid.UUID, qty, limit int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, false, m.err
	}
	if m.carts[session] == nil {
		m.carts[session] = make(map[uuid.UUID]int)
	}
	merged := m.carts[session][productID] + qty
	next := min(merged, limit)
	m.carts[session][productID] = next
	return next, next < merged, nil
}

func (m *mockCartStore) RemoveItem(_ context.Context, session string, productID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts[session], productID)
	return nil
}

func (m *mockCartStore) Clear(_ context.Context, session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, session)
	return nil
}

type mockImageStore struct {
	mu       sync.Mutex
	files    map[string][]byte
	deleted  []string
	storeErr error
	n        int
}

func newMockImageStore() *mockImageStore {
	return &mockImageStore{files: make(map[string][]byte)}
}

func (m *mockImageStore) Store(data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return "", m.storeErr
	}
	m.n++
	path := fmt.Sprintf("uploads/img-%d.png", m.n)
	m.files[path] = data
	return path, nil
}

func (m *mockImageStore) Delete(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	m.deleted = append(m.deleted, path)
	return nil
}

func (m *mockImageStore) has(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// env wires every service against the mocks.
type env struct {
	db       *mockDB
	tr       *mockTransactor
	orders   *mockOrderRepo
	carts    *mockCartStore
	images   *mockImageStore
	pub      *recordingPublisher
	catalog  *ProductService
	cart     *CartService
	ledger   *OrderService
	products mockProductRepo
	users    mockUserRepo
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := newMockDB()
	e := &env{
		db:       db,
		tr:       &mockTransactor{},
		orders:   &mockOrderRepo{db: db},
		carts:    newMockCartStore(),
		images:   newMockImageStore(),
		pub:      &recordingPublisher{},
		products: mockProductRepo{db: db},
		users:    mockUserRepo{db: db},
	}
	e.catalog = NewProductService(e.tr, e.products, e.orders, e.users, e.images, nil, time.Minute, discardLogger())
	e.cart = NewCartService(e.carts, e.products)
	e.ledger = NewOrderService(e.tr, e.orders, e.catalog, e.carts, e.pub, discardLogger())
	return e
}

func (e *env) actor(t *testing.T, role model.Role) model.Actor {
	t.Helper()
	u := &model.User{Name: string(role), Email: uuid.NewString() + "@example.com", Role: role}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return model.Actor{UserID: u.ID, Role: role, Status: u.Status, SessionID: "sess-" + u.ID.String()}
}

func (e *env) product(t *testing.T, supplierID uuid.UUID, price string, qty int) *model.Product {
	t.Helper()
	p := &model.Product{
		SupplierID: supplierID,
		Name:       "Widget",
		Price:      decimal.RequireFromString(price),
		Quantity:   qty,
		ImagePath:  "",
	}
	if err := e.products.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}
