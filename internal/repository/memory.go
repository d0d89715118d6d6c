package repository

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/domain"
)

// MemoryStore объединённое in-memory хранилище и простой генератор ID
type MemoryStore struct {
	mu             sync.RWMutex
	nextProdID     int64
	nextUserID     int64
	nextOrderID    int64
	nextTransferID int64
	productsByID   map[int64]domain.Product
	usersByID      map[int64]domain.User
	ordersByID     map[int64]domain.Order
	transfersByID  map[int64]domain.Transfer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextProdID:     1,
		nextUserID:     1,
		nextOrderID:    1,
		nextTransferID: 1,
		productsByID:   make(map[int64]domain.Product),
		usersByID:      make(map[int64]domain.User),
		ordersByID:     make(map[int64]domain.Order),
		transfersByID:  make(map[int64]domain.Transfer),
	}
}

// transaction-aware locking helpers
type txKey struct{}

func isTx(ctx context.Context) bool {
	v := ctx.Value(txKey{})
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

// Ensure interfaces
var _ ProductRepository = (*MemoryStore)(nil)

// ProductRepository implementation
func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p.ID = m.nextProdID
	m.nextProdID++
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.productsByID[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	// return copy
	cp := p
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, id int64, ch ProductChanges) (*domain.Product, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.productsByID[id]
	if !ok || p.Deleted() {
		return nil, ErrNotFound
	}
	if ch.Name != nil {
		p.Name = *ch.Name
	}
	if ch.Description != nil {
		p.Description = *ch.Description
	}
	if ch.Price != nil {
		p.Price = *ch.Price
	}
	if ch.Stock != nil {
		p.Stock = *ch.Stock
	}
	if ch.ImageURL != nil {
		p.ImageURL = *ch.ImageURL
	}
	p.UpdatedAt = time.Now().UTC()
	m.productsByID[id] = p
	return &p, nil
}

func (m *MemoryStore) SetDeletedAt(ctx context.Context, id int64, at *time.Time) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return ErrNotFound
	}
	if at != nil {
		t := at.UTC()
		at = &t
	}
	p.DeletedAt = at
	p.UpdatedAt = time.Now().UTC()
	m.productsByID[id] = p
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, int64, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]domain.Product, 0)
	for _, p := range m.productsByID {
		if !f.IncludeDeleted && p.Deleted() {
			continue
		}
		if !containsIgnoreCase(p.Name, f.NameSubstring) {
			continue
		}
		if f.MinPrice != nil && p.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && p.Price > *f.MaxPrice {
			continue
		}
		out = append(out, p)
	}
	sortProducts(out, f.SortBy, f.Order)
	total := int64(len(out))
	return page(out, f.Limit, f.Offset), total, nil
}

func (m *MemoryStore) DecrementStock(ctx context.Context, id, qty int64) (bool, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.productsByID[id]
	if !ok || p.Deleted() || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	m.productsByID[id] = p
	return true, nil
}

func sortProducts(ps []domain.Product, by string, order SortOrder) {
	less := func(a, b domain.Product) int {
		switch by {
		case "name":
			return strings.Compare(a.Name, b.Name)
		case "price":
			return cmpInt64(a.Price, b.Price)
		case "stock":
			return cmpInt64(a.Stock, b.Stock)
		case "createdAt":
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			return cmpInt64(a.ID, b.ID)
		}
	}
	sort.SliceStable(ps, func(i, j int) bool {
		c := less(ps[i], ps[j])
		if c == 0 {
			c = cmpInt64(ps[i].ID, ps[j].ID)
		}
		if order == SortDesc {
			return c > 0
		}
		return c < 0
	})
}

// UserRepository implementation on wrapper type
type MemoryUsers struct{ store *MemoryStore }

func NewMemoryUsers(store *MemoryStore) *MemoryUsers { return &MemoryUsers{store: store} }

var _ UserRepository = (*MemoryUsers)(nil)

func (mu *MemoryUsers) Create(ctx context.Context, u *domain.User) error {
	mu.store.wlock(ctx)
	defer mu.store.wunlock(ctx)
	for _, existing := range mu.store.usersByID {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicate
		}
	}
	u.ID = mu.store.nextUserID
	mu.store.nextUserID++
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	mu.store.usersByID[u.ID] = *u
	return nil
}

func (mu *MemoryUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	mu.store.rlock(ctx)
	defer mu.store.runlock(ctx)
	u, ok := mu.store.usersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := u
	return &cp, nil
}

func (mu *MemoryUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	mu.store.rlock(ctx)
	defer mu.store.runlock(ctx)
	for _, u := range mu.store.usersByID {
		if strings.EqualFold(u.Email, email) {
			cp := u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (mu *MemoryUsers) Delete(ctx context.Context, id int64) error {
	mu.store.wlock(ctx)
	defer mu.store.wunlock(ctx)
	if _, ok := mu.store.usersByID[id]; !ok {
		return ErrNotFound
	}
	delete(mu.store.usersByID, id)
	return nil
}

func (mu *MemoryUsers) ListByIDs(ctx context.Context, ids []int64) ([]domain.User, error) {
	mu.store.rlock(ctx)
	defer mu.store.runlock(ctx)
	out := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := mu.store.usersByID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (mu *MemoryUsers) AddPoints(ctx context.Context, id, delta int64) (bool, error) {
	mu.store.wlock(ctx)
	defer mu.store.wunlock(ctx)
	u, ok := mu.store.usersByID[id]
	if !ok {
		return false, nil
	}
	u.Points += delta
	mu.store.usersByID[id] = u
	return true, nil
}

func (mu *MemoryUsers) DeductPoints(ctx context.Context, id, amount int64) (bool, error) {
	mu.store.wlock(ctx)
	defer mu.store.wunlock(ctx)
	u, ok := mu.store.usersByID[id]
	if !ok || u.Points < amount {
		return false, nil
	}
	u.Points -= amount
	mu.store.usersByID[id] = u
	return true, nil
}

// OrderRepository implementation on wrapper type
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o.ID = mo.store.nextOrderID
	mo.store.nextOrderID++
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	mo.store.ordersByID[o.ID] = *o
	return nil
}

func (mo *MemoryOrders) match(f OrderFilter) []domain.Order {
	out := make([]domain.Order, 0)
	for _, o := range mo.store.ordersByID {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.ProductID != nil && o.ProductID != *f.ProductID {
			continue
		}
		if f.MinTotal != nil && o.TotalPrice < *f.MinTotal {
			continue
		}
		if f.MaxTotal != nil && o.TotalPrice > *f.MaxTotal {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (mo *MemoryOrders) List(ctx context.Context, f OrderFilter) ([]domain.OrderView, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	orders := mo.match(f)
	sortOrders(orders, f.SortBy, f.Order)
	orders = page(orders, f.Limit, f.Offset)

	out := make([]domain.OrderView, 0, len(orders))
	for _, o := range orders {
		v := domain.OrderView{Order: o}
		if p, ok := mo.store.productsByID[o.ProductID]; ok {
			v.Product = domain.ProductBrief{ID: p.ID, Name: p.Name, Price: p.Price}
		} else {
			v.Product = domain.ProductBrief{ID: o.ProductID}
		}
		if f.IncludeUser {
			if u, ok := mo.store.usersByID[o.UserID]; ok {
				v.User = &domain.UserBrief{ID: u.ID, Name: u.Name, Email: u.Email, Points: u.Points}
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func (mo *MemoryOrders) Count(ctx context.Context, f OrderFilter) (int64, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	return int64(len(mo.match(f))), nil
}

func (mo *MemoryOrders) SummarizeByUser(ctx context.Context) ([]domain.OrderAggregate, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	byUser := make(map[int64]*domain.OrderAggregate)
	for _, o := range mo.store.ordersByID {
		agg, ok := byUser[o.UserID]
		if !ok {
			agg = &domain.OrderAggregate{UserID: o.UserID}
			byUser[o.UserID] = agg
		}
		agg.OrdersCount++
		agg.TotalQuantity += o.Quantity
		agg.TotalSpent += o.TotalPrice
	}
	out := make([]domain.OrderAggregate, 0, len(byUser))
	for _, agg := range byUser {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func sortOrders(list []domain.Order, by string, order SortOrder) {
	cmp := func(a, b domain.Order) int {
		switch by {
		case "totalPrice":
			return cmpInt64(a.TotalPrice, b.TotalPrice)
		case "quantity":
			return cmpInt64(a.Quantity, b.Quantity)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		c := cmp(list[i], list[j])
		if c == 0 {
			c = cmpInt64(list[i].ID, list[j].ID)
		}
		if order == SortAsc {
			return c < 0
		}
		return c > 0
	})
}

// TransferRepository implementation on wrapper type
type MemoryTransfers struct{ store *MemoryStore }

func NewMemoryTransfers(store *MemoryStore) *MemoryTransfers { return &MemoryTransfers{store: store} }

var _ TransferRepository = (*MemoryTransfers)(nil)

func (mt *MemoryTransfers) Create(ctx context.Context, t *domain.Transfer) error {
	mt.store.wlock(ctx)
	defer mt.store.wunlock(ctx)
	t.ID = mt.store.nextTransferID
	mt.store.nextTransferID++
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	mt.store.transfersByID[t.ID] = *t
	return nil
}

func (mt *MemoryTransfers) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Transfer, int64, error) {
	mt.store.rlock(ctx)
	defer mt.store.runlock(ctx)
	out := make([]domain.Transfer, 0)
	for _, t := range mt.store.transfersByID {
		if t.FromUserID == userID || t.ToUserID == userID {
			out = append(out, t)
		}
	}
	// newest first
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].CreatedAt.Compare(out[j].CreatedAt); c != 0 {
			return c > 0
		}
		return out[i].ID > out[j].ID
	})
	total := int64(len(out))
	return page(out, limit, offset), total, nil
}

// NewMemoryStores все репозитории поверх одного MemoryStore
func NewMemoryStores() Stores {
	store := NewMemoryStore()
	return Stores{
		Products:  store,
		Users:     NewMemoryUsers(store),
		Orders:    NewMemoryOrders(store),
		Transfers: NewMemoryTransfers(store),
		Tx:        NewMemoryTx(store),
	}
}

// Tx manager using write lock to emulate transaction boundary
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

type memorySnapshot struct {
	nextProdID, nextUserID, nextOrderID, nextTransferID int64

	products  map[int64]domain.Product
	users     map[int64]domain.User
	orders    map[int64]domain.Order
	transfers map[int64]domain.Transfer
}

func (m *MemoryStore) snapshot() memorySnapshot {
	return memorySnapshot{
		nextProdID:     m.nextProdID,
		nextUserID:     m.nextUserID,
		nextOrderID:    m.nextOrderID,
		nextTransferID: m.nextTransferID,
		products:       maps.Clone(m.productsByID),
		users:          maps.Clone(m.usersByID),
		orders:         maps.Clone(m.ordersByID),
		transfers:      maps.Clone(m.transfersByID),
	}
}

func (m *MemoryStore) restore(s memorySnapshot) {
	m.nextProdID, m.nextUserID = s.nextProdID, s.nextUserID
	m.nextOrderID, m.nextTransferID = s.nextOrderID, s.nextTransferID
	m.productsByID = s.products
	m.usersByID = s.users
	m.ordersByID = s.orders
	m.transfersByID = s.transfers
}

func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if isTx(ctx) {
		return fn(ctx)
	}
	// Глобальная блокировка записи; контекст помечается, чтобы репозитории пропускали внутренние локи.
	// При ошибке или панике состояние откатывается к снимку.
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	snap := tx.store.snapshot()
	defer func() {
		if r := recover(); r != nil {
			tx.store.restore(snap)
			panic(r)
		}
		if err != nil {
			tx.store.restore(snap)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithValue(ctx, txKey{}, true)
	return fn(ctx)
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
