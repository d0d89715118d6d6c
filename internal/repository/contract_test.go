package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

// runContract общие проверки для любой реализации хранилища
func runContract(t *testing.T, newStores func(t *testing.T) Stores) {
	t.Run("products", func(t *testing.T) { testProducts(t, newStores(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, newStores(t)) })
	t.Run("orders", func(t *testing.T) { testOrders(t, newStores(t)) })
	t.Run("transfers", func(t *testing.T) { testTransfers(t, newStores(t)) })
	t.Run("tx rollback", func(t *testing.T) { testTxRollback(t, newStores(t)) })
	t.Run("concurrent decrement", func(t *testing.T) { testConcurrentDecrement(t, newStores(t)) })
}

func mustProduct(t *testing.T, st Stores, name string, price, stock int64) domain.Product {
	t.Helper()
	p := domain.Product{SupplierID: 1, Name: name, Price: price, Stock: stock}
	require.NoError(t, st.Products.Create(context.Background(), &p))
	return p
}

func mustUser(t *testing.T, st Stores, email string, points int64) domain.User {
	t.Helper()
	u := domain.User{Name: email, Email: email, PasswordHash: "h", Role: domain.RoleUser, Points: points}
	require.NoError(t, st.Users.Create(context.Background(), &u))
	return u
}

func testProducts(t *testing.T, st Stores) {
	ctx := context.Background()
	p := mustProduct(t, st, "Aspirin", 10, 5)
	require.NotZero(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := st.Products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Aspirin", got.Name)
	assert.Nil(t, got.DeletedAt)

	price, desc := int64(12), "pain relief"
	upd, err := st.Products.Update(ctx, p.ID, ProductChanges{Price: &price, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, int64(12), upd.Price)
	assert.Equal(t, "Aspirin", upd.Name)
	got, err = st.Products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.Price)
	assert.Equal(t, "pain relief", got.Description)
	assert.Equal(t, int64(5), got.Stock)

	_, err = st.Products.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	name := "x"
	_, err = st.Products.Update(ctx, 999, ProductChanges{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := st.Products.DecrementStock(ctx, p.ID, 6)
	require.NoError(t, err)
	assert.False(t, ok, "cannot take more than stock")
	ok, err = st.Products.DecrementStock(ctx, p.ID, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	got, _ = st.Products.GetByID(ctx, p.ID)
	assert.Equal(t, int64(0), got.Stock)

	// переименование не трогает остаток, списанный после чтения
	rename := "Aspirin Forte"
	upd, err = st.Products.Update(ctx, p.ID, ProductChanges{Name: &rename})
	require.NoError(t, err)
	assert.Equal(t, int64(0), upd.Stock)

	mustProduct(t, st, "Paracetamol", 50, 1)
	mustProduct(t, st, "Ibuprofen 100%", 150, 1)
	now := time.Now().UTC()
	require.NoError(t, st.Products.SetDeletedAt(ctx, p.ID, &now))

	ok, err = st.Products.DecrementStock(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.False(t, ok, "deleted product is not decremented")
	_, err = st.Products.Update(ctx, p.ID, ProductChanges{Name: &rename})
	assert.ErrorIs(t, err, ErrNotFound, "deleted product is not updated")

	items, total, err := st.Products.List(ctx, ProductFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)

	_, total, err = st.Products.List(ctx, ProductFilter{IncludeDeleted: true, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	items, _, err = st.Products.List(ctx, ProductFilter{NameSubstring: "PARA", Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Paracetamol", items[0].Name)

	// % не работает как шаблон
	items, _, err = st.Products.List(ctx, ProductFilter{NameSubstring: "0%", Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Ibuprofen 100%", items[0].Name)

	minP := int64(100)
	items, total, err = st.Products.List(ctx, ProductFilter{MinPrice: &minP, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)

	items, total, err = st.Products.List(ctx, ProductFilter{SortBy: "price", Order: SortDesc, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 1)
	assert.Equal(t, "Paracetamol", items[0].Name)

	require.NoError(t, st.Products.SetDeletedAt(ctx, p.ID, nil))
	got, err = st.Products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DeletedAt)
}

func testUsers(t *testing.T, st Stores) {
	ctx := context.Background()
	a := mustUser(t, st, "a@example.com", 10)
	b := mustUser(t, st, "b@example.com", 0)

	dup := domain.User{Name: "x", Email: "a@example.com", PasswordHash: "h", Role: domain.RoleUser}
	assert.ErrorIs(t, st.Users.Create(ctx, &dup), ErrDuplicate)

	got, err := st.Users.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	_, err = st.Users.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := st.Users.DeductPoints(ctx, a.ID, 11)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = st.Users.DeductPoints(ctx, a.ID, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.Users.AddPoints(ctx, b.ID, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.Users.AddPoints(ctx, 999, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := st.Users.ListByIDs(ctx, []int64{b.ID, 999, a.ID})
	require.NoError(t, err)
	require.Len(t, list, 2)
	points := map[int64]int64{}
	for _, u := range list {
		points[u.ID] = u.Points
	}
	assert.Equal(t, map[int64]int64{a.ID: 0, b.ID: 7}, points)

	require.NoError(t, st.Users.Delete(ctx, b.ID))
	assert.ErrorIs(t, st.Users.Delete(ctx, b.ID), ErrNotFound)
	_, err = st.Users.GetByID(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func testOrders(t *testing.T, st Stores) {
	ctx := context.Background()
	a := mustUser(t, st, "a@example.com", 0)
	b := mustUser(t, st, "b@example.com", 0)
	mug := mustProduct(t, st, "Mug", 100, 100)
	hat := mustProduct(t, st, "Cap", 1000, 100)

	day := func(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }
	for _, o := range []domain.Order{
		{UserID: a.ID, ProductID: mug.ID, Quantity: 1, UnitPrice: 100, TotalPrice: 100, CreatedAt: day(1)},
		{UserID: a.ID, ProductID: hat.ID, Quantity: 2, UnitPrice: 1000, TotalPrice: 2000, CreatedAt: day(2)},
		{UserID: b.ID, ProductID: mug.ID, Quantity: 5, UnitPrice: 100, TotalPrice: 500, CreatedAt: day(3)},
	} {
		o := o
		require.NoError(t, st.Orders.Create(ctx, &o))
		require.NotZero(t, o.ID)
	}

	all, err := st.Orders.List(ctx, OrderFilter{SortBy: "createdAt", Order: SortDesc, Limit: 10, IncludeUser: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, b.ID, all[0].UserID)
	assert.Equal(t, "Mug", all[0].Product.Name)
	require.NotNil(t, all[0].User)
	assert.Equal(t, "b@example.com", all[0].User.Email)
	assert.True(t, all[2].CreatedAt.Equal(day(1)))

	uid := a.ID
	mine, err := st.Orders.List(ctx, OrderFilter{UserID: &uid, SortBy: "totalPrice", Order: SortAsc, Limit: 10})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, int64(100), mine[0].TotalPrice)
	assert.Nil(t, mine[0].User)

	pid := mug.ID
	n, err := st.Orders.Count(ctx, OrderFilter{ProductID: &pid})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	minT, maxT := int64(200), int64(1000)
	n, err = st.Orders.Count(ctx, OrderFilter{MinTotal: &minT, MaxTotal: &maxT})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	from := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 2, 23, 59, 59, 999e6, time.UTC)
	byDay, err := st.Orders.List(ctx, OrderFilter{From: &from, To: &to, Limit: 10})
	require.NoError(t, err)
	require.Len(t, byDay, 1)
	assert.Equal(t, hat.ID, byDay[0].ProductID)

	paged, err := st.Orders.List(ctx, OrderFilter{SortBy: "quantity", Order: SortDesc, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, int64(2), paged[0].Quantity)

	// профиль удален, а заказы и сводка остаются
	require.NoError(t, st.Users.Delete(ctx, b.ID))
	sum, err := st.Orders.SummarizeByUser(ctx)
	require.NoError(t, err)
	require.Len(t, sum, 2)
	assert.Equal(t, domain.OrderAggregate{UserID: a.ID, OrdersCount: 2, TotalQuantity: 3, TotalSpent: 2100}, sum[0])
	assert.Equal(t, domain.OrderAggregate{UserID: b.ID, OrdersCount: 1, TotalQuantity: 5, TotalSpent: 500}, sum[1])

	all, err = st.Orders.List(ctx, OrderFilter{SortBy: "createdAt", Order: SortDesc, Limit: 10, IncludeUser: true})
	require.NoError(t, err)
	assert.Nil(t, all[0].User)
}

func testTransfers(t *testing.T, st Stores) {
	ctx := context.Background()
	a := mustUser(t, st, "a@example.com", 0)
	b := mustUser(t, st, "b@example.com", 0)
	c := mustUser(t, st, "c@example.com", 0)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, tr := range []domain.Transfer{
		{FromUserID: a.ID, ToUserID: b.ID, Amount: 1},
		{FromUserID: b.ID, ToUserID: a.ID, Amount: 2},
		{FromUserID: b.ID, ToUserID: c.ID, Amount: 3},
	} {
		tr := tr
		tr.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.Transfers.Create(ctx, &tr))
		require.NotZero(t, tr.ID)
	}

	items, total, err := st.Transfers.ListByUser(ctx, a.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 2)
	assert.Equal(t, int64(2), items[0].Amount)
	assert.Equal(t, int64(1), items[1].Amount)

	items, total, err = st.Transfers.ListByUser(ctx, b.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].Amount)
}

func testTxRollback(t *testing.T, st Stores) {
	ctx := context.Background()
	u := mustUser(t, st, "a@example.com", 10)
	p := mustProduct(t, st, "Mug", 100, 3)
	boom := errors.New("boom")

	err := st.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if ok, err := st.Products.DecrementStock(ctx, p.ID, 2); err != nil || !ok {
			return errors.New("decrement failed")
		}
		o := domain.Order{UserID: u.ID, ProductID: p.ID, Quantity: 2, UnitPrice: 100, TotalPrice: 200}
		if err := st.Orders.Create(ctx, &o); err != nil {
			return err
		}
		// вложенный вызов присоединяется к внешней транзакции
		return st.Tx.WithTransaction(ctx, func(ctx context.Context) error {
			if _, err := st.Users.DeductPoints(ctx, u.ID, 10); err != nil {
				return err
			}
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	got, err := st.Products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Stock)
	n, err := st.Orders.Count(ctx, OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
	usr, err := st.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), usr.Points)

	err = st.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := st.Products.DecrementStock(ctx, p.ID, 1)
		return err
	})
	require.NoError(t, err)
	got, _ = st.Products.GetByID(ctx, p.ID)
	assert.Equal(t, int64(2), got.Stock)
}

func testConcurrentDecrement(t *testing.T, st Stores) {
	ctx := context.Background()
	p := mustProduct(t, st, "Last", 1, 5)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.Products.DecrementStock(ctx, p.ID, 1)
			if err == nil && ok {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, success)
	got, err := st.Products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Stock)
}
