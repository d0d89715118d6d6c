package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperr"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

func TestProductService_CRUD(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	p, err := f.products.Create(ctx, f.supplier, ProductInput{Name: "  Aspirin ", Price: 10, Stock: 5})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "Aspirin", p.Name)
	assert.Equal(t, f.supplier.ID, p.SupplierID)

	got, err := f.products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	name := "Aspirin Plus"
	stock := int64(7)
	upd, err := f.products.Update(ctx, f.supplier, p.ID, ProductPatch{Name: &name, Stock: &stock})
	require.NoError(t, err)
	assert.Equal(t, "Aspirin Plus", upd.Name)
	assert.Equal(t, int64(10), upd.Price)
	assert.Equal(t, int64(7), upd.Stock)

	del, err := f.products.Delete(ctx, f.supplier, p.ID)
	require.NoError(t, err)
	assert.True(t, del.Deleted())

	_, err = f.products.GetByID(ctx, p.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = f.products.Delete(ctx, f.supplier, p.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = f.products.Update(ctx, f.supplier, p.ID, ProductPatch{Name: &name})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	restored, err := f.products.Restore(ctx, f.supplier, p.ID)
	require.NoError(t, err)
	assert.False(t, restored.Deleted())
	_, err = f.products.Restore(ctx, f.supplier, p.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = f.products.GetByID(ctx, p.ID)
	assert.NoError(t, err)
}

func TestProductService_Validation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	buyer := f.user(t, "buyer@example.com", domain.RoleUser, 0)

	_, err := f.products.Create(ctx, f.supplier, ProductInput{Name: " ", Price: 1})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRequest))
	_, err = f.products.Create(ctx, f.supplier, ProductInput{Name: "A", Price: -1})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRequest))
	_, err = f.products.Create(ctx, buyer, ProductInput{Name: "A", Price: 1})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	_, err = f.products.Create(ctx, domain.Actor{}, ProductInput{Name: "A", Price: 1})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))

	p := f.product(t, 10, 1)
	_, err = f.products.Update(ctx, f.supplier, p.ID, ProductPatch{})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRequest))
	neg := int64(-5)
	_, err = f.products.Update(ctx, f.supplier, p.ID, ProductPatch{Stock: &neg})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRequest))

	_, err = f.products.GetByID(ctx, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRequest))
}

func TestProductService_OnlyOwnerMayChange(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	other := f.user(t, "other@example.com", domain.RoleSupplier, 0)
	p := f.product(t, 10, 1)

	price := int64(1)
	_, err := f.products.Update(ctx, other, p.ID, ProductPatch{Price: &price})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = f.products.Delete(ctx, other, p.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestProductService_List(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	for _, in := range []ProductInput{
		{Name: "Red Mug", Price: 300, Stock: 1},
		{Name: "Blue mug", Price: 100, Stock: 2},
		{Name: "Cap", Price: 200, Stock: 3},
	} {
		_, err := f.products.Create(ctx, f.supplier, in)
		require.NoError(t, err)
	}
	hidden, err := f.products.Create(ctx, f.supplier, ProductInput{Name: "Old mug", Price: 50})
	require.NoError(t, err)
	_, err = f.products.Delete(ctx, f.supplier, hidden.ID)
	require.NoError(t, err)

	page, err := f.products.List(ctx, ProductQuery{Q: "MUG", SortBy: "price", Order: "desc"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, "Red Mug", page.Items[0].Name)
	assert.Equal(t, "Blue mug", page.Items[1].Name)

	minP, maxP := int64(150), int64(250)
	page, err = f.products.List(ctx, ProductQuery{MinPrice: &minP, MaxPrice: &maxP})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Cap", page.Items[0].Name)

	limit, offset := 1, 2
	page, err = f.products.List(ctx, ProductQuery{Limit: &limit, Offset: &offset})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, "Cap", page.Items[0].Name)

	zero, negOffset := 0, -3
	page, err = f.products.List(ctx, ProductQuery{Limit: &zero, Offset: &negOffset})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Limit)
	assert.Equal(t, 0, page.Offset)

	page, err = f.products.List(ctx, ProductQuery{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)

	_, err = f.products.List(ctx, ProductQuery{SortBy: "color"})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRequest))
	_, err = f.products.List(ctx, ProductQuery{MinPrice: &maxP, MaxPrice: &minP})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRequest))
}

// orderBeforeWrite оформляет заказ между проверкой товара и записью изменений
type orderBeforeWrite struct {
	repository.ProductRepository
	place func(ctx context.Context)
}

func (r *orderBeforeWrite) Update(ctx context.Context, id int64, ch repository.ProductChanges) (*domain.Product, error) {
	r.place(ctx)
	return r.ProductRepository.Update(ctx, id, ch)
}

func TestProductService_UpdateKeepsConcurrentOrderStock(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	buyer := f.user(t, "buyer@example.com", domain.RoleUser, 0)
	p := f.product(t, 1000, 10)

	placed := false
	repo := &orderBeforeWrite{ProductRepository: f.st.Products, place: func(ctx context.Context) {
		_, err := f.orders.PlaceOrder(ctx, buyer, p.ID, 3)
		require.NoError(t, err)
		placed = true
	}}
	products := NewProductService(repo, f.st.Tx)

	name := "Renamed"
	upd, err := products.Update(ctx, f.supplier, p.ID, ProductPatch{Name: &name})
	require.NoError(t, err)
	require.True(t, placed)
	assert.Equal(t, "Renamed", upd.Name)
	assert.Equal(t, int64(7), upd.Stock)

	got, err := f.products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Stock)

	// явно заданный остаток записывается как есть
	stock := int64(20)
	upd, err = f.products.Update(ctx, f.supplier, p.ID, ProductPatch{Stock: &stock})
	require.NoError(t, err)
	assert.Equal(t, int64(20), upd.Stock)
	assert.Equal(t, "Renamed", upd.Name)
}
