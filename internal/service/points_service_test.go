package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperr"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

func TestTransfer_MovesPointsAndRecords(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.user(t, "a@example.com", domain.RoleUser, 50)
	b := f.user(t, "b@example.com", domain.RoleUser, 5)

	tr, err := f.points.Transfer(ctx, a, b.ID, 20)
	require.NoError(t, err)
	assert.NotZero(t, tr.ID)
	assert.Equal(t, a.ID, tr.FromUserID)
	assert.Equal(t, b.ID, tr.ToUserID)
	assert.Equal(t, int64(20), tr.Amount)

	assert.Equal(t, int64(30), f.pointsOf(t, a.ID))
	assert.Equal(t, int64(25), f.pointsOf(t, b.ID))

	// весь баланс можно перевести
	_, err = f.points.Transfer(ctx, a, b.ID, 30)
	require.NoError(t, err)
	assert.Zero(t, f.pointsOf(t, a.ID))
}

func TestTransfer_InsufficientBalanceChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.user(t, "a@example.com", domain.RoleUser, 3)
	b := f.user(t, "b@example.com", domain.RoleUser, 0)

	_, err := f.points.Transfer(ctx, a, b.ID, 5)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientBalance))

	assert.Equal(t, int64(3), f.pointsOf(t, a.ID))
	assert.Zero(t, f.pointsOf(t, b.ID))
	h, err := f.points.History(ctx, a, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, h.Total)
}

func TestTransfer_Validation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.user(t, "a@example.com", domain.RoleUser, 10)
	b := f.user(t, "b@example.com", domain.RoleUser, 0)

	_, err := f.points.Transfer(ctx, domain.Actor{}, b.ID, 1)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))

	_, err = f.points.Transfer(ctx, a, b.ID, 0)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRequest))
	assert.EqualError(t, err, "number of points must be more than 0")

	_, err = f.points.Transfer(ctx, a, b.ID, -4)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRequest))

	_, err = f.points.Transfer(ctx, a, a.ID, 1)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidRequest))

	_, err = f.points.Transfer(ctx, a, 777, 1)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	assert.Equal(t, int64(10), f.pointsOf(t, a.ID))
}

func TestTransfer_ConcurrentDrain(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	sender := f.user(t, "s@example.com", domain.RoleUser, 10)
	r1 := f.user(t, "r1@example.com", domain.RoleUser, 0)
	r2 := f.user(t, "r2@example.com", domain.RoleUser, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, r := range []domain.Actor{r1, r2} {
		wg.Add(1)
		go func(i int, to int64) {
			defer wg.Done()
			_, errs[i] = f.points.Transfer(ctx, sender, to, 10)
		}(i, r.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, apperr.IsKind(err, apperr.KindInsufficientBalance))
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Zero(t, f.pointsOf(t, sender.ID))
	assert.Equal(t, int64(10), f.pointsOf(t, r1.ID)+f.pointsOf(t, r2.ID))
}

func TestTransfer_History(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.user(t, "a@example.com", domain.RoleUser, 100)
	b := f.user(t, "b@example.com", domain.RoleUser, 100)
	c := f.user(t, "c@example.com", domain.RoleUser, 0)

	_, err := f.points.Transfer(ctx, a, b.ID, 1)
	require.NoError(t, err)
	_, err = f.points.Transfer(ctx, b, a.ID, 2)
	require.NoError(t, err)
	_, err = f.points.Transfer(ctx, b, c.ID, 3)
	require.NoError(t, err)

	h, err := f.points.History(ctx, a, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.Total)
	require.Len(t, h.Items, 2)
	assert.Equal(t, int64(2), h.Items[0].Amount, "newest first")

	limit := 1
	h, err = f.points.History(ctx, b, &limit, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), h.Total)
	assert.Len(t, h.Items, 1)

	_, err = f.points.History(ctx, domain.Actor{}, nil, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
}

// lockOrder запоминает, в каком порядке меняются строки пользователей
type lockOrder struct {
	repository.UserRepository
	mu  sync.Mutex
	ids []int64
}

func (r *lockOrder) touch(id int64) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *lockOrder) AddPoints(ctx context.Context, id, delta int64) (bool, error) {
	r.touch(id)
	return r.UserRepository.AddPoints(ctx, id, delta)
}

func (r *lockOrder) DeductPoints(ctx context.Context, id, amount int64) (bool, error) {
	r.touch(id)
	return r.UserRepository.DeductPoints(ctx, id, amount)
}

func TestTransfer_WritesRowsInIDOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.user(t, "a@example.com", domain.RoleUser, 10)
	b := f.user(t, "b@example.com", domain.RoleUser, 10)
	users := &lockOrder{UserRepository: f.st.Users}
	points := NewPointsService(users, f.st.Transfers, f.st.Tx)

	_, err := points.Transfer(ctx, a, b.ID, 4)
	require.NoError(t, err)
	_, err = points.Transfer(ctx, b, a.ID, 6)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID, a.ID, b.ID}, users.ids)

	assert.Equal(t, int64(12), f.pointsOf(t, a.ID))
	assert.Equal(t, int64(8), f.pointsOf(t, b.ID))
}

func TestTransfer_OppositeDirectionsConcurrently(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.user(t, "a@example.com", domain.RoleUser, 100)
	b := f.user(t, "b@example.com", domain.RoleUser, 100)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.points.Transfer(ctx, a, b.ID, 1)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.points.Transfer(ctx, b, a.ID, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(100), f.pointsOf(t, a.ID))
	assert.Equal(t, int64(100), f.pointsOf(t, b.ID))
}

func TestTransfer_DeletedSender(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	a := f.user(t, "a@example.com", domain.RoleUser, 10)
	b := f.user(t, "b@example.com", domain.RoleUser, 0)
	require.NoError(t, f.st.Users.Delete(ctx, a.ID))

	_, err := f.points.Transfer(ctx, a, b.ID, 5)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.False(t, apperr.IsKind(err, apperr.KindInsufficientBalance))
	assert.Zero(t, f.pointsOf(t, b.ID))
}
