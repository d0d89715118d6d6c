package service

import (
	"context"
	"errors"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/apperr"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

// OrderService оформление заказов с начислением бонусных баллов и выборки по заказам
type OrderService struct {
	products repository.ProductRepository
	users    repository.UserRepository
	orders   repository.OrderRepository
	tx       repository.TxManager
}

func NewOrderService(products repository.ProductRepository, users repository.UserRepository, orders repository.OrderRepository, tx repository.TxManager) *OrderService {
	return &OrderService{products: products, users: users, orders: orders, tx: tx}
}

// DeletedUserName имя-заглушка в сводке для удаленных аккаунтов
const DeletedUserName = "(deleted user)"

const dateLayout = "2006-01-02"

// PlaceOrder проверяет наличие товара, фиксирует цену, атомарно списывает запас
// и начисляет покупателю floor(total/1000) баллов. Любая ошибка откатывает всё.
func (s *OrderService) PlaceOrder(ctx context.Context, actor domain.Actor, productID, quantity int64) (*domain.Order, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("login required")
	}
	if productID <= 0 || quantity <= 0 {
		return nil, apperr.InvalidRequest("productId and positive quantity are required")
	}

	var created *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.users.GetByID(ctx, actor.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.NotFound("user not found")
			}
			return err
		}

		p, err := s.products.GetByID(ctx, productID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && p.Deleted()) {
			return apperr.NotFound("product not found")
		}
		if err != nil {
			return err
		}
		if quantity > p.Stock {
			return apperr.InsufficientStock("insufficient stock")
		}
		if p.Price > 0 && quantity > math.MaxInt64/p.Price {
			return apperr.InvalidRequest("order total is too large")
		}

		o := domain.Order{
			UserID:     actor.ID,
			ProductID:  p.ID,
			Quantity:   quantity,
			UnitPrice:  p.Price,
			TotalPrice: p.Price * quantity,
		}
		if err := s.orders.Create(ctx, &o); err != nil {
			return err
		}

		// conditional decrement: a concurrent order may have taken the stock
		ok, err := s.products.DecrementStock(ctx, p.ID, quantity)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InsufficientStock("insufficient stock")
		}

		if bonus := domain.BonusPoints(o.TotalPrice); bonus > 0 {
			ok, err := s.users.AddPoints(ctx, actor.ID, bonus)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.NotFound("user not found")
			}
		}
		created = &o
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err, "place order")
	}
	return created, nil
}

// OrderQuery фильтры, сортировка и страница для списков заказов
type OrderQuery struct {
	UserID    *int64
	ProductID *int64
	MinTotal  *int64
	MaxTotal  *int64
	From      string // YYYY-MM-DD, начало дня UTC
	To        string // YYYY-MM-DD, конец дня UTC
	SortBy    string
	Order     string
	Limit     *int
	Offset    *int
}

// OrderPage страница заказов и общее число подходящих
type OrderPage struct {
	Items  []domain.OrderView
	Total  int64
	Limit  int
	Offset int
}

var orderSortKeys = map[string]bool{"createdAt": true, "totalPrice": true, "quantity": true}

func (q OrderQuery) filter() (repository.OrderFilter, error) {
	f := repository.OrderFilter{
		UserID:    q.UserID,
		ProductID: q.ProductID,
		MinTotal:  q.MinTotal,
		MaxTotal:  q.MaxTotal,
		SortBy:    q.SortBy,
	}
	if f.SortBy == "" {
		f.SortBy = "createdAt"
	}
	if !orderSortKeys[f.SortBy] {
		return f, apperr.InvalidRequest("invalid sortBy", "sortBy must be one of createdAt, totalPrice, quantity")
	}
	order, err := parseOrder(q.Order, repository.SortDesc)
	if err != nil {
		return f, err
	}
	f.Order = order

	if q.From != "" {
		d, err := time.Parse(dateLayout, q.From)
		if err != nil {
			return f, apperr.InvalidRequest("invalid from date", "from must be YYYY-MM-DD")
		}
		from := d.UTC()
		f.From = &from
	}
	if q.To != "" {
		d, err := time.Parse(dateLayout, q.To)
		if err != nil {
			return f, apperr.InvalidRequest("invalid to date", "to must be YYYY-MM-DD")
		}
		to := d.UTC().Add(24*time.Hour - time.Millisecond)
		f.To = &to
	}
	f.Limit, f.Offset = clampPage(q.Limit, q.Offset)
	return f, nil
}

// ListMine заказы самого покупателя. UserID из запроса игнорируется.
func (s *OrderService) ListMine(ctx context.Context, actor domain.Actor, q OrderQuery) (*OrderPage, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("login required")
	}
	f, err := q.filter()
	if err != nil {
		return nil, err
	}
	uid := actor.ID
	f.UserID = &uid
	return s.list(ctx, f)
}

// ListAll все заказы, только для SUPPLIER
func (s *OrderService) ListAll(ctx context.Context, actor domain.Actor, q OrderQuery) (*OrderPage, error) {
	if err := requireSupplier(actor); err != nil {
		return nil, err
	}
	f, err := q.filter()
	if err != nil {
		return nil, err
	}
	f.IncludeUser = true
	return s.list(ctx, f)
}

func (s *OrderService) list(ctx context.Context, f repository.OrderFilter) (*OrderPage, error) {
	var (
		items []domain.OrderView
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.orders.List(gctx, f)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.orders.Count(gctx, f)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(err, "list orders")
	}
	return &OrderPage{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Summary агрегаты по покупателям. Покупатель без профиля не теряется,
// а получает заглушку с нулевыми баллами.
func (s *OrderService) Summary(ctx context.Context, actor domain.Actor) ([]domain.UserSummary, error) {
	if err := requireSupplier(actor); err != nil {
		return nil, err
	}
	groups, err := s.orders.SummarizeByUser(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "summarize orders")
	}
	out := make([]domain.UserSummary, 0, len(groups))
	if len(groups) == 0 {
		return out, nil
	}

	ids := make([]int64, len(groups))
	for i, g := range groups {
		ids[i] = g.UserID
	}
	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(err, "load users")
	}
	byID := make(map[int64]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, g := range groups {
		brief := domain.UserBrief{ID: g.UserID, Name: DeletedUserName}
		if u, ok := byID[g.UserID]; ok {
			brief = domain.UserBrief{ID: u.ID, Name: u.Name, Email: u.Email, Points: u.Points}
		}
		out = append(out, domain.UserSummary{
			User:          brief,
			OrdersCount:   g.OrdersCount,
			TotalQuantity: g.TotalQuantity,
			TotalSpent:    g.TotalSpent,
		})
	}
	return out, nil
}
