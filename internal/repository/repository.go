package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/domain"
)

var (
	// ErrNotFound возвращается, когда сущность не найдена
	ErrNotFound = errors.New("not found")
	// ErrDuplicate нарушение уникальности (email пользователя)
	ErrDuplicate = errors.New("duplicate")
)

// SortOrder направление сортировки
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ProductFilter параметры фильтрации списка товаров
type ProductFilter struct {
	NameSubstring  string
	MinPrice       *int64
	MaxPrice       *int64
	IncludeDeleted bool
	SortBy         string // id, name, price, stock, createdAt
	Order          SortOrder
	Limit          int
	Offset         int
}

// ProductChanges изменяемые поля товара; nil не трогается
type ProductChanges struct {
	Name        *string
	Description *string
	Price       *int64
	Stock       *int64
	ImageURL    *string
}

// OrderFilter параметры выборки заказов
type OrderFilter struct {
	UserID      *int64
	ProductID   *int64
	MinTotal    *int64
	MaxTotal    *int64
	From        *time.Time
	To          *time.Time
	SortBy      string // createdAt, totalPrice, quantity
	Order       SortOrder
	Limit       int
	Offset      int
	IncludeUser bool
}

// ProductRepository интерфейс репозитория товаров
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	// GetByID возвращает и мягко удаленные товары
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	// Update пишет только заданные поля не удаленного товара
	Update(ctx context.Context, id int64, ch ProductChanges) (*domain.Product, error)
	SetDeletedAt(ctx context.Context, id int64, at *time.Time) error
	List(ctx context.Context, f ProductFilter) ([]domain.Product, int64, error)
	// DecrementStock уменьшает остаток, только если stock >= qty и товар не удален.
	// false означает, что условие не выполнилось.
	DecrementStock(ctx context.Context, id, qty int64) (bool, error)
}

// UserRepository интерфейс репозитория пользователей
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Delete(ctx context.Context, id int64) error
	ListByIDs(ctx context.Context, ids []int64) ([]domain.User, error)
	// AddPoints прибавляет delta; false, если пользователя нет
	AddPoints(ctx context.Context, id, delta int64) (bool, error)
	// DeductPoints списывает amount, только если points >= amount
	DeductPoints(ctx context.Context, id, amount int64) (bool, error)
}

// OrderRepository интерфейс репозитория заказов (только добавление и чтение)
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	List(ctx context.Context, f OrderFilter) ([]domain.OrderView, error)
	Count(ctx context.Context, f OrderFilter) (int64, error)
	SummarizeByUser(ctx context.Context) ([]domain.OrderAggregate, error)
}

// TransferRepository журнал переводов баллов
type TransferRepository interface {
	Create(ctx context.Context, t *domain.Transfer) error
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Transfer, int64, error)
}

// TxManager абстракция транзакции. fn получает контекст, в котором репозитории
// работают внутри одной транзакции. Ошибка из fn откатывает все изменения.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Stores набор репозиториев одного хранилища и его менеджер транзакций
type Stores struct {
	Products  ProductRepository
	Users     UserRepository
	Orders    OrderRepository
	Transfers TransferRepository
	Tx        TxManager
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
