package domain

import "time"

// Role роль пользователя
type Role string

const (
	RoleSupplier Role = "SUPPLIER"
	RoleUser     Role = "USER"
)

// Valid сообщает, известна ли роль
func (r Role) Valid() bool {
	return r == RoleSupplier || r == RoleUser
}

// Actor аутентифицированный участник запроса
type Actor struct {
	ID   int64
	Role Role
}

// Authenticated true, если личность установлена
func (a Actor) Authenticated() bool { return a.ID > 0 && a.Role.Valid() }

// User учетная запись с балансом баллов
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Points       int64     `json:"points"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Product товар каталога. Цена в минимальных единицах валюты.
type Product struct {
	ID          int64      `json:"id"`
	SupplierID  int64      `json:"supplierId"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Price       int64      `json:"price"`
	Stock       int64      `json:"stock"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt"`
}

// Deleted true для мягко удаленного товара
func (p Product) Deleted() bool { return p.DeletedAt != nil }

// Order неизменяемая запись о покупке
type Order struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	ProductID  int64     `json:"productId"`
	Quantity   int64     `json:"quantity"`
	UnitPrice  int64     `json:"unitPrice"`
	TotalPrice int64     `json:"totalPrice"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ProductBrief минимальная проекция товара для списков заказов
type ProductBrief struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// UserBrief минимальная проекция пользователя
type UserBrief struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Points int64  `json:"points"`
}

// OrderView заказ вместе с проекциями товара и покупателя
type OrderView struct {
	Order
	Product ProductBrief `json:"product"`
	User    *UserBrief   `json:"user,omitempty"`
}

// OrderAggregate сумма заказов одного покупателя
type OrderAggregate struct {
	UserID        int64 `json:"-"`
	OrdersCount   int64 `json:"ordersCount"`
	TotalQuantity int64 `json:"totalQuantity"`
	TotalSpent    int64 `json:"totalSpent"`
}

// UserSummary строка сводки по покупателю
type UserSummary struct {
	User          UserBrief `json:"user"`
	OrdersCount   int64     `json:"ordersCount"`
	TotalQuantity int64     `json:"totalQuantity"`
	TotalSpent    int64     `json:"totalSpent"`
}

// Transfer запись журнала перевода баллов
type Transfer struct {
	ID         int64     `json:"id"`
	FromUserID int64     `json:"senderId"`
	ToUserID   int64     `json:"receiverId"`
	Amount     int64     `json:"amount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PointsPerUnit сколько потраченных единиц дают один бонусный балл
const PointsPerUnit = 1000

// BonusPoints начисление за заказ на сумму total
func BonusPoints(total int64) int64 {
	if total <= 0 {
		return 0
	}
	return total / PointsPerUnit
}
