package service

import (
	"context"

	"storefront/internal/apperr"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

// SeedResult что создал Seed
type SeedResult struct {
	Users    int
	Products int
}

// Seed заводит демо-поставщика, покупателя и три товара.
// Повторный запуск не дублирует аккаунты; товары добавляются только в пустой каталог.
func Seed(ctx context.Context, identity *AuthService, products repository.ProductRepository) (*SeedResult, error) {
	res := &SeedResult{}
	accounts := []RegisterInput{
		{Name: "Supplier", Email: "supplier@example.com", Password: "supplier123", Role: domain.RoleSupplier},
		{Name: "User", Email: "user@example.com", Password: "user12345", Role: domain.RoleUser},
	}
	var supplierID int64
	for _, in := range accounts {
		u, err := identity.Register(ctx, in)
		switch {
		case err == nil:
			res.Users++
		case apperr.IsKind(err, apperr.KindConflict):
			u, err = identity.users.GetByEmail(ctx, in.Email)
			if err != nil {
				return nil, apperr.Wrap(err, "load seeded user")
			}
		default:
			return nil, err
		}
		if u.Role == domain.RoleSupplier {
			supplierID = u.ID
		}
	}

	_, total, err := products.List(ctx, repository.ProductFilter{IncludeDeleted: true, Limit: 1})
	if err != nil {
		return nil, apperr.Wrap(err, "count products")
	}
	if total > 0 {
		return res, nil
	}
	for _, p := range []domain.Product{
		{Name: "T-Shirt", Description: "Cotton tee", Price: 120000, Stock: 20},
		{Name: "Mug", Description: "Ceramic mug", Price: 80000, Stock: 50},
		{Name: "Cap", Description: "Black cap", Price: 95000, Stock: 15},
	} {
		p.SupplierID = supplierID
		if err := products.Create(ctx, &p); err != nil {
			return nil, apperr.Wrap(err, "seed product")
		}
		res.Products++
	}
	return res, nil
}
