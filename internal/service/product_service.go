package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

// ProductService инкапсулирует бизнес-логику вокруг товаров
type ProductService struct {
	repo repository.ProductRepository
	tx   repository.TxManager
}

func NewProductService(repo repository.ProductRepository, tx repository.TxManager) *ProductService {
	return &ProductService{repo: repo, tx: tx}
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

// ProductInput поля нового товара
type ProductInput struct {
	Name        string
	Description string
	Price       int64
	Stock       int64
	ImageURL    string
}

// ProductPatch частичное обновление; nil поля не меняются
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *int64
	Stock       *int64
	ImageURL    *string
}

func (p ProductPatch) empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Stock == nil && p.ImageURL == nil
}

// ProductQuery параметры списка товаров
type ProductQuery struct {
	Q              string
	MinPrice       *int64
	MaxPrice       *int64
	SortBy         string
	Order          string
	Limit          *int
	Offset         *int
	IncludeDeleted bool
}

// ProductPage страница каталога
type ProductPage struct {
	Items  []domain.Product
	Total  int64
	Limit  int
	Offset int
}

var productSortKeys = map[string]bool{"id": true, "name": true, "price": true, "stock": true, "createdAt": true}

func requireSupplier(actor domain.Actor) error {
	if !actor.Authenticated() {
		return apperr.Unauthenticated("login required")
	}
	if actor.Role != domain.RoleSupplier {
		return apperr.Forbidden("forbidden")
	}
	return nil
}

func (s *ProductService) Create(ctx context.Context, actor domain.Actor, in ProductInput) (*domain.Product, error) {
	if err := requireSupplier(actor); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Price < 0 || in.Stock < 0 {
		return nil, apperr.InvalidRequest("name is required, price and stock must be non-negative")
	}
	p := domain.Product{
		SupplierID:  actor.ID,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		ImageURL:    in.ImageURL,
	}
	if err := s.repo.Create(ctx, &p); err != nil {
		return nil, apperr.Wrap(err, "create product")
	}
	return &p, nil
}

// GetByID возвращает только не удаленный товар
func (s *ProductService) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	if id <= 0 {
		return nil, apperr.InvalidRequest("invalid id")
	}
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && p.Deleted()) {
		return nil, apperr.NotFound("product not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, "get product")
	}
	return p, nil
}

// owned товар поставщика в нужном состоянии удаления
func (s *ProductService) owned(ctx context.Context, actor domain.Actor, id int64, deleted bool, notFoundMsg string) (*domain.Product, error) {
	if err := requireSupplier(actor); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, apperr.InvalidRequest("invalid id")
	}
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(notFoundMsg)
	}
	if err != nil {
		return nil, apperr.Wrap(err, "get product")
	}
	if p.SupplierID != actor.ID || p.Deleted() != deleted {
		return nil, apperr.NotFound(notFoundMsg)
	}
	return p, nil
}

// Update меняет только переданные поля; остаток пишется как явное значение,
// прочитанный ранее stock обратно не записывается
func (s *ProductService) Update(ctx context.Context, actor domain.Actor, id int64, patch ProductPatch) (*domain.Product, error) {
	if patch.empty() {
		return nil, apperr.InvalidRequest("at least one field is required")
	}
	ch := repository.ProductChanges{
		Description: patch.Description,
		Price:       patch.Price,
		Stock:       patch.Stock,
		ImageURL:    patch.ImageURL,
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.InvalidRequest("name must not be empty")
		}
		ch.Name = &name
	}
	if patch.Price != nil && *patch.Price < 0 {
		return nil, apperr.InvalidRequest("price must be non-negative")
	}
	if patch.Stock != nil && *patch.Stock < 0 {
		return nil, apperr.InvalidRequest("stock must be non-negative")
	}

	var updated *domain.Product
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.owned(ctx, actor, id, false, "product not found"); err != nil {
			return err
		}
		p, err := s.repo.Update(ctx, id, ch)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("product not found")
		}
		if err != nil {
			return apperr.Wrap(err, "update product")
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete мягкое удаление: товар остается для истории заказов
func (s *ProductService) Delete(ctx context.Context, actor domain.Actor, id int64) (*domain.Product, error) {
	p, err := s.owned(ctx, actor, id, false, "product not found")
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.repo.SetDeletedAt(ctx, p.ID, &now); err != nil {
		return nil, apperr.Wrap(err, "delete product")
	}
	p.DeletedAt = &now
	return p, nil
}

func (s *ProductService) Restore(ctx context.Context, actor domain.Actor, id int64) (*domain.Product, error) {
	p, err := s.owned(ctx, actor, id, true, "product not found or not soft-deleted")
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetDeletedAt(ctx, p.ID, nil); err != nil {
		return nil, apperr.Wrap(err, "restore product")
	}
	p.DeletedAt = nil
	return p, nil
}

func (s *ProductService) List(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	if q.MinPrice != nil && *q.MinPrice < 0 || q.MaxPrice != nil && *q.MaxPrice < 0 {
		return nil, apperr.InvalidRequest("price bounds must be non-negative")
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MaxPrice < *q.MinPrice {
		return nil, apperr.InvalidRequest("maxPrice must be >= minPrice")
	}
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "id"
	}
	if !productSortKeys[sortBy] {
		return nil, apperr.InvalidRequest("invalid sortBy", "sortBy must be one of id, name, price, stock, createdAt")
	}
	order, err := parseOrder(q.Order, repository.SortAsc)
	if err != nil {
		return nil, err
	}
	limit, offset := clampPage(q.Limit, q.Offset)

	items, total, err := s.repo.List(ctx, repository.ProductFilter{
		NameSubstring:  strings.TrimSpace(q.Q),
		MinPrice:       q.MinPrice,
		MaxPrice:       q.MaxPrice,
		IncludeDeleted: q.IncludeDeleted,
		SortBy:         sortBy,
		Order:          order,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return nil, apperr.Wrap(err, "list products")
	}
	return &ProductPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// clampPage limit в [1,100] (по умолчанию 10), offset >= 0
func clampPage(limit, offset *int) (int, int) {
	l, o := defaultLimit, 0
	if limit != nil {
		l = *limit
	}
	if l < 1 {
		l = 1
	}
	if l > maxLimit {
		l = maxLimit
	}
	if offset != nil && *offset > 0 {
		o = *offset
	}
	return l, o
}

func parseOrder(s string, def repository.SortOrder) (repository.SortOrder, error) {
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case "asc":
		return repository.SortAsc, nil
	case "desc":
		return repository.SortDesc, nil
	}
	return "", apperr.InvalidRequest("invalid order", "order must be asc or desc")
}
