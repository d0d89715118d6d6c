package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
)

// SQLProducts ProductRepository поверх SQLStore
type SQLProducts struct{ s *SQLStore }

var _ ProductRepository = (*SQLProducts)(nil)

const productColumns = `id, supplier_id, name, description, price, stock, image_url, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p         domain.Product
		deletedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.SupplierID, &p.Name, &p.Description, &p.Price, &p.Stock,
		&p.ImageURL, &p.CreatedAt, &p.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		p.DeletedAt = &t
	}
	return &p, nil
}

func (r *SQLProducts) Create(ctx context.Context, p *domain.Product) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	const q = `
		INSERT INTO products (supplier_id, name, description, price, stock, image_url, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	err := r.s.queryRow(ctx, q, p.SupplierID, p.Name, p.Description, p.Price, p.Stock,
		p.ImageURL, p.CreatedAt, p.UpdatedAt, nullTime(p.DeletedAt)).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (r *SQLProducts) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	row := r.s.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *SQLProducts) Update(ctx context.Context, id int64, ch ProductChanges) (*domain.Product, error) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if ch.Name != nil {
		set("name", *ch.Name)
	}
	if ch.Description != nil {
		set("description", *ch.Description)
	}
	if ch.Price != nil {
		set("price", *ch.Price)
	}
	if ch.Stock != nil {
		set("stock", *ch.Stock)
	}
	if ch.ImageURL != nil {
		set("image_url", *ch.ImageURL)
	}
	set("updated_at", time.Now().UTC())
	args = append(args, id)

	q := `UPDATE products SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND deleted_at IS NULL`
	res, err := r.s.exec(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *SQLProducts) SetDeletedAt(ctx context.Context, id int64, at *time.Time) error {
	res, err := r.s.exec(ctx, `UPDATE products SET deleted_at = ?, updated_at = ? WHERE id = ?`,
		nullTime(at), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

var productSortColumns = map[string]string{
	"id":        "id",
	"name":      "name",
	"price":     "price",
	"stock":     "stock",
	"createdAt": "created_at",
}

func (r *SQLProducts) List(ctx context.Context, f ProductFilter) ([]domain.Product, int64, error) {
	var (
		conds []string
		args  []any
	)
	if !f.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if f.NameSubstring != "" {
		conds = append(conds, `LOWER(name) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(f.NameSubstring))+"%")
	}
	if f.MinPrice != nil {
		conds = append(conds, "price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		conds = append(conds, "price <= ?")
		args = append(args, *f.MaxPrice)
	}
	where := whereClause(conds)

	var total int64
	if err := r.s.queryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	col, ok := productSortColumns[f.SortBy]
	if !ok {
		col = "id"
	}
	dir := sqlDirection(f.Order, SortAsc)
	q := `SELECT ` + productColumns + ` FROM products` + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir) + limitClause(f.Limit, f.Offset)
	rows, err := r.s.query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

func (r *SQLProducts) DecrementStock(ctx context.Context, id, qty int64) (bool, error) {
	const q = `
		UPDATE products SET stock = stock - ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND stock >= ?`
	res, err := r.s.exec(ctx, q, qty, time.Now().UTC(), id, qty)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// SQLUsers UserRepository поверх SQLStore
type SQLUsers struct{ s *SQLStore }

var _ UserRepository = (*SQLUsers)(nil)

const userColumns = `id, name, email, password_hash, role, points, avatar_url, created_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Points, &u.AvatarURL, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (r *SQLUsers) Create(ctx context.Context, u *domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO users (name, email, password_hash, role, points, avatar_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	err := r.s.queryRow(ctx, q, u.Name, u.Email, u.PasswordHash, string(u.Role), u.Points, u.AvatarURL, u.CreatedAt).Scan(&u.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *SQLUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(r.s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (r *SQLUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(r.s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func (r *SQLUsers) Delete(ctx context.Context, id int64) error {
	res, err := r.s.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *SQLUsers) ListByIDs(ctx context.Context, ids []int64) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY id`
	rows, err := r.s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.User, 0, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *SQLUsers) AddPoints(ctx context.Context, id, delta int64) (bool, error) {
	res, err := r.s.exec(ctx, `UPDATE users SET points = points + ? WHERE id = ?`, delta, id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r *SQLUsers) DeductPoints(ctx context.Context, id, amount int64) (bool, error) {
	res, err := r.s.exec(ctx, `UPDATE users SET points = points - ? WHERE id = ? AND points >= ?`, amount, id, amount)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// SQLOrders OrderRepository поверх SQLStore
type SQLOrders struct{ s *SQLStore }

var _ OrderRepository = (*SQLOrders)(nil)

func (r *SQLOrders) Create(ctx context.Context, o *domain.Order) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO orders (user_id, product_id, quantity, unit_price, total_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`
	err := r.s.queryRow(ctx, q, o.UserID, o.ProductID, o.Quantity, o.UnitPrice, o.TotalPrice, o.CreatedAt.UTC()).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

var orderSortColumns = map[string]string{
	"createdAt":  "o.created_at",
	"totalPrice": "o.total_price",
	"quantity":   "o.quantity",
}

func orderWhere(f OrderFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != nil {
		conds = append(conds, "o.user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.ProductID != nil {
		conds = append(conds, "o.product_id = ?")
		args = append(args, *f.ProductID)
	}
	if f.MinTotal != nil {
		conds = append(conds, "o.total_price >= ?")
		args = append(args, *f.MinTotal)
	}
	if f.MaxTotal != nil {
		conds = append(conds, "o.total_price <= ?")
		args = append(args, *f.MaxTotal)
	}
	if f.From != nil {
		conds = append(conds, "o.created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		conds = append(conds, "o.created_at <= ?")
		args = append(args, f.To.UTC())
	}
	return whereClause(conds), args
}

func (r *SQLOrders) List(ctx context.Context, f OrderFilter) ([]domain.OrderView, error) {
	where, args := orderWhere(f)
	col, ok := orderSortColumns[f.SortBy]
	if !ok {
		col = "o.created_at"
	}
	dir := sqlDirection(f.Order, SortDesc)
	q := `
		SELECT o.id, o.user_id, o.product_id, o.quantity, o.unit_price, o.total_price, o.created_at,
		       COALESCE(p.name, ''), COALESCE(p.price, 0),
		       u.id, COALESCE(u.name, ''), COALESCE(u.email, ''), COALESCE(u.points, 0)
		FROM orders o
		LEFT JOIN products p ON p.id = o.product_id
		LEFT JOIN users u ON u.id = o.user_id` + where +
		fmt.Sprintf(" ORDER BY %s %s, o.id %s", col, dir, dir) + limitClause(f.Limit, f.Offset)

	rows, err := r.s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.OrderView, 0)
	for rows.Next() {
		var (
			v      domain.OrderView
			userID sql.NullInt64
			user   domain.UserBrief
		)
		err := rows.Scan(&v.ID, &v.UserID, &v.ProductID, &v.Quantity, &v.UnitPrice, &v.TotalPrice, &v.CreatedAt,
			&v.Product.Name, &v.Product.Price,
			&userID, &user.Name, &user.Email, &user.Points)
		if err != nil {
			return nil, err
		}
		v.CreatedAt = v.CreatedAt.UTC()
		v.Product.ID = v.ProductID
		if f.IncludeUser && userID.Valid {
			user.ID = userID.Int64
			v.User = &user
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *SQLOrders) Count(ctx context.Context, f OrderFilter) (int64, error) {
	where, args := orderWhere(f)
	var total int64
	err := r.s.queryRow(ctx, `SELECT COUNT(*) FROM orders o`+where, args...).Scan(&total)
	return total, err
}

func (r *SQLOrders) SummarizeByUser(ctx context.Context) ([]domain.OrderAggregate, error) {
	const q = `
		SELECT user_id, COUNT(*), COALESCE(SUM(quantity), 0), COALESCE(SUM(total_price), 0)
		FROM orders
		GROUP BY user_id
		ORDER BY user_id`
	rows, err := r.s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.OrderAggregate, 0)
	for rows.Next() {
		var a domain.OrderAggregate
		if err := rows.Scan(&a.UserID, &a.OrdersCount, &a.TotalQuantity, &a.TotalSpent); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SQLTransfers TransferRepository поверх SQLStore
type SQLTransfers struct{ s *SQLStore }

var _ TransferRepository = (*SQLTransfers)(nil)

func (r *SQLTransfers) Create(ctx context.Context, t *domain.Transfer) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO transfers (from_user_id, to_user_id, amount, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`
	if err := r.s.queryRow(ctx, q, t.FromUserID, t.ToUserID, t.Amount, t.CreatedAt.UTC()).Scan(&t.ID); err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}
	return nil
}

func (r *SQLTransfers) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.Transfer, int64, error) {
	var total int64
	err := r.s.queryRow(ctx, `SELECT COUNT(*) FROM transfers WHERE from_user_id = ? OR to_user_id = ?`, userID, userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	q := `
		SELECT id, from_user_id, to_user_id, amount, created_at
		FROM transfers
		WHERE from_user_id = ? OR to_user_id = ?
		ORDER BY created_at DESC, id DESC` + limitClause(limit, offset)
	rows, err := r.s.query(ctx, q, userID, userID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]domain.Transfer, 0)
	for rows.Next() {
		var t domain.Transfer
		if err := rows.Scan(&t.ID, &t.FromUserID, &t.ToUserID, &t.Amount, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func sqlDirection(o SortOrder, def SortOrder) string {
	if o == "" {
		o = def
	}
	if o == SortDesc {
		return "DESC"
	}
	return "ASC"
}

// limitClause формирует LIMIT/OFFSET из уже нормализованных чисел
func limitClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
