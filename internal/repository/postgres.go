package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/hamzabour2019/project-faith/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
// Деньги хранятся в копейках (BIGINT).
type PostgresRepository struct {
	pool *pgxpool.Pool
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при конфликтах сериализации, взаимных блокировках и обрывах соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 500 * time.Millisecond}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delays[i]):
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func toCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

func toCentsPtr(d *decimal.Decimal) *int64 {
	if d == nil {
		return nil
	}
	c := toCents(*d)
	return &c
}

func fromCentsPtr(c *int64) *decimal.Decimal {
	if c == nil {
		return nil
	}
	d := fromCents(*c)
	return &d
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) error {
	address, err := json.Marshal(u.Address)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO users (id, first_name, last_name, email, password_hash, phone, address, role, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		u.ID, u.FirstName, u.LastName, strings.ToLower(u.Email), u.PasswordHash, u.Phone, address,
		string(u.Role), string(u.Status), u.CreatedAt,
	)
	if err != nil {
		if pgCode(err) == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const userColumns = `id, first_name, last_name, email, password_hash, phone, address, role, status,
	total_orders, total_spent, last_login, created_at, updated_at`

func scanUser(row pgx.Row, extra ...any) (*model.User, error) {
	var (
		u         model.User
		address   []byte
		role      string
		status    string
		spent     int64
		lastLogin *time.Time
	)
	dest := []any{&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.Phone, &address, &role, &status,
		&u.Stats.TotalOrders, &spent, &lastLogin, &u.CreatedAt, &u.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &u.Address); err != nil {
			return nil, fmt.Errorf("unmarshal address: %w", err)
		}
	}

	u.Role = model.Role(role)
	u.Status = model.UserStatus(status)
	u.Stats.TotalSpent = fromCents(spent)
	if lastLogin != nil {
		u.LastLogin = *lastLogin
	}
	return &u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)))
}

// UpdateLastLogin обновляет время последнего входа.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// IncrementUserStats увеличивает счётчики заказов и потраченной суммы.
func (r *PostgresRepository) IncrementUserStats(ctx context.Context, id uuid.UUID, orders int, spent decimal.Decimal) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET total_orders = total_orders + $2, total_spent = total_spent + $3, updated_at = NOW()
		 WHERE id = $1`,
		id, orders, toCents(spent),
	)
	if err != nil {
		return fmt.Errorf("update user stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUsers возвращает пользователей по фильтру.
func (r *PostgresRepository) ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	conds := []string{"TRUE"}
	var args []any

	if f.Role != "" {
		args = append(args, string(f.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)", n, n, n))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	order := "DESC"
	if f.SortAsc {
		order = "ASC"
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` ORDER BY created_at ` + order + `, email`
	if f.Page.Limit > 0 {
		args = append(args, f.Page.Limit, f.Page.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	return users, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// GetUserStats считает пользователей по ролям и статусам.
func (r *PostgresRepository) GetUserStats(ctx context.Context) (*model.UserStatistics, error) {
	var stats model.UserStatistics
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE role = $2),
			COUNT(*) FILTER (WHERE role = $3)
		 FROM users`,
		string(model.UserStatusActive), string(model.RoleAdmin), string(model.RoleCustomer),
	).Scan(&stats.TotalUsers, &stats.ActiveUsers, &stats.AdminUsers, &stats.CustomerUsers)
	if err != nil {
		return nil, fmt.Errorf("select user totals: %w", err)
	}

	if stats.RoleBreakdown, err = r.countBy(ctx, "role"); err != nil {
		return nil, err
	}
	if stats.StatusBreakdown, err = r.countBy(ctx, "status"); err != nil {
		return nil, err
	}
	return &stats, nil
}

// countBy группирует пользователей по колонке column, известной на этапе компиляции.
func (r *PostgresRepository) countBy(ctx context.Context, column string) ([]model.CountStat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+column+`, COUNT(*) FROM users GROUP BY `+column+` ORDER BY `+column)
	if err != nil {
		return nil, fmt.Errorf("select users by %s: %w", column, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.CountStat, error) {
		var c model.CountStat
		err := row.Scan(&c.Value, &c.Count)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan users by %s: %w", column, err)
	}
	return out, nil
}

// UpdateUser сохраняет профиль, роль и статус пользователя.
func (r *PostgresRepository) UpdateUser(ctx context.Context, u *model.User) error {
	address, err := json.Marshal(u.Address)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET first_name = $2, last_name = $3, phone = $4, address = $5, role = $6, status = $7, updated_at = $8
		 WHERE id = $1`,
		u.ID, u.FirstName, u.LastName, u.Phone, address, string(u.Role), string(u.Status), u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword заменяет хеш пароля пользователя.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash []byte) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateProduct сохраняет товар вместе с изображениями и вариантами.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.Product) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO products (id, name, description, price, original_price, category, brand, sku,
			base_stock, status, featured, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		p.ID, p.Name, p.Description, toCents(p.Price), toCentsPtr(p.OriginalPrice), p.Category, p.Brand,
		strings.ToUpper(p.SKU), p.BaseStock, string(p.Status), p.Featured, p.CreatedAt,
	)
	if err != nil {
		if pgCode(err) == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrSKUExists, p.SKU)
		}
		return fmt.Errorf("insert product: %w", err)
	}

	for i, img := range p.Images {
		_, err = tx.Exec(ctx,
			`INSERT INTO product_images (product_id, position, url, alt, is_primary) VALUES ($1, $2, $3, $4, $5)`,
			p.ID, i, img.URL, img.Alt, img.IsPrimary,
		)
		if err != nil {
			return fmt.Errorf("insert product image: %w", err)
		}
	}

	for i, v := range p.Variants {
		_, err = tx.Exec(ctx,
			`INSERT INTO product_variants (id, product_id, position, size, color, stock, price)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			v.ID, p.ID, i, v.Size, v.Color, v.Stock, toCentsPtr(v.Price),
		)
		if err != nil {
			return fmt.Errorf("insert product variant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const productColumns = `id, name, description, price, original_price, category, brand, sku, base_stock,
	status, featured, rating_average, rating_count, sales_count, view_count, created_at, updated_at`

func scanProduct(row pgx.Row, extra ...any) (*model.Product, error) {
	var (
		p        model.Product
		price    int64
		original *int64
		status   string
	)
	dest := []any{&p.ID, &p.Name, &p.Description, &price, &original, &p.Category, &p.Brand, &p.SKU, &p.BaseStock,
		&status, &p.Featured, &p.Ratings.Average, &p.Ratings.Count, &p.SalesCount, &p.ViewCount,
		&p.CreatedAt, &p.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.Price = fromCents(price)
	p.OriginalPrice = fromCentsPtr(original)
	p.Status = model.ProductStatus(status)
	return &p, nil
}

func (r *PostgresRepository) loadProductChildren(ctx context.Context, q querier, p *model.Product) error {
	rows, err := q.Query(ctx,
		`SELECT url, alt, is_primary FROM product_images WHERE product_id = $1 ORDER BY position`, p.ID)
	if err != nil {
		return fmt.Errorf("select product images: %w", err)
	}
	p.Images, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Image, error) {
		var img model.Image
		err := row.Scan(&img.URL, &img.Alt, &img.IsPrimary)
		return img, err
	})
	if err != nil {
		return fmt.Errorf("scan product image: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT id, size, color, stock, price FROM product_variants WHERE product_id = $1 ORDER BY position`, p.ID)
	if err != nil {
		return fmt.Errorf("select product variants: %w", err)
	}
	p.Variants, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Variant, error) {
		var (
			v     model.Variant
			price *int64
		)
		err := row.Scan(&v.ID, &v.Size, &v.Color, &v.Stock, &price)
		v.Price = fromCentsPtr(price)
		return v, err
	})
	if err != nil {
		return fmt.Errorf("scan product variant: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT user_id, rating, comment, verified, created_at FROM reviews WHERE product_id = $1 ORDER BY id`, p.ID)
	if err != nil {
		return fmt.Errorf("select reviews: %w", err)
	}
	p.Reviews, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Review, error) {
		var rv model.Review
		err := row.Scan(&rv.UserID, &rv.Rating, &rv.Comment, &rv.Verified, &rv.CreatedAt)
		return rv, err
	})
	if err != nil {
		return fmt.Errorf("scan review: %w", err)
	}

	return nil
}

func (r *PostgresRepository) getProduct(ctx context.Context, where string, arg any) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	if err := r.loadProductChildren(ctx, r.pool, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProductByID возвращает товар с изображениями, вариантами и отзывами.
func (r *PostgresRepository) GetProductByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	return r.getProduct(ctx, `id = $1`, id)
}

// GetProductBySKU возвращает товар по артикулу.
func (r *PostgresRepository) GetProductBySKU(ctx context.Context, sku string) (*model.Product, error) {
	return r.getProduct(ctx, `sku = $1`, strings.ToUpper(strings.TrimSpace(sku)))
}

// ListProducts возвращает активные товары по фильтру и общее количество подходящих.
func (r *PostgresRepository) ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	conds := []string{`status = $1`}
	args := []any{string(model.ProductStatusActive)}

	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Featured {
		conds = append(conds, "featured")
	}
	if f.MinPrice != nil {
		args = append(args, toCents(*f.MinPrice))
		conds = append(conds, fmt.Sprintf("price >= $%d", len(args)))
	}
	if f.MaxPrice != nil {
		args = append(args, toCents(*f.MaxPrice))
		conds = append(conds, fmt.Sprintf("price <= $%d", len(args)))
	}

	query := `SELECT ` + productColumns + `, COUNT(*) OVER() FROM products WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY created_at DESC`
	if f.Page.Limit > 0 {
		args = append(args, f.Page.Limit, f.Page.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var (
		products []model.Product
		total    int
	)
	for rows.Next() {
		p, err := scanProduct(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	for i := range products {
		if err := r.loadProductChildren(ctx, r.pool, &products[i]); err != nil {
			return nil, 0, err
		}
	}

	if len(products) == 0 && f.Page.Offset() > 0 {
		if err := r.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM products WHERE `+strings.Join(conds, " AND "), args[:len(args)-2]...,
		).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count products: %w", err)
		}
	}

	return products, total, nil
}

// UpdateProductDetails сохраняет описательные поля, цену, категорию и статус товара.
// Статус active сменяется на out-of-stock, если остатка нет.
func (r *PostgresRepository) UpdateProductDetails(ctx context.Context, p *model.Product) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET name = $2, description = $3, price = $4, original_price = $5, category = $6,
			brand = $7, featured = $8, updated_at = $10,
			status = CASE
				WHEN $9::text = 'active' AND base_stock + COALESCE((SELECT SUM(stock) FROM product_variants WHERE product_id = $1), 0) = 0
					THEN 'out-of-stock'
				ELSE $9
			END
		 WHERE id = $1`,
		p.ID, p.Name, p.Description, toCents(p.Price), toCentsPtr(p.OriginalPrice), p.Category,
		p.Brand, p.Featured, string(p.Status), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update product details: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// ProductCategories возвращает количество активных товаров по категориям.
func (r *PostgresRepository) ProductCategories(ctx context.Context) ([]model.CategoryCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT category, COUNT(*) FROM products WHERE status = $1 GROUP BY category ORDER BY category`,
		string(model.ProductStatusActive))
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.CategoryCount, error) {
		var c model.CategoryCount
		err := row.Scan(&c.Category, &c.Count)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan categories: %w", err)
	}
	return out, nil
}

// SaveProduct перезаписывает изменяемые поля товара и остатки вариантов.
func (r *PostgresRepository) SaveProduct(ctx context.Context, p *model.Product) error {
	p.RefreshStatus()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE products SET base_stock = $2, status = $3, featured = $4, sales_count = $5, updated_at = NOW()
		 WHERE id = $1`,
		p.ID, p.BaseStock, string(p.Status), p.Featured, p.SalesCount,
	)
	if err != nil {
		if pgCode(err) == pgerrcode.CheckViolation {
			return fmt.Errorf("%w: product %s", ErrInsufficientStock, p.ID)
		}
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	for _, v := range p.Variants {
		if _, err := tx.Exec(ctx,
			`UPDATE product_variants SET stock = $3 WHERE id = $1 AND product_id = $2`,
			v.ID, p.ID, v.Stock,
		); err != nil {
			if pgCode(err) == pgerrcode.CheckViolation {
				return fmt.Errorf("%w: variant %s", ErrInsufficientStock, v.ID)
			}
			return fmt.Errorf("update product variant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AdjustStock условно изменяет остаток на delta одной командой UPDATE и
// пересчитывает статус товара в той же транзакции.
func (r *PostgresRepository) AdjustStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, delta int) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var tag pgconn.CommandTag
		if variantID == nil {
			tag, err = tx.Exec(ctx,
				`UPDATE products SET base_stock = base_stock + $2 WHERE id = $1 AND base_stock + $2 >= 0`,
				productID, delta)
		} else {
			tag, err = tx.Exec(ctx,
				`UPDATE product_variants SET stock = stock + $3 WHERE id = $2 AND product_id = $1 AND stock + $3 >= 0`,
				productID, *variantID, delta)
		}
		if err != nil {
			return fmt.Errorf("adjust stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.explainStockMiss(ctx, tx, productID, variantID)
		}

		if err := refreshProductStatus(ctx, tx, productID); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) explainStockMiss(ctx context.Context, q querier, productID uuid.UUID, variantID *uuid.UUID) error {
	var exists bool
	if variantID == nil {
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
			return fmt.Errorf("check product: %w", err)
		}
		if !exists {
			return ErrProductNotFound
		}
		return ErrInsufficientStock
	}

	if err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM product_variants WHERE id = $1 AND product_id = $2)`, *variantID, productID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check variant: %w", err)
	}
	if !exists {
		return ErrVariantNotFound
	}
	return ErrInsufficientStock
}

func refreshProductStatus(ctx context.Context, q querier, productID uuid.UUID) error {
	var (
		p        model.Product
		status   string
		variants int
		stock    int
	)
	err := q.QueryRow(ctx,
		`SELECT p.status, p.base_stock, COUNT(v.id), COALESCE(SUM(v.stock), 0)
		 FROM products p LEFT JOIN product_variants v ON v.product_id = p.id
		 WHERE p.id = $1 GROUP BY p.id`,
		productID,
	).Scan(&status, &p.BaseStock, &variants, &stock)
	if err != nil {
		return fmt.Errorf("select product stock: %w", err)
	}

	p.Status = model.ProductStatus(status)
	if variants > 0 {
		p.Variants = []model.Variant{{Stock: stock}}
	}
	p.RefreshStatus()
	if string(p.Status) == status {
		return nil
	}

	if _, err := q.Exec(ctx,
		`UPDATE products SET status = $2, updated_at = NOW() WHERE id = $1`, productID, string(p.Status),
	); err != nil {
		return fmt.Errorf("update product status: %w", err)
	}
	return nil
}

// IncrementSales увеличивает счётчик продаж товара.
func (r *PostgresRepository) IncrementSales(ctx context.Context, productID uuid.UUID, quantity int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET sales_count = sales_count + $2 WHERE id = $1`, productID, quantity)
	if err != nil {
		return fmt.Errorf("increment sales: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// IncrementViewCount увеличивает счётчик просмотров товара.
func (r *PostgresRepository) IncrementViewCount(ctx context.Context, productID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET view_count = view_count + 1 WHERE id = $1`, productID)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// AddReview добавляет отзыв и пересчитывает рейтинг по всем отзывам товара в той же транзакции.
func (r *PostgresRepository) AddReview(ctx context.Context, productID uuid.UUID, review model.Review) (model.Ratings, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Ratings{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокировка строки товара упорядочивает параллельные отзывы к нему.
	var locked int
	if err := tx.QueryRow(ctx, `SELECT 1 FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Ratings{}, ErrProductNotFound
		}
		return model.Ratings{}, fmt.Errorf("lock product: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO reviews (product_id, user_id, rating, comment, verified, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		productID, review.UserID, review.Rating, review.Comment, review.Verified, review.CreatedAt,
	)
	if err != nil {
		switch pgCode(err) {
		case pgerrcode.UniqueViolation:
			return model.Ratings{}, ErrDuplicateReview
		case pgerrcode.ForeignKeyViolation:
			return model.Ratings{}, ErrProductNotFound
		}
		return model.Ratings{}, fmt.Errorf("insert review: %w", err)
	}

	var ratings model.Ratings
	err = tx.QueryRow(ctx, `
		UPDATE products p
		SET rating_average = s.avg, rating_count = s.cnt
		FROM (
			SELECT COALESCE(AVG(rating), 0)::float8 AS avg, COUNT(*)::int AS cnt
			FROM reviews WHERE product_id = $1
		) s
		WHERE p.id = $1
		RETURNING p.rating_average, p.rating_count`,
		productID,
	).Scan(&ratings.Average, &ratings.Count)
	if err != nil {
		return model.Ratings{}, fmt.Errorf("update ratings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Ratings{}, fmt.Errorf("commit tx: %w", err)
	}
	return ratings, nil
}

// NextOrderSequence возвращает следующее значение последовательности номеров заказов.
func (r *PostgresRepository) NextOrderSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next order sequence: %w", err)
	}
	return seq, nil
}

// CreateOrder сохраняет заказ с позициями и историей статусов одной транзакцией.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	customer, err := json.Marshal(o.CustomerInfo)
	if err != nil {
		return fmt.Errorf("marshal customer info: %w", err)
	}
	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	billing, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshal billing address: %w", err)
	}

	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO orders (id, number, user_id, customer_info, shipping_address, billing_address,
				subtotal, shipping, tax, discount, total, status, payment_status, payment_method,
				shipping_method, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)`,
			o.ID, o.Number, o.UserID, customer, shipping, billing,
			toCents(o.Pricing.Subtotal), toCents(o.Pricing.Shipping), toCents(o.Pricing.Tax),
			toCents(o.Pricing.Discount), toCents(o.Pricing.Total),
			string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod), o.Shipping.Method, o.CreatedAt,
		)
		if err != nil {
			if pgCode(err) == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", ErrOrderNumberExists, o.Number)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for i, it := range o.Items {
			_, err = tx.Exec(ctx,
				`INSERT INTO order_items (order_id, position, product_id, product_name, product_price, product_image,
					product_sku, variant_id, variant_size, variant_color, quantity, price, total)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				o.ID, i, it.ProductID, it.Snapshot.Name, toCents(it.Snapshot.Price), it.Snapshot.Image,
				it.Snapshot.SKU, it.VariantID, it.Variant.Size, it.Variant.Color, it.Quantity,
				toCents(it.Price), toCents(it.Total),
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		for _, h := range o.StatusHistory {
			if err := insertStatusEntry(ctx, tx, o.ID, h); err != nil {
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func insertStatusEntry(ctx context.Context, q querier, orderID uuid.UUID, h model.StatusEntry) error {
	_, err := q.Exec(ctx,
		`INSERT INTO order_status_history (order_id, status, note, updated_by, created_at) VALUES ($1, $2, $3, $4, $5)`,
		orderID, string(h.Status), h.Note, h.UpdatedBy, h.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

const orderColumns = `id, number, user_id, customer_info, shipping_address, billing_address,
	subtotal, shipping, tax, discount, total, status, payment_status, payment_method,
	transaction_id, payment_date, payment_gateway, shipping_method, tracking_number, carrier,
	estimated_delivery, actual_delivery, created_at, updated_at`

func scanOrder(row pgx.Row, extra ...any) (*model.Order, error) {
	var (
		o                                    model.Order
		customer, shipping, billing          []byte
		subtotal, ship, tax, discount, tot   int64
		status, paymentStatus, paymentMethod string
	)
	dest := []any{&o.ID, &o.Number, &o.UserID, &customer, &shipping, &billing,
		&subtotal, &ship, &tax, &discount, &tot, &status, &paymentStatus, &paymentMethod,
		&o.PaymentDetails.TransactionID, &o.PaymentDetails.PaymentDate, &o.PaymentDetails.PaymentGateway,
		&o.Shipping.Method, &o.Shipping.TrackingNumber, &o.Shipping.Carrier,
		&o.Shipping.EstimatedDelivery, &o.Shipping.ActualDelivery, &o.CreatedAt, &o.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(customer, &o.CustomerInfo); err != nil {
		return nil, fmt.Errorf("unmarshal customer info: %w", err)
	}
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(billing, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal billing address: %w", err)
	}

	o.Pricing = model.Pricing{
		Subtotal: fromCents(subtotal),
		Shipping: fromCents(ship),
		Tax:      fromCents(tax),
		Discount: fromCents(discount),
		Total:    fromCents(tot),
	}
	o.Status = model.OrderStatus(status)
	o.PaymentStatus = model.PaymentStatus(paymentStatus)
	o.PaymentMethod = model.PaymentMethod(paymentMethod)
	return &o, nil
}

func (r *PostgresRepository) loadOrderChildren(ctx context.Context, o *model.Order) error {
	rows, err := r.pool.Query(ctx,
		`SELECT product_id, product_name, product_price, product_image, product_sku, variant_id,
			variant_size, variant_color, quantity, price, total
		 FROM order_items WHERE order_id = $1 ORDER BY position`, o.ID)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.OrderItem, error) {
		var (
			it                model.OrderItem
			snapPrice, p, tot int64
		)
		err := row.Scan(&it.ProductID, &it.Snapshot.Name, &snapPrice, &it.Snapshot.Image, &it.Snapshot.SKU,
			&it.VariantID, &it.Variant.Size, &it.Variant.Color, &it.Quantity, &p, &tot)
		it.Snapshot.Price = fromCents(snapPrice)
		it.Price = fromCents(p)
		it.Total = fromCents(tot)
		return it, err
	})
	if err != nil {
		return fmt.Errorf("scan order item: %w", err)
	}

	rows, err = r.pool.Query(ctx,
		`SELECT status, note, updated_by, created_at FROM order_status_history WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return fmt.Errorf("select status history: %w", err)
	}
	o.StatusHistory, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.StatusEntry, error) {
		var (
			h      model.StatusEntry
			status string
		)
		err := row.Scan(&status, &h.Note, &h.UpdatedBy, &h.Timestamp)
		h.Status = model.OrderStatus(status)
		return h, err
	})
	if err != nil {
		return fmt.Errorf("scan status history: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOrder(ctx context.Context, where string, arg any) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := r.loadOrderChildren(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrderByID возвращает заказ с позициями и историей.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return r.getOrder(ctx, `id = $1`, id)
}

// GetOrderByNumber возвращает заказ по номеру.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, number string) (*model.Order, error) {
	return r.getOrder(ctx, `number = $1`, strings.ToUpper(number))
}

// ListOrders возвращает заказы по фильтру и общее количество подходящих.
func (r *PostgresRepository) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, int, error) {
	conds := []string{"TRUE"}
	var args []any

	if f.UserID != nil {
		args = append(args, *f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.PaymentStatus != "" {
		args = append(args, string(f.PaymentStatus))
		conds = append(conds, fmt.Sprintf("payment_status = $%d", len(args)))
	}

	where := strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	dir := "DESC"
	if f.SortAsc {
		dir = "ASC"
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where + ` ORDER BY created_at ` + dir
	if f.Page.Limit > 0 {
		args = append(args, f.Page.Limit, f.Page.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	for i := range orders {
		if err := r.loadOrderChildren(ctx, &orders[i]); err != nil {
			return nil, 0, err
		}
	}

	return orders, total, nil
}

// UpdateOrderStatus сохраняет статус, оплату и фактическую доставку и дописывает запись истории.
// Запись выполняется, только если текущий статус заказа равен from.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, o *model.Order, from model.OrderStatus, entry model.StatusEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $3, payment_status = $4, transaction_id = $5, payment_date = $6,
			payment_gateway = $7, actual_delivery = $8, updated_at = $9
		 WHERE id = $1 AND status = $2`,
		o.ID, string(from), string(o.Status), string(o.PaymentStatus), o.PaymentDetails.TransactionID,
		o.PaymentDetails.PaymentDate, o.PaymentDetails.PaymentGateway, o.Shipping.ActualDelivery, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order: %w", err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		return fmt.Errorf("%w: %s", ErrStatusChanged, o.Number)
	}

	if err := insertStatusEntry(ctx, tx, o.ID, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// UpdateOrderShipping обновляет трек-номер, перевозчика и ожидаемую дату доставки.
func (r *PostgresRepository) UpdateOrderShipping(ctx context.Context, id uuid.UUID, s model.ShippingInfo) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET tracking_number = $2, carrier = $3, estimated_delivery = $4, updated_at = NOW()
		 WHERE id = $1`,
		id, s.TrackingNumber, s.Carrier, s.EstimatedDelivery,
	)
	if err != nil {
		return fmt.Errorf("update order shipping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// GetOrderStats возвращает количество заказов, выручку по оплаченным и разбивку по статусам.
func (r *PostgresRepository) GetOrderStats(ctx context.Context) (*model.OrderStats, error) {
	var (
		stats   model.OrderStats
		revenue int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total) FILTER (WHERE payment_status = $1), 0) FROM orders`,
		string(model.PaymentStatusPaid),
	).Scan(&stats.TotalOrders, &revenue)
	if err != nil {
		return nil, fmt.Errorf("select order totals: %w", err)
	}
	stats.TotalRevenue = fromCents(revenue)

	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(total), 0) FROM orders GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("select status breakdown: %w", err)
	}
	stats.StatusBreakdown, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.StatusStat, error) {
		var (
			s      model.StatusStat
			status string
			amount int64
		)
		err := row.Scan(&status, &s.Count, &amount)
		s.Status = model.OrderStatus(status)
		s.TotalAmount = fromCents(amount)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan status breakdown: %w", err)
	}

	return &stats, nil
}
