package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrProductNotFound = errors.New("product not found")
	// ErrShortIDExhausted is returned when no id with a free slug prefix
	// could be assigned.
	ErrShortIDExhausted = errors.New("could not assign a product id with a unique short id")
)

const (
	uniqueViolation     = "23505"
	shortIDConstraint   = "products_short_id_key"
	maxShortIDAttempts  = 5
	productColumns      = "id, title, price, description, image_urls, created_at"
	insertProductQuery  = `INSERT INTO products (title, price, description, image_urls) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	insertSavepoint     = "SAVEPOINT product_insert"
	rollbackToSavepoint = "ROLLBACK TO SAVEPOINT product_insert"
)

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// ProductRepository defines the interface for the products collection. The
// store assigns id and created_at.
type ProductRepository interface {
	Create(ctx context.Context, draft domain.ProductDraft) (*domain.Product, error)
	BatchCreate(ctx context.Context, drafts []domain.ProductDraft) ([]*domain.Product, error)
	Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*domain.Product, error)
	ListAll(ctx context.Context) ([]*domain.Product, error)
	List(ctx context.Context, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Product, int, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

// Create inserts a product and returns it with the store assigned fields.
func (r *productRepository) Create(ctx context.Context, draft domain.ProductDraft) (*domain.Product, error) {
	return insertProduct(ctx, r.db, draft, false)
}

// BatchCreate inserts all drafts in one transaction.
func (r *productRepository) BatchCreate(ctx context.Context, drafts []domain.ProductDraft) ([]*domain.Product, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	products := make([]*domain.Product, 0, len(drafts))
	for _, draft := range drafts {
		product, err := insertProduct(ctx, tx, draft, true)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}

	return products, nil
}

// insertProduct retries when the generated id collides with the short id
// of an existing product. Inside a transaction each attempt runs behind a
// savepoint so a collision does not abort the whole batch.
func insertProduct(ctx context.Context, q queryRower, draft domain.ProductDraft, inTx bool) (*domain.Product, error) {
	images, err := encodeImages(draft.ImageURLs)
	if err != nil {
		return nil, err
	}

	product := &domain.Product{
		Title:       draft.Title,
		Price:       draft.Price,
		Description: draft.Description,
		ImageURLs:   append([]string{}, draft.ImageURLs...),
	}

	for attempt := 0; attempt < maxShortIDAttempts; attempt++ {
		if inTx {
			if _, err := q.ExecContext(ctx, insertSavepoint); err != nil {
				return nil, fmt.Errorf("failed to create savepoint: %w", err)
			}
		}

		err := q.QueryRowContext(ctx, insertProductQuery,
			product.Title,
			product.Price,
			product.Description,
			images,
		).Scan(&product.ID, &product.CreatedAt)
		if err == nil {
			return product, nil
		}

		if !isShortIDCollision(err) {
			return nil, fmt.Errorf("failed to create product: %w", err)
		}

		if inTx {
			if _, err := q.ExecContext(ctx, rollbackToSavepoint); err != nil {
				return nil, fmt.Errorf("failed to roll back savepoint: %w", err)
			}
		}
	}

	return nil, ErrShortIDExhausted
}

// Update applies a partial update and returns the stored product.
func (r *productRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if patch.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	sets := []string{}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Price != nil {
		add("price", *patch.Price)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.ImageURLs != nil {
		images, err := encodeImages(*patch.ImageURLs)
		if err != nil {
			return nil, err
		}
		add("image_urls", images)
	}

	query := fmt.Sprintf(
		"UPDATE products SET %s WHERE id = $1 RETURNING %s",
		strings.Join(sets, ", "),
		productColumns,
	)

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	return product, nil
}

// Delete removes a product. There is no soft delete.
func (r *productRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// FindByID retrieves a product by its full id
func (r *productRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	query := "SELECT " + productColumns + " FROM products WHERE id = $1"

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// ListAll returns the whole catalog, newest first
func (r *productRepository) ListAll(ctx context.Context) ([]*domain.Product, error) {
	query := "SELECT " + productColumns + " FROM products ORDER BY created_at DESC, id"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

// List retrieves one page of products with sorting
func (r *productRepository) List(ctx context.Context, page, pageSize int, sortBy string, sortOrder SortOrder) ([]*domain.Product, int, error) {
	// Validate sort field to prevent SQL injection
	validSortFields := map[string]bool{
		"title":      true,
		"price":      true,
		"created_at": true,
	}

	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}

	if sortOrder != SortOrderAsc && sortOrder != SortOrderDesc {
		sortOrder = SortOrderDesc
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM products ORDER BY %s %s, id LIMIT $1 OFFSET $2",
		productColumns, sortBy, sortOrder,
	)

	rows, err := r.db.QueryContext(ctx, query, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

// Search finds products whose title or description contains query
func (r *productRepository) Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error) {
	if strings.TrimSpace(query) == "" {
		return r.List(ctx, page, pageSize, "created_at", SortOrderDesc)
	}

	searchPattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE title ILIKE $1 OR description ILIKE $1`,
		searchPattern,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	searchQuery := "SELECT " + productColumns + ` FROM products
		WHERE title ILIKE $1 OR description ILIKE $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, searchQuery, searchPattern, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func collectProducts(rows *sql.Rows) ([]*domain.Product, error) {
	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	var images []byte

	err := row.Scan(
		&product.ID,
		&product.Title,
		&product.Price,
		&product.Description,
		&images,
		&product.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(images, &product.ImageURLs); err != nil {
		return nil, fmt.Errorf("failed to decode image urls: %w", err)
	}
	if product.ImageURLs == nil {
		product.ImageURLs = []string{}
	}

	return product, nil
}

func encodeImages(urls []string) (string, error) {
	if urls == nil {
		urls = []string{}
	}
	b, err := json.Marshal(urls)
	if err != nil {
		return "", fmt.Errorf("failed to encode image urls: %w", err)
	}
	return string(b), nil
}

func isShortIDCollision(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolation &&
		pgErr.ConstraintName == shortIDConstraint
}

func offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
