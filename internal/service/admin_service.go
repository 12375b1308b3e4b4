package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/slug"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// AdminPageSize is the number of products on one dashboard page.
const AdminPageSize = 8

var ErrNoExistingProduct = errors.New("edit form has no product")

var draftValidator = newDraftValidator()

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any store call when input is invalid.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return "invalid product: " + strings.Join(names, ", ")
}

// AdminRow is a dashboard line.
type AdminRow struct {
	Product *domain.Product `json:"product"`
	Slug    string          `json:"slug"`
}

// AdminPage is one page of the dashboard.
type AdminPage struct {
	Items       []AdminRow `json:"items"`
	Page        int        `json:"page"`
	TotalPages  int        `json:"totalPages"`
	Total       int        `json:"total"`
	PageNumbers []int      `json:"pageNumbers"`
}

// AdminService manages the catalog.
type AdminService interface {
	Create(ctx context.Context, draft domain.ProductDraft) (*domain.Product, error)
	BatchCreate(ctx context.Context, drafts []domain.ProductDraft) ([]*domain.Product, error)
	Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
	Submit(ctx context.Context, form domain.ProductForm, draft domain.ProductDraft) (*domain.Product, error)
	Page(ctx context.Context, page int) (*AdminPage, error)
}

type adminService struct {
	products repository.ProductRepository
	logger   *zap.Logger
}

// NewAdminService creates a new instance of AdminService
func NewAdminService(products repository.ProductRepository, logger *zap.Logger) AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &adminService{products: products, logger: logger}
}

// Create validates and stores a new product.
func (s *adminService) Create(ctx context.Context, draft domain.ProductDraft) (*domain.Product, error) {
	draft = normalizeDraft(draft)
	if fields := validateDraft("", draft); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	product, err := s.products.Create(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.String("title", product.Title),
	)
	return product, nil
}

// BatchCreate validates every draft and stores them in one transaction.
func (s *adminService) BatchCreate(ctx context.Context, drafts []domain.ProductDraft) ([]*domain.Product, error) {
	if len(drafts) == 0 {
		return nil, &ValidationError{Fields: []FieldError{{Field: "items", Message: "at least one product is required"}}}
	}

	normalized := make([]domain.ProductDraft, len(drafts))
	var fields []FieldError
	for i, d := range drafts {
		normalized[i] = normalizeDraft(d)
		fields = append(fields, validateDraft(fmt.Sprintf("items[%d].", i), normalized[i])...)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	products, err := s.products.BatchCreate(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to create products: %w", err)
	}

	s.logger.Info("Products batch created", zap.Int("count", len(products)))
	return products, nil
}

// Update applies a partial update. id and createdAt cannot change.
func (s *adminService) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		patch.Title = &trimmed
	}
	if fields := validatePatch(patch); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	product, err := s.products.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.logger.Info("Product updated", zap.String("product_id", id))
	return product, nil
}

// Delete removes a product.
func (s *adminService) Delete(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.logger.Info("Product deleted", zap.String("product_id", id))
	return nil
}

// Submit saves the product form in the mode it was opened in.
func (s *adminService) Submit(ctx context.Context, form domain.ProductForm, draft domain.ProductDraft) (*domain.Product, error) {
	switch f := form.(type) {
	case domain.CreateForm:
		return s.Create(ctx, draft)
	case domain.EditForm:
		if f.Existing == nil || f.Existing.ID == "" {
			return nil, ErrNoExistingProduct
		}
		draft = normalizeDraft(draft)
		if fields := validateDraft("", draft); len(fields) > 0 {
			return nil, &ValidationError{Fields: fields}
		}
		return s.Update(ctx, f.Existing.ID, domain.PatchFromDraft(draft))
	default:
		return nil, fmt.Errorf("unknown product form %T", form)
	}
}

// Page returns one dashboard page, newest first. Out of range pages clamp to
// the nearest valid page.
func (s *adminService) Page(ctx context.Context, page int) (*AdminPage, error) {
	if page < 1 {
		page = 1
	}

	products, total, err := s.products.List(ctx, page, AdminPageSize, "created_at", repository.SortOrderDesc)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	totalPages := int(math.Ceil(float64(total) / AdminPageSize))
	if totalPages > 0 && page > totalPages {
		page = totalPages
		products, total, err = s.products.List(ctx, page, AdminPageSize, "created_at", repository.SortOrderDesc)
		if err != nil {
			return nil, fmt.Errorf("failed to list products: %w", err)
		}
		totalPages = int(math.Ceil(float64(total) / AdminPageSize))
	}
	if totalPages == 0 {
		page = 1
	}

	rows := make([]AdminRow, len(products))
	for i, p := range products {
		rows[i] = AdminRow{Product: p, Slug: slug.Generate(p.Title, p.ID)}
	}

	numbers := make([]int, totalPages)
	for i := range numbers {
		numbers[i] = i + 1
	}

	return &AdminPage{
		Items:       rows,
		Page:        page,
		TotalPages:  totalPages,
		Total:       total,
		PageNumbers: numbers,
	}, nil
}

func normalizeDraft(d domain.ProductDraft) domain.ProductDraft {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	return d
}

func newDraftValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateDraft(prefix string, d domain.ProductDraft) []FieldError {
	var verrs validator.ValidationErrors
	if err := draftValidator.Struct(d); !errors.As(err, &verrs) {
		return nil
	}

	fields := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, FieldError{Field: prefix + e.Field(), Message: draftMessage(e)})
	}
	return fields
}

func draftMessage(e validator.FieldError) string {
	switch {
	case e.Field() == "title":
		return "title is required"
	case e.Field() == "price":
		return "price must be greater than 0"
	case e.Field() == "imageUrl":
		return "at least one image is required"
	case strings.HasPrefix(e.Field(), "imageUrl["):
		return "image url is empty"
	default:
		return "invalid value"
	}
}

func validatePatch(p domain.ProductPatch) []FieldError {
	var fields []FieldError
	if p.Title != nil && *p.Title == "" {
		fields = append(fields, FieldError{Field: "title", Message: "title is required"})
	}
	if p.Price != nil && !(*p.Price > 0) {
		fields = append(fields, FieldError{Field: "price", Message: "price must be greater than 0"})
	}
	if p.ImageURLs != nil {
		fields = append(fields, validateImages(*p.ImageURLs)...)
	}
	return fields
}

func validateImages(urls []string) []FieldError {
	if len(urls) == 0 {
		return []FieldError{{Field: "imageUrl", Message: "at least one image is required"}}
	}
	for i, u := range urls {
		if strings.TrimSpace(u) == "" {
			return []FieldError{{Field: fmt.Sprintf("imageUrl[%d]", i), Message: "image url is empty"}}
		}
	}
	return nil
}
