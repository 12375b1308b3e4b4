package domain

import (
	"time"
)

// NewProductWindow is how long a product is flagged as new after creation.
const NewProductWindow = 24 * time.Hour

// Product represents a product in the catalog
type Product struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Price       float64   `json:"price" db:"price"`
	Description string    `json:"description" db:"description"`
	ImageURLs   []string  `json:"imageUrl" db:"image_urls"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// IsNew reports whether the product was created within the last 24 hours.
func (p *Product) IsNew(now time.Time) bool {
	if p.CreatedAt.IsZero() {
		return false
	}
	return now.Sub(p.CreatedAt) < NewProductWindow
}

// PrimaryImage returns the first image URL, which is used as the thumbnail
// and as the color sample source.
func (p *Product) PrimaryImage() string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}

// ProductDraft holds the client supplied fields of a new product.
type ProductDraft struct {
	Title       string   `json:"title" validate:"required"`
	Price       float64  `json:"price" validate:"gt=0"`
	Description string   `json:"description"`
	ImageURLs   []string `json:"imageUrl" validate:"min=1,dive,required"`
}

// ProductPatch is a partial update. Nil fields are left untouched.
type ProductPatch struct {
	Title       *string   `json:"title,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	Description *string   `json:"description,omitempty"`
	ImageURLs   *[]string `json:"imageUrl,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ProductPatch) IsEmpty() bool {
	return p.Title == nil && p.Price == nil && p.Description == nil && p.ImageURLs == nil
}

// Apply returns a copy of product with the patch applied. ID and CreatedAt
// are never changed.
func (p ProductPatch) Apply(product Product) Product {
	if p.Title != nil {
		product.Title = *p.Title
	}
	if p.Price != nil {
		product.Price = *p.Price
	}
	if p.Description != nil {
		product.Description = *p.Description
	}
	if p.ImageURLs != nil {
		product.ImageURLs = append([]string(nil), (*p.ImageURLs)...)
	}
	return product
}

// PatchFromDraft builds a patch that replaces every editable field.
func PatchFromDraft(d ProductDraft) ProductPatch {
	images := append([]string(nil), d.ImageURLs...)
	return ProductPatch{
		Title:       &d.Title,
		Price:       &d.Price,
		Description: &d.Description,
		ImageURLs:   &images,
	}
}

// ProductForm is the mode an admin product form was opened in: either
// CreateForm or EditForm.
type ProductForm interface {
	isProductForm()
}

// CreateForm opens the form for a new product.
type CreateForm struct{}

// EditForm opens the form for an existing product.
type EditForm struct {
	Existing *Product
}

func (CreateForm) isProductForm() {}
func (EditForm) isProductForm()   {}
