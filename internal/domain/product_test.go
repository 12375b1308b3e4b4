package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProductIsNew(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		createdAt time.Time
		want      bool
	}{
		{"just created", now.Add(-time.Minute), true},
		{"almost a day old", now.Add(-23 * time.Hour), true},
		{"exactly a day old", now.Add(-24 * time.Hour), false},
		{"last week", now.Add(-7 * 24 * time.Hour), false},
		{"no timestamp", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Product{CreatedAt: tt.createdAt}
			assert.Equal(t, tt.want, p.IsNew(now))
		})
	}
}

func TestProductPrimaryImage(t *testing.T) {
	assert.Equal(t, "", (&Product{}).PrimaryImage())
	assert.Equal(t, "a.jpg", (&Product{ImageURLs: []string{"a.jpg", "b.jpg"}}).PrimaryImage())
}

func TestProductPatchApplyKeepsIdentity(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	original := Product{
		ID:        "ab12cd34ef",
		Title:     "Classic White Oxford Shirt",
		Price:     28000,
		ImageURLs: []string{"https://cdn.example.com/shirt.jpg"},
		CreatedAt: created,
	}

	price := 30000.0
	updated := ProductPatch{Price: &price}.Apply(original)

	assert.Equal(t, original.ID, updated.ID)
	assert.Equal(t, created, updated.CreatedAt)
	assert.Equal(t, original.Title, updated.Title)
	assert.Equal(t, 30000.0, updated.Price)
	assert.Equal(t, 28000.0, original.Price)
}

func TestProductPatchApplyCopiesImages(t *testing.T) {
	images := []string{"one.jpg", "two.jpg"}
	patch := ProductPatch{ImageURLs: &images}

	updated := patch.Apply(Product{})
	images[0] = "changed.jpg"

	assert.Equal(t, []string{"one.jpg", "two.jpg"}, updated.ImageURLs)
}

func TestPatchFromDraftIsComplete(t *testing.T) {
	patch := PatchFromDraft(ProductDraft{Title: "Mug", Price: 500, ImageURLs: []string{"m.jpg"}})

	assert.False(t, patch.IsEmpty())
	assert.NotNil(t, patch.Title)
	assert.NotNil(t, patch.Price)
	assert.NotNil(t, patch.Description)
	assert.NotNil(t, patch.ImageURLs)
	assert.True(t, ProductPatch{}.IsEmpty())
}
