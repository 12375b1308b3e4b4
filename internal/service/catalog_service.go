package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/color"
	"storefront/internal/config"
	"storefront/internal/contact"
	"storefront/internal/domain"
	"storefront/internal/live"
	"storefront/internal/repository"
	"storefront/internal/slug"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentSamples bounds the image fetches of one catalog load.
const maxConcurrentSamples = 16

var ErrLiveUpdatesDisabled = errors.New("live updates are not available")

// ColorExtractor samples the dominant color of an image. It never fails.
type ColorExtractor interface {
	ExtractDominantColor(ctx context.Context, imageURL string) color.RGB
}

// ProductCard is a catalog entry with everything a product card shows.
type ProductCard struct {
	Product        *domain.Product `json:"product"`
	Slug           string          `json:"slug"`
	IsNew          bool            `json:"isNew"`
	Tint           string          `json:"tint"`
	Ambient        string          `json:"ambient"`
	FormattedPrice string          `json:"formattedPrice"`
	ContactLink    string          `json:"contactLink"`
}

// ProductDetail is the product page: the card plus the page URL.
type ProductDetail struct {
	ProductCard
	PageURL string `json:"pageUrl,omitempty"`
}

// CatalogPage is one page of search results.
type CatalogPage struct {
	Items    []ProductCard `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

// CatalogService serves the public storefront.
type CatalogService interface {
	List(ctx context.Context) ([]ProductCard, error)
	Search(ctx context.Context, query string, page, pageSize int) (*CatalogPage, error)
	Detail(ctx context.Context, productSlug string) (*ProductDetail, error)
	ContactLink(ctx context.Context, productSlug string) (string, error)
	Watch(ctx context.Context, fn func([]ProductCard, error)) (*live.Subscription, error)
	WatchProduct(ctx context.Context, productSlug string, fn func(*ProductDetail, error)) (*live.Subscription, error)
	Cards(ctx context.Context, products []*domain.Product) []ProductCard
}

type catalogService struct {
	products repository.ProductRepository
	colors   ColorExtractor
	feed     *live.Feed
	store    config.StoreConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewCatalogService creates a new instance of CatalogService. feed may be
// nil, which disables Watch.
func NewCatalogService(
	products repository.ProductRepository,
	colors ColorExtractor,
	feed *live.Feed,
	store config.StoreConfig,
	logger *zap.Logger,
) CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &catalogService{
		products: products,
		colors:   colors,
		feed:     feed,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// List returns the whole catalog as cards, newest first.
func (s *catalogService) List(ctx context.Context) ([]ProductCard, error) {
	products, err := s.products.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return s.Cards(ctx, products), nil
}

// Search returns one page of products matching query.
func (s *catalogService) Search(ctx context.Context, query string, page, pageSize int) (*CatalogPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	products, total, err := s.products.Search(ctx, query, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}

	return &CatalogPage{
		Items:    s.Cards(ctx, products),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// Detail resolves a slug against the full catalog and loads that product.
func (s *catalogService) Detail(ctx context.Context, productSlug string) (*ProductDetail, error) {
	product, err := s.resolve(ctx, productSlug)
	if err != nil {
		return nil, err
	}

	return s.detail(ctx, product), nil
}

func (s *catalogService) detail(ctx context.Context, product *domain.Product) *ProductDetail {
	cards := s.Cards(ctx, []*domain.Product{product})
	return &ProductDetail{
		ProductCard: cards[0],
		PageURL:     contact.ProductPageURL(s.store.PublicURL, cards[0].Slug),
	}
}

// ContactLink returns the WhatsApp enquiry link for a product page.
func (s *catalogService) ContactLink(ctx context.Context, productSlug string) (string, error) {
	product, err := s.resolve(ctx, productSlug)
	if err != nil {
		return "", err
	}
	return s.contactLink(product, slug.Generate(product.Title, product.ID)), nil
}

// Watch delivers fresh cards now and after every catalog change.
func (s *catalogService) Watch(ctx context.Context, fn func([]ProductCard, error)) (*live.Subscription, error) {
	if s.feed == nil {
		return nil, ErrLiveUpdatesDisabled
	}
	return s.feed.WatchAll(ctx, func(products []*domain.Product, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(s.Cards(ctx, products), nil)
	}), nil
}

// WatchProduct resolves a slug once and then delivers the product page now
// and after every change to that product. Once the product is deleted fn
// receives ErrProductNotFound.
func (s *catalogService) WatchProduct(ctx context.Context, productSlug string, fn func(*ProductDetail, error)) (*live.Subscription, error) {
	if s.feed == nil {
		return nil, ErrLiveUpdatesDisabled
	}

	product, err := s.resolve(ctx, productSlug)
	if err != nil {
		return nil, err
	}

	return s.feed.WatchOne(ctx, product.ID, func(p *domain.Product, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(s.detail(ctx, p), nil)
	}), nil
}

// Cards decorates products with slug, tint and contact link. Colors are
// sampled concurrently and a failed sample only affects its own card.
func (s *catalogService) Cards(ctx context.Context, products []*domain.Product) []ProductCard {
	now := s.now()
	cards := make([]ProductCard, len(products))

	var g errgroup.Group
	g.SetLimit(maxConcurrentSamples)

	for i, p := range products {
		productSlug := slug.Generate(p.Title, p.ID)
		cards[i] = ProductCard{
			Product:        p,
			Slug:           productSlug,
			IsNew:          p.IsNew(now),
			Tint:           color.Fallback.String(),
			Ambient:        color.Fallback.Ambient(color.DefaultOpacity),
			FormattedPrice: contact.FormatPrice(p.Price),
			ContactLink:    s.contactLink(p, productSlug),
		}

		imageURL := p.PrimaryImage()
		if imageURL == "" || s.colors == nil {
			continue
		}

		g.Go(func() error {
			rgb := s.colors.ExtractDominantColor(ctx, imageURL)
			cards[i].Tint = rgb.String()
			cards[i].Ambient = rgb.Ambient(color.DefaultOpacity)
			return nil
		})
	}

	// sampling never returns an error
	_ = g.Wait()

	return cards
}

func (s *catalogService) resolve(ctx context.Context, productSlug string) (*domain.Product, error) {
	all, err := s.products.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	id, ok := slug.FindProductID(productSlug, all)
	if !ok {
		s.logger.Debug("No product matches slug", zap.String("slug", productSlug))
		return nil, repository.ErrProductNotFound
	}

	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	return product, nil
}

func (s *catalogService) contactLink(p *domain.Product, productSlug string) string {
	if s.store.WhatsApp == "" {
		return ""
	}
	return contact.WhatsAppLink(s.store.WhatsApp, p, contact.ProductPageURL(s.store.PublicURL, productSlug))
}
