package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/config"
	"storefront/internal/live"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// streamKeepAlive is how often an idle event stream sends a comment line.
const streamKeepAlive = 25 * time.Second

// StoreSummary is served at the site root.
type StoreSummary struct {
	Name         string `json:"name"`
	ProductCount int    `json:"productCount"`
	CatalogURL   string `json:"catalogUrl"`
	StreamURL    string `json:"streamUrl"`
}

// ContactResponse carries the WhatsApp enquiry link for a product
type ContactResponse struct {
	URL string `json:"url"`
}

// CatalogHandler serves the public storefront
type CatalogHandler struct {
	catalog service.CatalogService
	store   config.StoreConfig
	logger  *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(catalog service.CatalogService, store config.StoreConfig, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, store: store, logger: logger}
}

// RegisterRoutes registers the public catalog routes
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Home)

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/stream", h.Stream)
		r.Get("/{slug}", h.Detail)
		r.Get("/{slug}/contact", h.Contact)
		r.Get("/{slug}/stream", h.ProductStream)
	})
}

// Home returns a short summary of the store
func (h *CatalogHandler) Home(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.Search(r.Context(), "", 1, 1)
	if err != nil {
		h.logger.Error("Failed to load store summary", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to load store")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, StoreSummary{
		Name:         h.store.Name,
		ProductCount: page.Total,
		CatalogURL:   "/api/products",
		StreamURL:    "/api/products/stream",
	})
}

// List returns the whole catalog, or one page of search results when q is set
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		cards, err := h.catalog.List(r.Context())
		if err != nil {
			h.logger.Error("Failed to list catalog", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to load products")
			return
		}
		middleware.RespondWithJSON(w, http.StatusOK, service.CatalogPage{
			Items:    cards,
			Total:    len(cards),
			Page:     1,
			PageSize: len(cards),
		})
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := h.catalog.Search(r.Context(), query, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to search catalog", zap.Error(err), zap.String("query", query))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to search products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, result)
}

// Detail returns the product a slug points to
func (h *CatalogHandler) Detail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.catalog.Detail(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondWithServiceError(w, err, h.logger, "load product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, detail)
}

// Contact returns the WhatsApp link for a product
func (h *CatalogHandler) Contact(w http.ResponseWriter, r *http.Request) {
	link, err := h.catalog.ContactLink(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondWithServiceError(w, err, h.logger, "build contact link")
		return
	}
	if link == "" {
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "store has no WhatsApp number")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ContactResponse{URL: link})
}

// Stream pushes the catalog as server-sent events, once on connect and again
// after every change.
func (h *CatalogHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.streamEvents(w, r, func(emit func(streamEvent)) (*live.Subscription, error) {
		return h.catalog.Watch(r.Context(), func(cards []service.ProductCard, err error) {
			if err != nil {
				h.logger.Warn("Catalog reload failed", zap.Error(err))
				return
			}
			emit(streamEvent{name: "products", data: cards})
		})
	})
}

// ProductStream pushes one product page as server-sent events. A "not-found"
// event ends the stream once the product is deleted.
func (h *CatalogHandler) ProductStream(w http.ResponseWriter, r *http.Request) {
	productSlug := chi.URLParam(r, "slug")

	h.streamEvents(w, r, func(emit func(streamEvent)) (*live.Subscription, error) {
		return h.catalog.WatchProduct(r.Context(), productSlug, func(detail *service.ProductDetail, err error) {
			switch {
			case errors.Is(err, repository.ErrProductNotFound):
				emit(streamEvent{name: "not-found", data: map[string]string{"slug": productSlug}, last: true})
			case err != nil:
				h.logger.Warn("Product reload failed", zap.Error(err), zap.String("slug", productSlug))
			default:
				emit(streamEvent{name: "product", data: detail})
			}
		})
	})
}

type streamEvent struct {
	name string
	data interface{}
	// last closes the stream after the event is written
	last bool
}

// streamEvents starts a watch and writes what it emits as server-sent events
// until the client leaves. Only the newest pending event is kept for a slow
// client.
func (h *CatalogHandler) streamEvents(w http.ResponseWriter, r *http.Request, watch func(emit func(streamEvent)) (*live.Subscription, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.RespondWithError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// emit is only called from the subscription goroutine
	events := make(chan streamEvent, 1)
	emit := func(ev streamEvent) {
		select {
		case events <- ev:
		default:
			select {
			case <-events:
			default:
			}
			events <- ev
		}
	}

	sub, err := watch(emit)
	if err != nil {
		if errors.Is(err, service.ErrLiveUpdatesDisabled) {
			middleware.RespondWithError(w, http.StatusServiceUnavailable, "live updates are not available")
			return
		}
		respondWithServiceError(w, err, h.logger, "start stream")
		return
	}
	defer sub.Stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev.data)
			if err != nil {
				h.logger.Error("Failed to encode stream event", zap.Error(err), zap.String("event", ev.name))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, data); err != nil {
				return
			}
			flusher.Flush()
			if ev.last {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
