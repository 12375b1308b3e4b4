package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"
	"storefront/internal/upload"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	// MaxUploadFiles is the number of images accepted in one upload request.
	MaxUploadFiles = 10
	// multipartMemory is held in memory before parts spill to disk.
	multipartMemory = 8 << 20
)

// BatchRequest is the payload of a batch add
type BatchRequest struct {
	Items []domain.ProductDraft `json:"items"`
}

// UploadResponse lists the URLs of uploaded images in request order
type UploadResponse struct {
	URLs []string `json:"urls"`
}

// AdminHandler serves the product management endpoints
type AdminHandler struct {
	admin    service.AdminService
	uploader upload.Uploader
	logger   *zap.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(admin service.AdminService, uploader upload.Uploader, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, uploader: uploader, logger: logger}
}

// RegisterRoutes registers the admin routes behind the given guards
func (h *AdminHandler) RegisterRoutes(r chi.Router, guards ...func(http.Handler) http.Handler) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(guards...)

		r.Get("/products", h.Page)
		r.Post("/products", h.Create)
		r.Post("/products/batch", h.BatchCreate)
		r.Put("/products/{id}", h.Replace)
		r.Patch("/products/{id}", h.Update)
		r.Delete("/products/{id}", h.Delete)

		r.Post("/uploads", h.Upload)
	})
}

// Page returns one dashboard page
func (h *AdminHandler) Page(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	result, err := h.admin.Page(r.Context(), page)
	if err != nil {
		respondWithServiceError(w, err, h.logger, "list products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, result)
}

// Create adds a product from the create form
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, domain.CreateForm{}, http.StatusCreated)
}

// Replace saves the edit form of an existing product
func (h *AdminHandler) Replace(w http.ResponseWriter, r *http.Request) {
	existing := &domain.Product{ID: chi.URLParam(r, "id")}
	h.submit(w, r, domain.EditForm{Existing: existing}, http.StatusOK)
}

func (h *AdminHandler) submit(w http.ResponseWriter, r *http.Request, form domain.ProductForm, status int) {
	var draft domain.ProductDraft
	if err := middleware.DecodeJSON(w, r, &draft); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := h.admin.Submit(r.Context(), form, draft)
	if err != nil {
		respondWithServiceError(w, err, h.logger, "save product")
		return
	}

	middleware.RespondWithJSON(w, status, product)
}

// BatchCreate adds several products in one transaction
func (h *AdminHandler) BatchCreate(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := middleware.DecodeJSON(w, r, &req); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	products, err := h.admin.BatchCreate(r.Context(), req.Items)
	if err != nil {
		respondWithServiceError(w, err, h.logger, "create products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{"items": products})
}

// Update applies a partial update
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch domain.ProductPatch
	if err := middleware.DecodeJSON(w, r, &patch); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := h.admin.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondWithServiceError(w, err, h.logger, "update product")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// Delete removes a product
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithServiceError(w, err, h.logger, "delete product")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Upload stores the images of a multipart "files" field in order and stops
// at the first failing file.
func (h *AdminHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadFiles*(upload.MaxFileSize+1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		middleware.RespondWithValidationErrors(w, []middleware.ValidationError{{Field: "files", Message: "at least one file is required"}})
		return
	}
	if len(headers) > MaxUploadFiles {
		middleware.RespondWithValidationErrors(w, []middleware.ValidationError{{Field: "files", Message: fmt.Sprintf("at most %d files per upload", MaxUploadFiles)}})
		return
	}

	files := make([]upload.File, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "failed to read "+header.Filename)
			return
		}
		// one byte past the limit is enough to reject the file
		data, err := io.ReadAll(io.LimitReader(f, upload.MaxFileSize+1))
		f.Close()
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "failed to read "+header.Filename)
			return
		}
		files = append(files, upload.File{Name: header.Filename, Data: data})
	}

	urls, err := upload.UploadAll(r.Context(), h.uploader, files)
	if err != nil {
		details := map[string]interface{}{"uploaded": urls}

		var fileErr *upload.FileError
		if errors.As(err, &fileErr) {
			details["file"] = fileErr.File
		}

		switch {
		case errors.Is(err, upload.ErrNotImage), errors.Is(err, upload.ErrTooLarge):
			middleware.RespondWithErrorDetails(w, http.StatusBadRequest, err.Error(), details)
		case errors.Is(err, upload.ErrNotConfigured):
			middleware.RespondWithErrorDetails(w, http.StatusServiceUnavailable, err.Error(), details)
		default:
			h.logger.Error("Image upload failed", zap.Error(err), zap.Int("uploaded", len(urls)))
			middleware.RespondWithErrorDetails(w, http.StatusBadGateway, "image upload failed", details)
		}
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, UploadResponse{URLs: urls})
}
