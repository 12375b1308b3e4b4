package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"
	"storefront/internal/upload"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type adminFixture struct {
	router     http.Handler
	products   *mockProductRepository
	uploader   *stubUploader
	adminToken string
	userToken  string
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	logger := zap.NewNop()
	ctx := context.Background()

	users := newMockUserRepository()
	authService := service.NewAuthService(users, newMockRefreshTokenRepository(), config.JWTConfig{Secret: testSecret}, logger)
	_, err := authService.EnsureAdmin(ctx, testAdminEmail, testAdminPassword, "Owner")
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("ShopperPass1"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, users.Create(ctx, &domain.User{
		ID:           uuid.New(),
		Email:        "shopper@shop.test",
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
	}))

	adminToken, _, _, err := authService.Login(ctx, testAdminEmail, testAdminPassword)
	require.NoError(t, err)
	userToken, _, _, err := authService.Login(ctx, "shopper@shop.test", "ShopperPass1")
	require.NoError(t, err)

	products := newMockProductRepository(catalogFixtures()...)
	uploader := &stubUploader{}

	r := chi.NewRouter()
	NewAdminHandler(service.NewAdminService(products, logger), uploader, logger).
		RegisterRoutes(r, middleware.AuthMiddleware(testSecret, logger), middleware.RequireAdmin(logger))

	return &adminFixture{
		router:     r,
		products:   products,
		uploader:   uploader,
		adminToken: adminToken,
		userToken:  userToken,
	}
}

func (f *adminFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.adminToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func validationFields(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var body struct {
		Error struct {
			Details struct {
				ValidationErrors []middleware.ValidationError `json:"validation_errors"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	fields := make([]string, 0, len(body.Error.Details.ValidationErrors))
	for _, e := range body.Error.Details.ValidationErrors {
		fields = append(fields, e.Field)
	}
	return fields
}

func TestAdminHandler_RequiresAdmin(t *testing.T) {
	f := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/products", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/products", nil)
	req.Header.Set("Authorization", "Bearer "+f.userToken)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminHandler_Create(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(t, http.MethodPost, "/api/admin/products", domain.ProductDraft{
		Title:     "  Clay Bowl ",
		Price:     900,
		ImageURLs: []string{"https://img.test/bowl.jpg"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created domain.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Clay Bowl", created.Title)
}

func TestAdminHandler_CreateInvalid(t *testing.T) {
	f := newAdminFixture(t)
	before := f.products.callCount()

	w := f.do(t, http.MethodPost, "/api/admin/products", domain.ProductDraft{Title: "", Price: 0})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.ElementsMatch(t, []string{"title", "price", "imageUrl"}, validationFields(t, w))
	assert.Equal(t, before, f.products.callCount())
}

func TestAdminHandler_BatchCreate(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(t, http.MethodPost, "/api/admin/products/batch", BatchRequest{Items: []domain.ProductDraft{
		{Title: "Cup", Price: 300, ImageURLs: []string{"https://img.test/cup.jpg"}},
		{Title: "Saucer", Price: 200, ImageURLs: []string{"https://img.test/saucer.jpg"}},
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		Items []domain.Product `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, "Cup", body.Items[0].Title)
	assert.Equal(t, "Saucer", body.Items[1].Title)

	w = f.do(t, http.MethodPost, "/api/admin/products/batch", BatchRequest{Items: []domain.ProductDraft{
		{Title: "Cup", Price: 300, ImageURLs: []string{"https://img.test/cup.jpg"}},
		{Title: "", Price: 200, ImageURLs: []string{"https://img.test/saucer.jpg"}},
	}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"items[1].title"}, validationFields(t, w))
}

func TestAdminHandler_ReplaceUpdateDelete(t *testing.T) {
	f := newAdminFixture(t)
	id := "ab12cd0000000000000000000000000f"

	w := f.do(t, http.MethodPut, "/api/admin/products/"+id, domain.ProductDraft{
		Title:       "Blue Vase XL",
		Price:       2500,
		Description: "Taller",
		ImageURLs:   []string{"https://img.test/vase-xl.jpg"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var replaced domain.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &replaced))
	assert.Equal(t, id, replaced.ID)
	assert.Equal(t, "Blue Vase XL", replaced.Title)

	w = f.do(t, http.MethodPatch, "/api/admin/products/"+id, map[string]interface{}{"price": 3100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var patched domain.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &patched))
	assert.Equal(t, 3100.0, patched.Price)
	assert.Equal(t, "Blue Vase XL", patched.Title)

	w = f.do(t, http.MethodPatch, "/api/admin/products/"+id, map[string]interface{}{"price": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, "/api/admin/products/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodDelete, "/api/admin/products/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPut, "/api/admin/products/"+id, domain.ProductDraft{
		Title:     "Gone",
		Price:     1,
		ImageURLs: []string{"https://img.test/gone.jpg"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_Page(t *testing.T) {
	f := newAdminFixture(t)

	w := f.do(t, http.MethodGet, "/api/admin/products?page=7", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page service.AdminPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.Items[0].Slug)
}

func multipartUpload(t *testing.T, files map[string][]byte, order []string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (f *adminFixture) upload(t *testing.T, files map[string][]byte, order []string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, files, order)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+f.adminToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAdminHandler_Upload(t *testing.T) {
	f := newAdminFixture(t)

	w := f.upload(t, map[string][]byte{"a.png": pngHeader, "b.png": pngHeader}, []string{"a.png", "b.png"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"https://res.test/a.png", "https://res.test/b.png"}, resp.URLs)
}

func TestAdminHandler_UploadStopsAtFirstBadFile(t *testing.T) {
	f := newAdminFixture(t)

	files := map[string][]byte{
		"ok.png":    pngHeader,
		"notes.txt": []byte("just some text"),
		"late.png":  pngHeader,
	}
	w := f.upload(t, files, []string{"ok.png", "notes.txt", "late.png"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []interface{}{"https://res.test/ok.png"}, body.Error.Details["uploaded"])
	assert.Equal(t, "notes.txt", body.Error.Details["file"])
	assert.Equal(t, []string{"ok.png"}, f.uploader.uploaded())
}

func TestAdminHandler_UploadTooLarge(t *testing.T) {
	f := newAdminFixture(t)

	big := make([]byte, upload.MaxFileSize+10)
	copy(big, pngHeader)
	w := f.upload(t, map[string][]byte{"big.png": big}, []string{"big.png"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.uploader.uploaded())
}

func TestAdminHandler_UploadTooManyFiles(t *testing.T) {
	f := newAdminFixture(t)

	files := map[string][]byte{}
	var order []string
	for i := 0; i <= MaxUploadFiles; i++ {
		name := fmt.Sprintf("img-%02d.png", i)
		files[name] = pngHeader
		order = append(order, name)
	}

	w := f.upload(t, files, order)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, validationFields(t, w), "files")
	assert.Empty(t, f.uploader.uploaded())

	delete(files, order[0])
	w = f.upload(t, files, order[1:])
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, f.uploader.uploaded(), MaxUploadFiles)
}

func TestAdminHandler_UploadProviderFailures(t *testing.T) {
	f := newAdminFixture(t)

	f.uploader.fail = map[string]error{"down.png": upload.ErrNotConfigured}
	w := f.upload(t, map[string][]byte{"down.png": pngHeader}, []string{"down.png"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	f.uploader.fail = map[string]error{"down.png": upload.ErrUploadFailed}
	w = f.upload(t, map[string][]byte{"down.png": pngHeader}, []string{"down.png"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestProperty_AdminCreateRoundTrip(t *testing.T) {
	f := newAdminFixture(t)
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 40
	properties := gopter.NewProperties(params)

	properties.Property("a created product is listed with the submitted fields", prop.ForAll(
		func(title string, cents int) bool {
			price := float64(cents) / 100
			w := f.do(t, http.MethodPost, "/api/admin/products", domain.ProductDraft{
				Title:     title,
				Price:     price,
				ImageURLs: []string{"https://img.test/" + title + ".jpg"},
			})
			if w.Code != http.StatusCreated {
				t.Logf("FAIL: create returned %d: %s", w.Code, w.Body.String())
				return false
			}

			var created domain.Product
			if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
				return false
			}

			stored, err := f.products.FindByID(context.Background(), created.ID)
			if err != nil {
				return false
			}
			return stored.Title == title && stored.Price == price
		},
		gen.Identifier(),
		gen.IntRange(1, 10_000_000),
	))

	properties.TestingRun(t)
}
