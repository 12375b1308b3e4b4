package transport

import (
	"context"
	"strings"
	"sync"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/upload"

	"github.com/google/uuid"
)

type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	for _, token := range m.tokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			n++
		}
	}
	return n, nil
}

// mockProductRepository is an in-memory product store that counts calls.
type mockProductRepository struct {
	mu       sync.Mutex
	products []*domain.Product
	calls    int
	failWith error
}

func newMockProductRepository(products ...*domain.Product) *mockProductRepository {
	return &mockProductRepository{products: products}
}

func (m *mockProductRepository) record() error {
	m.calls++
	return m.failWith
}

func (m *mockProductRepository) insert(draft domain.ProductDraft) *domain.Product {
	p := &domain.Product{
		ID:          strings.ReplaceAll(uuid.NewString(), "-", ""),
		Title:       draft.Title,
		Price:       draft.Price,
		Description: draft.Description,
		ImageURLs:   append([]string{}, draft.ImageURLs...),
	}
	m.products = append([]*domain.Product{p}, m.products...)
	return p
}

func (m *mockProductRepository) Create(ctx context.Context, draft domain.ProductDraft) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(); err != nil {
		return nil, err
	}
	return m.insert(draft), nil
}

func (m *mockProductRepository) BatchCreate(ctx context.Context, drafts []domain.ProductDraft) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(); err != nil {
		return nil, err
	}
	out := make([]*domain.Product, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, m.insert(d))
	}
	return out, nil
}

func (m *mockProductRepository) Update(ctx context.Context, id string, patch domain.ProductPatch) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(); err != nil {
		return nil, err
	}
	for i, p := range m.products {
		if p.ID == id {
			updated := patch.Apply(*p)
			m.products[i] = &updated
			return &updated, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockProductRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(); err != nil {
		return err
	}
	for i, p := range m.products {
		if p.ID == id {
			m.products = append(m.products[:i], m.products[i+1:]...)
			return nil
		}
	}
	return repository.ErrProductNotFound
}

func (m *mockProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(); err != nil {
		return nil, err
	}
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockProductRepository) ListAll(ctx context.Context) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(); err != nil {
		return nil, err
	}
	return append([]*domain.Product{}, m.products...), nil
}

func (m *mockProductRepository) List(ctx context.Context, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(); err != nil {
		return nil, 0, err
	}
	return pageOf(m.products, page, pageSize), len(m.products), nil
}

func (m *mockProductRepository) Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(); err != nil {
		return nil, 0, err
	}
	var matched []*domain.Product
	for _, p := range m.products {
		if containsFold(p.Title, query) || containsFold(p.Description, query) {
			matched = append(matched, p)
		}
	}
	return pageOf(matched, page, pageSize), len(matched), nil
}

func (m *mockProductRepository) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func pageOf(products []*domain.Product, page, pageSize int) []*domain.Product {
	start := (page - 1) * pageSize
	if start < 0 || start >= len(products) {
		return []*domain.Product{}
	}
	end := start + pageSize
	if end > len(products) {
		end = len(products)
	}
	return append([]*domain.Product{}, products[start:end]...)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

type stubUploader struct {
	mu    sync.Mutex
	names []string
	fail  map[string]error
}

func (s *stubUploader) Upload(ctx context.Context, file upload.File) (string, error) {
	if err := upload.Validate(file); err != nil {
		return "", err
	}
	if err := s.fail[file.Name]; err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, file.Name)
	return "https://res.test/" + file.Name, nil
}

func (s *stubUploader) uploaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.names...)
}
