package transport

import (
	"errors"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest represents the token refresh and logout payload
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         UserProfile `json:"user"`
}

// RefreshResponse represents the token refresh response
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// UserProfile is the signed in user as seen by clients
type UserProfile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func profileOf(user *domain.User) UserProfile {
	return UserProfile{
		ID:          user.ID.String(),
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
	}
}

// AuthHandler handles sign in, sign out and the current user
type AuthHandler struct {
	authService service.AuthService
	logger      *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// RegisterRoutes registers the auth routes. loginLimiter wraps only the
// login endpoint.
func (h *AuthHandler) RegisterRoutes(r chi.Router, authMiddleware, loginLimiter func(http.Handler) http.Handler) {
	r.Route("/api/auth", func(r chi.Router) {
		r.With(loginLimiter).Post("/login", h.Login)
		r.Post("/refresh", h.RefreshToken)
		r.Post("/logout", h.Logout)

		r.With(authMiddleware).Get("/me", h.Me)
		r.With(authMiddleware).Post("/logout-all", h.LogoutAll)
	})
}

// Login handles email/password sign in
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	accessToken, refreshToken, user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.logger.Debug("Login failed", zap.Error(err))
			middleware.RespondWithError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}

		h.logger.Error("Login failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	h.logger.Info("User logged in", zap.String("user_id", user.ID.String()))
	middleware.RespondWithJSON(w, http.StatusOK, LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         profileOf(user),
	})
}

// Logout revokes the refresh token. Unknown tokens are treated as already
// signed out.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	if err := h.authService.Logout(r.Context(), req.RefreshToken); err != nil {
		h.logger.Error("Logout failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
}

// LogoutAllResponse reports how many sessions were ended
type LogoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}

// LogoutAll ends every session of the signed in user
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	n, err := h.authService.LogoutAll(r.Context(), userID)
	if err != nil {
		h.logger.Error("Logout everywhere failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, LogoutAllResponse{Revoked: n})
}

// RefreshToken exchanges a refresh token for a new access token
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	newAccessToken, err := h.authService.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			middleware.RespondWithError(w, http.StatusUnauthorized, "invalid refresh token")
		case errors.Is(err, service.ErrTokenExpired):
			middleware.RespondWithError(w, http.StatusUnauthorized, "refresh token expired")
		default:
			h.logger.Error("Token refresh failed", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to refresh token")
		}
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, RefreshResponse{AccessToken: newAccessToken})
}

// Me returns the signed in user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUserID(w, r)
	if !ok {
		return
	}

	user, err := h.authService.CurrentUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			middleware.RespondWithError(w, http.StatusUnauthorized, "user no longer exists")
			return
		}
		h.logger.Error("Failed to load current user", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, profileOf(user))
}

// currentUserID reads the user id the auth middleware stored, writing the 401
// itself when it is missing or malformed.
func (h *AuthHandler) currentUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userIDStr, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		h.logger.Warn("Invalid user ID in token", zap.String("user_id", userIDStr))
		middleware.RespondWithError(w, http.StatusUnauthorized, "invalid token claims")
		return uuid.Nil, false
	}

	return userID, true
}
