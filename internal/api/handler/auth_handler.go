package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nimbuslabs/identity-system/internal/api/metrics"
	"github.com/nimbuslabs/identity-system/internal/core/domain"
	"github.com/nimbuslabs/identity-system/internal/core/ports"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

// AuthHandler exposes the session lifecycle over HTTP. Tokens travel as
// http-only cookies; the refresh endpoint also accepts the token in the
// request body as a fallback for non-browser clients.
type AuthHandler struct {
	sessions   ports.SessionService
	cache      ports.ProfileCache
	sink       ports.SessionSink
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthHandler(sessions ports.SessionService, cache ports.ProfileCache, sink ports.SessionSink, accessTTL, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		sessions:   sessions,
		cache:      cache,
		sink:       sink,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type sessionResponse struct {
	User *domain.PublicUser `json:"user"`
}

// Register creates a new account.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Account details"
// @Success      201   {object}  sessionResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user, err := h.sessions.Register(c.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sessionResponse{User: user})
}

// Login authenticates by username or email and starts a session.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	pair, user, err := h.sessions.Login(c.Request().Context(), req.Identifier, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrInvalidCredentials):
			// Same answer for unknown account and wrong password, so the
			// endpoint cannot be used to enumerate accounts.
			metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		default:
			metrics.LoginsTotal.WithLabelValues("error").Inc()
			return err
		}
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	h.setSessionCookies(c, pair)
	h.record(domain.SessionEvent{UserID: user.ID, Kind: domain.SessionEventLogin, At: time.Now().UTC()})
	return c.JSON(http.StatusOK, sessionResponse{User: user})
}

// Refresh rotates the refresh token presented via cookie or body and issues
// a fresh token pair.
//
// @Summary      Refresh the session
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  false  "Fallback token source when the cookie is absent"
// @Success      200   {object}  sessionResponse
// @Failure      401   {object}  map[string]string
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	presented := h.refreshTokenFrom(c)

	pair, user, err := h.sessions.Refresh(c.Request().Context(), presented)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTokenReused):
			metrics.TokenRefreshesTotal.WithLabelValues("reused").Inc()
			metrics.TokenReuseDetectedTotal.Inc()
		case errors.Is(err, domain.ErrMissingToken),
			errors.Is(err, domain.ErrTokenInvalid),
			errors.Is(err, domain.ErrTokenExpired),
			errors.Is(err, domain.ErrUnknownUser):
			metrics.TokenRefreshesTotal.WithLabelValues("invalid_token").Inc()
		default:
			metrics.TokenRefreshesTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
	h.setSessionCookies(c, pair)
	h.record(domain.SessionEvent{UserID: user.ID, Kind: domain.SessionEventRefresh, At: time.Now().UTC()})
	return c.JSON(http.StatusOK, sessionResponse{User: user})
}

// Logout terminates the current session and clears both cookies.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      204  "session terminated"
// @Failure      401  {object}  map[string]string
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	if err := h.sessions.Logout(c.Request().Context(), userID); err != nil {
		return err
	}
	h.invalidateProfile(c, userID)
	h.clearSessionCookies(c)
	return c.NoContent(http.StatusNoContent)
}

// ChangePassword replaces the caller's password after verifying the old one.
//
// @Summary      Change password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      changePasswordRequest  true  "Old and new passwords"
// @Success      204   "password updated"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/password [put]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.sessions.ChangePassword(c.Request().Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}

	metrics.PasswordChangesTotal.Inc()
	h.invalidateProfile(c, userID)
	return c.NoContent(http.StatusNoContent)
}

// Me returns the public profile of the authenticated user, read through the
// profile cache.
//
// @Summary      Current user profile
// @Tags         auth
// @Produce      json
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  map[string]string
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if h.cache != nil {
		if cached, err := h.cache.Get(ctx, userID); err == nil && cached != nil {
			return c.JSON(http.StatusOK, sessionResponse{User: cached})
		}
	}

	user, err := h.sessions.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if h.cache != nil {
		// Cache failures degrade to store reads, never to request failures.
		_ = h.cache.Set(ctx, user)
	}
	return c.JSON(http.StatusOK, sessionResponse{User: user})
}

// refreshTokenFrom reads the refresh token from the cookie, falling back to
// the request body for callers that do not hold cookies.
func (h *AuthHandler) refreshTokenFrom(c echo.Context) string {
	if cookie, err := c.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

func (h *AuthHandler) setSessionCookies(c echo.Context, pair *domain.TokenPair) {
	c.SetCookie(sessionCookie(accessCookieName, pair.AccessToken, h.accessTTL))
	c.SetCookie(sessionCookie(refreshCookieName, pair.RefreshToken, h.refreshTTL))
}

func (h *AuthHandler) clearSessionCookies(c echo.Context) {
	c.SetCookie(expiredCookie(accessCookieName))
	c.SetCookie(expiredCookie(refreshCookieName))
}

func (h *AuthHandler) record(event domain.SessionEvent) {
	if h.sink != nil {
		h.sink.Enqueue(event)
	}
}

func (h *AuthHandler) invalidateProfile(c echo.Context, userID string) {
	if h.cache != nil {
		_ = h.cache.Invalidate(c.Request().Context(), userID)
	}
}

func sessionCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func expiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}
