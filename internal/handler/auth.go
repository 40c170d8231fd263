package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/csfest/vendor-booking/internal/auth"
	"github.com/csfest/vendor-booking/internal/config"
	"github.com/csfest/vendor-booking/internal/fault"
	"github.com/csfest/vendor-booking/internal/middleware"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/repository"
	"github.com/csfest/vendor-booking/internal/utils"
)

// AuthHandler bundles the dependencies for the account endpoints.
// Besides issuing tokens, a successful login also writes the session
// principal into the key-value store so the map pages (and other open
// tabs) pick up the identity change.
type AuthHandler struct {
	Cfg      config.Config
	Users    *repository.UserRepo
	Tokens   *repository.TokenRepo
	Sessions *auth.SessionProvider
}

// NewAuthHandler constructs an AuthHandler. Sessions may be nil when
// no key-value store is configured; login then only issues tokens.
func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, s *auth.SessionProvider) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Sessions: s}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

// Register creates a new account. New accounts start with the viewer
// flag only; edit and admin are granted by an admin afterwards.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name, email and a password of at least 8 characters are required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	id, err := h.Users.Create(ctx, req.Name, req.Email, req.Password, []string{model.FlagViewer}, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, fault.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create account"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id, "email": req.Email})
}

// Login verifies credentials, issues an access/refresh token pair and
// records the principal as the current session in the key-value
// store.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	pair, err := h.issuePair(c, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	if err := h.Users.TouchLogin(ctx, u.ID); err != nil {
		c.Logger().Warnf("touch last_login: %v", err)
	}
	if h.Sessions != nil {
		if err := h.Sessions.SignIn(ctx, u.Principal()); err != nil {
			c.Logger().Warnf("session sign-in: %v", err)
		}
	}
	return c.JSON(http.StatusOK, pair)
}

// Refresh rotates a refresh token: the presented token is revoked and
// a fresh pair is issued. An unknown or expired token is rejected.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	hash := utils.HashRefreshRaw(req.RefreshToken)
	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	pair, err := h.issuePair(c, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	return c.JSON(http.StatusOK, pair)
}

// Logout revokes the presented refresh token and clears the session
// identity from the key-value store, which every open tab observes.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err == nil && req.RefreshToken != "" {
		ctx, cancel := reqCtx(c)
		defer cancel()
		if err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(req.RefreshToken)); err != nil {
			c.Logger().Warnf("revoke refresh token: %v", err)
		}
		if h.Sessions != nil {
			if err := h.Sessions.SignOut(ctx); err != nil {
				c.Logger().Warnf("session sign-out: %v", err)
			}
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Me returns the acting principal rebuilt from the access token.
func (h *AuthHandler) Me(c echo.Context) error {
	p := middleware.CurrentPrincipal(c)
	if p == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	return c.JSON(http.StatusOK, p)
}

// issuePair mints an access token plus a stored refresh token for u.
func (h *AuthHandler) issuePair(c echo.Context, u model.User) (tokenPair, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Name, u.Email, u.Flags, h.Cfg.AccessTTLMin)
	if err != nil {
		return tokenPair{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return tokenPair{}, err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return tokenPair{}, err
	}
	return tokenPair{
		AccessToken:  access.Token,
		RefreshToken: refresh.Raw,
		ExpiresAt:    access.Exp.Format(time.RFC3339),
	}, nil
}
