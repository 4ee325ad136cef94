package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/researchlab/labsite/internal/admin"
	"github.com/researchlab/labsite/internal/apierror"
	"github.com/researchlab/labsite/internal/config"
	"github.com/researchlab/labsite/internal/sessions"
	"github.com/researchlab/labsite/internal/tokens"
	"github.com/researchlab/labsite/pkg/logger"
	"github.com/researchlab/labsite/pkg/middleware"
)

// LoginRequest is the admin dashboard sign-in form.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries the refresh token issued at login.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	creds      admin.Credentials
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	sessions   *sessions.Service
	blacklist  *sessions.Blacklist
}

func NewAuthHandler(cfg *config.Config, s *sessions.Service, bl *sessions.Blacklist) *AuthHandler {
	h := &AuthHandler{
		creds: admin.Credentials{
			Username:     cfg.Admin.Username,
			Password:     cfg.Admin.Password,
			PasswordHash: cfg.Admin.PasswordHash,
		},
		secret:     cfg.JWT.Secret,
		accessTTL:  cfg.JWT.AccessTokenTTL,
		refreshTTL: cfg.JWT.RefreshTokenTTL,
		sessions:   s,
		blacklist:  bl,
	}
	if h.accessTTL <= 0 {
		h.accessTTL = 15 * time.Minute
	}
	if h.refreshTTL <= 0 {
		h.refreshTTL = 7 * 24 * time.Hour
	}
	return h
}

// Register routes under /auth. auth guards the endpoints that need a session.
func (h *AuthHandler) Register(rg gin.IRouter, auth gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
	a.POST("/logout-all", auth, h.LogoutAll)
	a.GET("/me", auth, h.Me)
}

// Login checks the admin credentials and returns an access token plus a refresh token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Handle(c, apierror.BadRequest(err))
		return
	}
	sub, err := h.creds.Authenticate(req.Username, req.Password)
	if errors.Is(err, admin.ErrNotConfigured) {
		logger.Errorf("login attempted but ADMIN_PASSWORD / ADMIN_PASSWORD_HASH is not set")
		apierror.Handle(c, apierror.Internal(err))
		return
	}
	if err != nil {
		logger.Warnf("failed admin login for %q from %s", req.Username, c.ClientIP())
		apierror.Handle(c, err)
		return
	}

	access, err := tokens.GenerateAccessToken(h.secret, sub, h.accessTTL)
	if err != nil {
		apierror.Handle(c, apierror.Internal(err))
		return
	}
	rft, err := h.sessions.CreateSession(c.Request.Context(), sub, h.refreshTTL)
	if err != nil {
		logger.Errorf("failed to create session: %v", err)
		apierror.Handle(c, apierror.Internal(err))
		return
	}
	logger.Infof("admin %s logged in from %s", sub, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  access,
		"refreshToken": rft,
		"expiresIn":    int(h.accessTTL.Seconds()),
		"user":         gin.H{"username": sub},
	})
}

// Refresh trades a refresh token for a new access token and a new refresh
// token; the presented one cannot be used again.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Handle(c, apierror.BadRequest(err))
		return
	}
	sess, next, err := h.sessions.Rotate(c.Request.Context(), req.RefreshToken, h.refreshTTL)
	if err != nil {
		apierror.Handle(c, apierror.Internal(err))
		return
	}
	if sess == nil {
		apierror.Handle(c, apierror.Unauthorized(errors.New("invalid refresh token")))
		return
	}
	access, err := tokens.GenerateAccessToken(h.secret, sess.Sub, h.accessTTL)
	if err != nil {
		apierror.Handle(c, apierror.Internal(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  access,
		"refreshToken": next,
		"expiresIn":    int(h.accessTTL.Seconds()),
	})
}

// revokeBearer blacklists the presented access token until it would have
// expired anyway.
func (h *AuthHandler) revokeBearer(c *gin.Context) error {
	at, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok || h.blacklist == nil {
		return nil
	}
	exp, err := tokens.ExpiresAt(at)
	if err != nil {
		return nil
	}
	return h.blacklist.Revoke(c.Request.Context(), at, time.Until(exp))
}

// Logout drops the refresh session and revokes the presented access token.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.revokeBearer(c); err != nil {
		apierror.Handle(c, apierror.Internal(err))
		return
	}
	if req.RefreshToken != "" {
		if err := h.sessions.DeleteRefresh(c.Request.Context(), req.RefreshToken); err != nil {
			apierror.Handle(c, apierror.Internal(err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// LogoutAll ends every refresh session of the signed-in admin, e.g. after a
// password change. Access tokens issued elsewhere stay valid until they expire.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	sub, _ := admin.Principal(c.Request.Context())
	if err := h.revokeBearer(c); err != nil {
		apierror.Handle(c, apierror.Internal(err))
		return
	}
	n, err := h.sessions.RevokeAll(c.Request.Context(), sub)
	if err != nil {
		apierror.Handle(c, apierror.Internal(err))
		return
	}
	logger.Infof("admin %s ended %d sessions", sub, n)
	c.JSON(http.StatusOK, gin.H{"message": "logged out everywhere", "sessions": n})
}

// Me returns the authenticated admin and the token claims.
func (h *AuthHandler) Me(c *gin.Context) {
	sub, _ := admin.Principal(c.Request.Context())
	claims, _ := c.Get(middleware.ClaimsKey)
	c.JSON(http.StatusOK, gin.H{"username": sub, "claims": claims})
}
