package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tazhibayda/authcore/internal/domain"
	applog "github.com/tazhibayda/authcore/internal/log"
	"github.com/tazhibayda/authcore/internal/service"
	"go.uber.org/zap"
)

// CookieConfig describes the access-token cookie set on every login.
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
	MaxAge time.Duration
}

type Handler struct {
	Core    *service.Core
	Google  OAuthProvider // nil when Google login is not configured
	Limiter Limiter       // nil disables rate limiting
	Cookie  CookieConfig
	Log     *zap.Logger
}

func NewHandler(core *service.Core, cookie CookieConfig, lg *zap.Logger) *Handler {
	if cookie.Name == "" {
		cookie.Name = "access_token"
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Handler{Core: core, Cookie: cookie, Log: lg}
}

type errorResp struct {
	Error string `json:"error"`
}

// fail renders err with the status of its kind. Internal details never
// leave the process.
func (h *Handler) fail(c *gin.Context, err error) {
	status := domain.StatusOf(err)
	msg := "internal error"
	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindInternal {
		msg = de.Msg
	}
	if status >= http.StatusInternalServerError {
		applog.WithDD(c.Request.Context(), h.Log).Error("request failed",
			zap.String("route", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorResp{Error: msg})
}

func badJSON(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: "invalid json"})
}

type userResp struct {
	ID            string      `json:"id"`
	Email         string      `json:"email"`
	Name          string      `json:"name"`
	Image         string      `json:"image,omitempty"`
	Role          domain.Role `json:"role"`
	EmailVerified bool        `json:"email_verified"`
}

type sessionResp struct {
	Access           string          `json:"access"`
	AccessExpiresAt  time.Time       `json:"access_expires_at"`
	Refresh          string          `json:"refresh"`
	RefreshExpiresAt time.Time       `json:"refresh_expires_at"`
	Provider         domain.Provider `json:"provider"`
	NewUser          bool            `json:"new_user"`
	User             userResp        `json:"user"`
}

// respondSession sets the session cookie and writes the token pair.
func (h *Handler) respondSession(c *gin.Context, status int, s *service.Session) {
	h.setSessionCookie(c, s.Tokens.AccessToken)
	c.JSON(status, sessionResp{
		Access:           s.Tokens.AccessToken,
		AccessExpiresAt:  s.Tokens.AccessExpiresAt,
		Refresh:          s.Tokens.RefreshToken,
		RefreshExpiresAt: s.Tokens.RefreshExpiresAt,
		Provider:         s.Provider,
		NewUser:          s.NewUser,
		User: userResp{
			ID:            s.User.ID.Hex(),
			Email:         s.User.Email,
			Name:          s.User.Name,
			Image:         s.User.Image,
			Role:          s.User.Role,
			EmailVerified: s.User.EmailVerified,
		},
	})
}

func (h *Handler) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(h.Cookie.Name, token, int(h.Cookie.MaxAge.Seconds()), "/", h.Cookie.Domain, h.Cookie.Secure, true)
}

func (h *Handler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(h.Cookie.Name, "", -1, "/", h.Cookie.Domain, h.Cookie.Secure, true)
}

// accessToken takes the bearer header first, then the session cookie.
func (h *Handler) accessToken(c *gin.Context) string {
	if hdr := c.GetHeader("Authorization"); len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
		return strings.TrimSpace(hdr[7:])
	}
	if v, err := c.Cookie(h.Cookie.Name); err == nil {
		return v
	}
	return ""
}

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Register godoc
// @Summary Register user
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body registerReq true "register"
// @Success 201 {object} sessionResp
// @Failure 400 {object} errorResp
// @Failure 409 {object} errorResp
// @Router /api/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var in registerReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c)
		return
	}
	if len(in.Password) < 8 {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: "password must be at least 8 characters"})
		return
	}
	s, err := h.Core.Register(c.Request.Context(), service.RegisterInput{
		Email: in.Email, Password: in.Password, Name: in.Name,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondSession(c, http.StatusCreated, s)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login godoc
// @Summary Login with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param payload body loginReq true "login"
// @Success 200 {object} sessionResp
// @Failure 400 {object} errorResp
// @Failure 401 {object} errorResp
// @Router /api/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var in loginReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c)
		return
	}
	s, err := h.Core.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondSession(c, http.StatusOK, s)
}

// Logout godoc
// @Summary Revoke the current session
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} errorResp
// @Router /api/auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	if err := h.Core.Logout(c.Request.Context(), c.GetString(accessTokenKey)); err != nil {
		h.fail(c, err)
		return
	}
	h.clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

type forgotReq struct {
	Email string `json:"email"`
}

// ForgotPassword godoc
// @Summary Request a password reset email
// @Description Always answers 202 whether or not the account exists.
// @Tags auth
// @Accept json
// @Param payload body forgotReq true "email"
// @Success 202
// @Failure 400 {object} errorResp
// @Router /api/auth/forgot-password [post]
func (h *Handler) ForgotPassword(c *gin.Context) {
	var in forgotReq
	if err := c.ShouldBindJSON(&in); err != nil || strings.TrimSpace(in.Email) == "" {
		badJSON(c)
		return
	}
	if _, err := h.Core.ForgotPassword(c.Request.Context(), in.Email); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

type resetReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword godoc
// @Summary Set a new password from a reset token
// @Tags auth
// @Accept json
// @Param payload body resetReq true "token and new password"
// @Success 204
// @Failure 400 {object} errorResp
// @Failure 401 {object} errorResp
// @Router /api/auth/reset-password [post]
func (h *Handler) ResetPassword(c *gin.Context) {
	var in resetReq
	if err := c.ShouldBindJSON(&in); err != nil || in.Token == "" {
		badJSON(c)
		return
	}
	if len(in.Password) < 8 {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: "password must be at least 8 characters"})
		return
	}
	if err := h.Core.ResetPassword(c.Request.Context(), in.Token, in.Password); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendVerification godoc
// @Summary Send the verify-email message again
// @Tags auth
// @Security BearerAuth
// @Success 202
// @Failure 401 {object} errorResp
// @Router /api/auth/send-verification [post]
func (h *Handler) SendVerification(c *gin.Context) {
	if err := h.Core.SendVerificationEmail(c.Request.Context(), c.GetString(accessTokenKey)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
}

// VerifyEmail godoc
// @Summary Confirm an email address
// @Tags auth
// @Param token query string true "verify-email token"
// @Success 200 {object} map[string]any
// @Failure 401 {object} errorResp
// @Router /api/auth/verify-email [get]
func (h *Handler) VerifyEmail(c *gin.Context) {
	tok := c.Query("token")
	if tok == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: "token is required"})
		return
	}
	u, err := h.Core.VerifyEmail(c.Request.Context(), tok)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": u.Email, "email_verified": u.EmailVerified})
}

type magicLinkReq struct {
	Email string `json:"email"`
}

// SendMagicLink godoc
// @Summary Email a one-time sign-in link
// @Tags auth
// @Accept json
// @Param payload body magicLinkReq true "email"
// @Success 202
// @Failure 400 {object} errorResp
// @Router /api/auth/magic-link [post]
func (h *Handler) SendMagicLink(c *gin.Context) {
	var in magicLinkReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c)
		return
	}
	if err := h.Core.SendMagicLink(c.Request.Context(), in.Email); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// VerifyMagicLink godoc
// @Summary Sign in with a magic-link token
// @Tags auth
// @Produce json
// @Param token query string true "magic-link token"
// @Success 200 {object} sessionResp
// @Failure 401 {object} errorResp
// @Router /api/auth/magic-link/verify [get]
func (h *Handler) VerifyMagicLink(c *gin.Context) {
	tok := c.Query("token")
	if tok == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: "token is required"})
		return
	}
	s, err := h.Core.VerifyMagicLink(c.Request.Context(), tok)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondSession(c, http.StatusOK, s)
}

func (h *Handler) Healthz(c *gin.Context) {
	if err := h.Core.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
