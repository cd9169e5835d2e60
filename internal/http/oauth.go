package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tazhibayda/authcore/internal/domain"
	applog "github.com/tazhibayda/authcore/internal/log"
	"go.uber.org/zap"
)

const stateCookie = "oauth_state"

// OAuthProvider is the authorization-code handshake of an external identity
// provider. *oauth.GoogleOAuth implements it.
type OAuthProvider interface {
	NewState() (string, error)
	VerifyState(state string) bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*domain.OAuthProfile, error)
}

// GoogleLogin godoc
// @Summary Start Google sign-in
// @Tags oauth
// @Success 302
// @Failure 404 {object} errorResp
// @Router /api/auth/google [get]
func (h *Handler) GoogleLogin(c *gin.Context) {
	if h.Google == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResp{Error: "google login is not configured"})
		return
	}
	state, err := h.Google.NewState()
	if err != nil {
		h.fail(c, domain.Internal("oauth state", err))
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, int((10 * time.Minute).Seconds()), "/api/auth/google", h.Cookie.Domain, h.Cookie.Secure, true)
	c.Redirect(http.StatusFound, h.Google.AuthURL(state))
}

// GoogleCallback godoc
// @Summary Finish Google sign-in
// @Tags oauth
// @Produce json
// @Param state query string true "state"
// @Param code query string true "authorization code"
// @Success 200 {object} sessionResp
// @Failure 400 {object} errorResp
// @Failure 401 {object} errorResp
// @Router /api/auth/google/callback [get]
func (h *Handler) GoogleCallback(c *gin.Context) {
	if h.Google == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResp{Error: "google login is not configured"})
		return
	}
	state := c.Query("state")
	stored, _ := c.Cookie(stateCookie)
	if state == "" || state != stored || !h.Google.VerifyState(state) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: "invalid oauth state"})
		return
	}
	c.SetCookie(stateCookie, "", -1, "/api/auth/google", h.Cookie.Domain, h.Cookie.Secure, true)

	code := c.Query("code")
	if code == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: "missing code"})
		return
	}
	ctx := c.Request.Context()
	var profile *domain.OAuthProfile
	err := WithSpan(ctx, "oauth.google.exchange", func(ctx context.Context) (err error) {
		profile, err = h.Google.Exchange(ctx, code)
		return err
	})
	if err != nil {
		applog.WithDD(ctx, h.Log).Info("google exchange rejected", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResp{Error: "google sign-in failed"})
		return
	}
	s, err := h.Core.CompleteOAuth(ctx, *profile)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondSession(c, http.StatusOK, s)
}
