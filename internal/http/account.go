package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tazhibayda/authcore/internal/service"
)

// Me godoc
// @Summary Current user with providers and entitlement
// @Tags account
// @Security BearerAuth
// @Produce json
// @Success 200 {object} service.AccountView
// @Failure 401 {object} errorResp
// @Failure 404 {object} errorResp
// @Router /api/auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	v, err := h.Core.GetAccount(c.Request.Context(), c.GetString(accessTokenKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

type updateProfileReq struct {
	Name     *string        `json:"name"`
	Image    *string        `json:"image"`
	Email    *string        `json:"email"`
	Settings map[string]any `json:"settings"`
}

// UpdateMe godoc
// @Summary Update profile fields
// @Description Changing the email clears email_verified.
// @Tags account
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body updateProfileReq true "fields to change"
// @Success 200 {object} service.AccountView
// @Failure 400 {object} errorResp
// @Failure 401 {object} errorResp
// @Failure 409 {object} errorResp
// @Router /api/auth/me [patch]
func (h *Handler) UpdateMe(c *gin.Context) {
	var in updateProfileReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c)
		return
	}
	v, err := h.Core.UpdateProfile(c.Request.Context(), c.GetString(accessTokenKey), service.ProfileUpdate{
		Name: in.Name, Image: in.Image, Email: in.Email, Settings: in.Settings,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

type changePasswordReq struct {
	Current  string `json:"current"`
	Password string `json:"password"`
}

// ChangePassword godoc
// @Summary Change or set the password
// @Tags account
// @Security BearerAuth
// @Accept json
// @Param payload body changePasswordReq true "current and new password"
// @Success 204
// @Failure 400 {object} errorResp
// @Failure 401 {object} errorResp
// @Router /api/auth/me/password [post]
func (h *Handler) ChangePassword(c *gin.Context) {
	var in changePasswordReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badJSON(c)
		return
	}
	if len(in.Password) < 8 {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResp{Error: "password must be at least 8 characters"})
		return
	}
	if err := h.Core.ChangePassword(c.Request.Context(), c.GetString(accessTokenKey), in.Current, in.Password); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
