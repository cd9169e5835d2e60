package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterOptions struct {
	// TraceService enables Datadog request spans under this service name.
	TraceService string
	Docs         bool
}

func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	if opts.TraceService != "" {
		r.Use(Tracing(opts.TraceService))
	}
	r.Use(Metrics())
	r.Use(AccessLog(h.Log))

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if opts.Docs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	rl := h.RateLimit()
	auth := h.RequireToken()

	api := r.Group("/api/auth")
	{
		api.POST("/register", rl, h.Register)
		api.POST("/login", rl, h.Login)
		api.POST("/logout", auth, h.Logout)
		api.POST("/forgot-password", rl, h.ForgotPassword)
		api.POST("/reset-password", rl, h.ResetPassword)
		api.POST("/send-verification", auth, rl, h.SendVerification)
		api.GET("/verify-email", h.VerifyEmail)
		api.POST("/magic-link", rl, h.SendMagicLink)
		api.GET("/magic-link/verify", h.VerifyMagicLink)
		api.GET("/google", h.GoogleLogin)
		api.GET("/google/callback", h.GoogleCallback)

		api.GET("/me", auth, h.Me)
		api.PATCH("/me", auth, h.UpdateMe)
		api.POST("/me/password", auth, rl, h.ChangePassword)
	}
	return r
}
