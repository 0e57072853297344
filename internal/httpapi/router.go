package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sofialabs/sofia-bot/internal/common"
	"github.com/sofialabs/sofia-bot/internal/config"
	"github.com/sofialabs/sofia-bot/internal/httpapi/handlers"
	"github.com/sofialabs/sofia-bot/internal/httpapi/middleware"
)

func NewRouter(cfg config.Config, h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	// Inbound transport.
	r.GET("/webhooks/whatsapp", h.VerifyWebhook)
	r.POST("/webhooks/whatsapp", h.ReceiveWebhook)

	// Billing events (raw body needed for signature verification).
	r.POST("/payment/webhook/stripe", h.ReceiveBillingWebhook)

	// Ops surface (JWT required past login).
	r.POST("/ops/login", h.Login)
	ops := r.Group("/ops")
	ops.Use(middleware.AuthRequired(cfg.JWTSecret))
	ops.GET("/users/:id", h.GetUser)
	ops.GET("/users/:id/subscription", h.GetUserSubscription)
	ops.GET("/users/:id/turns", h.GetUserTurns)

	return r
}
