package routes

import (
	"time"

	"tripbot/handlers"
	"tripbot/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterPaymentRoutes wires the gateway callback endpoint.
func RegisterPaymentRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.POST("/webhooks/payments/:gateway", hb.PaymentWebhookHandler)
}

// RegisterUserRoutes registers per-user data endpoints.
func RegisterUserRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/users")
	{
		api.GET("/:id/bookings", hb.ListBookingsHandler)
		api.GET("/:id/alerts", hb.ListAlertsHandler)
		api.PUT("/:id/contact", hb.UpdateContactHandler)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler)
}

// RegisterMetricsRoute exposes the prometheus counters.
func RegisterMetricsRoute(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// RegisterRoutes sets up global middleware and all endpoint groups.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	// Setup global middleware (e.g., CORS) here.
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RateLimitMiddleware())

	RegisterPaymentRoutes(r, hb)
	RegisterUserRoutes(r, hb)
	RegisterHealthRoute(r, hb)
	RegisterMetricsRoute(r)
}
