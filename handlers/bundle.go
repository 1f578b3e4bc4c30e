// File: tripbot/handlers/bundle.go
package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Payment endpoints
	PaymentWebhookHandler gin.HandlerFunc

	// Operational endpoints
	HealthHandler gin.HandlerFunc

	// Read-only user data endpoints
	ListBookingsHandler  gin.HandlerFunc
	ListAlertsHandler    gin.HandlerFunc
	UpdateContactHandler gin.HandlerFunc
}
