package handlers

import (
	"errors"
	"net/http"

	intentRepo "tripbot/database/repository/intent"
	"tripbot/models"
	"tripbot/services/payment"
	"tripbot/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var webhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payment_webhooks_received_total",
	Help: "Payment webhooks received, by gateway and result.",
}, []string{"gateway", "result"})

// PaymentWebhookHandler settles payment intents from gateway callbacks.
// The payload carries the transaction ref, a status and the gateway's
// signature over the remaining fields.
func PaymentWebhookHandler(orch payment.Orchestrator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		gatewayName := c.Param("gateway")
		gw, ok := orch.GatewayFor(gatewayName)
		if !ok {
			webhooksReceived.WithLabelValues(gatewayName, "unknown_gateway").Inc()
			utils.JSONError(c, http.StatusNotFound, "unknown gateway", "")
			return
		}

		var payload map[string]string
		if err := c.ShouldBindJSON(&payload); err != nil {
			webhooksReceived.WithLabelValues(gatewayName, "bad_payload").Inc()
			utils.JSONError(c, http.StatusBadRequest, "invalid payload", err.Error())
			return
		}

		if !gw.VerifyCallback(payload, payload["signature"]) {
			webhooksReceived.WithLabelValues(gatewayName, "bad_signature").Inc()
			logger.Warn("webhook signature mismatch",
				zap.String("gateway", gatewayName),
				zap.String("transaction_id", payload["transaction_id"]))
			utils.JSONError(c, http.StatusUnauthorized, "invalid signature", "")
			return
		}

		ref := payload["transaction_id"]
		if ref == "" {
			ref = payload["intent_ref"]
		}
		if ref == "" {
			webhooksReceived.WithLabelValues(gatewayName, "bad_payload").Inc()
			utils.JSONError(c, http.StatusBadRequest, "missing transaction reference", "")
			return
		}

		outcome := payment.NormalizeStatus(payload["status"])
		if outcome == models.IntentPending {
			// Nothing to settle yet; the poller keeps watching.
			webhooksReceived.WithLabelValues(gatewayName, "pending").Inc()
			c.JSON(http.StatusAccepted, gin.H{"status": "pending acknowledged"})
			return
		}

		err := orch.Resolve(c.Request.Context(), ref, outcome)
		switch {
		case err == nil:
			webhooksReceived.WithLabelValues(gatewayName, "resolved").Inc()
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		case errors.Is(err, intentRepo.ErrNotFound):
			webhooksReceived.WithLabelValues(gatewayName, "unknown_ref").Inc()
			utils.JSONError(c, http.StatusNotFound, "unknown transaction reference", "")
		case errors.Is(err, payment.ErrInvalidTransition):
			// A different outcome already settled this intent. Reject so
			// the gateway's operators notice the disagreement.
			webhooksReceived.WithLabelValues(gatewayName, "conflict").Inc()
			logger.Error("webhook outcome conflicts with settled intent",
				zap.String("gateway", gatewayName),
				zap.String("transaction_id", ref),
				zap.String("outcome", outcome))
			utils.JSONError(c, http.StatusConflict, "payment already settled", "")
		default:
			webhooksReceived.WithLabelValues(gatewayName, "error").Inc()
			logger.Error("failed to resolve payment from webhook",
				zap.String("gateway", gatewayName),
				zap.String("transaction_id", ref),
				zap.Error(err))
			utils.JSONError(c, http.StatusInternalServerError, "failed to process callback", "")
		}
	}
}
