package handlers

import (
	"net/http"

	"tripbot/utils"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports the latest dependency health snapshot. The
// monitor refreshes it in the background, so this never blocks on a
// slow dependency.
func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := utils.GetHealthStatus()

		healthy := status.Mongo
		for _, ok := range status.Redis {
			healthy = healthy && ok
		}

		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": statusWord(healthy), "checks": status})
	}
}

func statusWord(healthy bool) string {
	if healthy {
		return "ok"
	}
	return "degraded"
}
