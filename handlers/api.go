package handlers

import (
	"net/http"
	"strconv"

	bookingRepo "tripbot/database/repository/booking"
	"tripbot/services/alerts"
	"tripbot/services/user"
	"tripbot/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const listLimit = 20

func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		utils.JSONError(c, http.StatusBadRequest, "invalid user id", "")
		return 0, false
	}
	return id, true
}

// ListBookingsHandler returns a user's bookings, newest first.
func ListBookingsHandler(bookings bookingRepo.BookingRepository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDParam(c)
		if !ok {
			return
		}

		list, err := bookings.ListByUser(userID, listLimit)
		if err != nil {
			logger.Error("failed to list bookings", zap.Int64("user_id", userID), zap.Error(err))
			utils.JSONError(c, http.StatusInternalServerError, "failed to list bookings", "")
			return
		}
		c.JSON(http.StatusOK, gin.H{"bookings": list})
	}
}

// ListAlertsHandler returns a user's price alerts, newest first.
func ListAlertsHandler(alertSvc alerts.AlertService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDParam(c)
		if !ok {
			return
		}

		list, err := alertSvc.List(c.Request.Context(), userID, listLimit)
		if err != nil {
			logger.Error("failed to list alerts", zap.Int64("user_id", userID), zap.Error(err))
			utils.JSONError(c, http.StatusInternalServerError, "failed to list alerts", "")
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": list})
	}
}

// UpdateContactHandler stores a user's email and phone after validation.
func UpdateContactHandler(users user.UserService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := userIDParam(c)
		if !ok {
			return
		}

		var req struct {
			Email string `json:"email"`
			Phone string `json:"phone"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.JSONError(c, http.StatusBadRequest, "invalid request", err.Error())
			return
		}

		if err := users.UpdateContact(userID, req.Email, req.Phone); err != nil {
			logger.Warn("contact update rejected", zap.Int64("user_id", userID), zap.Error(err))
			utils.JSONError(c, http.StatusBadRequest, err.Error(), "")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "updated"})
	}
}
