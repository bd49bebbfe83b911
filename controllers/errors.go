package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"production-dashboard/lifecycle"
	"production-dashboard/media"
	"production-dashboard/models"
	"production-dashboard/repositories"
	"production-dashboard/services"

	"github.com/gin-gonic/gin"
)

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid " + param,
		})
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	var apiErr *repositories.APIError
	switch {
	case errors.Is(err, services.ErrActionNotAllowed):
		return http.StatusConflict
	case errors.Is(err, services.ErrStatusNotWatched),
		errors.Is(err, services.ErrNotBroadcast),
		errors.Is(err, lifecycle.ErrUnknownStatus),
		errors.Is(err, lifecycle.ErrUnknownAction),
		errors.Is(err, media.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrMessageNotFound),
		errors.Is(err, media.ErrUnavailable):
		return http.StatusNotFound
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, services.ErrTransitionFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, message string, err error) {
	c.JSON(statusFor(err), models.ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}
