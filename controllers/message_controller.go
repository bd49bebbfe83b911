package controllers

import (
	"net/http"

	"production-dashboard/models"
	"production-dashboard/services"

	"github.com/gin-gonic/gin"
)

type MessageController struct {
	Session *services.Session
}

// @Summary List messages
// @Description Active messages for the signed-in user, newest first, without hidden broadcasts
// @Tags Messages
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.Response{data=[]models.Message}
// @Router /messages [get]
func (ctrl *MessageController) GetMessages(c *gin.Context) {
	c.JSON(http.StatusOK, models.Response{
		Success: true,
		Message: "Messages retrieved successfully",
		Data:    ctrl.Session.Messages.Visible(),
	})
}

// @Summary Hide broadcast message
// @Tags Messages
// @Security BearerAuth
// @Produce json
// @Param id path int true "Message ID"
// @Success 200 {object} models.Response
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /messages/{id}/hide [post]
func (ctrl *MessageController) HideMessage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := ctrl.Session.Messages.Hide(c.Request.Context(), id); err != nil {
		respondError(c, "Failed to hide message", err)
		return
	}

	c.JSON(http.StatusOK, models.Response{
		Success: true,
		Message: "Message hidden",
	})
}
