package controllers

import (
	"errors"
	"net/http"

	"production-dashboard/media"
	"production-dashboard/models"
	"production-dashboard/services"

	"github.com/gin-gonic/gin"
)

const maxViewportRows = 500

type MediaController struct {
	Session *services.Session
}

// @Summary Order design media
// @Description Resolves a mockup or print file, fetching the full order when the list stripped it
// @Tags Media
// @Security BearerAuth
// @Produce json
// @Param orderId path int true "Order ID"
// @Param designId path int true "Design ID"
// @Param kind query string false "mockup or print_file"
// @Success 200 {object} models.Response{data=models.MediaResponse}
// @Failure 404 {object} models.Response{data=models.MediaResponse}
// @Router /media/orders/{orderId}/designs/{designId} [get]
func (ctrl *MediaController) GetMedia(c *gin.Context) {
	orderID, ok := parseID(c, "orderId")
	if !ok {
		return
	}
	designID, ok := parseID(c, "designId")
	if !ok {
		return
	}
	kind, err := media.ParseKind(c.Query("kind"))
	if err != nil {
		respondError(c, "Invalid media kind", err)
		return
	}

	key := media.Key{OrderID: orderID, DesignID: designID, Kind: kind}
	resp := models.MediaResponse{OrderID: orderID, DesignID: designID, Kind: string(kind)}

	url, err := ctrl.Session.Loader.Request(c.Request.Context(), key)
	if errors.Is(err, media.ErrUnavailable) {
		c.JSON(http.StatusNotFound, models.Response{
			Success: false,
			Message: "Media unavailable",
			Data:    resp,
		})
		return
	}
	if err != nil {
		respondError(c, "Failed to load media", err)
		return
	}

	resp.URL = url
	resp.Available = true
	c.Header("Cache-Control", "private, max-age=300")
	c.JSON(http.StatusOK, models.Response{
		Success: true,
		Message: "Media retrieved successfully",
		Data:    resp,
	})
}

// @Summary Report visible rows
// @Description Registers the media of the listed rows and requests the ones in view plus the lead rows
// @Tags Media
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body models.ViewportRequest true "Rows and visible range"
// @Success 202 {object} models.Response{data=[]models.MediaResponse}
// @Router /media/viewport [post]
func (ctrl *MediaController) Viewport(c *gin.Context) {
	var req models.ViewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request body",
			Error:   err.Error(),
		})
		return
	}

	if req.First < 0 || req.Last < req.First || req.Last-req.First > maxViewportRows {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid row range",
		})
		return
	}
	if len(req.Rows) > maxViewportRows {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Too many rows",
		})
		return
	}

	rows := map[int][]media.Key{}
	for _, row := range req.Rows {
		kind, err := media.ParseKind(row.Kind)
		if err != nil {
			respondError(c, "Invalid media kind", err)
			return
		}
		key := media.Key{OrderID: row.OrderID, DesignID: row.DesignID, Kind: kind}
		if err := key.Validate(); err != nil {
			respondError(c, "Invalid media row", err)
			return
		}
		rows[row.Index] = append(rows[row.Index], key)
	}

	viewport := ctrl.Session.Viewport
	for index, keys := range rows {
		viewport.Observe(index, keys...)
	}
	requested := viewport.Scroll(req.First, req.Last)

	out := make([]models.MediaResponse, 0, len(requested))
	for _, key := range requested {
		resp := models.MediaResponse{OrderID: key.OrderID, DesignID: key.DesignID, Kind: string(key.Kind)}
		if url, ok := ctrl.Session.Loader.Peek(c.Request.Context(), key); ok {
			resp.URL = url
			resp.Available = true
		}
		out = append(out, resp)
	}

	c.JSON(http.StatusAccepted, models.Response{
		Success: true,
		Message: "Media requested",
		Data:    out,
	})
}
