package controllers

import (
	"io"
	"net/http"
	"time"

	"production-dashboard/lifecycle"
	"production-dashboard/models"
	"production-dashboard/repositories"
	"production-dashboard/services"

	"github.com/gin-gonic/gin"
)

type DashboardController struct {
	Session *services.Session
}

// @Summary Dashboard overview
// @Description Role, live connection state and order counts per watched status
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.Response{data=models.DashboardSummary}
// @Router /dashboard [get]
func (ctrl *DashboardController) GetDashboard(c *gin.Context) {
	summary := ctrl.Session.Dashboard.Summary(ctrl.Session.Manager.Snapshot())
	c.JSON(http.StatusOK, models.Response{
		Success: true,
		Message: "Dashboard retrieved successfully",
		Data: gin.H{
			"role":    ctrl.Session.Policy.Role,
			"summary": summary,
		},
	})
}

// @Summary List orders
// @Description Orders of one watched status, or of all of them, filtered by search text
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Param status query string false "Order status"
// @Param search query string false "Order number, customer name or phone"
// @Param date query string false "Day to list (YYYY-MM-DD)"
// @Param mine query bool false "Only orders assigned to the signed-in preparer"
// @Success 200 {object} models.Response{data=[]models.Order}
// @Failure 400 {object} models.ErrorResponse
// @Router /dashboard/orders [get]
func (ctrl *DashboardController) GetOrders(c *gin.Context) {
	var query models.OrderListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid query",
			Error:   err.Error(),
		})
		return
	}

	if c.Request.URL.Query().Has("date") {
		if !ctrl.applyDate(c, query.Date) {
			return
		}
	}

	var (
		orders []models.Order
		err    error
	)
	if query.Mine {
		orders, err = ctrl.Session.Dashboard.AssignedOrders(c.Request.Context(), query.Status, query.Search)
	} else {
		orders, err = ctrl.Session.Dashboard.FilteredOrders(query.Status, query.Search)
	}
	if err != nil {
		respondError(c, "Failed to list orders", err)
		return
	}

	c.JSON(http.StatusOK, models.Response{
		Success: true,
		Message: "Orders retrieved successfully",
		Data:    orders,
	})
}

// applyDate switches the dashboard to another day and reloads the lists
// when the day changed. An empty value goes back to all days.
func (ctrl *DashboardController) applyDate(c *gin.Context, raw string) bool {
	var date *time.Time
	if raw != "" {
		d, err := time.Parse(repositories.DateLayout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Message: "Invalid date, expected YYYY-MM-DD",
				Error:   err.Error(),
			})
			return false
		}
		date = &d
	}

	current := ctrl.Session.Dashboard.Date()
	if sameDay(current, date) {
		return true
	}
	ctrl.Session.Dashboard.SetDate(date)
	if err := ctrl.Session.Dashboard.Refresh(c.Request.Context()); err != nil {
		respondError(c, "Failed to load orders for date", err)
		return false
	}
	return true
}

func sameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format(repositories.DateLayout) == b.Format(repositories.DateLayout)
}

// @Summary Order actions
// @Description Fetches the order and lists the actions this user gets for it
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} models.Response
// @Failure 404 {object} models.ErrorResponse
// @Router /dashboard/orders/{id}/actions [get]
func (ctrl *DashboardController) GetActions(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	order, actions, err := ctrl.Session.Dashboard.Actions(c.Request.Context(), id)
	if err != nil {
		respondError(c, "Failed to load order", err)
		return
	}

	c.JSON(http.StatusOK, models.Response{
		Success: true,
		Message: "Actions retrieved successfully",
		Data: gin.H{
			"order":   order,
			"actions": actions,
		},
	})
}

// @Summary Perform order action
// @Description Moves the order to its next status. The lists are refreshed whatever the outcome.
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Param id path int true "Order ID"
// @Param action path string true "Action name"
// @Success 200 {object} models.Response{data=models.Order}
// @Failure 409 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /dashboard/orders/{id}/actions/{action} [post]
func (ctrl *DashboardController) PerformAction(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	action := lifecycle.Action(c.Param("action"))

	order, err := ctrl.Session.Dashboard.Transition(c.Request.Context(), id, action)
	if err != nil {
		respondError(c, "Failed to update order", err)
		return
	}

	c.JSON(http.StatusOK, models.Response{
		Success: true,
		Message: "Order updated successfully",
		Data:    order,
	})
}

// @Summary Update order notes
// @Tags Dashboard
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param request body models.UpdateNotesRequest true "Notes"
// @Success 200 {object} models.Response
// @Router /dashboard/orders/{id}/notes [patch]
func (ctrl *DashboardController) UpdateNotes(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request body",
			Error:   err.Error(),
		})
		return
	}

	if err := ctrl.Session.Dashboard.UpdateNotes(c.Request.Context(), id, req.Notes); err != nil {
		respondError(c, "Failed to update notes", err)
		return
	}

	c.JSON(http.StatusOK, models.Response{
		Success: true,
		Message: "Notes updated successfully",
	})
}

// @Summary Ship orders
// @Description Creates shipments for completed orders
// @Tags Dashboard
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body models.CreateShipmentsRequest true "Orders to ship"
// @Success 201 {object} models.Response{data=[]models.Shipment}
// @Failure 409 {object} models.ErrorResponse
// @Router /dashboard/shipments [post]
func (ctrl *DashboardController) CreateShipments(c *gin.Context) {
	var req models.CreateShipmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Message: "Invalid request body",
			Error:   err.Error(),
		})
		return
	}

	shipments, err := ctrl.Session.Dashboard.CreateShipments(c.Request.Context(), req.OrderIDs)
	if err != nil {
		respondError(c, "Failed to create shipments", err)
		return
	}

	c.JSON(http.StatusCreated, models.Response{
		Success: true,
		Message: "Shipments created successfully",
		Data:    shipments,
	})
}

// @Summary Refresh dashboard
// @Description Re-queries every watched list
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.Response{data=models.DashboardSummary}
// @Router /dashboard/refresh [post]
func (ctrl *DashboardController) Refresh(c *gin.Context) {
	err := ctrl.Session.Dashboard.Refresh(c.Request.Context())
	summary := ctrl.Session.Dashboard.Summary(ctrl.Session.Manager.Snapshot())
	if err != nil {
		c.JSON(http.StatusBadGateway, models.Response{
			Success: false,
			Message: "Some lists could not be refreshed: " + err.Error(),
			Data:    summary,
		})
		return
	}

	c.JSON(http.StatusOK, models.Response{
		Success: true,
		Message: "Dashboard refreshed",
		Data:    summary,
	})
}

// @Summary Dashboard updates stream
// @Description Server-sent events: refreshed, toast and connection
// @Tags Dashboard
// @Security BearerAuth
// @Produce text/event-stream
// @Router /dashboard/stream [get]
func (ctrl *DashboardController) Stream(c *gin.Context) {
	updates, unsubscribe := ctrl.Session.Dashboard.Subscribe(32)
	defer unsubscribe()

	c.SSEvent(services.UpdateConnection, services.Update{
		Type: services.UpdateConnection,
		Data: ctrl.Session.Manager.Snapshot(),
		At:   time.Now(),
	})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case u, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent(u.Type, u)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
