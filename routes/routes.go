package routes

import (
	"net/http"

	"production-dashboard/controllers"
	_ "production-dashboard/docs"
	"production-dashboard/middleware"
	"production-dashboard/services"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func SetupRoutes(router *gin.Engine, session *services.Session, jwtSecret string) {
	dashboardCtrl := &controllers.DashboardController{Session: session}
	mediaCtrl := &controllers.MediaController{Session: session}
	messageCtrl := &controllers.MessageController{Session: session}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"session":    session.ID,
			"connection": session.Manager.Snapshot(),
		})
	})

	auth := router.Group("/")
	auth.Use(middleware.AuthMiddleware(session.Tokens, jwtSecret))
	{
		auth.GET("/dashboard", dashboardCtrl.GetDashboard)
		auth.GET("/dashboard/orders", dashboardCtrl.GetOrders)
		auth.GET("/dashboard/orders/:id/actions", dashboardCtrl.GetActions)
		auth.POST("/dashboard/orders/:id/actions/:action", dashboardCtrl.PerformAction)
		auth.PATCH("/dashboard/orders/:id/notes", dashboardCtrl.UpdateNotes)
		auth.POST("/dashboard/shipments", dashboardCtrl.CreateShipments)
		auth.POST("/dashboard/refresh", dashboardCtrl.Refresh)
		auth.GET("/dashboard/stream", dashboardCtrl.Stream)

		auth.GET("/media/orders/:orderId/designs/:designId", mediaCtrl.GetMedia)
		auth.POST("/media/viewport", mediaCtrl.Viewport)

		auth.GET("/messages", messageCtrl.GetMessages)
		auth.POST("/messages/:id/hide", messageCtrl.HideMessage)
	}
}
