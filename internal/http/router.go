// README: Route table.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flashfood/internal/http/middleware"
	"flashfood/internal/realtime"
)

func NewRouter(h *Handlers, gateway *realtime.Gateway) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logging(), middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", gateway.Handle)

	api := r.Group("/api/v1")
	{
		api.POST("/orders", h.CreateOrder)
		api.GET("/orders/:id", h.GetOrder)
		api.POST("/orders/:id/accept", h.AcceptOrder)
		api.POST("/orders/:id/offer", h.OfferOrder)

		api.GET("/runs/:id", h.GetRun)
		api.POST("/runs/:id/advance", h.AdvanceProgress)

		api.GET("/drivers/:id", h.GetDriver)
		api.GET("/drivers/:id/progress", h.ActiveRun)
		api.PATCH("/drivers/:id", h.UpdateDriver)
	}
	return r
}
