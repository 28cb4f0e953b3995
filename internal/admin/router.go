package admin

import (
	"ms-booking/internal/auth"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the operator API. Everything sits behind OIDC; there is
// no anonymous surface on the admin port.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api", auth.GinMiddleware())
	{
		api.GET("/payments/:paymentId", h.GetPayment)
		api.POST("/payments/:paymentId/capture", h.CapturePayment)
		api.POST("/payments/:paymentId/cancel", h.CancelPayment)
		api.POST("/payments/:paymentId/refund", h.RefundPayment)

		api.GET("/webhooks/failed", h.ListFailedEvents)
		api.POST("/webhooks/failed/:eventId/retrigger", h.RetriggerEvent)

		api.GET("/bookings/:kind/:id/voucher", h.GetVoucher)
	}

	return router
}
