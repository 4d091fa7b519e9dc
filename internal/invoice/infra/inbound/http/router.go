package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registra las rutas de facturación en el router.
func RegisterRoutes(r *gin.Engine, h *InvoiceHandler) {
	invoices := r.Group("/invoices")
	{
		invoices.POST("", h.CreateInvoice)
		invoices.GET("", h.ListInvoices)
		invoices.GET("/:id", h.GetInvoice)
		invoices.PUT("/:id", h.UpdateInvoice)
		invoices.DELETE("/:id", h.DeleteInvoice)

		// Transiciones del ciclo de vida.
		invoices.POST("/:id/issue", h.IssueInvoice)
		invoices.POST("/:id/pay", h.PayInvoice)
		invoices.POST("/:id/cancel", h.CancelInvoice)
	}

	// Ruta separada para no chocar con /invoices/:id.
	r.GET("/invoice-numbers/:number", h.GetInvoiceByNumber)
}
