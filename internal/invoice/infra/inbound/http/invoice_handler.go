package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davicafu/invoicelab/internal/invoice/application"
	"github.com/davicafu/invoicelab/internal/invoice/domain"
	"github.com/davicafu/invoicelab/pkg/utils"
)

// InvoiceHandler traduce HTTP ↔ casos de uso. Sin lógica de negocio aquí:
// parseo, validación de formato y mapeo de errores de dominio a status codes.
type InvoiceHandler struct {
	service *application.InvoiceService
	log     *zap.Logger
}

func NewInvoiceHandler(service *application.InvoiceService, log *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{service: service, log: log}
}

// ---------- DTOs ----------

type invoiceItemRequest struct {
	ProductCode string          `json:"product_code" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

type createInvoiceRequest struct {
	CustomerID string               `json:"customer_id" binding:"required"`
	IssueDate  time.Time            `json:"issue_date" binding:"required"`
	DueDate    time.Time            `json:"due_date" binding:"required"`
	Notes      string               `json:"notes"`
	Items      []invoiceItemRequest `json:"items" binding:"required"`
}

type updateInvoiceRequest struct {
	IssueDate time.Time            `json:"issue_date" binding:"required"`
	DueDate   time.Time            `json:"due_date" binding:"required"`
	Notes     string               `json:"notes"`
	Items     []invoiceItemRequest `json:"items" binding:"required"`
}

func toItemInputs(reqs []invoiceItemRequest) []application.InvoiceItemInput {
	items := make([]application.InvoiceItemInput, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, application.InvoiceItemInput{
			ProductCode: r.ProductCode,
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
			TaxRate:     r.TaxRate,
		})
	}
	return items
}

// ---------- Handlers ----------

func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	inv, err := h.service.CreateInvoice(c.Request.Context(), application.CreateInvoiceInput{
		CustomerID: req.CustomerID,
		IssueDate:  req.IssueDate,
		DueDate:    req.DueDate,
		Notes:      req.Notes,
		Items:      toItemInputs(req.Items),
	})
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusCreated, inv.Snapshot())
}

func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendBadRequest(c, "invalid invoice id")
		return
	}

	inv, err := h.service.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, inv.Snapshot())
}

func (h *InvoiceHandler) GetInvoiceByNumber(c *gin.Context) {
	inv, err := h.service.GetInvoiceByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, inv.Snapshot())
}

func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	var in application.ListInvoicesInput

	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			utils.SendBadRequest(c, "invalid start_date, expected RFC3339")
			return
		}
		in.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			utils.SendBadRequest(c, "invalid end_date, expected RFC3339")
			return
		}
		in.EndDate = &t
	}
	in.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	in.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	page, err := h.service.ListInvoices(c.Request.Context(), in)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, page)
}

func (h *InvoiceHandler) UpdateInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendBadRequest(c, "invalid invoice id")
		return
	}

	var req updateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	inv, err := h.service.UpdateInvoice(c.Request.Context(), id, application.UpdateInvoiceInput{
		IssueDate: req.IssueDate,
		DueDate:   req.DueDate,
		Notes:     req.Notes,
		Items:     toItemInputs(req.Items),
	})
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, inv.Snapshot())
}

func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendBadRequest(c, "invalid invoice id")
		return
	}

	if err := h.service.DeleteInvoice(c.Request.Context(), id); err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *InvoiceHandler) IssueInvoice(c *gin.Context) {
	h.transition(c, h.service.IssueInvoice)
}

func (h *InvoiceHandler) PayInvoice(c *gin.Context) {
	h.transition(c, h.service.PayInvoice)
}

func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	h.transition(c, h.service.CancelInvoice)
}

func (h *InvoiceHandler) transition(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendBadRequest(c, "invalid invoice id")
		return
	}

	inv, err := fn(c.Request.Context(), id)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	utils.SendSuccess(c, http.StatusOK, inv.Snapshot())
}

// writeDomainError mapea errores de dominio a status codes HTTP.
func (h *InvoiceHandler) writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvoiceNotFound):
		utils.SendNotFound(c, err.Error())
	case errors.Is(err, domain.ErrInvalidInvoice), errors.Is(err, domain.ErrInvalidCustomer):
		utils.SendUnprocessable(c, err.Error())
	case errors.Is(err, domain.ErrServiceUnavailable):
		utils.SendServiceUnavailable(c, err.Error())
	case errors.Is(err, domain.ErrConcurrentUpdate), errors.Is(err, domain.ErrDuplicateInvoiceNumber):
		utils.SendConflict(c, err.Error())
	default:
		h.log.Error("Unhandled error in invoice handler", zap.Error(err))
		utils.SendInternalServerError(c, "internal server error")
	}
}
