package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tipos de evento del ciclo de vida de la factura.
const (
	InvoiceCreated   = "invoice.created"
	InvoiceUpdated   = "invoice.updated"
	InvoiceDeleted   = "invoice.deleted"
	InvoiceIssued    = "invoice.issued"
	InvoicePaid      = "invoice.paid"
	InvoiceCancelled = "invoice.cancelled"
)

// AggregateType es el tipo de agregado registrado en la tabla outbox.
const AggregateType = "Invoice"

// InvoiceTopic es el topic por defecto del canal externo.
const InvoiceTopic = "invoice-events"

// Los payloads son hechos punto-en-el-tiempo: los consumidores no deben
// re-consultar el estado actual a partir de ellos.

// InvoiceCreatedPayload es el cuerpo del evento invoice.created.
type InvoiceCreatedPayload struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// InvoiceUpdatedPayload es el cuerpo de invoice.updated y de las
// transiciones de estado (issued, paid, cancelled).
type InvoiceUpdatedPayload struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// InvoiceDeletedPayload es el cuerpo de invoice.deleted (borrado lógico).
type InvoiceDeletedPayload struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	DeletedAt     time.Time `json:"deleted_at"`
}

func NewCreatedPayload(inv *Invoice) InvoiceCreatedPayload {
	return InvoiceCreatedPayload{
		InvoiceID:     inv.ID(),
		InvoiceNumber: inv.InvoiceNumber(),
		CustomerID:    inv.CustomerID(),
		CustomerName:  inv.CustomerName(),
		IssueDate:     inv.IssueDate(),
		DueDate:       inv.DueDate(),
		TotalAmount:   inv.TotalAmount(),
		Status:        inv.Status().String(),
		CreatedAt:     inv.CreatedAt(),
	}
}

func NewUpdatedPayload(inv *Invoice) InvoiceUpdatedPayload {
	return InvoiceUpdatedPayload{
		InvoiceID:     inv.ID(),
		InvoiceNumber: inv.InvoiceNumber(),
		TotalAmount:   inv.TotalAmount(),
		Status:        inv.Status().String(),
		UpdatedAt:     inv.UpdatedAt(),
	}
}

func NewDeletedPayload(inv *Invoice) InvoiceDeletedPayload {
	return InvoiceDeletedPayload{
		InvoiceID:     inv.ID(),
		InvoiceNumber: inv.InvoiceNumber(),
		DeletedAt:     inv.UpdatedAt(),
	}
}
