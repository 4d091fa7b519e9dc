package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus es el estado del ciclo de vida de una factura. Se persiste
// como entero pequeño y se serializa como string.
type InvoiceStatus int

const (
	StatusDraft InvoiceStatus = iota
	StatusIssued
	StatusPaid
	StatusCancelled
)

func (s InvoiceStatus) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusIssued:
		return "issued"
	case StatusPaid:
		return "paid"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s InvoiceStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *InvoiceStatus) UnmarshalJSON(data []byte) error {
	parsed, err := ParseInvoiceStatus(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseInvoiceStatus(v string) (InvoiceStatus, error) {
	switch v {
	case "draft":
		return StatusDraft, nil
	case "issued":
		return StatusIssued, nil
	case "paid":
		return StatusPaid, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return StatusDraft, fmt.Errorf("%w: unknown status %q", ErrInvalidInvoice, v)
	}
}

// Invoice es el agregado raíz: identidad, snapshot del cliente, líneas y
// totales derivados. Los campos son privados a propósito: toda mutación pasa
// por los métodos de esta struct, que son los únicos que pueden mantener los
// invariantes (totales consistentes, máquina de estados, fechas ordenadas).
//
// Máquina de estados:
//
//	Draft --MarkAsIssued--> Issued --MarkAsPaid--> Paid (terminal)
//	Draft --Cancel--> Cancelled (terminal)
//	Issued --Cancel--> Cancelled (terminal)
type Invoice struct {
	id                     uuid.UUID
	invoiceNumber          string
	customerID             string
	customerName           string
	customerIdentification string
	issueDate              time.Time
	dueDate                time.Time
	subTotal               decimal.Decimal
	taxAmount              decimal.Decimal
	totalAmount            decimal.Decimal
	status                 InvoiceStatus
	notes                  string
	isActive               bool
	createdAt              time.Time
	updatedAt              time.Time
	version                int64
	items                  []*InvoiceItem
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

// NewInvoice crea una factura en estado Draft con totales a cero.
// El snapshot del cliente se captura aquí y no se vuelve a sincronizar: la
// factura refleja al cliente tal y como era cuando se emitió.
func NewInvoice(number InvoiceNumber, customer CustomerSnapshot, issueDate, dueDate time.Time, notes string) (*Invoice, error) {
	if isBlank(customer.ID) {
		return nil, fmt.Errorf("%w: customer id cannot be empty", ErrInvalidInvoice)
	}
	if isBlank(customer.Name) {
		return nil, fmt.Errorf("%w: customer name cannot be empty", ErrInvalidInvoice)
	}
	if isBlank(customer.Identification) {
		return nil, fmt.Errorf("%w: customer identification cannot be empty", ErrInvalidInvoice)
	}
	if dueDate.Before(issueDate) {
		return nil, fmt.Errorf("%w: due date must be greater than or equal to issue date", ErrInvalidInvoice)
	}

	now := time.Now().UTC()
	return &Invoice{
		id:                     uuid.New(),
		invoiceNumber:          number.String(),
		customerID:             customer.ID,
		customerName:           customer.Name,
		customerIdentification: customer.Identification,
		issueDate:              issueDate,
		dueDate:                dueDate,
		subTotal:               decimal.Zero,
		taxAmount:              decimal.Zero,
		totalAmount:            decimal.Zero,
		status:                 StatusDraft,
		notes:                  notes,
		isActive:               true,
		createdAt:              now,
		updatedAt:              now,
	}, nil
}

// AddItem añade una línea. Solo permitido en Draft.
func (inv *Invoice) AddItem(item *InvoiceItem) error {
	if item == nil {
		return fmt.Errorf("%w: item cannot be nil", ErrInvalidInvoice)
	}
	if inv.status != StatusDraft {
		return fmt.Errorf("%w: cannot add items to invoice with status %s", ErrInvalidInvoice, inv.status)
	}

	inv.items = append(inv.items, item)
	inv.calculateTotals()
	inv.touch()
	return nil
}

// RemoveItem elimina una línea por id. Solo permitido en Draft.
func (inv *Invoice) RemoveItem(itemID uuid.UUID) error {
	if inv.status != StatusDraft {
		return fmt.Errorf("%w: cannot remove items from invoice with status %s", ErrInvalidInvoice, inv.status)
	}

	for i, it := range inv.items {
		if it.id == itemID {
			inv.items = append(inv.items[:i], inv.items[i+1:]...)
			inv.calculateTotals()
			inv.touch()
			return nil
		}
	}
	return fmt.Errorf("%w: item %s not found in invoice", ErrInvalidInvoice, itemID)
}

// ClearItems vacía las líneas (para reemplazarlas en una actualización).
// Solo permitido en Draft.
func (inv *Invoice) ClearItems() error {
	if inv.status != StatusDraft {
		return fmt.Errorf("%w: cannot remove items from invoice with status %s", ErrInvalidInvoice, inv.status)
	}
	inv.items = nil
	inv.calculateTotals()
	inv.touch()
	return nil
}

// Update cambia fechas y notas. Solo permitido en Draft.
func (inv *Invoice) Update(issueDate, dueDate time.Time, notes string) error {
	if inv.status != StatusDraft {
		return fmt.Errorf("%w: cannot update invoice with status %s, only draft invoices can be updated", ErrInvalidInvoice, inv.status)
	}
	if dueDate.Before(issueDate) {
		return fmt.Errorf("%w: due date must be greater than or equal to issue date", ErrInvalidInvoice)
	}

	inv.issueDate = issueDate
	inv.dueDate = dueDate
	inv.notes = notes
	inv.touch()
	return nil
}

// MarkAsIssued transiciona Draft → Issued. Exige al menos una línea.
func (inv *Invoice) MarkAsIssued() error {
	if inv.status != StatusDraft {
		return fmt.Errorf("%w: cannot mark invoice as issued from status %s", ErrInvalidInvoice, inv.status)
	}
	if len(inv.items) == 0 {
		return fmt.Errorf("%w: cannot issue an invoice without items", ErrInvalidInvoice)
	}

	inv.status = StatusIssued
	inv.touch()
	return nil
}

// MarkAsPaid transiciona Issued → Paid.
func (inv *Invoice) MarkAsPaid() error {
	if inv.status != StatusIssued {
		return fmt.Errorf("%w: cannot mark invoice as paid from status %s", ErrInvalidInvoice, inv.status)
	}

	inv.status = StatusPaid
	inv.touch()
	return nil
}

// Cancel transiciona Draft|Issued → Cancelled y desactiva la factura.
// Una factura pagada es inmutable respecto a la cancelación.
func (inv *Invoice) Cancel() error {
	if inv.status == StatusCancelled {
		return fmt.Errorf("%w: invoice is already cancelled", ErrInvalidInvoice)
	}
	if inv.status == StatusPaid {
		return fmt.Errorf("%w: cannot cancel a paid invoice", ErrInvalidInvoice)
	}

	inv.status = StatusCancelled
	inv.isActive = false
	inv.touch()
	return nil
}

// SoftDelete oculta la factura de los listados sin tocar la máquina de
// estados. Es ortogonal al status: sirve para retirada administrativa.
func (inv *Invoice) SoftDelete() {
	inv.isActive = false
	inv.touch()
}

// Validate cruza los invariantes antes de confirmar un caso de uso de
// creación o actualización.
func (inv *Invoice) Validate() error {
	if !inv.isActive {
		return fmt.Errorf("%w: cannot validate an inactive invoice", ErrInvalidInvoice)
	}
	if len(inv.items) == 0 {
		return fmt.Errorf("%w: invoice must have at least one item", ErrInvalidInvoice)
	}
	if inv.dueDate.Before(inv.issueDate) {
		return fmt.Errorf("%w: due date must be greater than or equal to issue date", ErrInvalidInvoice)
	}
	if !inv.totalAmount.IsPositive() {
		return fmt.Errorf("%w: total amount must be greater than zero", ErrInvalidInvoice)
	}
	return nil
}

// calculateTotals suma las líneas ya redondeadas y vuelve a redondear a
// nivel de factura (política de doble redondeo, conservada a propósito).
func (inv *Invoice) calculateTotals() {
	sub, tax := decimal.Zero, decimal.Zero
	for _, it := range inv.items {
		sub = sub.Add(it.subTotal)
		tax = tax.Add(it.taxAmount)
	}
	inv.subTotal = sub.Round(2)
	inv.taxAmount = tax.Round(2)
	inv.totalAmount = inv.subTotal.Add(inv.taxAmount).Round(2)
}

func (inv *Invoice) touch() { inv.updatedAt = time.Now().UTC() }

// AdvanceVersion incrementa la versión optimista tras una escritura
// confirmada. Solo los repositorios deben llamarlo.
func (inv *Invoice) AdvanceVersion() { inv.version++ }

// ---------------- Vistas de solo lectura ----------------

func (inv *Invoice) ID() uuid.UUID                   { return inv.id }
func (inv *Invoice) InvoiceNumber() string           { return inv.invoiceNumber }
func (inv *Invoice) CustomerID() string              { return inv.customerID }
func (inv *Invoice) CustomerName() string            { return inv.customerName }
func (inv *Invoice) CustomerIdentification() string  { return inv.customerIdentification }
func (inv *Invoice) IssueDate() time.Time            { return inv.issueDate }
func (inv *Invoice) DueDate() time.Time              { return inv.dueDate }
func (inv *Invoice) SubTotal() decimal.Decimal       { return inv.subTotal }
func (inv *Invoice) TaxAmount() decimal.Decimal      { return inv.taxAmount }
func (inv *Invoice) TotalAmount() decimal.Decimal    { return inv.totalAmount }
func (inv *Invoice) Status() InvoiceStatus           { return inv.status }
func (inv *Invoice) Notes() string                   { return inv.notes }
func (inv *Invoice) IsActive() bool                  { return inv.isActive }
func (inv *Invoice) CreatedAt() time.Time            { return inv.createdAt }
func (inv *Invoice) UpdatedAt() time.Time            { return inv.updatedAt }
func (inv *Invoice) Version() int64                  { return inv.version }

// Items devuelve las snapshots de las líneas; el slice interno no se expone.
func (inv *Invoice) Items() []InvoiceItemSnapshot {
	out := make([]InvoiceItemSnapshot, 0, len(inv.items))
	for _, it := range inv.items {
		out = append(out, it.Snapshot())
	}
	return out
}

// InvoiceSnapshot es la vista completa de solo lectura del agregado. Se usa
// para respuestas HTTP, cache y rehidratación desde persistencia.
type InvoiceSnapshot struct {
	ID                     uuid.UUID             `json:"id"`
	InvoiceNumber          string                `json:"invoice_number"`
	CustomerID             string                `json:"customer_id"`
	CustomerName           string                `json:"customer_name"`
	CustomerIdentification string                `json:"customer_identification"`
	IssueDate              time.Time             `json:"issue_date"`
	DueDate                time.Time             `json:"due_date"`
	SubTotal               decimal.Decimal       `json:"sub_total"`
	TaxAmount              decimal.Decimal       `json:"tax_amount"`
	TotalAmount            decimal.Decimal       `json:"total_amount"`
	Status                 InvoiceStatus         `json:"status"`
	Notes                  string                `json:"notes,omitempty"`
	IsActive               bool                  `json:"is_active"`
	CreatedAt              time.Time             `json:"created_at"`
	UpdatedAt              time.Time             `json:"updated_at"`
	Version                int64                 `json:"version"`
	Items                  []InvoiceItemSnapshot `json:"items"`
}

func (inv *Invoice) Snapshot() InvoiceSnapshot {
	return InvoiceSnapshot{
		ID:                     inv.id,
		InvoiceNumber:          inv.invoiceNumber,
		CustomerID:             inv.customerID,
		CustomerName:           inv.customerName,
		CustomerIdentification: inv.customerIdentification,
		IssueDate:              inv.issueDate,
		DueDate:                inv.dueDate,
		SubTotal:               inv.subTotal,
		TaxAmount:              inv.taxAmount,
		TotalAmount:            inv.totalAmount,
		Status:                 inv.status,
		Notes:                  inv.notes,
		IsActive:               inv.isActive,
		CreatedAt:              inv.createdAt,
		UpdatedAt:              inv.updatedAt,
		Version:                inv.version,
		Items:                  inv.Items(),
	}
}

// RehydrateInvoice reconstruye el agregado desde una snapshot persistida.
// No revalida ni recalcula: la snapshot se asume consistente porque solo los
// métodos del agregado pudieron producirla.
func RehydrateInvoice(s InvoiceSnapshot) *Invoice {
	items := make([]*InvoiceItem, 0, len(s.Items))
	for _, is := range s.Items {
		items = append(items, rehydrateItem(is))
	}
	return &Invoice{
		id:                     s.ID,
		invoiceNumber:          s.InvoiceNumber,
		customerID:             s.CustomerID,
		customerName:           s.CustomerName,
		customerIdentification: s.CustomerIdentification,
		issueDate:              s.IssueDate,
		dueDate:                s.DueDate,
		subTotal:               s.SubTotal,
		taxAmount:              s.TaxAmount,
		totalAmount:            s.TotalAmount,
		status:                 s.Status,
		notes:                  s.Notes,
		isActive:               s.IsActive,
		createdAt:              s.CreatedAt,
		updatedAt:              s.UpdatedAt,
		version:                s.Version,
		items:                  items,
	}
}
