package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceItem es una línea de factura. No tiene identidad fuera de su
// factura: vive y muere con el agregado que la contiene.
//
// Los importes derivados se redondean a 2 decimales a nivel de línea; la
// factura vuelve a redondear la suma. Ese doble redondeo puede desviarse
// ±0.01 respecto a redondear una sola vez el total y se conserva tal cual
// por compatibilidad con los importes ya emitidos.
type InvoiceItem struct {
	id          uuid.UUID
	productCode string
	description string
	quantity    decimal.Decimal
	unitPrice   decimal.Decimal
	taxRate     decimal.Decimal
	subTotal    decimal.Decimal
	taxAmount   decimal.Decimal
	total       decimal.Decimal
}

// NewInvoiceItem valida los datos de la línea y calcula sus importes.
func NewInvoiceItem(productCode, description string, quantity, unitPrice, taxRate decimal.Decimal) (*InvoiceItem, error) {
	if isBlank(productCode) {
		return nil, fmt.Errorf("%w: product code cannot be empty", ErrInvalidInvoice)
	}
	if isBlank(description) {
		return nil, fmt.Errorf("%w: item description cannot be empty", ErrInvalidInvoice)
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidInvoice)
	}
	if unitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: unit price cannot be negative", ErrInvalidInvoice)
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: tax rate must be between 0 and 1", ErrInvalidInvoice)
	}

	it := &InvoiceItem{
		id:          uuid.New(),
		productCode: productCode,
		description: description,
		quantity:    quantity,
		unitPrice:   unitPrice,
		taxRate:     taxRate,
	}
	it.calculateTotals()
	return it, nil
}

// calculateTotals aplica el redondeo por línea: primero subtotal, luego
// impuesto sobre el subtotal ya redondeado, luego total.
func (it *InvoiceItem) calculateTotals() {
	it.subTotal = it.quantity.Mul(it.unitPrice).Round(2)
	it.taxAmount = it.subTotal.Mul(it.taxRate).Round(2)
	it.total = it.subTotal.Add(it.taxAmount).Round(2)
}

func (it *InvoiceItem) ID() uuid.UUID              { return it.id }
func (it *InvoiceItem) ProductCode() string        { return it.productCode }
func (it *InvoiceItem) Description() string        { return it.description }
func (it *InvoiceItem) Quantity() decimal.Decimal  { return it.quantity }
func (it *InvoiceItem) UnitPrice() decimal.Decimal { return it.unitPrice }
func (it *InvoiceItem) TaxRate() decimal.Decimal   { return it.taxRate }
func (it *InvoiceItem) SubTotal() decimal.Decimal  { return it.subTotal }
func (it *InvoiceItem) TaxAmount() decimal.Decimal { return it.taxAmount }
func (it *InvoiceItem) Total() decimal.Decimal     { return it.total }

// InvoiceItemSnapshot es la vista de solo lectura de una línea, apta para
// serializar y para rehidratar desde la base de datos.
type InvoiceItemSnapshot struct {
	ID          uuid.UUID       `json:"id"`
	ProductCode string          `json:"product_code"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	SubTotal    decimal.Decimal `json:"sub_total"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	Total       decimal.Decimal `json:"total"`
}

func (it *InvoiceItem) Snapshot() InvoiceItemSnapshot {
	return InvoiceItemSnapshot{
		ID:          it.id,
		ProductCode: it.productCode,
		Description: it.description,
		Quantity:    it.quantity,
		UnitPrice:   it.unitPrice,
		TaxRate:     it.taxRate,
		SubTotal:    it.subTotal,
		TaxAmount:   it.taxAmount,
		Total:       it.total,
	}
}

// rehydrateItem reconstruye una línea ya persistida sin revalidar ni recalcular.
func rehydrateItem(s InvoiceItemSnapshot) *InvoiceItem {
	return &InvoiceItem{
		id:          s.ID,
		productCode: s.ProductCode,
		description: s.Description,
		quantity:    s.Quantity,
		unitPrice:   s.UnitPrice,
		taxRate:     s.TaxRate,
		subTotal:    s.SubTotal,
		taxAmount:   s.TaxAmount,
		total:       s.Total,
	}
}
