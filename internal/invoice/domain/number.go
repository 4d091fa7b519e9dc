package domain

import (
	"fmt"
	"regexp"
)

var invoiceNumberPattern = regexp.MustCompile(`^INV-\d{4}-\d{6}$`)

// InvoiceNumber es el número de factura con formato INV-YYYY-NNNNNN.
// Se asigna una sola vez en la creación y es inmutable después.
type InvoiceNumber struct {
	value string
}

func NewInvoiceNumber(value string) (InvoiceNumber, error) {
	if isBlank(value) {
		return InvoiceNumber{}, fmt.Errorf("%w: invoice number cannot be empty", ErrInvalidInvoice)
	}
	if !invoiceNumberPattern.MatchString(value) {
		return InvoiceNumber{}, fmt.Errorf("%w: invoice number must match format INV-YYYY-NNNNNN, got %q", ErrInvalidInvoice, value)
	}
	return InvoiceNumber{value: value}, nil
}

// GenerateInvoiceNumber compone el número a partir de año y secuencia.
func GenerateInvoiceNumber(year, sequence int) (InvoiceNumber, error) {
	return NewInvoiceNumber(fmt.Sprintf("INV-%04d-%06d", year, sequence))
}

func (n InvoiceNumber) String() string { return n.value }
