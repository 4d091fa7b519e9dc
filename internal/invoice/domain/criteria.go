package domain

import (
	"time"
)

// ---------------- Operadores ----------------

type Operator string

const (
	OpEq  Operator = "="
	OpGte Operator = ">="
	OpLte Operator = "<="
)

// ---------------- Criterion ----------------

// Criterion describe una condición neutral de filtrado que cada adaptador
// de persistencia traduce a su propio SQL.
type Criterion struct {
	Field string
	Op    Operator
	Value interface{}
}

// Criteria permite transformar filtros a condiciones neutrales.
type Criteria interface {
	ToConditions() []Criterion
}

// ---------------- Implementaciones concretas ----------------

// ActiveCriteria filtra por el flag de borrado lógico.
type ActiveCriteria struct {
	Active bool
}

func (c ActiveCriteria) ToConditions() []Criterion {
	return []Criterion{{Field: "is_active", Op: OpEq, Value: c.Active}}
}

// CustomerCriteria filtra por referencia de cliente exacta.
type CustomerCriteria struct {
	CustomerID string
}

func (c CustomerCriteria) ToConditions() []Criterion {
	return []Criterion{{Field: "customer_id", Op: OpEq, Value: c.CustomerID}}
}

// StatusCriteria filtra por estado del ciclo de vida.
type StatusCriteria struct {
	Status InvoiceStatus
}

func (c StatusCriteria) ToConditions() []Criterion {
	return []Criterion{{Field: "status", Op: OpEq, Value: int(c.Status)}}
}

// IssueDateRangeCriteria filtra por rango de fecha de emisión; ambos
// extremos son opcionales e inclusivos.
type IssueDateRangeCriteria struct {
	From *time.Time
	To   *time.Time
}

func (c IssueDateRangeCriteria) ToConditions() []Criterion {
	var conds []Criterion
	if c.From != nil {
		conds = append(conds, Criterion{Field: "issue_date", Op: OpGte, Value: *c.From})
	}
	if c.To != nil {
		conds = append(conds, Criterion{Field: "issue_date", Op: OpLte, Value: *c.To})
	}
	return conds
}

// ---------------- Composite Criteria ----------------

type CompositeCriteria struct {
	Criterias []Criteria
}

func (c CompositeCriteria) ToConditions() []Criterion {
	var all []Criterion
	for _, crit := range c.Criterias {
		all = append(all, crit.ToConditions()...)
	}
	return all
}

// And combina criterios; todos deben cumplirse.
func And(criterias ...Criteria) CompositeCriteria {
	return CompositeCriteria{Criterias: criterias}
}
