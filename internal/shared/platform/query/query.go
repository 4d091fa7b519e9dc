package query

// OffsetPagination describe límite y desplazamiento de una página.
type OffsetPagination struct {
	Limit  int
	Offset int
}

// Sort indica campo y dirección de ordenación.
type Sort struct {
	Field string // ej. "created_at", "issue_date"
	Desc  bool
}
