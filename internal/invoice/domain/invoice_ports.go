package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	sharedQuery "github.com/davicafu/invoicelab/internal/shared/platform/query"
)

// ---------- Errores de dominio ----------

var (
	// ErrInvoiceNotFound: la factura pedida no existe.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrInvalidInvoice: violación de un invariante del agregado (estado
	// incorrecto, fechas desordenadas, sin líneas, total no positivo...).
	ErrInvalidInvoice = errors.New("invalid invoice")

	// ErrInvalidCustomer: la referencia de cliente no resuelve en el directorio.
	ErrInvalidCustomer = errors.New("invalid customer")

	// ErrServiceUnavailable: el directorio de clientes no respondió tras
	// reintentos o el circuit breaker está abierto. Condición reintentable.
	ErrServiceUnavailable = errors.New("customer directory unavailable")

	// ErrConcurrentUpdate: la versión de la factura cambió entre la lectura
	// y la escritura (protección optimista contra lost updates).
	ErrConcurrentUpdate = errors.New("invoice modified concurrently")

	// ErrDuplicateInvoiceNumber: colisión del índice único de numeración.
	// La generación de números no serializa la lectura del último número,
	// así que bajo creación concurrente el llamante debe reintentar.
	ErrDuplicateInvoiceNumber = errors.New("duplicate invoice number")
)

// CustomerSnapshot es la foto del cliente capturada en la creación de la
// factura desde el directorio externo.
type CustomerSnapshot struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Identification string `json:"identification"`
}

// ---------- Interfaces (Ports) ----------

// InvoiceRepository define las operaciones persistentes para Invoice.
// Los métodos de escritura participan en la transacción activa del context
// si la hay (ver shared TransactionManager).
type InvoiceRepository interface {
	// Create inserta la factura y sus líneas. Debe devolver
	// ErrDuplicateInvoiceNumber si el número ya existe.
	Create(ctx context.Context, inv *Invoice) error

	// GetByID debe devolver ErrInvoiceNotFound si no existe.
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// GetByNumber debe devolver ErrInvoiceNotFound si no existe.
	GetByNumber(ctx context.Context, number string) (*Invoice, error)

	// Update reemplaza factura y líneas con check optimista de versión:
	// ErrConcurrentUpdate si la versión en BD ya no coincide.
	Update(ctx context.Context, inv *Invoice) error

	// ListByCriteria devuelve la página pedida y el total de filas que
	// cumplen el criterio.
	ListByCriteria(ctx context.Context, criteria Criteria, pagination sharedQuery.OffsetPagination, sort sharedQuery.Sort) ([]*Invoice, int, error)

	// NextInvoiceNumber propone el siguiente número para el año en curso.
	// La lectura no serializa con la escritura: el índice único más el
	// reintento del llamante cubren la carrera.
	NextInvoiceNumber(ctx context.Context) (InvoiceNumber, error)
}

// CustomerDirectory resuelve una referencia de cliente a su snapshot.
type CustomerDirectory interface {
	// GetCustomer devuelve (nil, nil) si el cliente no existe y
	// ErrServiceUnavailable si el directorio no responde.
	GetCustomer(ctx context.Context, customerID string) (*CustomerSnapshot, error)
}

// InvoiceCache es la cache de lectura de snapshots.
type InvoiceCache interface {
	// Get intenta poblar dest (puntero) con el valor asociado a la key.
	// Devuelve (true, nil) si hay hit y dest fue rellenado.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set serializa y guarda el valor con TTL en segundos.
	Set(ctx context.Context, key string, val interface{}, ttlSecs int) error

	// Delete elimina la key del cache.
	Delete(ctx context.Context, key string) error
}

// CacheKeyByID forma una key consistente para cache usando ID.
func CacheKeyByID(id uuid.UUID) string {
	return fmt.Sprintf("invoice:id:%s", id.String())
}
