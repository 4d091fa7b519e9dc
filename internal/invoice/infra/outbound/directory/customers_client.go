package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/davicafu/invoicelab/internal/invoice/domain"
	"github.com/davicafu/invoicelab/internal/shared/utils"
)

// CustomersClient resuelve clientes contra el directorio HTTP externo.
// Las respuestas transitorias (5xx, timeouts) se reintentan con backoff
// exponencial y la dependencia entera está protegida por un circuit breaker:
// cuando el directorio lleva un rato caído fallamos rápido con
// ErrServiceUnavailable en vez de agotar timeouts en cada petición.
//
// Un 404 es una respuesta válida (el cliente no existe): ni reintenta ni
// cuenta como fallo para el breaker.
type CustomersClient struct {
	baseURL string
	client  *http.Client
	breaker *utils.CircuitBreaker
	retries int
	backoff time.Duration
	log     *zap.Logger
}

func NewCustomersClient(baseURL string, timeout time.Duration, retries int, breaker *utils.CircuitBreaker, log *zap.Logger) *CustomersClient {
	return &CustomersClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		retries: retries,
		backoff: 200 * time.Millisecond,
		log:     log,
	}
}

// jsonAPICustomer es el formato JSON:API que expone el directorio.
type jsonAPICustomer struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Name           string `json:"name"`
			Identification string `json:"identification"`
		} `json:"attributes"`
	} `json:"data"`
}

// plainCustomer es el formato plano que devuelven despliegues antiguos del
// directorio. Se intenta como fallback cuando el cuerpo no trae "data".
type plainCustomer struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Identification string `json:"identification"`
}

// GetCustomer devuelve (nil, nil) si el cliente no existe y
// ErrServiceUnavailable si el directorio no responde tras los reintentos o el
// breaker está abierto.
func (c *CustomersClient) GetCustomer(ctx context.Context, customerID string) (*domain.CustomerSnapshot, error) {
	var snapshot *domain.CustomerSnapshot

	err := c.breaker.Execute(func() error {
		return utils.RetryBackoff(ctx, c.retries, c.backoff, func() error {
			snap, err := c.fetch(ctx, customerID)
			if err != nil {
				return err
			}
			snapshot = snap
			return nil
		})
	})

	if err != nil {
		// Una cancelación del llamante no es un problema del directorio.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if errors.Is(err, utils.ErrCircuitOpen) {
			c.log.Warn("⚡ Circuit breaker abierto para el directorio de clientes")
		} else {
			c.log.Warn("🔌 Directorio de clientes no disponible", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	return snapshot, nil
}

// fetch hace una única petición. Devuelve (nil, nil) en 404.
func (c *CustomersClient) fetch(ctx context.Context, customerID string) (*domain.CustomerSnapshot, error) {
	url := fmt.Sprintf("%s/api/customers/%s", c.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.api+json, application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("customers directory returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseCustomer(body)
}

func parseCustomer(body []byte) (*domain.CustomerSnapshot, error) {
	var wrapped jsonAPICustomer
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Data.ID != "" {
		return &domain.CustomerSnapshot{
			ID:             wrapped.Data.ID,
			Name:           wrapped.Data.Attributes.Name,
			Identification: wrapped.Data.Attributes.Identification,
		}, nil
	}

	var plain plainCustomer
	if err := json.Unmarshal(body, &plain); err != nil {
		return nil, fmt.Errorf("unexpected customers directory payload: %w", err)
	}
	if plain.ID == "" {
		return nil, errors.New("unexpected customers directory payload: missing id")
	}
	return &domain.CustomerSnapshot{
		ID:             plain.ID,
		Name:           plain.Name,
		Identification: plain.Identification,
	}, nil
}

// Verificación en tiempo de compilación.
var _ domain.CustomerDirectory = (*CustomersClient)(nil)
