package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davicafu/invoicelab/internal/invoice/application"
	"github.com/davicafu/invoicelab/internal/invoice/domain"
	"github.com/davicafu/invoicelab/tests/mocks"
)

func setupRouter(t *testing.T) (*gin.Engine, *mocks.FakeDirectory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := mocks.NewInMemoryInvoiceRepo()
	outbox := mocks.NewInMemoryOutboxRepo()
	tx := mocks.NewInMemoryTxManager(repo, outbox)
	dir := mocks.NewFakeDirectory(domain.CustomerSnapshot{
		ID: "cust-1", Name: "ACME S.L.", Identification: "B12345678",
	})
	service := application.NewInvoiceService(repo, outbox, tx, dir, nil, zap.NewNop())

	r := gin.New()
	RegisterRoutes(r, NewInvoiceHandler(service, zap.NewNop()))
	return r, dir
}

const createBody = `{
	"customer_id": "cust-1",
	"issue_date": "2026-09-01T00:00:00Z",
	"due_date": "2026-10-01T00:00:00Z",
	"items": [
		{"product_code": "SKU-1", "description": "Widget", "quantity": "10", "unit_price": "100", "tax_rate": "0.19"}
	]
}`

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createInvoice(t *testing.T, r *gin.Engine) map[string]interface{} {
	t.Helper()
	w := doRequest(r, http.MethodPost, "/invoices", createBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func TestCreateInvoiceEndpoint(t *testing.T) {
	r, _ := setupRouter(t)

	data := createInvoice(t, r)
	assert.Equal(t, fmt.Sprintf("INV-%04d-000001", time.Now().UTC().Year()), data["invoice_number"])
	assert.Equal(t, "draft", data["status"])
	assert.Equal(t, "1190", data["total_amount"])
}

func TestCreateInvoiceEndpoint_BadBody(t *testing.T) {
	r, _ := setupRouter(t)
	w := doRequest(r, http.MethodPost, "/invoices", `{"customer_id": ""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateInvoiceEndpoint_UnknownCustomer(t *testing.T) {
	r, _ := setupRouter(t)
	body := `{
		"customer_id": "ghost",
		"issue_date": "2026-09-01T00:00:00Z",
		"due_date": "2026-10-01T00:00:00Z",
		"items": [{"product_code": "SKU-1", "description": "Widget", "quantity": "1", "unit_price": "10", "tax_rate": "0"}]
	}`
	w := doRequest(r, http.MethodPost, "/invoices", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreateInvoiceEndpoint_DirectoryDown(t *testing.T) {
	r, dir := setupRouter(t)
	dir.Err = fmt.Errorf("%w: boom", domain.ErrServiceUnavailable)

	w := doRequest(r, http.MethodPost, "/invoices", createBody)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetInvoiceEndpoint(t *testing.T) {
	r, _ := setupRouter(t)
	data := createInvoice(t, r)

	w := doRequest(r, http.MethodGet, "/invoices/"+data["id"].(string), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/invoices/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/invoices/6b1e415f-d36a-4b6a-9a46-6f53b4b5b0a1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetInvoiceByNumberEndpoint(t *testing.T) {
	r, _ := setupRouter(t)
	data := createInvoice(t, r)

	w := doRequest(r, http.MethodGet, "/invoice-numbers/"+data["invoice_number"].(string), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/invoice-numbers/INV-2026-999999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListInvoicesEndpoint(t *testing.T) {
	r, _ := setupRouter(t)
	createInvoice(t, r)
	createInvoice(t, r)

	w := doRequest(r, http.MethodGet, "/invoices?page=1&page_size=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Items      []json.RawMessage `json:"items"`
			TotalCount int               `json:"total_count"`
			TotalPages int               `json:"total_pages"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.TotalCount)
	assert.Equal(t, 2, resp.Data.TotalPages)
	assert.Len(t, resp.Data.Items, 1)

	w = doRequest(r, http.MethodGet, "/invoices?start_date=ayer", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLifecycleEndpoints(t *testing.T) {
	r, _ := setupRouter(t)
	data := createInvoice(t, r)
	id := data["id"].(string)

	w := doRequest(r, http.MethodPost, "/invoices/"+id+"/issue", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(r, http.MethodPost, "/invoices/"+id+"/pay", "")
	require.Equal(t, http.StatusOK, w.Code)

	// Una factura pagada no se puede cancelar.
	w = doRequest(r, http.MethodPost, "/invoices/"+id+"/cancel", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDeleteInvoiceEndpoint(t *testing.T) {
	r, _ := setupRouter(t)
	data := createInvoice(t, r)
	id := data["id"].(string)

	w := doRequest(r, http.MethodDelete, "/invoices/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Sigue siendo legible tras el borrado lógico.
	w = doRequest(r, http.MethodGet, "/invoices/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateInvoiceEndpoint_OnlyDraft(t *testing.T) {
	r, _ := setupRouter(t)
	data := createInvoice(t, r)
	id := data["id"].(string)

	doRequest(r, http.MethodPost, "/invoices/"+id+"/issue", "")

	w := doRequest(r, http.MethodPut, "/invoices/"+id, createBody)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "solo las facturas draft se pueden editar")
}
