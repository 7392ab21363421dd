package http

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturacion-mecef/internal/application/dto"
)

// InvoiceService lo implementa *billing.InvoiceService.
type InvoiceService interface {
	CreateDraft(ctx context.Context, companyID string, in dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error)
	Get(ctx context.Context, companyID, id string) (*dto.InvoiceResponse, error)
	List(ctx context.Context, companyID string, in dto.InvoiceListRequest) (*dto.InvoiceListResponse, error)
	Update(ctx context.Context, companyID, id string, in dto.UpdateInvoiceRequest) (*dto.InvoiceResponse, error)
	Delete(ctx context.Context, companyID, id string) error
	Cancel(ctx context.Context, companyID, id string) (*dto.InvoiceResponse, error)
	Finalize(ctx context.Context, companyID, id string) (*dto.InvoiceResponse, error)
	Accept(ctx context.Context, companyID, id string) (*dto.InvoiceResponse, error)
	Reject(ctx context.Context, companyID, id string) (*dto.InvoiceResponse, error)
	RecordPayment(ctx context.Context, companyID, id string, in dto.RecordPaymentRequest) (*dto.RecordPaymentResponse, error)
	ListPayments(ctx context.Context, companyID, id string) ([]dto.PaymentResponse, error)
}

// InvoicePDFService lo implementa *billing.PDFUseCase.
type InvoicePDFService interface {
	DownloadInvoicePDF(ctx context.Context, companyID, invoiceID string) ([]byte, string, error)
}

// InvoiceHandler maneja las peticiones HTTP de facturación (protegido).
type InvoiceHandler struct {
	svc InvoiceService
	pdf InvoicePDFService
}

// NewInvoiceHandler construye el handler.
func NewInvoiceHandler(svc InvoiceService, pdf InvoicePDFService) *InvoiceHandler {
	return &InvoiceHandler{svc: svc, pdf: pdf}
}

// Create godoc
// @Summary      Crear borrador (factura, nota de crédito, cotización o pedido)
// @Tags         invoices
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateInvoiceRequest  true  "client_id, type y líneas; los totales se calculan"
// @Success      201   {object}  dto.InvoiceResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/invoices [post]
func (h *InvoiceHandler) Create(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	var in dto.CreateInvoiceRequest
	if resp := bindJSON(c, &in); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}
	inv, err := h.svc.CreateDraft(c.UserContext(), companyID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

// List godoc
// @Summary      Listar facturas
// @Tags         invoices
// @Security     Bearer
// @Produce      json
// @Param        type       query  string  false  "QUOTE, ORDER, INVOICE o CREDIT_NOTE"
// @Param        status     query  string  false  "estado efectivo (incluye OVERDUE y EXPIRED)"
// @Param        client_id  query  string  false  "cliente"
// @Param        from       query  string  false  "fecha de emisión desde (YYYY-MM-DD)"
// @Param        to         query  string  false  "fecha de emisión hasta (YYYY-MM-DD)"
// @Param        limit      query  int     false  "máximo 100"
// @Param        offset     query  int     false  "desplazamiento"
// @Success      200  {object}  dto.InvoiceListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/invoices [get]
func (h *InvoiceHandler) List(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	in := dto.InvoiceListRequest{
		PageRequest: dto.PageRequest{Limit: c.QueryInt("limit", 20), Offset: c.QueryInt("offset", 0)},
		ClientID:    c.Query("client_id"),
		Type:        c.Query("type"),
		Status:      c.Query("status"),
		From:        c.Query("from"),
		To:          c.Query("to"),
	}
	if resp := validateStruct(in); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}
	out, err := h.svc.List(c.UserContext(), companyID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(out)
}

// GetByID godoc
// @Summary      Detalle de factura
// @Tags         invoices
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID de la factura"
// @Success      200  {object}  dto.InvoiceResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id} [get]
func (h *InvoiceHandler) GetByID(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	inv, err := h.svc.Get(c.UserContext(), companyID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

// Update godoc
// @Summary      Reemplazar cabecera y líneas de un borrador
// @Tags         invoices
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                    true  "ID de la factura"
// @Param        body  body  dto.UpdateInvoiceRequest  true  "cabecera y líneas"
// @Success      200   {object}  dto.InvoiceResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/invoices/{id} [put]
func (h *InvoiceHandler) Update(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	var in dto.UpdateInvoiceRequest
	if resp := bindJSON(c, &in); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}
	inv, err := h.svc.Update(c.UserContext(), companyID, c.Params("id"), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

// Delete godoc
// @Summary      Eliminar borrador sin pagos
// @Tags         invoices
// @Security     Bearer
// @Param        id   path  string  true  "ID de la factura"
// @Success      204
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id} [delete]
func (h *InvoiceHandler) Delete(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	if err := h.svc.Delete(c.UserContext(), companyID, c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Finalize godoc
// @Summary      Finalizar: certificación MECeF y número legal
// @Description  Facturas y notas de crédito se certifican antes de asignar número. Si la certificación falla la factura sigue en DRAFT.
// @Tags         invoices
// @Security     Bearer
// @Produce      json
// @Param        id               path    string  true   "ID de la factura"
// @Param        Idempotency-Key  header  string  false  "repite la respuesta de una finalización previa"
// @Success      200  {object}  dto.InvoiceResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Failure      502  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id}/finalize [post]
func (h *InvoiceHandler) Finalize(c *fiber.Ctx) error {
	return h.transition(c, h.svc.Finalize)
}

// Cancel POST /api/invoices/:id/cancel (solo DRAFT sin pagos)
func (h *InvoiceHandler) Cancel(c *fiber.Ctx) error {
	return h.transition(c, h.svc.Cancel)
}

// Accept POST /api/invoices/:id/accept (cotización o pedido enviado)
func (h *InvoiceHandler) Accept(c *fiber.Ctx) error {
	return h.transition(c, h.svc.Accept)
}

// Reject POST /api/invoices/:id/reject (cotización o pedido enviado)
func (h *InvoiceHandler) Reject(c *fiber.Ctx) error {
	return h.transition(c, h.svc.Reject)
}

func (h *InvoiceHandler) transition(c *fiber.Ctx, op func(ctx context.Context, companyID, id string) (*dto.InvoiceResponse, error)) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	inv, err := op(c.UserContext(), companyID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(inv)
}

// RecordPayment godoc
// @Summary      Registrar pago
// @Tags         payments
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id               path    string                    true   "ID de la factura"
// @Param        Idempotency-Key  header  string                    false  "evita registrar dos veces el mismo pago"
// @Param        body             body    dto.RecordPaymentRequest  true   "monto, fecha y medio de pago"
// @Success      201  {object}  dto.RecordPaymentResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id}/payments [post]
func (h *InvoiceHandler) RecordPayment(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	var in dto.RecordPaymentRequest
	if resp := bindJSON(c, &in); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}
	out, err := h.svc.RecordPayment(c.UserContext(), companyID, c.Params("id"), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// ListPayments GET /api/invoices/:id/payments
func (h *InvoiceHandler) ListPayments(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	list, err := h.svc.ListPayments(c.UserContext(), companyID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// DownloadPDF godoc
// @Summary      Representación PDF de un documento finalizado
// @Tags         invoices
// @Security     Bearer
// @Produce      application/pdf
// @Param        id   path  string  true  "ID de la factura"
// @Success      200  {file}    binary
// @Failure      409  {object}  dto.ErrorResponse
// @Router       /api/invoices/{id}/pdf [get]
func (h *InvoiceHandler) DownloadPDF(c *fiber.Ctx) error {
	companyID := GetCompanyID(c)
	if companyID == "" {
		return unauthorized(c)
	}
	out, filename, err := h.pdf.DownloadInvoicePDF(c.UserContext(), companyID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(out)
}
