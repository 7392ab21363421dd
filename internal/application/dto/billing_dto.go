package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// Formato de fechas de negocio (issue_date, due_date, payment_date).
const DateLayout = "2006-01-02"

// CreateClientRequest body para POST /api/clients.
type CreateClientRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=200"`
	IFU     string `json:"ifu,omitempty" validate:"omitempty,len=13,numeric"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// ClientResponse cliente en respuestas.
type ClientResponse struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	IFU       string `json:"ifu,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
}

// InvoiceLineRequest línea de factura. Los totales no se aceptan: siempre se calculan.
type InvoiceLineRequest struct {
	Description     string          `json:"description" validate:"required"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPriceHT     decimal.Decimal `json:"unit_price_ht"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TVARate         decimal.Decimal `json:"tva_rate"`
	TVAGroup        string          `json:"tva_group" validate:"required,oneof=A B C D E F"`
}

// CreateInvoiceRequest body para POST /api/invoices (crea un DRAFT).
type CreateInvoiceRequest struct {
	ClientID          string               `json:"client_id" validate:"required"`
	Type              string               `json:"type" validate:"required,oneof=QUOTE ORDER INVOICE CREDIT_NOTE"`
	Series            string               `json:"series,omitempty" validate:"omitempty,max=10"`
	IssueDate         string               `json:"issue_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DueDate           string               `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	OriginalInvoiceID string               `json:"original_invoice_id,omitempty"`
	Notes             string               `json:"notes,omitempty"`
	LegalMentions     string               `json:"legal_mentions,omitempty"`
	Lines             []InvoiceLineRequest `json:"lines" validate:"dive"`
}

// UpdateInvoiceRequest body para PUT /api/invoices/:id (solo DRAFT). Reemplaza líneas y cabecera.
type UpdateInvoiceRequest struct {
	ClientID      string               `json:"client_id" validate:"required"`
	Series        string               `json:"series,omitempty" validate:"omitempty,max=10"`
	IssueDate     string               `json:"issue_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DueDate       string               `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes         string               `json:"notes,omitempty"`
	LegalMentions string               `json:"legal_mentions,omitempty"`
	Lines         []InvoiceLineRequest `json:"lines" validate:"dive"`
}

// RecordPaymentRequest body para POST /api/invoices/:id/payments.
type RecordPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   string          `json:"payment_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=ESPECES VIREMENT CHEQUE MOBILEMONEY CARTEBANCAIRE CREDIT AUTRE"`
	Reference     string          `json:"reference,omitempty" validate:"max=100"`
}

// InvoiceListRequest filtros de GET /api/invoices.
type InvoiceListRequest struct {
	PageRequest
	ClientID string `query:"client_id"`
	Type     string `query:"type" validate:"omitempty,oneof=QUOTE ORDER INVOICE CREDIT_NOTE"`
	Status   string `query:"status"`
	From     string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To       string `query:"to" validate:"omitempty,datetime=2006-01-02"`
}

// InvoiceLineResponse línea con sus totales derivados.
type InvoiceLineResponse struct {
	ID              string          `json:"id"`
	Position        int             `json:"position"`
	Description     string          `json:"description"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPriceHT     decimal.Decimal `json:"unit_price_ht"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TVARate         decimal.Decimal `json:"tva_rate"`
	TVAGroup        string          `json:"tva_group"`
	TotalHT         decimal.Decimal `json:"total_ht"`
	TotalTVA        decimal.Decimal `json:"total_tva"`
	TotalTTC        decimal.Decimal `json:"total_ttc"`
}

// TaxBreakdownResponse subtotal por grupo de TVA.
type TaxBreakdownResponse struct {
	Group  string          `json:"group"`
	Rate   decimal.Decimal `json:"rate"`
	BaseHT decimal.Decimal `json:"base_ht"`
	TVA    decimal.Decimal `json:"tva"`
}

// InvoiceResponse factura completa para GET /api/invoices/:id.
// Status es el estado efectivo (incluye OVERDUE/EXPIRED derivados).
type InvoiceResponse struct {
	ID                string                 `json:"id"`
	CompanyID         string                 `json:"company_id"`
	ClientID          string                 `json:"client_id"`
	Type              string                 `json:"type"`
	Series            string                 `json:"series"`
	Number            string                 `json:"number,omitempty"`
	IssueDate         string                 `json:"issue_date"`
	DueDate           string                 `json:"due_date,omitempty"`
	Status            string                 `json:"status"`
	TotalHT           decimal.Decimal        `json:"total_ht"`
	TotalTVA          decimal.Decimal        `json:"total_tva"`
	TotalTTC          decimal.Decimal        `json:"total_ttc"`
	AmountPaid        decimal.Decimal        `json:"amount_paid"`
	Balance           decimal.Decimal        `json:"balance"`
	MecefNIM          *string                `json:"mecef_nim,omitempty"`
	MecefCounters     *string                `json:"mecef_counters,omitempty"`
	MecefDTC          *string                `json:"mecef_dtc,omitempty"`
	MecefQRCode       *string                `json:"mecef_qr_code,omitempty"`
	MecefSignature    *string                `json:"mecef_signature,omitempty"`
	MecefType         *string                `json:"mecef_type,omitempty"`
	MecefStatus       *string                `json:"mecef_status,omitempty"`
	OriginalInvoiceID *string                `json:"original_invoice_id,omitempty"`
	Notes             string                 `json:"notes,omitempty"`
	LegalMentions     string                 `json:"legal_mentions,omitempty"`
	FinalizedAt       *time.Time             `json:"finalized_at,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	Lines             []InvoiceLineResponse  `json:"lines"`
	TaxBreakdown      []TaxBreakdownResponse `json:"tax_breakdown"`
}

// InvoiceListResponse lista paginada de facturas (sin líneas).
type InvoiceListResponse struct {
	Items []InvoiceResponse `json:"items"`
	Page  PageResponse      `json:"page"`
}

// PaymentResponse pago registrado.
type PaymentResponse struct {
	ID            string          `json:"id"`
	InvoiceID     string          `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   string          `json:"payment_date"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"reference,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RecordPaymentResponse pago y factura actualizada.
type RecordPaymentResponse struct {
	Payment PaymentResponse `json:"payment"`
	Invoice InvoiceResponse `json:"invoice"`
}
