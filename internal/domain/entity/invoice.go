package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de documento.
const (
	InvoiceTypeQuote      = "QUOTE"
	InvoiceTypeOrder      = "ORDER"
	InvoiceTypeInvoice    = "INVOICE"
	InvoiceTypeCreditNote = "CREDIT_NOTE"
)

// Estados persistidos. OVERDUE y EXPIRED no se guardan: se derivan al leer (ver EffectiveStatus).
const (
	StatusDraft         = "DRAFT"
	StatusSent          = "SENT"
	StatusPartiallyPaid = "PARTIALLY_PAID"
	StatusPaid          = "PAID"
	StatusCancelled     = "CANCELLED"
	StatusAccepted      = "ACCEPTED"
	StatusRejected      = "REJECTED"

	StatusOverdue = "OVERDUE" // derivado
	StatusExpired = "EXPIRED" // derivado
)

// Estado de certificación MECeF (nil para cotizaciones y pedidos).
const (
	MecefStatusPending   = "PENDING"
	MecefStatusCertified = "CERTIFIED"
)

// Invoice es la raíz del agregado: cabecera, líneas y artefactos de certificación.
type Invoice struct {
	ID                string
	CompanyID         string
	ClientID          string
	Type              string
	Series            string
	Number            string // vacío mientras está en DRAFT
	FiscalYear        int    // 0 mientras está en DRAFT
	Ordinal           int
	IssueDate         time.Time
	DueDate           *time.Time
	Status            string
	TotalHT           decimal.Decimal
	TotalTVA          decimal.Decimal
	TotalTTC          decimal.Decimal
	AmountPaid        decimal.Decimal
	MecefNIM          *string
	MecefCounters     *string
	MecefDTC          *string
	MecefQRCode       *string
	MecefSignature    *string
	MecefType         *string
	MecefStatus       *string
	OriginalInvoiceID *string
	Notes             string
	LegalMentions     string
	FinalizedAt       *time.Time
	Version           int // control optimista de concurrencia
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Lines []*InvoiceLine
}

// RequiresCertification indica si el tipo pasa por el dispositivo MECeF al finalizar.
func RequiresCertification(invoiceType string) bool {
	return invoiceType == InvoiceTypeInvoice || invoiceType == InvoiceTypeCreditNote
}

// IsCommercialDocument indica cotizaciones y pedidos (máquina ACCEPTED/REJECTED/EXPIRED).
func IsCommercialDocument(invoiceType string) bool {
	return invoiceType == InvoiceTypeQuote || invoiceType == InvoiceTypeOrder
}

// ValidInvoiceType valida el tipo de documento.
func ValidInvoiceType(t string) bool {
	switch t {
	case InvoiceTypeQuote, InvoiceTypeOrder, InvoiceTypeInvoice, InvoiceTypeCreditNote:
		return true
	}
	return false
}

// IsCertified indica que los campos mecef* y los totales ya son inmutables.
func (i *Invoice) IsCertified() bool {
	return i.MecefStatus != nil && *i.MecefStatus == MecefStatusCertified
}

// Balance es el saldo pendiente (TTC - pagado).
func (i *Invoice) Balance() decimal.Decimal {
	return i.TotalTTC.Sub(i.AmountPaid)
}

// EffectiveStatus devuelve el estado visible en la fecha now: OVERDUE para facturas vencidas con saldo,
// EXPIRED para cotizaciones/pedidos enviados cuya validez (DueDate) pasó.
func (i *Invoice) EffectiveStatus(now time.Time) string {
	if i.DueDate == nil || !now.After(endOfDay(*i.DueDate)) {
		return i.Status
	}
	if IsCommercialDocument(i.Type) {
		if i.Status == StatusSent {
			return StatusExpired
		}
		return i.Status
	}
	if (i.Status == StatusSent || i.Status == StatusPartiallyPaid) && i.AmountPaid.LessThan(i.TotalTTC) {
		return StatusOverdue
	}
	return i.Status
}

// La fecha de vencimiento cubre el día completo.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
