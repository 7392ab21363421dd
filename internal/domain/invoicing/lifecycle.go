package invoicing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/pkg/mecef"
)

// Operaciones sujetas a la máquina de estados.
const (
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpCancel   = "cancel"
	OpFinalize = "finalize"
	OpPayment  = "record_payment"
	OpAccept   = "accept"
	OpReject   = "reject"
)

func stateErr(op string, inv *entity.Invoice) error {
	return &domain.StateError{Op: op, Status: inv.Status}
}

// CanUpdate: solo DRAFT admite cambios de cabecera o reemplazo de líneas.
func CanUpdate(inv *entity.Invoice) error {
	if inv.Status != entity.StatusDraft {
		return stateErr(OpUpdate, inv)
	}
	return nil
}

// CanDelete: DRAFT y sin pagos.
func CanDelete(inv *entity.Invoice, payments int) error {
	if inv.Status != entity.StatusDraft || payments > 0 {
		return stateErr(OpDelete, inv)
	}
	return nil
}

// CanCancel: DRAFT y sin pagos (pasa a CANCELLED conservando el registro).
func CanCancel(inv *entity.Invoice, payments int) error {
	if inv.Status != entity.StatusDraft || payments > 0 {
		return stateErr(OpCancel, inv)
	}
	return nil
}

// CanFinalize: solo desde DRAFT, con al menos una línea.
func CanFinalize(inv *entity.Invoice) error {
	if inv.Status != entity.StatusDraft {
		return stateErr(OpFinalize, inv)
	}
	if len(inv.Lines) == 0 {
		return fmt.Errorf("%w: la factura no tiene líneas", domain.ErrInvalidInput)
	}
	return nil
}

// FiscalYear año de numeración de un documento finalizado en at.
func FiscalYear(at time.Time) int {
	return at.UTC().Year()
}

// MarkFinalized aplica en memoria el paso DRAFT → SENT con número y certificación opcional.
// La fecha de emisión pasa a ser el día de finalización y el vencimiento conserva el plazo
// del borrador. Una factura queda en el estado derivado de pagado vs TTC (TTC 0 → PAID).
func MarkFinalized(inv *entity.Invoice, series string, year, ordinal int, cert *mecef.Result, mecefType string, at time.Time) {
	y, m, d := at.UTC().Date()
	issued := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if inv.DueDate != nil {
		due := issued.Add(inv.DueDate.Sub(inv.IssueDate))
		inv.DueDate = &due
	}
	inv.IssueDate = issued

	inv.Series = series
	inv.FiscalYear = year
	inv.Ordinal = ordinal
	inv.Number = FormatNumber(series, year, ordinal)
	inv.Status = entity.StatusSent
	if inv.Type == entity.InvoiceTypeInvoice {
		inv.Status = StatusAfterPayment(inv)
	}
	inv.FinalizedAt = &at
	inv.UpdatedAt = at
	if cert == nil {
		return
	}
	certified := entity.MecefStatusCertified
	inv.MecefNIM = &cert.NIM
	inv.MecefCounters = &cert.Counters
	inv.MecefDTC = &cert.DTC
	inv.MecefQRCode = &cert.QRCode
	inv.MecefSignature = &cert.Signature
	inv.MecefType = &mecefType
	inv.MecefStatus = &certified
}

// CanRecordPayment: solo facturas (no notas de crédito) en SENT o PARTIALLY_PAID.
// Un pago que supere el saldo se rechaza: no hay crédito implícito.
func CanRecordPayment(inv *entity.Invoice, amount decimal.Decimal) error {
	if inv.Type != entity.InvoiceTypeInvoice {
		return fmt.Errorf("%w: solo se registran pagos sobre facturas (tipo %s)", domain.ErrInvalidState, inv.Type)
	}
	if inv.Status != entity.StatusSent && inv.Status != entity.StatusPartiallyPaid {
		return stateErr(OpPayment, inv)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: el pago debe ser mayor que cero", domain.ErrInvalidAmount)
	}
	if amount.GreaterThan(inv.Balance()) {
		return fmt.Errorf("%w: pago %s, saldo %s", domain.ErrPaymentExceedsBalance, amount.StringFixed(2), inv.Balance().StringFixed(2))
	}
	return nil
}

// StatusAfterPayment deriva el estado a partir de pagado vs TTC.
func StatusAfterPayment(inv *entity.Invoice) string {
	if inv.AmountPaid.GreaterThanOrEqual(inv.TotalTTC) {
		return entity.StatusPaid
	}
	if inv.AmountPaid.IsPositive() {
		return entity.StatusPartiallyPaid
	}
	return entity.StatusSent
}

// CanRespond valida accept/reject: cotización o pedido enviado y no vencido en now.
func CanRespond(inv *entity.Invoice, op string, now time.Time) error {
	if !entity.IsCommercialDocument(inv.Type) {
		return fmt.Errorf("%w: %s solo aplica a cotizaciones y pedidos", domain.ErrInvalidState, op)
	}
	if inv.EffectiveStatus(now) != entity.StatusSent {
		return &domain.StateError{Op: op, Status: inv.EffectiveStatus(now)}
	}
	return nil
}

// ValidateCreditNoteOriginal: la nota de crédito debe referir una factura finalizada de la misma empresa.
func ValidateCreditNoteOriginal(creditNote, original *entity.Invoice) error {
	if original == nil || original.CompanyID != creditNote.CompanyID {
		return fmt.Errorf("%w: factura original no encontrada", domain.ErrNotFound)
	}
	if original.Type != entity.InvoiceTypeInvoice {
		return fmt.Errorf("%w: la factura original debe ser de tipo INVOICE", domain.ErrInvalidInput)
	}
	if original.Status == entity.StatusDraft || original.Status == entity.StatusCancelled {
		return fmt.Errorf("%w: la factura original está en %s", domain.ErrInvalidState, original.Status)
	}
	return nil
}

// CheckCreditNoteCap: el TTC de la nota más las notas ya finalizadas no supera el TTC original.
func CheckCreditNoteCap(original *entity.Invoice, alreadyCredited, creditTTC decimal.Decimal) error {
	if alreadyCredited.Add(creditTTC).GreaterThan(original.TotalTTC) {
		return fmt.Errorf("%w: acreditado %s + %s > %s", domain.ErrCreditNoteExceedsOriginal,
			alreadyCredited.StringFixed(2), creditTTC.StringFixed(2), original.TotalTTC.StringFixed(2))
	}
	return nil
}

// MecefDocType tipo de documento MECeF según el tipo de factura.
func MecefDocType(invoiceType string) string {
	if invoiceType == entity.InvoiceTypeCreditNote {
		return mecef.DocTypeCreditNote
	}
	return mecef.DocTypeInvoice
}
