package invoicing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/internal/domain/invoicing"
	"github.com/jhoicas/facturacion-mecef/pkg/mecef"
)

func TestNumbering_FormatoYParse(t *testing.T) {
	assert.Equal(t, "FAC-2026-001", invoicing.FormatNumber("FAC", 2026, 1))
	assert.Equal(t, "FAC-2026-042", invoicing.FormatNumber("FAC", 2026, 42))
	assert.Equal(t, "AV-2026-1234", invoicing.FormatNumber("AV", 2026, 1234))

	series, year, ordinal, err := invoicing.ParseNumber("FAC-2026-042")
	require.NoError(t, err)
	assert.Equal(t, "FAC", series)
	assert.Equal(t, 2026, year)
	assert.Equal(t, 42, ordinal)

	for _, bad := range []string{"FAC2026001", "FAC-26-001", "FAC-2026-1", "FAC-2026-000", "FAC-2026-abc"} {
		_, _, _, err := invoicing.ParseNumber(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, bad)
	}
	assert.Equal(t, 1, invoicing.NextOrdinal(0))
	assert.Equal(t, 8, invoicing.NextOrdinal(7))
}

func TestSeries(t *testing.T) {
	assert.Equal(t, "FAC", invoicing.DefaultSeries(entity.InvoiceTypeInvoice))
	assert.Equal(t, "AV", invoicing.DefaultSeries(entity.InvoiceTypeCreditNote))
	assert.Equal(t, "DEV", invoicing.DefaultSeries(entity.InvoiceTypeQuote))
	assert.Equal(t, "BC", invoicing.DefaultSeries(entity.InvoiceTypeOrder))
	assert.NoError(t, invoicing.ValidateSeries("FAC"))
	assert.Error(t, invoicing.ValidateSeries("FA-C"))
	assert.Error(t, invoicing.ValidateSeries(""))
}

func draft() *entity.Invoice {
	return &entity.Invoice{
		Type:     entity.InvoiceTypeInvoice,
		Status:   entity.StatusDraft,
		TotalTTC: dec("118000"),
		Lines:    []*entity.InvoiceLine{{Description: "x"}},
	}
}

func TestGuards_SoloDraft(t *testing.T) {
	inv := draft()
	assert.NoError(t, invoicing.CanUpdate(inv))
	assert.NoError(t, invoicing.CanDelete(inv, 0))
	assert.NoError(t, invoicing.CanCancel(inv, 0))
	assert.NoError(t, invoicing.CanFinalize(inv))

	assert.ErrorIs(t, invoicing.CanDelete(inv, 1), domain.ErrInvalidState)
	assert.ErrorIs(t, invoicing.CanCancel(inv, 1), domain.ErrInvalidState)

	for _, st := range []string{entity.StatusSent, entity.StatusPartiallyPaid, entity.StatusPaid, entity.StatusCancelled} {
		inv.Status = st
		err := invoicing.CanUpdate(inv)
		assert.ErrorIs(t, err, domain.ErrInvalidState, st)
		var se *domain.StateError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, st, se.Status)
		assert.ErrorIs(t, invoicing.CanDelete(inv, 0), domain.ErrInvalidState, st)
		assert.ErrorIs(t, invoicing.CanFinalize(inv), domain.ErrInvalidState, st)
	}
}

func TestCanFinalize_SinLineas(t *testing.T) {
	inv := draft()
	inv.Lines = nil
	assert.ErrorIs(t, invoicing.CanFinalize(inv), domain.ErrInvalidInput)
}

func TestMarkFinalized(t *testing.T) {
	inv := draft()
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	cert := &mecef.Result{NIM: "ED01", Counters: "1/1 FV", DTC: "01/05/2026 09:00:00", QRCode: "F;...", Signature: "SIG"}
	invoicing.MarkFinalized(inv, "FAC", 2026, 1, cert, mecef.DocTypeInvoice, at)

	assert.Equal(t, "FAC-2026-001", inv.Number)
	assert.Equal(t, entity.StatusSent, inv.Status)
	assert.True(t, inv.IsCertified())
	assert.Equal(t, "ED01", *inv.MecefNIM)
	assert.Equal(t, "FV", *inv.MecefType)

	quote := draft()
	quote.Type = entity.InvoiceTypeQuote
	invoicing.MarkFinalized(quote, "DEV", 2026, 3, nil, "", at)
	assert.Equal(t, "DEV-2026-003", quote.Number)
	assert.Nil(t, quote.MecefStatus)
}

func TestMarkFinalized_FechasYEstadoDerivado(t *testing.T) {
	at := time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, 2026, invoicing.FiscalYear(at))
	assert.Equal(t, 2026, invoicing.FiscalYear(time.Date(2027, 1, 1, 0, 30, 0, 0, time.FixedZone("WAT", 3600))))

	inv := draft()
	inv.IssueDate = time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	due := inv.IssueDate.AddDate(0, 0, 15)
	inv.DueDate = &due
	invoicing.MarkFinalized(inv, "FAC", invoicing.FiscalYear(at), 1, nil, "", at)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	assert.Equal(t, time.Date(2026, 3, 19, 0, 0, 0, 0, time.UTC), *inv.DueDate)
	assert.Equal(t, entity.StatusSent, inv.Status)

	free := draft()
	free.TotalTTC = dec("0")
	invoicing.MarkFinalized(free, "FAC", 2026, 2, nil, "", at)
	assert.Equal(t, entity.StatusPaid, free.Status)

	credit := draft()
	credit.Type = entity.InvoiceTypeCreditNote
	credit.TotalTTC = dec("0")
	invoicing.MarkFinalized(credit, "AV", 2026, 1, nil, "", at)
	assert.Equal(t, entity.StatusSent, credit.Status, "las notas de crédito no se cobran")
}

func TestPayments_Monotonia(t *testing.T) {
	inv := draft()
	inv.Status = entity.StatusSent

	require.NoError(t, invoicing.CanRecordPayment(inv, dec("18000")))
	inv.AmountPaid = dec("18000")
	assert.Equal(t, entity.StatusPartiallyPaid, invoicing.StatusAfterPayment(inv))

	inv.Status = entity.StatusPartiallyPaid
	assert.ErrorIs(t, invoicing.CanRecordPayment(inv, dec("100000.01")), domain.ErrPaymentExceedsBalance)
	require.NoError(t, invoicing.CanRecordPayment(inv, dec("100000")))
	inv.AmountPaid = dec("118000")
	assert.Equal(t, entity.StatusPaid, invoicing.StatusAfterPayment(inv))

	inv.Status = entity.StatusPaid
	assert.ErrorIs(t, invoicing.CanRecordPayment(inv, dec("1")), domain.ErrInvalidState)
}

func TestPayments_Rechazos(t *testing.T) {
	inv := draft()
	assert.ErrorIs(t, invoicing.CanRecordPayment(inv, dec("1")), domain.ErrInvalidState, "DRAFT")

	inv.Status = entity.StatusSent
	assert.ErrorIs(t, invoicing.CanRecordPayment(inv, dec("0")), domain.ErrInvalidAmount)

	inv.Type = entity.InvoiceTypeCreditNote
	assert.ErrorIs(t, invoicing.CanRecordPayment(inv, dec("1")), domain.ErrInvalidState)
}

func TestEffectiveStatus_VencidaYExpirada(t *testing.T) {
	due := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	inv := draft()
	inv.Status = entity.StatusSent
	inv.DueDate = &due

	assert.Equal(t, entity.StatusSent, inv.EffectiveStatus(due.Add(12*time.Hour)), "el día de vencimiento aún no vence")
	assert.Equal(t, entity.StatusOverdue, inv.EffectiveStatus(due.AddDate(0, 0, 1)))

	inv.AmountPaid = inv.TotalTTC
	inv.Status = entity.StatusPaid
	assert.Equal(t, entity.StatusPaid, inv.EffectiveStatus(due.AddDate(0, 0, 10)))

	quote := draft()
	quote.Type = entity.InvoiceTypeQuote
	quote.Status = entity.StatusSent
	quote.DueDate = &due
	assert.Equal(t, entity.StatusExpired, quote.EffectiveStatus(due.AddDate(0, 0, 1)))
	assert.ErrorIs(t, invoicing.CanRespond(quote, invoicing.OpAccept, due.AddDate(0, 0, 1)), domain.ErrInvalidState)
	assert.NoError(t, invoicing.CanRespond(quote, invoicing.OpAccept, due))
}

func TestCreditNote_Reglas(t *testing.T) {
	original := draft()
	original.CompanyID = "c1"
	original.Status = entity.StatusSent
	cn := &entity.Invoice{CompanyID: "c1", Type: entity.InvoiceTypeCreditNote}

	assert.NoError(t, invoicing.ValidateCreditNoteOriginal(cn, original))
	assert.ErrorIs(t, invoicing.ValidateCreditNoteOriginal(cn, nil), domain.ErrNotFound)

	other := *original
	other.CompanyID = "c2"
	assert.ErrorIs(t, invoicing.ValidateCreditNoteOriginal(cn, &other), domain.ErrNotFound)

	d := *original
	d.Status = entity.StatusDraft
	assert.ErrorIs(t, invoicing.ValidateCreditNoteOriginal(cn, &d), domain.ErrInvalidState)

	assert.NoError(t, invoicing.CheckCreditNoteCap(original, dec("100000"), dec("18000")))
	assert.ErrorIs(t, invoicing.CheckCreditNoteCap(original, dec("100000"), dec("18000.01")), domain.ErrCreditNoteExceedsOriginal)

	assert.Equal(t, mecef.DocTypeCreditNote, invoicing.MecefDocType(entity.InvoiceTypeCreditNote))
	assert.Equal(t, mecef.DocTypeInvoice, invoicing.MecefDocType(entity.InvoiceTypeInvoice))
}
