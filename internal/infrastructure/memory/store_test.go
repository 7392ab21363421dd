package memory_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/internal/domain/repository"
	"github.com/jhoicas/facturacion-mecef/internal/infrastructure/memory"
)

const originalID = "inv-1"

func seedCreditNotes(t *testing.T, store *memory.Store, ids ...string) map[string]*entity.Invoice {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.Invoices().Create(ctx, &entity.Invoice{
		ID: originalID, CompanyID: "c1", Type: entity.InvoiceTypeInvoice, Series: "FAC",
		Number: "FAC-2026-001", FiscalYear: 2026, Ordinal: 1, Status: entity.StatusSent,
		TotalTTC: decimal.NewFromInt(100), Version: 1,
	}))
	notes := map[string]*entity.Invoice{}
	for _, id := range ids {
		ref := originalID
		cn := &entity.Invoice{
			ID: id, CompanyID: "c1", Type: entity.InvoiceTypeCreditNote, Series: "AV",
			Status: entity.StatusDraft, TotalTTC: decimal.NewFromInt(60), OriginalInvoiceID: &ref, Version: 1,
		}
		require.NoError(t, store.Invoices().Create(ctx, cn))
		notes[id] = cn
	}
	return notes
}

func finalizeCredit(repo repository.InvoiceRepository, cn *entity.Invoice, ordinal int) error {
	cn.Status = entity.StatusSent
	cn.FiscalYear = 2026
	cn.Ordinal = ordinal
	cn.Number = fmt.Sprintf("AV-2026-%03d", ordinal)
	return repo.Finalize(context.Background(), cn)
}

func TestRunBilling_SumaDeNotasDeCreditoCambiaAntesDeConfirmar(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	notes := seedCreditNotes(t, store, "cn-a", "cn-b")

	err := store.RunBilling(ctx, func(invoices repository.InvoiceRepository, _ repository.PaymentRepository) error {
		credited, err := invoices.SumCreditNotes(ctx, originalID)
		require.NoError(t, err)
		assert.True(t, credited.IsZero())

		// otra transacción acredita la misma factura y confirma primero
		require.NoError(t, store.RunBilling(ctx, func(other repository.InvoiceRepository, _ repository.PaymentRepository) error {
			credited, err := other.SumCreditNotes(ctx, originalID)
			require.NoError(t, err)
			assert.True(t, credited.IsZero())
			return finalizeCredit(other, notes["cn-b"], 1)
		}))

		return finalizeCredit(invoices, notes["cn-a"], 2)
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	credited, err := store.Invoices().SumCreditNotes(ctx, originalID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(60).Equal(credited), "solo la primera nota quedó confirmada")

	stored, err := store.Invoices().GetByID(ctx, "cn-a")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, stored.Status)
}

func TestRunBilling_SumaDeNotasDeCreditoIncluyeLasPropias(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	notes := seedCreditNotes(t, store, "cn-a", "cn-b")

	require.NoError(t, store.RunBilling(ctx, func(invoices repository.InvoiceRepository, _ repository.PaymentRepository) error {
		if err := finalizeCredit(invoices, notes["cn-a"], 1); err != nil {
			return err
		}
		credited, err := invoices.SumCreditNotes(ctx, originalID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(60).Equal(credited))
		return nil
	}))

	require.NoError(t, store.RunBilling(ctx, func(invoices repository.InvoiceRepository, _ repository.PaymentRepository) error {
		credited, err := invoices.SumCreditNotes(ctx, originalID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(60).Equal(credited))
		return finalizeCredit(invoices, notes["cn-b"], 2)
	}), "una lectura sin cambios concurrentes confirma")
}
