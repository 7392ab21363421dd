package billing_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-mecef/internal/application/billing"
	"github.com/jhoicas/facturacion-mecef/internal/application/dto"
	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/internal/domain/repository"
	mecefsim "github.com/jhoicas/facturacion-mecef/internal/infrastructure/mecef"
	"github.com/jhoicas/facturacion-mecef/internal/infrastructure/memory"
	"github.com/jhoicas/facturacion-mecef/pkg/mecef"
)

const companyIFU = "3201910123456"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recordingCertifier delega en el simulador, cuenta llamadas y guarda la última solicitud.
type recordingCertifier struct {
	inner mecef.Certifier
	fail  atomic.Bool
	delay time.Duration
	calls atomic.Int32

	mu   sync.Mutex
	last mecef.Request
}

func (r *recordingCertifier) Certify(ctx context.Context, req mecef.Request) (*mecef.Result, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.last = req
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.fail.Load() {
		return nil, errors.New("dispositivo fuera de línea")
	}
	return r.inner.Certify(ctx, req)
}

func (r *recordingCertifier) lastRequest() mecef.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

type fixture struct {
	store     *memory.Store
	svc       *billing.InvoiceService
	certifier *recordingCertifier
	clock     *clock
	companyID string
	clientID  string
}

func newFixture(t *testing.T, opts ...func(*billing.InvoiceServiceDeps)) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	company := &entity.Company{ID: "company-1", Name: "ACME Bénin", IFU: companyIFU, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Companies().Create(ctx, company))
	client := &entity.Client{ID: "client-1", CompanyID: company.ID, Name: "Client SARL", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, store.Clients().Create(ctx, client))

	f := &fixture{
		store:     store,
		certifier: &recordingCertifier{inner: mecefsim.NewSimulator("ED04000000", zerolog.Nop())},
		clock:     &clock{t: now},
		companyID: company.ID,
		clientID:  client.ID,
	}
	deps := billing.InvoiceServiceDeps{
		TxRunner:  store,
		Invoices:  store.Invoices(),
		Payments:  store.Payments(),
		Clients:   store.Clients(),
		Companies: store.Companies(),
		Certifier: f.certifier,
		Logger:    zerolog.Nop(),
		Config:    billing.ServiceConfig{Operator: "Caja 1", AllocationAttempts: 50},
		Now:       f.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.svc = billing.NewInvoiceService(deps)
	return f
}

func line(description string, qty, price, rate int64) dto.InvoiceLineRequest {
	group := mecef.TaxGroupB
	if rate == 0 {
		group = mecef.TaxGroupA
	}
	return dto.InvoiceLineRequest{
		Description: description,
		Quantity:    decimal.NewFromInt(qty),
		UnitPriceHT: decimal.NewFromInt(price),
		TVARate:     decimal.NewFromInt(rate),
		TVAGroup:    group,
	}
}

func (f *fixture) draft(t *testing.T, invoiceType string, lines ...dto.InvoiceLineRequest) *dto.InvoiceResponse {
	t.Helper()
	if len(lines) == 0 {
		lines = []dto.InvoiceLineRequest{line("Consultoría", 1, 100000, 18)}
	}
	inv, err := f.svc.CreateDraft(context.Background(), f.companyID, dto.CreateInvoiceRequest{
		ClientID: f.clientID,
		Type:     invoiceType,
		Lines:    lines,
	})
	require.NoError(t, err)
	return inv
}

func TestCreateDraft_CalculaTotales(t *testing.T) {
	f := newFixture(t)
	inv := f.draft(t, entity.InvoiceTypeInvoice,
		line("Consultoría", 2, 50000, 18),
		dto.InvoiceLineRequest{
			Description:     "Exonéré",
			Quantity:        decimal.NewFromInt(1),
			UnitPriceHT:     decimal.NewFromInt(1000),
			DiscountPercent: decimal.NewFromInt(10),
			TVARate:         decimal.Zero,
			TVAGroup:        mecef.TaxGroupA,
		},
	)

	assert.Equal(t, entity.StatusDraft, inv.Status)
	assert.Equal(t, "FAC", inv.Series)
	assert.Empty(t, inv.Number)
	assert.Equal(t, "2026-03-04", inv.IssueDate)
	assert.Equal(t, "2026-04-03", inv.DueDate)
	assert.True(t, decimal.NewFromInt(100900).Equal(inv.TotalHT), inv.TotalHT.String())
	assert.True(t, decimal.NewFromInt(18000).Equal(inv.TotalTVA), inv.TotalTVA.String())
	assert.True(t, decimal.NewFromInt(118900).Equal(inv.TotalTTC), inv.TotalTTC.String())
	require.NotNil(t, inv.MecefStatus)
	assert.Equal(t, entity.MecefStatusPending, *inv.MecefStatus)
	assert.Len(t, inv.Lines, 2)
	assert.Len(t, inv.TaxBreakdown, 2)
}

func TestCreateDraft_Rechazos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{ClientID: f.clientID, Type: "RECEIPT"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{ClientID: "no-existe", Type: entity.InvoiceTypeInvoice})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.CreateDraft(ctx, "otra-empresa", dto.CreateInvoiceRequest{ClientID: f.clientID, Type: entity.InvoiceTypeInvoice})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{
		ClientID: f.clientID,
		Type:     entity.InvoiceTypeInvoice,
		Lines:    []dto.InvoiceLineRequest{line("Cero", 0, 100, 18)},
	})
	var lineErr *domain.LineInputError
	require.ErrorAs(t, err, &lineErr)
	assert.ErrorIs(t, err, domain.ErrInvalidLineInput)

	_, err = f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{
		ClientID: f.clientID,
		Type:     entity.InvoiceTypeInvoice,
		DueDate:  "2026-01-01",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "vencimiento anterior a la emisión")

	_, err = f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{ClientID: f.clientID, Type: entity.InvoiceTypeCreditNote})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "nota de crédito sin original")

	_, err = f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{ClientID: f.clientID, Type: entity.InvoiceTypeInvoice, OriginalInvoiceID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFinalize_NumeraCertificaYCobra(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeInvoice).ID)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2026-001", inv.Number)
	assert.Equal(t, entity.StatusSent, inv.Status)
	require.NotNil(t, inv.MecefNIM)
	assert.Equal(t, "ED04000000", *inv.MecefNIM)
	require.NotNil(t, inv.MecefType)
	assert.Equal(t, mecef.DocTypeInvoice, *inv.MecefType)
	require.NotNil(t, inv.MecefStatus)
	assert.Equal(t, entity.MecefStatusCertified, *inv.MecefStatus)
	assert.NotNil(t, inv.MecefSignature)
	assert.NotNil(t, inv.MecefQRCode)
	assert.NotNil(t, inv.FinalizedAt)

	req := f.certifier.lastRequest()
	assert.Equal(t, companyIFU, req.CompanyIFU)
	assert.Equal(t, "Caja 1", req.Operator)
	assert.True(t, decimal.NewFromInt(118000).Equal(req.TotalAmount))
	require.Len(t, req.Items, 1)
	assert.True(t, decimal.NewFromInt(118000).Equal(req.Items[0].Price), "precio TTC unitario")

	second, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeInvoice).ID)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2026-002", second.Number)

	paid, err := f.svc.RecordPayment(ctx, f.companyID, inv.ID, dto.RecordPaymentRequest{
		Amount:        decimal.NewFromInt(118000),
		PaymentMethod: entity.PaymentCash,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPaid, paid.Invoice.Status)
	assert.True(t, paid.Invoice.Balance.IsZero())
}

func TestFinalize_NumeraEnElAnioDeFinalizacion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name, issue, due, number, wantDue string
	}{
		{"antedatada", "2019-06-01", "2019-07-01", "FAC-2026-001", "2026-04-03"},
		{"fecha futura", "2031-01-15", "", "FAC-2026-002", "2026-04-03"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			draft, err := f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{
				ClientID:  f.clientID,
				Type:      entity.InvoiceTypeInvoice,
				IssueDate: tc.issue,
				DueDate:   tc.due,
				Lines:     []dto.InvoiceLineRequest{line("Consultoría", 1, 100000, 18)},
			})
			require.NoError(t, err)
			assert.Equal(t, tc.issue, draft.IssueDate)

			inv, err := f.svc.Finalize(ctx, f.companyID, draft.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.number, inv.Number)
			assert.Equal(t, "2026-03-04", inv.IssueDate, "la emisión es el día de finalización")
			assert.Equal(t, tc.wantDue, inv.DueDate, "el vencimiento conserva el plazo del borrador")

			stored, err := f.svc.Get(ctx, f.companyID, draft.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.number, stored.Number)
			assert.Equal(t, "2026-03-04", stored.IssueDate)
		})
	}
}

func TestFinalize_TotalCeroQuedaPagada(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeInvoice, line("Muestra gratuita", 1, 0, 18)).ID)
	require.NoError(t, err)
	assert.True(t, inv.TotalTTC.IsZero())
	assert.Equal(t, entity.StatusPaid, inv.Status)

	_, err = f.svc.RecordPayment(ctx, f.companyID, inv.ID, dto.RecordPaymentRequest{Amount: decimal.NewFromInt(1), PaymentMethod: entity.PaymentCash})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestFinalize_ItemsCertificacion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inexact := dto.InvoiceLineRequest{
		Description: "Tornillos",
		Quantity:    decimal.NewFromInt(3),
		UnitPriceHT: decimal.RequireFromString("1.01"),
		TVARate:     decimal.NewFromInt(18),
		TVAGroup:    mecef.TaxGroupB,
	}
	inv, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeInvoice, line("Consultoría", 2, 50000, 18), inexact).ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("118003.58").Equal(inv.TotalTTC))

	req := f.certifier.lastRequest()
	assert.Equal(t, mecef.PaymentCredit, req.PaymentMethod, "al finalizar nada está cobrado")
	require.Len(t, req.Items, 2)
	assert.True(t, decimal.NewFromInt(59000).Equal(req.Items[0].Price))
	assert.True(t, decimal.NewFromInt(2).Equal(req.Items[0].Quantity))

	assert.Equal(t, "Tornillos (x3)", req.Items[1].Name)
	assert.True(t, decimal.RequireFromString("3.58").Equal(req.Items[1].Price), "TTC de la línea como una unidad")
	assert.True(t, decimal.NewFromInt(1).Equal(req.Items[1].Quantity))

	sum := decimal.Zero
	for _, it := range req.Items {
		sum = sum.Add(it.Price.Mul(it.Quantity))
	}
	assert.True(t, sum.Equal(req.TotalAmount), "los ítems suman el total declarado")
}

func TestFinalize_CertificacionFallidaNoConsumeNumero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.draft(t, entity.InvoiceTypeInvoice)

	f.certifier.fail.Store(true)
	_, err := f.svc.Finalize(ctx, f.companyID, draft.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCertificationFailure)
	var certErr *domain.CertificationError
	assert.ErrorAs(t, err, &certErr)

	got, err := f.svc.Get(ctx, f.companyID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, got.Status)
	assert.Empty(t, got.Number)
	assert.Nil(t, got.MecefNIM)
	assert.Nil(t, got.MecefSignature)
	require.NotNil(t, got.MecefStatus)
	assert.Equal(t, entity.MecefStatusPending, *got.MecefStatus)

	f.certifier.fail.Store(false)
	inv, err := f.svc.Finalize(ctx, f.companyID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "FAC-2026-001", inv.Number)
}

func TestFinalize_TimeoutCertificacion(t *testing.T) {
	blocking := mecef.CertifierFunc(func(ctx context.Context, _ mecef.Request) (*mecef.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	f := newFixture(t, func(d *billing.InvoiceServiceDeps) {
		d.Certifier = blocking
		d.Config.CertificationTimeout = 50 * time.Millisecond
	})
	draft := f.draft(t, entity.InvoiceTypeInvoice)

	_, err := f.svc.Finalize(context.Background(), f.companyID, draft.ID)
	var certErr *domain.CertificationError
	require.ErrorAs(t, err, &certErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := f.svc.Get(context.Background(), f.companyID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, got.Status)
}

func TestFinalize_RespuestaIncompleta(t *testing.T) {
	f := newFixture(t, func(d *billing.InvoiceServiceDeps) {
		d.Certifier = mecef.CertifierFunc(func(context.Context, mecef.Request) (*mecef.Result, error) {
			return &mecef.Result{NIM: "ED04000000"}, nil
		})
	})
	_, err := f.svc.Finalize(context.Background(), f.companyID, f.draft(t, entity.InvoiceTypeInvoice).ID)
	assert.ErrorIs(t, err, domain.ErrCertificationFailure)
}

func TestFinalize_ConcurrenteSinHuecos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 20

	ids := make([]string, n)
	for i := range ids {
		ids[i] = f.draft(t, entity.InvoiceTypeInvoice).ID
	}

	var wg sync.WaitGroup
	numbers := make([]string, n)
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			inv, err := f.svc.Finalize(ctx, f.companyID, id)
			errs[i] = err
			if err == nil {
				numbers[i] = inv.Number
			}
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Strings(numbers)
	for i, number := range numbers {
		assert.Equal(t, fmt.Sprintf("FAC-2026-%03d", i+1), number)
	}
}

func TestFinalize_MismaFacturaCertificaUnaVez(t *testing.T) {
	f := newFixture(t)
	f.certifier.delay = 30 * time.Millisecond
	draft := f.draft(t, entity.InvoiceTypeInvoice)

	var wg sync.WaitGroup
	results := make(chan *dto.InvoiceResponse, 10)
	failures := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := f.svc.Finalize(context.Background(), f.companyID, draft.ID)
			if err != nil {
				failures <- err
				return
			}
			results <- inv
		}()
	}
	wg.Wait()
	close(results)
	close(failures)

	assert.EqualValues(t, 1, f.certifier.calls.Load())
	require.NotEmpty(t, results)
	for inv := range results {
		assert.Equal(t, "FAC-2026-001", inv.Number)
	}
	for err := range failures {
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	}
}

// duplicateRunner simula colisiones permanentes del índice único al finalizar.
type duplicateRunner struct {
	*memory.Store
}

type collidingInvoices struct {
	repository.InvoiceRepository
}

func (collidingInvoices) Finalize(context.Context, *entity.Invoice) error {
	return fmt.Errorf("finalize invoice: %w", domain.ErrDuplicate)
}

func (r duplicateRunner) RunBilling(ctx context.Context, fn func(repository.InvoiceRepository, repository.PaymentRepository) error) error {
	return r.Store.RunBilling(ctx, func(inv repository.InvoiceRepository, pay repository.PaymentRepository) error {
		return fn(collidingInvoices{inv}, pay)
	})
}

func TestFinalize_AgotaReintentos(t *testing.T) {
	f := newFixture(t)
	// El borrador se crea con el runner normal; la finalización usa uno que siempre colisiona.
	draft := f.draft(t, entity.InvoiceTypeInvoice)
	svc := billing.NewInvoiceService(billing.InvoiceServiceDeps{
		TxRunner:  duplicateRunner{f.store},
		Invoices:  f.store.Invoices(),
		Payments:  f.store.Payments(),
		Clients:   f.store.Clients(),
		Companies: f.store.Companies(),
		Certifier: f.certifier,
		Logger:    zerolog.Nop(),
		Config:    billing.ServiceConfig{AllocationAttempts: 3},
		Now:       f.clock.Now,
	})

	_, err := svc.Finalize(context.Background(), f.companyID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrAllocationConflict)

	got, err := f.svc.Get(context.Background(), f.companyID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, got.Status)
	assert.Empty(t, got.Number)
}

func TestTransiciones_SoloDesdeDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeInvoice).ID)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.companyID, sent.ID, dto.UpdateInvoiceRequest{ClientID: f.clientID})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.companyID, sent.ID), domain.ErrInvalidState)
	_, err = f.svc.Cancel(ctx, f.companyID, sent.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.svc.Finalize(ctx, f.companyID, sent.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.svc.Accept(ctx, f.companyID, sent.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "accept solo aplica a cotizaciones y pedidos")

	draft := f.draft(t, entity.InvoiceTypeInvoice)
	cancelled, err := f.svc.Cancel(ctx, f.companyID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, cancelled.Status)
	_, err = f.svc.Finalize(ctx, f.companyID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	empty, err := f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{ClientID: f.clientID, Type: entity.InvoiceTypeInvoice})
	require.NoError(t, err)
	_, err = f.svc.Finalize(ctx, f.companyID, empty.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "sin líneas")
	assert.EqualValues(t, 1, f.certifier.calls.Load())
}

func TestUpdateYDelete_Borrador(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.draft(t, entity.InvoiceTypeInvoice)

	updated, err := f.svc.Update(ctx, f.companyID, draft.ID, dto.UpdateInvoiceRequest{
		ClientID: f.clientID,
		Notes:    "Pago a 30 días",
		DueDate:  "2026-03-31",
		Lines:    []dto.InvoiceLineRequest{line("A", 3, 1000, 18), line("B", 1, 500, 0)},
	})
	require.NoError(t, err)
	assert.Len(t, updated.Lines, 2)
	assert.Equal(t, "Pago a 30 días", updated.Notes)
	assert.Equal(t, "2026-03-31", updated.DueDate)
	assert.True(t, decimal.NewFromInt(4040).Equal(updated.TotalTTC), updated.TotalTTC.String())

	require.NoError(t, f.svc.Delete(ctx, f.companyID, draft.ID))
	_, err = f.svc.Get(ctx, f.companyID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGet_OtraEmpresa(t *testing.T) {
	f := newFixture(t)
	draft := f.draft(t, entity.InvoiceTypeInvoice)

	_, err := f.svc.Get(context.Background(), "otra-empresa", draft.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.Get(context.Background(), f.companyID, "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.draft(t, entity.InvoiceTypeInvoice)

	_, err := f.svc.RecordPayment(ctx, f.companyID, draft.ID, dto.RecordPaymentRequest{Amount: decimal.NewFromInt(10), PaymentMethod: entity.PaymentCash})
	assert.ErrorIs(t, err, domain.ErrInvalidState, "pago sobre DRAFT")

	sent, err := f.svc.Finalize(ctx, f.companyID, draft.ID)
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(ctx, f.companyID, sent.ID, dto.RecordPaymentRequest{Amount: decimal.Zero, PaymentMethod: entity.PaymentCash})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.svc.RecordPayment(ctx, f.companyID, sent.ID, dto.RecordPaymentRequest{Amount: decimal.NewFromInt(10), PaymentMethod: "BITCOIN"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	partial, err := f.svc.RecordPayment(ctx, f.companyID, sent.ID, dto.RecordPaymentRequest{
		Amount:        decimal.NewFromInt(18000),
		PaymentDate:   "2026-03-05",
		PaymentMethod: entity.PaymentMobileMoney,
		Reference:     " MTN-123 ",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPartiallyPaid, partial.Invoice.Status)
	assert.True(t, decimal.NewFromInt(100000).Equal(partial.Invoice.Balance))
	assert.Equal(t, "2026-03-05", partial.Payment.PaymentDate)
	assert.Equal(t, "MTN-123", partial.Payment.Reference)

	_, err = f.svc.RecordPayment(ctx, f.companyID, sent.ID, dto.RecordPaymentRequest{Amount: decimal.NewFromInt(100001), PaymentMethod: entity.PaymentCash})
	assert.ErrorIs(t, err, domain.ErrPaymentExceedsBalance)

	paid, err := f.svc.RecordPayment(ctx, f.companyID, sent.ID, dto.RecordPaymentRequest{Amount: decimal.NewFromInt(100000), PaymentMethod: entity.PaymentTransfer})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPaid, paid.Invoice.Status)

	_, err = f.svc.RecordPayment(ctx, f.companyID, sent.ID, dto.RecordPaymentRequest{Amount: decimal.NewFromInt(1), PaymentMethod: entity.PaymentCash})
	assert.ErrorIs(t, err, domain.ErrInvalidState, "pago sobre PAID")

	payments, err := f.svc.ListPayments(ctx, f.companyID, sent.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	assert.ErrorIs(t, f.svc.Delete(ctx, f.companyID, sent.ID), domain.ErrInvalidState)
}

func TestRecordPayment_Concurrente(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sent, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeInvoice).ID)
	require.NoError(t, err)

	// 20 pagos de 10000 sobre 118000: a lo sumo 11 caben, el resto debe rechazarse o reintentar.
	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordPayment(ctx, f.companyID, sent.ID, dto.RecordPaymentRequest{Amount: decimal.NewFromInt(10000), PaymentMethod: entity.PaymentCash})
			if err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	got, err := f.svc.Get(ctx, f.companyID, sent.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, ok.Load(), int32(11))
	assert.True(t, got.AmountPaid.LessThanOrEqual(got.TotalTTC))
	assert.True(t, decimal.NewFromInt(int64(ok.Load())*10000).Equal(got.AmountPaid), got.AmountPaid.String())

	payments, err := f.svc.ListPayments(ctx, f.companyID, sent.ID)
	require.NoError(t, err)
	assert.Len(t, payments, int(ok.Load()))
}

func TestCreditNote_ConcurrentesRespetanTope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	original, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeInvoice).ID)
	require.NoError(t, err)

	ids := make([]string, 2)
	for i := range ids {
		cn, err := f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{
			ClientID:          f.clientID,
			Type:              entity.InvoiceTypeCreditNote,
			OriginalInvoiceID: original.ID,
			Lines:             []dto.InvoiceLineRequest{line("Devolución", 1, 60000, 18)},
		})
		require.NoError(t, err)
		ids[i] = cn.ID
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.svc.Finalize(ctx, f.companyID, id)
		}(i, id)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrCreditNoteExceedsOriginal)
	}
	assert.Equal(t, 1, ok, "dos notas de 70800 no caben en una factura de 118000")
}

func TestCreditNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	original, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeInvoice).ID)
	require.NoError(t, err)

	cn, err := f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{
		ClientID:          f.clientID,
		Type:              entity.InvoiceTypeCreditNote,
		OriginalInvoiceID: original.ID,
		Lines:             []dto.InvoiceLineRequest{line("Devolución parcial", 1, 50000, 18)},
	})
	require.NoError(t, err)
	assert.Equal(t, "AV", cn.Series)
	assert.Empty(t, cn.DueDate, "las notas de crédito no vencen")

	finalized, err := f.svc.Finalize(ctx, f.companyID, cn.ID)
	require.NoError(t, err)
	assert.Equal(t, "AV-2026-001", finalized.Number)
	require.NotNil(t, finalized.MecefType)
	assert.Equal(t, mecef.DocTypeCreditNote, *finalized.MecefType)
	req := f.certifier.lastRequest()
	assert.Equal(t, mecef.DocTypeCreditNote, req.Type)
	assert.Equal(t, *original.MecefSignature, req.Reference)

	_, err = f.svc.RecordPayment(ctx, f.companyID, cn.ID, dto.RecordPaymentRequest{Amount: decimal.NewFromInt(1), PaymentMethod: entity.PaymentCash})
	assert.ErrorIs(t, err, domain.ErrInvalidState, "no se cobran notas de crédito")

	over, err := f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{
		ClientID:          f.clientID,
		Type:              entity.InvoiceTypeCreditNote,
		OriginalInvoiceID: original.ID,
		Lines:             []dto.InvoiceLineRequest{line("Exceso", 1, 60000, 18)},
	})
	require.NoError(t, err)
	calls := f.certifier.calls.Load()
	_, err = f.svc.Finalize(ctx, f.companyID, over.ID)
	assert.ErrorIs(t, err, domain.ErrCreditNoteExceedsOriginal)
	assert.Equal(t, calls, f.certifier.calls.Load(), "no se certifica una nota que excede el original")
}

func TestCreditNote_OriginalInvalido(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.draft(t, entity.InvoiceTypeInvoice)

	_, err := f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{
		ClientID: f.clientID, Type: entity.InvoiceTypeCreditNote, OriginalInvoiceID: draft.ID,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState, "original en DRAFT")

	_, err = f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{
		ClientID: f.clientID, Type: entity.InvoiceTypeCreditNote, OriginalInvoiceID: "no-existe",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	original, err := f.svc.Finalize(ctx, f.companyID, draft.ID)
	require.NoError(t, err)
	other := &entity.Client{ID: "client-2", CompanyID: f.companyID, Name: "Otro"}
	require.NoError(t, f.store.Clients().Create(ctx, other))
	_, err = f.svc.CreateDraft(ctx, f.companyID, dto.CreateInvoiceRequest{
		ClientID: other.ID, Type: entity.InvoiceTypeCreditNote, OriginalInvoiceID: original.ID,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "cliente distinto del original")
}

func TestQuote_AceptarRechazarExpirar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q1, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeQuote).ID)
	require.NoError(t, err)
	assert.Equal(t, "DEV-2026-001", q1.Number)
	assert.Nil(t, q1.MecefNIM)
	assert.Nil(t, q1.MecefStatus)
	assert.EqualValues(t, 0, f.certifier.calls.Load(), "las cotizaciones no se certifican")

	accepted, err := f.svc.Accept(ctx, f.companyID, q1.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, accepted.Status)
	_, err = f.svc.Reject(ctx, f.companyID, q1.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	q2, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeQuote).ID)
	require.NoError(t, err)
	rejected, err := f.svc.Reject(ctx, f.companyID, q2.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, rejected.Status)

	order, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeOrder).ID)
	require.NoError(t, err)
	assert.Equal(t, "BC-2026-001", order.Number)

	q3, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeQuote).ID)
	require.NoError(t, err)
	f.clock.Advance(40 * 24 * time.Hour)
	got, err := f.svc.Get(ctx, f.companyID, q3.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusExpired, got.Status)
	_, err = f.svc.Accept(ctx, f.companyID, q3.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestList_FiltrosYVencidas(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	overdue, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeInvoice).ID)
	require.NoError(t, err)
	paid, err := f.svc.Finalize(ctx, f.companyID, f.draft(t, entity.InvoiceTypeInvoice).ID)
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, f.companyID, paid.ID, dto.RecordPaymentRequest{Amount: paid.TotalTTC, PaymentMethod: entity.PaymentCash})
	require.NoError(t, err)
	f.draft(t, entity.InvoiceTypeQuote)

	all, err := f.svc.List(ctx, f.companyID, dto.InvoiceListRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 3)
	assert.Equal(t, 20, all.Page.Limit)

	quotes, err := f.svc.List(ctx, f.companyID, dto.InvoiceListRequest{Type: entity.InvoiceTypeQuote})
	require.NoError(t, err)
	assert.Len(t, quotes.Items, 1)

	f.clock.Advance(31 * 24 * time.Hour)
	late, err := f.svc.List(ctx, f.companyID, dto.InvoiceListRequest{Status: entity.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, late.Items, 1)
	assert.Equal(t, overdue.ID, late.Items[0].ID)
	assert.Equal(t, entity.StatusOverdue, late.Items[0].Status)

	_, err = f.svc.List(ctx, f.companyID, dto.InvoiceListRequest{From: "04/03/2026"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	other, err := f.svc.List(ctx, "otra-empresa", dto.InvoiceListRequest{})
	require.NoError(t, err)
	assert.Empty(t, other.Items)
}
