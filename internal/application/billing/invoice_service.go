package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/jhoicas/facturacion-mecef/internal/application/dto"
	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/internal/domain/invoicing"
	"github.com/jhoicas/facturacion-mecef/internal/domain/money"
	"github.com/jhoicas/facturacion-mecef/internal/domain/repository"
	"github.com/jhoicas/facturacion-mecef/pkg/mecef"
)

// Valores por defecto del servicio.
const (
	DefaultCertificationTimeout = 15 * time.Second
	DefaultPersistTimeout       = 10 * time.Second
	DefaultDueDays              = 30
)

// ServiceConfig parámetros del ciclo de vida.
type ServiceConfig struct {
	CertificationTimeout time.Duration
	PersistTimeout       time.Duration
	AllocationAttempts   int
	DefaultDueDays       int
	Operator             string // nombre del operador enviado al dispositivo
}

// InvoiceServiceDeps dependencias del servicio (repos fuera de transacción para lecturas).
type InvoiceServiceDeps struct {
	TxRunner  BillingTxRunner
	Invoices  repository.InvoiceRepository
	Payments  repository.PaymentRepository
	Clients   repository.ClientRepository
	Companies repository.CompanyRepository
	Certifier mecef.Certifier
	Metrics   Metrics
	Logger    zerolog.Logger
	Config    ServiceConfig
	Now       func() time.Time
}

// InvoiceService orquesta la máquina de estados: cálculo de líneas y totales,
// certificación MECeF, numeración legal y pagos.
type InvoiceService struct {
	tx        BillingTxRunner
	invoices  repository.InvoiceRepository
	payments  repository.PaymentRepository
	clients   repository.ClientRepository
	companies repository.CompanyRepository
	certifier mecef.Certifier
	allocator *SequenceAllocator
	metrics   Metrics
	log       zerolog.Logger
	cfg       ServiceConfig
	now       func() time.Time

	// Coalesce finalizaciones concurrentes de la misma factura dentro del proceso.
	flight singleflight.Group
}

// NewInvoiceService construye el servicio aplicando valores por defecto.
func NewInvoiceService(d InvoiceServiceDeps) *InvoiceService {
	if d.Config.CertificationTimeout <= 0 {
		d.Config.CertificationTimeout = DefaultCertificationTimeout
	}
	if d.Config.PersistTimeout <= 0 {
		d.Config.PersistTimeout = DefaultPersistTimeout
	}
	if d.Config.DefaultDueDays <= 0 {
		d.Config.DefaultDueDays = DefaultDueDays
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	log := d.Logger.With().Str("component", "invoice_service").Logger()
	return &InvoiceService{
		tx:        d.TxRunner,
		invoices:  d.Invoices,
		payments:  d.Payments,
		clients:   d.Clients,
		companies: d.Companies,
		certifier: d.Certifier,
		allocator: NewSequenceAllocator(d.TxRunner, d.Config.AllocationAttempts, d.Metrics, log),
		metrics:   d.Metrics,
		log:       log,
		cfg:       d.Config,
		now:       d.Now,
	}
}

// CreateDraft crea una factura, cotización, pedido o nota de crédito en DRAFT con totales calculados.
func (s *InvoiceService) CreateDraft(ctx context.Context, companyID string, in dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if !entity.ValidInvoiceType(in.Type) {
		return nil, fmt.Errorf("%w: tipo %q", domain.ErrInvalidInput, in.Type)
	}
	if err := s.checkClient(ctx, companyID, in.ClientID); err != nil {
		return nil, err
	}
	now := s.now()
	inv := &entity.Invoice{
		ID:            uuid.New().String(),
		CompanyID:     companyID,
		ClientID:      in.ClientID,
		Type:          in.Type,
		Status:        entity.StatusDraft,
		Notes:         in.Notes,
		LegalMentions: in.LegalMentions,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.applyHeader(inv, in.Series, in.IssueDate, in.DueDate); err != nil {
		return nil, err
	}
	if entity.RequiresCertification(inv.Type) {
		pending := entity.MecefStatusPending
		inv.MecefStatus = &pending
	}

	switch {
	case inv.Type == entity.InvoiceTypeCreditNote:
		if in.OriginalInvoiceID == "" {
			return nil, fmt.Errorf("%w: la nota de crédito requiere original_invoice_id", domain.ErrInvalidInput)
		}
		original, err := s.invoices.GetByID(ctx, in.OriginalInvoiceID)
		if err != nil {
			return nil, s.internal("leer factura original", err)
		}
		if err := invoicing.ValidateCreditNoteOriginal(inv, original); err != nil {
			return nil, err
		}
		if original.ClientID != inv.ClientID {
			return nil, fmt.Errorf("%w: la nota de crédito debe ser para el cliente de la factura original", domain.ErrInvalidInput)
		}
		inv.OriginalInvoiceID = &original.ID
	case in.OriginalInvoiceID != "":
		return nil, fmt.Errorf("%w: original_invoice_id solo aplica a notas de crédito", domain.ErrInvalidInput)
	}

	lines, err := invoicing.BuildLines(inv.ID, toLineInputs(in.Lines))
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		l.ID = uuid.New().String()
	}
	inv.Lines = lines
	invoicing.ApplyTotals(inv)

	err = s.tx.RunBilling(ctx, func(invoiceRepo repository.InvoiceRepository, _ repository.PaymentRepository) error {
		return invoiceRepo.Create(ctx, inv)
	})
	if err != nil {
		return nil, s.internal("crear borrador", err)
	}
	s.log.Info().Str("invoice_id", inv.ID).Str("type", inv.Type).Str("total_ttc", money.Format(inv.TotalTTC)).Msg("borrador creado")
	return toInvoiceResponse(inv, now), nil
}

// Get devuelve la factura con líneas y estado efectivo.
func (s *InvoiceService) Get(ctx context.Context, companyID, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.load(ctx, s.invoices, companyID, id)
	if err != nil {
		return nil, err
	}
	return toInvoiceResponse(inv, s.now()), nil
}

// List lista facturas de la empresa. El filtro por OVERDUE/EXPIRED se aplica sobre el estado efectivo.
func (s *InvoiceService) List(ctx context.Context, companyID string, in dto.InvoiceListRequest) (*dto.InvoiceListResponse, error) {
	in.DefaultPage()
	filter := repository.InvoiceFilter{
		CompanyID: companyID,
		ClientID:  in.ClientID,
		Type:      in.Type,
		Status:    in.Status,
		Limit:     in.Limit,
		Offset:    in.Offset,
	}
	derived := in.Status == entity.StatusOverdue || in.Status == entity.StatusExpired
	if derived {
		// Los derivados salen de SENT/PARTIALLY_PAID persistidos; se filtran en memoria.
		filter.Status = ""
	}
	var err error
	if filter.From, err = parseOptionalDate(in.From); err != nil {
		return nil, err
	}
	if filter.To, err = parseOptionalDate(in.To); err != nil {
		return nil, err
	}
	list, total, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, s.internal("listar facturas", err)
	}
	now := s.now()
	items := make([]dto.InvoiceResponse, 0, len(list))
	for _, inv := range list {
		if derived && inv.EffectiveStatus(now) != in.Status {
			continue
		}
		items = append(items, *toInvoiceResponse(inv, now))
	}
	if derived {
		total = len(items)
	}
	return &dto.InvoiceListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: in.Limit, Offset: in.Offset, Total: total},
	}, nil
}

// Update reemplaza cabecera y líneas de un DRAFT.
func (s *InvoiceService) Update(ctx context.Context, companyID, id string, in dto.UpdateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if err := s.checkClient(ctx, companyID, in.ClientID); err != nil {
		return nil, err
	}
	inputs := toLineInputs(in.Lines)
	var inv *entity.Invoice
	err := retryOnConflict(ctx, s.allocator.maxAttempts, s.allocator.backoff, func(int, error) {}, func() error {
		return s.tx.RunBilling(ctx, func(invoiceRepo repository.InvoiceRepository, _ repository.PaymentRepository) error {
			var err error
			inv, err = s.load(ctx, invoiceRepo, companyID, id)
			if err != nil {
				return err
			}
			if err := invoicing.CanUpdate(inv); err != nil {
				return err
			}
			if inv.Type == entity.InvoiceTypeCreditNote && inv.ClientID != in.ClientID {
				return fmt.Errorf("%w: el cliente de una nota de crédito no puede cambiar", domain.ErrInvalidInput)
			}
			inv.ClientID = in.ClientID
			inv.Notes = in.Notes
			inv.LegalMentions = in.LegalMentions
			if err := s.applyHeader(inv, in.Series, in.IssueDate, in.DueDate); err != nil {
				return err
			}
			lines, err := invoicing.BuildLines(inv.ID, inputs)
			if err != nil {
				return err
			}
			for _, l := range lines {
				l.ID = uuid.New().String()
			}
			inv.Lines = lines
			invoicing.ApplyTotals(inv)
			inv.UpdatedAt = s.now()
			return invoiceRepo.UpdateDraft(ctx, inv)
		})
	})
	if err != nil {
		return nil, s.internal("actualizar borrador", err)
	}
	return toInvoiceResponse(inv, s.now()), nil
}

// Delete elimina un DRAFT sin pagos.
func (s *InvoiceService) Delete(ctx context.Context, companyID, id string) error {
	err := s.tx.RunBilling(ctx, func(invoiceRepo repository.InvoiceRepository, paymentRepo repository.PaymentRepository) error {
		inv, err := s.load(ctx, invoiceRepo, companyID, id)
		if err != nil {
			return err
		}
		n, err := paymentRepo.CountByInvoice(ctx, id)
		if err != nil {
			return err
		}
		if err := invoicing.CanDelete(inv, n); err != nil {
			return err
		}
		return invoiceRepo.Delete(ctx, id, inv.Version)
	})
	if err != nil {
		return s.internal("eliminar borrador", err)
	}
	s.log.Info().Str("invoice_id", id).Msg("borrador eliminado")
	return nil
}

// Cancel pasa un DRAFT sin pagos a CANCELLED conservando el registro.
func (s *InvoiceService) Cancel(ctx context.Context, companyID, id string) (*dto.InvoiceResponse, error) {
	var inv *entity.Invoice
	err := s.tx.RunBilling(ctx, func(invoiceRepo repository.InvoiceRepository, paymentRepo repository.PaymentRepository) error {
		var err error
		inv, err = s.load(ctx, invoiceRepo, companyID, id)
		if err != nil {
			return err
		}
		n, err := paymentRepo.CountByInvoice(ctx, id)
		if err != nil {
			return err
		}
		if err := invoicing.CanCancel(inv, n); err != nil {
			return err
		}
		inv.Status = entity.StatusCancelled
		inv.UpdatedAt = s.now()
		return invoiceRepo.UpdateStatus(ctx, inv, entity.StatusDraft)
	})
	if err != nil {
		return nil, s.internal("cancelar", err)
	}
	return toInvoiceResponse(inv, s.now()), nil
}

// Accept marca una cotización o pedido enviado como aceptado.
func (s *InvoiceService) Accept(ctx context.Context, companyID, id string) (*dto.InvoiceResponse, error) {
	return s.respond(ctx, companyID, id, invoicing.OpAccept, entity.StatusAccepted)
}

// Reject marca una cotización o pedido enviado como rechazado.
func (s *InvoiceService) Reject(ctx context.Context, companyID, id string) (*dto.InvoiceResponse, error) {
	return s.respond(ctx, companyID, id, invoicing.OpReject, entity.StatusRejected)
}

func (s *InvoiceService) respond(ctx context.Context, companyID, id, op, target string) (*dto.InvoiceResponse, error) {
	var inv *entity.Invoice
	err := s.tx.RunBilling(ctx, func(invoiceRepo repository.InvoiceRepository, _ repository.PaymentRepository) error {
		var err error
		inv, err = s.load(ctx, invoiceRepo, companyID, id)
		if err != nil {
			return err
		}
		if err := invoicing.CanRespond(inv, op, s.now()); err != nil {
			return err
		}
		inv.Status = target
		inv.UpdatedAt = s.now()
		return invoiceRepo.UpdateStatus(ctx, inv, entity.StatusSent)
	})
	if err != nil {
		return nil, s.internal(op, err)
	}
	return toInvoiceResponse(inv, s.now()), nil
}

// Finalize pasa un DRAFT a SENT: recalcula totales, certifica (facturas y notas de crédito)
// y, en una transacción corta, asigna el número y persiste todo. Si la certificación falla
// no se escribe nada y la factura sigue en DRAFT/PENDING.
func (s *InvoiceService) Finalize(ctx context.Context, companyID, id string) (*dto.InvoiceResponse, error) {
	ch := s.flight.DoChan(companyID+"/"+id, func() (interface{}, error) {
		// La ejecución compartida no se corta si el primer llamador se va.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CertificationTimeout+s.cfg.PersistTimeout)
		defer cancel()
		return s.finalize(fctx, companyID, id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*dto.InvoiceResponse), nil
	}
}

func (s *InvoiceService) finalize(ctx context.Context, companyID, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.load(ctx, s.invoices, companyID, id)
	if err != nil {
		return nil, err
	}
	if err := invoicing.CanFinalize(inv); err != nil {
		return nil, err
	}
	if err := invoicing.RecalculateLines(inv.Lines); err != nil {
		return nil, err
	}
	invoicing.ApplyTotals(inv)

	var original *entity.Invoice
	if inv.Type == entity.InvoiceTypeCreditNote {
		if original, err = s.creditNoteOriginal(ctx, s.invoices, inv); err != nil {
			s.metrics.IncFinalize(inv.Type, "rejected")
			return nil, err
		}
	}

	var cert *mecef.Result
	mecefType := ""
	if entity.RequiresCertification(inv.Type) {
		mecefType = invoicing.MecefDocType(inv.Type)
		req, err := s.certificationRequest(ctx, inv, original, mecefType)
		if err != nil {
			return nil, err
		}
		if cert, err = s.certify(ctx, req); err != nil {
			s.metrics.IncFinalize(inv.Type, "certification_failed")
			s.log.Warn().Err(err).Str("invoice_id", id).Msg("certificación fallida, la factura sigue en DRAFT")
			return nil, err
		}
	}

	version := inv.Version
	finalizedAt := s.now()
	year := invoicing.FiscalYear(finalizedAt)
	_, err = s.allocator.AllocateAndPersist(ctx, companyID, inv.Series, year, func(ordinal int, invoiceRepo repository.InvoiceRepository, _ repository.PaymentRepository) error {
		current, err := s.load(ctx, invoiceRepo, companyID, id)
		if err != nil {
			return err
		}
		if current.Status != entity.StatusDraft {
			return &domain.StateError{Op: invoicing.OpFinalize, Status: current.Status}
		}
		if current.Version != version {
			return fmt.Errorf("%w: la factura fue modificada durante la finalización", domain.ErrInvalidState)
		}
		if original != nil {
			credited, err := invoiceRepo.SumCreditNotes(ctx, original.ID)
			if err != nil {
				return err
			}
			if err := invoicing.CheckCreditNoteCap(original, credited, inv.TotalTTC); err != nil {
				return err
			}
		}
		inv.Version = current.Version
		invoicing.MarkFinalized(inv, inv.Series, year, ordinal, cert, mecefType, finalizedAt)
		return invoiceRepo.Finalize(ctx, inv)
	})
	if err != nil {
		s.metrics.IncFinalize(inv.Type, "persist_failed")
		if cert != nil {
			// El dispositivo emitió un NIM que no quedó registrado: requiere conciliación manual.
			s.log.Error().Err(err).
				Str("invoice_id", id).
				Str("mecef_nim", cert.NIM).
				Str("mecef_signature", cert.Signature).
				Msg("certificado MECeF huérfano: la factura no se pudo persistir")
		}
		return nil, s.internal("finalizar", err)
	}

	s.metrics.IncFinalize(inv.Type, "ok")
	s.log.Info().Str("invoice_id", id).Str("number", inv.Number).Msg("factura finalizada")
	return toInvoiceResponse(inv, finalizedAt), nil
}

// certify invoca el dispositivo una sola vez con timeout acotado. Todo error es CertificationError.
func (s *InvoiceService) certify(ctx context.Context, req mecef.Request) (*mecef.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CertificationTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.certifier.Certify(cctx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			s.metrics.ObserveCertification("timeout", elapsed)
			return nil, &domain.CertificationError{Reason: "tiempo de espera agotado", Err: err}
		}
		s.metrics.ObserveCertification("error", elapsed)
		var ce *domain.CertificationError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &domain.CertificationError{Reason: "dispositivo no disponible", Err: err}
	}
	if res == nil || res.NIM == "" || res.Signature == "" || res.QRCode == "" {
		s.metrics.ObserveCertification("error", elapsed)
		return nil, &domain.CertificationError{Reason: "respuesta del dispositivo incompleta"}
	}
	s.metrics.ObserveCertification("ok", elapsed)
	return res, nil
}

func (s *InvoiceService) certificationRequest(ctx context.Context, inv *entity.Invoice, original *entity.Invoice, mecefType string) (mecef.Request, error) {
	company, err := s.companies.GetByID(ctx, inv.CompanyID)
	if err != nil {
		return mecef.Request{}, s.internal("leer empresa", err)
	}
	if company == nil {
		return mecef.Request{}, fmt.Errorf("%w: empresa", domain.ErrNotFound)
	}
	if err := mecef.ValidateIFU(company.IFU); err != nil {
		return mecef.Request{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	client, err := s.clients.GetByID(ctx, inv.ClientID)
	if err != nil {
		return mecef.Request{}, s.internal("leer cliente", err)
	}
	if client == nil {
		return mecef.Request{}, fmt.Errorf("%w: cliente", domain.ErrNotFound)
	}

	// Al finalizar no hay pagos registrados: el total se declara a crédito.
	req := mecef.Request{
		CompanyIFU:    company.IFU,
		ClientIFU:     client.IFU,
		ClientName:    client.Name,
		Operator:      s.cfg.Operator,
		TotalAmount:   inv.TotalTTC,
		Type:          mecefType,
		Items:         make([]mecef.Item, 0, len(inv.Lines)),
		PaymentMethod: mecef.PaymentCredit,
	}
	if original != nil && original.MecefSignature != nil {
		req.Reference = *original.MecefSignature
	}
	for _, l := range inv.Lines {
		req.Items = append(req.Items, certificationItem(l))
	}
	return req, nil
}

// certificationItem envía el precio unitario TTC. Si TTC/cantidad no es exacto a 2 decimales
// la línea se declara como una unidad por su TTC, para que el total del dispositivo cuadre.
func certificationItem(l *entity.InvoiceLine) mecef.Item {
	price := money.Round(l.TotalTTC.Div(l.Quantity))
	if price.Mul(l.Quantity).Equal(l.TotalTTC) {
		return mecef.Item{Name: l.Description, Price: price, Quantity: l.Quantity, TaxGroup: l.TVAGroup}
	}
	return mecef.Item{
		Name:     fmt.Sprintf("%s (x%s)", l.Description, l.Quantity.String()),
		Price:    l.TotalTTC,
		Quantity: decimal.NewFromInt(1),
		TaxGroup: l.TVAGroup,
	}
}

func (s *InvoiceService) creditNoteOriginal(ctx context.Context, repo repository.InvoiceRepository, cn *entity.Invoice) (*entity.Invoice, error) {
	if cn.OriginalInvoiceID == nil {
		return nil, fmt.Errorf("%w: la nota de crédito no tiene factura original", domain.ErrInvalidInput)
	}
	original, err := repo.GetByID(ctx, *cn.OriginalInvoiceID)
	if err != nil {
		return nil, s.internal("leer factura original", err)
	}
	if err := invoicing.ValidateCreditNoteOriginal(cn, original); err != nil {
		return nil, err
	}
	credited, err := repo.SumCreditNotes(ctx, original.ID)
	if err != nil {
		return nil, s.internal("sumar notas de crédito", err)
	}
	if err := invoicing.CheckCreditNoteCap(original, credited, cn.TotalTTC); err != nil {
		return nil, err
	}
	return original, nil
}

// RecordPayment registra un pago sobre una factura enviada. Rechaza sobrepagos.
func (s *InvoiceService) RecordPayment(ctx context.Context, companyID, id string, in dto.RecordPaymentRequest) (*dto.RecordPaymentResponse, error) {
	amount, err := money.Positive(in.Amount)
	if err != nil {
		return nil, err
	}
	if !entity.ValidPaymentMethod(in.PaymentMethod) {
		return nil, fmt.Errorf("%w: medio de pago %q", domain.ErrInvalidInput, in.PaymentMethod)
	}
	paymentDate := s.now()
	if in.PaymentDate != "" {
		if paymentDate, err = time.Parse(dto.DateLayout, in.PaymentDate); err != nil {
			return nil, fmt.Errorf("%w: payment_date", domain.ErrInvalidInput)
		}
	}

	var inv *entity.Invoice
	var payment *entity.Payment
	err = retryOnConflict(ctx, s.allocator.maxAttempts, s.allocator.backoff, func(int, error) {}, func() error {
		return s.tx.RunBilling(ctx, func(invoiceRepo repository.InvoiceRepository, paymentRepo repository.PaymentRepository) error {
			var err error
			inv, err = s.load(ctx, invoiceRepo, companyID, id)
			if err != nil {
				return err
			}
			if err := invoicing.CanRecordPayment(inv, amount); err != nil {
				return err
			}
			now := s.now()
			payment = &entity.Payment{
				ID:            uuid.New().String(),
				InvoiceID:     id,
				Amount:        amount,
				PaymentDate:   paymentDate,
				PaymentMethod: in.PaymentMethod,
				Reference:     strings.TrimSpace(in.Reference),
				CreatedAt:     now,
			}
			if err := paymentRepo.Create(ctx, payment); err != nil {
				return err
			}
			from := inv.Status
			inv.AmountPaid = inv.AmountPaid.Add(amount)
			inv.Status = invoicing.StatusAfterPayment(inv)
			inv.UpdatedAt = now
			return invoiceRepo.UpdateStatus(ctx, inv, from)
		})
	})
	if err != nil {
		s.metrics.IncPayment("rejected")
		return nil, s.internal("registrar pago", err)
	}
	s.metrics.IncPayment("ok")
	s.log.Info().Str("invoice_id", id).Str("amount", money.Format(amount)).Str("status", inv.Status).Msg("pago registrado")
	return &dto.RecordPaymentResponse{
		Payment: toPaymentResponse(payment),
		Invoice: *toInvoiceResponse(inv, s.now()),
	}, nil
}

// ListPayments lista los pagos de una factura.
func (s *InvoiceService) ListPayments(ctx context.Context, companyID, id string) ([]dto.PaymentResponse, error) {
	if _, err := s.load(ctx, s.invoices, companyID, id); err != nil {
		return nil, err
	}
	list, err := s.payments.ListByInvoice(ctx, id)
	if err != nil {
		return nil, s.internal("listar pagos", err)
	}
	out := make([]dto.PaymentResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentResponse(p))
	}
	return out, nil
}

// load lee la factura y verifica que pertenezca a la empresa del token.
func (s *InvoiceService) load(ctx context.Context, repo repository.InvoiceRepository, companyID, id string) (*entity.Invoice, error) {
	inv, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("obtener factura: %w", err)
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if inv.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}
	return inv, nil
}

func (s *InvoiceService) checkClient(ctx context.Context, companyID, clientID string) error {
	if clientID == "" {
		return fmt.Errorf("%w: client_id es obligatorio", domain.ErrInvalidInput)
	}
	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return s.internal("leer cliente", err)
	}
	if client == nil {
		return fmt.Errorf("%w: cliente", domain.ErrNotFound)
	}
	if client.CompanyID != companyID {
		return domain.ErrForbidden
	}
	return nil
}

// applyHeader fija serie y fechas. La fecha de emisión por defecto es hoy y el vencimiento
// hoy + DefaultDueDays (las notas de crédito no vencen).
func (s *InvoiceService) applyHeader(inv *entity.Invoice, series, issueDate, dueDate string) error {
	if series == "" {
		series = invoicing.DefaultSeries(inv.Type)
	}
	series = strings.ToUpper(strings.TrimSpace(series))
	if err := invoicing.ValidateSeries(series); err != nil {
		return err
	}
	inv.Series = series

	issue := s.now()
	if issueDate != "" {
		var err error
		if issue, err = time.Parse(dto.DateLayout, issueDate); err != nil {
			return fmt.Errorf("%w: issue_date", domain.ErrInvalidInput)
		}
	}
	y, m, d := issue.Date()
	inv.IssueDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	inv.DueDate = nil
	switch {
	case dueDate != "":
		due, err := time.Parse(dto.DateLayout, dueDate)
		if err != nil {
			return fmt.Errorf("%w: due_date", domain.ErrInvalidInput)
		}
		if due.Before(inv.IssueDate) {
			return fmt.Errorf("%w: due_date anterior a issue_date", domain.ErrInvalidInput)
		}
		inv.DueDate = &due
	case inv.Type != entity.InvoiceTypeCreditNote:
		due := inv.IssueDate.AddDate(0, 0, s.cfg.DefaultDueDays)
		inv.DueDate = &due
	}
	return nil
}

// internal deja pasar los errores de dominio y envuelve el resto como ErrInternal.
func (s *InvoiceService) internal(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		domain.ErrNotFound, domain.ErrInvalidInput, domain.ErrForbidden, domain.ErrInvalidLineInput,
		domain.ErrInvalidAmount, domain.ErrAllocationConflict, domain.ErrCertificationFailure,
		domain.ErrInvalidState, domain.ErrPaymentExceedsBalance, domain.ErrCreditNoteExceedsOriginal,
		domain.ErrConflict, domain.ErrInternal, context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	s.log.Error().Err(err).Str("op", op).Msg("error inesperado de almacenamiento")
	return fmt.Errorf("%w: %s", domain.ErrInternal, op)
}

func toLineInputs(in []dto.InvoiceLineRequest) []invoicing.LineInput {
	out := make([]invoicing.LineInput, 0, len(in))
	for _, l := range in {
		out = append(out, invoicing.LineInput{
			Description:     l.Description,
			Quantity:        l.Quantity,
			UnitPriceHT:     l.UnitPriceHT,
			DiscountPercent: l.DiscountPercent,
			TVARate:         l.TVARate,
			TVAGroup:        strings.ToUpper(strings.TrimSpace(l.TVAGroup)),
		})
	}
	return out
}

func parseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dto.DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: fecha %q", domain.ErrInvalidInput, s)
	}
	return &t, nil
}
