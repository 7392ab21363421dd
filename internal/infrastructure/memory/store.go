// Package memory implementa los puertos de persistencia en memoria (modo dev y tests).
//
// Las transacciones son optimistas: las escrituras se acumulan en la tx y al confirmar
// se validan contra el estado confirmado. Una versión distinta devuelve domain.ErrConflict
// Las sumas de notas de crédito leídas en la tx se revalidan al confirmar (ErrConflict si cambiaron),
// y una colisión de número (empresa, serie, número) o (empresa, serie, año, ordinal)
// devuelve domain.ErrDuplicate, igual que los índices únicos de Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-mecef/internal/application/billing"
	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/internal/domain/repository"
)

var _ billing.BillingTxRunner = (*Store)(nil)

// Store guarda el estado confirmado.
type Store struct {
	mu        sync.Mutex
	companies map[string]*entity.Company
	clients   map[string]*entity.Client
	invoices  map[string]*entity.Invoice
	payments  map[string][]*entity.Payment
}

// NewStore crea un almacén vacío.
func NewStore() *Store {
	return &Store{
		companies: map[string]*entity.Company{},
		clients:   map[string]*entity.Client{},
		invoices:  map[string]*entity.Invoice{},
		payments:  map[string][]*entity.Payment{},
	}
}

// Invoices repo de facturas en modo autocommit.
func (s *Store) Invoices() repository.InvoiceRepository { return &invoiceRepo{s: s} }

// Payments repo de pagos en modo autocommit.
func (s *Store) Payments() repository.PaymentRepository { return &paymentRepo{s: s} }

// Companies repo de empresas.
func (s *Store) Companies() repository.CompanyRepository { return &companyRepo{s: s} }

// Clients repo de clientes.
func (s *Store) Clients() repository.ClientRepository { return &clientRepo{s: s} }

// RunBilling ejecuta fn en una transacción optimista y confirma si fn no falla.
func (s *Store) RunBilling(ctx context.Context, fn func(
	invoiceRepo repository.InvoiceRepository,
	paymentRepo repository.PaymentRepository,
) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := s.begin()
	if err := fn(&invoiceRepo{s: s, t: t}, &paymentRepo{s: s, t: t}); err != nil {
		return err
	}
	return t.commit()
}

// tx escrituras pendientes. base guarda la versión leída de cada factura escrita (0 = alta)
// y credits la suma confirmada de notas de crédito leída por factura original.
type tx struct {
	s        *Store
	invoices map[string]*entity.Invoice
	base     map[string]int
	credits  map[string]decimal.Decimal
	payments []*entity.Payment
}

func (s *Store) begin() *tx {
	return &tx{
		s:        s,
		invoices: map[string]*entity.Invoice{},
		base:     map[string]int{},
		credits:  map[string]decimal.Decimal{},
	}
}

// get devuelve una copia de la factura vista por la tx (escrituras propias primero).
func (t *tx) get(id string) *entity.Invoice {
	if inv, ok := t.invoices[id]; ok {
		return cloneInvoice(inv)
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return cloneInvoice(t.s.invoices[id])
}

func (t *tx) stage(inv *entity.Invoice, id string, baseVersion int) {
	if _, seen := t.base[id]; !seen {
		t.base[id] = baseVersion
	}
	t.invoices[id] = cloneInvoice(inv)
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, base := range t.base {
		current := s.invoices[id]
		switch {
		case base == 0 && current != nil:
			return fmt.Errorf("insert invoice %s: %w", id, domain.ErrDuplicate)
		case base > 0 && (current == nil || current.Version != base):
			return fmt.Errorf("update invoice %s: %w", id, domain.ErrConflict)
		}
	}
	for originalID, read := range t.credits {
		if !s.committedCredits(originalID, t.invoices).Equal(read) {
			return fmt.Errorf("credit notes of %s: %w", originalID, domain.ErrConflict)
		}
	}
	for id, inv := range t.invoices {
		if inv == nil || inv.Number == "" {
			continue
		}
		for otherID, other := range s.invoices {
			if otherID == id || other.CompanyID != inv.CompanyID || other.Series != inv.Series || other.Number == "" {
				continue
			}
			if other.Number == inv.Number || (other.FiscalYear == inv.FiscalYear && other.Ordinal == inv.Ordinal) {
				return fmt.Errorf("finalize invoice %s (%s): %w", id, inv.Number, domain.ErrDuplicate)
			}
		}
	}

	for id, inv := range t.invoices {
		if inv == nil {
			delete(s.invoices, id)
			delete(s.payments, id)
			continue
		}
		s.invoices[id] = inv
	}
	for _, p := range t.payments {
		s.payments[p.InvoiceID] = append(s.payments[p.InvoiceID], p)
	}
	return nil
}

// autocommit ejecuta fn en una tx propia (repos usados fuera de RunBilling).
func (s *Store) autocommit(fn func(t *tx) error) error {
	t := s.begin()
	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

// ── Facturas ──────────────────────────────────────────────────────────────────

type invoiceRepo struct {
	s *Store
	t *tx // nil = autocommit
}

func (r *invoiceRepo) run(fn func(t *tx) error) error {
	if r.t != nil {
		return fn(r.t)
	}
	return r.s.autocommit(fn)
}

func (r *invoiceRepo) Create(_ context.Context, inv *entity.Invoice) error {
	return r.run(func(t *tx) error {
		if t.get(inv.ID) != nil {
			return fmt.Errorf("insert invoice: %w", domain.ErrDuplicate)
		}
		t.stage(inv, inv.ID, 0)
		return nil
	})
}

func (r *invoiceRepo) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	if r.t != nil {
		return r.t.get(id), nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return cloneInvoice(r.s.invoices[id]), nil
}

func (r *invoiceRepo) List(_ context.Context, f repository.InvoiceFilter) ([]*entity.Invoice, int, error) {
	r.s.mu.Lock()
	matched := make([]*entity.Invoice, 0)
	for _, inv := range r.s.invoices {
		if matches(inv, f) {
			c := cloneInvoice(inv)
			c.Lines = nil
			matched = append(matched, c)
		}
	}
	r.s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].IssueDate.Equal(matched[j].IssueDate) {
			return matched[i].IssueDate.After(matched[j].IssueDate)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	if f.Offset >= total {
		return []*entity.Invoice{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

func matches(inv *entity.Invoice, f repository.InvoiceFilter) bool {
	switch {
	case inv.CompanyID != f.CompanyID:
		return false
	case f.ClientID != "" && inv.ClientID != f.ClientID:
		return false
	case f.Type != "" && inv.Type != f.Type:
		return false
	case f.Status != "" && inv.Status != f.Status:
		return false
	case f.From != nil && inv.IssueDate.Before(*f.From):
		return false
	case f.To != nil && inv.IssueDate.After(*f.To):
		return false
	}
	return true
}

// cas verifica estado y versión esperados y deja la nueva versión en la tx.
func (r *invoiceRepo) cas(op string, inv *entity.Invoice, fromStatus string) error {
	return r.run(func(t *tx) error {
		current := t.get(inv.ID)
		if current == nil || current.Status != fromStatus || current.Version != inv.Version {
			return fmt.Errorf("%s invoice %s: %w", op, inv.ID, domain.ErrConflict)
		}
		base := inv.Version
		inv.Version++
		t.stage(inv, inv.ID, base)
		return nil
	})
}

func (r *invoiceRepo) UpdateDraft(_ context.Context, inv *entity.Invoice) error {
	return r.cas("update", inv, entity.StatusDraft)
}

func (r *invoiceRepo) Finalize(_ context.Context, inv *entity.Invoice) error {
	return r.cas("finalize", inv, entity.StatusDraft)
}

func (r *invoiceRepo) UpdateStatus(_ context.Context, inv *entity.Invoice, fromStatus string) error {
	return r.cas("update status", inv, fromStatus)
}

func (r *invoiceRepo) Delete(_ context.Context, id string, version int) error {
	return r.run(func(t *tx) error {
		current := t.get(id)
		if current == nil || current.Status != entity.StatusDraft || current.Version != version {
			return fmt.Errorf("delete invoice %s: %w", id, domain.ErrConflict)
		}
		if _, seen := t.base[id]; !seen {
			t.base[id] = version
		}
		t.invoices[id] = nil
		return nil
	})
}

// visible factura confirmadas más las escritas en la tx (sin las borradas).
func (r *invoiceRepo) visible() []*entity.Invoice {
	r.s.mu.Lock()
	out := make([]*entity.Invoice, 0, len(r.s.invoices))
	for id, inv := range r.s.invoices {
		if r.t != nil {
			if _, staged := r.t.invoices[id]; staged {
				continue
			}
		}
		out = append(out, inv)
	}
	r.s.mu.Unlock()
	if r.t != nil {
		for _, inv := range r.t.invoices {
			if inv != nil {
				out = append(out, inv)
			}
		}
	}
	return out
}

func (r *invoiceRepo) MaxOrdinal(_ context.Context, companyID, series string, year int) (int, error) {
	highest := 0
	for _, inv := range r.visible() {
		if inv.CompanyID == companyID && inv.Series == series && inv.FiscalYear == year && inv.Ordinal > highest {
			highest = inv.Ordinal
		}
	}
	return highest, nil
}

func (r *invoiceRepo) SumCreditNotes(_ context.Context, originalID string) (decimal.Decimal, error) {
	var staged map[string]*entity.Invoice
	if r.t != nil {
		staged = r.t.invoices
	}
	r.s.mu.Lock()
	committed := r.s.committedCredits(originalID, staged)
	r.s.mu.Unlock()

	sum := committed
	if r.t != nil {
		if _, seen := r.t.credits[originalID]; !seen {
			r.t.credits[originalID] = committed
		}
		for _, inv := range r.t.invoices {
			if countsAsCredit(inv, originalID) {
				sum = sum.Add(inv.TotalTTC)
			}
		}
	}
	return sum, nil
}

// committedCredits suma las notas de crédito confirmadas de originalID, sin las que la tx
// reescribe. Requiere s.mu.
func (s *Store) committedCredits(originalID string, skip map[string]*entity.Invoice) decimal.Decimal {
	sum := decimal.Zero
	for id, inv := range s.invoices {
		if _, staged := skip[id]; staged {
			continue
		}
		if countsAsCredit(inv, originalID) {
			sum = sum.Add(inv.TotalTTC)
		}
	}
	return sum
}

func countsAsCredit(inv *entity.Invoice, originalID string) bool {
	if inv == nil || inv.Type != entity.InvoiceTypeCreditNote || inv.OriginalInvoiceID == nil || *inv.OriginalInvoiceID != originalID {
		return false
	}
	return inv.Status != entity.StatusDraft && inv.Status != entity.StatusCancelled
}

// ── Pagos ─────────────────────────────────────────────────────────────────────

type paymentRepo struct {
	s *Store
	t *tx
}

func (r *paymentRepo) Create(_ context.Context, p *entity.Payment) error {
	cp := *p
	if r.t != nil {
		r.t.payments = append(r.t.payments, &cp)
		return nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.payments[p.InvoiceID] = append(r.s.payments[p.InvoiceID], &cp)
	return nil
}

func (r *paymentRepo) ListByInvoice(_ context.Context, invoiceID string) ([]*entity.Payment, error) {
	r.s.mu.Lock()
	out := make([]*entity.Payment, 0, len(r.s.payments[invoiceID]))
	for _, p := range r.s.payments[invoiceID] {
		cp := *p
		out = append(out, &cp)
	}
	r.s.mu.Unlock()
	if r.t != nil {
		for _, p := range r.t.payments {
			if p.InvoiceID == invoiceID {
				cp := *p
				out = append(out, &cp)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PaymentDate.Before(out[j].PaymentDate) })
	return out, nil
}

func (r *paymentRepo) CountByInvoice(ctx context.Context, invoiceID string) (int, error) {
	list, err := r.ListByInvoice(ctx, invoiceID)
	return len(list), err
}

// ── Empresas y clientes ───────────────────────────────────────────────────────

type companyRepo struct{ s *Store }

func (r *companyRepo) Create(_ context.Context, c *entity.Company) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.companies {
		if other.IFU == c.IFU {
			return fmt.Errorf("insert company: %w", domain.ErrDuplicate)
		}
	}
	cp := *c
	r.s.companies[c.ID] = &cp
	return nil
}

func (r *companyRepo) GetByID(_ context.Context, id string) (*entity.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.companies[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *companyRepo) GetByIFU(_ context.Context, ifu string) (*entity.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.companies {
		if c.IFU == ifu {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

type clientRepo struct{ s *Store }

func (r *clientRepo) Create(_ context.Context, c *entity.Client) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.IFU != "" {
		for _, other := range r.s.clients {
			if other.CompanyID == c.CompanyID && other.IFU == c.IFU {
				return fmt.Errorf("insert client: %w", domain.ErrDuplicate)
			}
		}
	}
	cp := *c
	r.s.clients[c.ID] = &cp
	return nil
}

func (r *clientRepo) GetByID(_ context.Context, id string) (*entity.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.clients[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *clientRepo) GetByCompanyAndIFU(_ context.Context, companyID, ifu string) (*entity.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.clients {
		if c.CompanyID == companyID && c.IFU == ifu {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *clientRepo) ListByCompany(_ context.Context, companyID string, limit, offset int) ([]*entity.Client, error) {
	r.s.mu.Lock()
	list := make([]*entity.Client, 0)
	for _, c := range r.s.clients {
		if c.CompanyID == companyID {
			cp := *c
			list = append(list, &cp)
		}
	}
	r.s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	if offset >= len(list) {
		return []*entity.Client{}, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}

// ── Copias ────────────────────────────────────────────────────────────────────

func cloneInvoice(inv *entity.Invoice) *entity.Invoice {
	if inv == nil {
		return nil
	}
	cp := *inv
	cp.DueDate = cloneTime(inv)
	cp.MecefNIM = cloneStr(inv.MecefNIM)
	cp.MecefCounters = cloneStr(inv.MecefCounters)
	cp.MecefDTC = cloneStr(inv.MecefDTC)
	cp.MecefQRCode = cloneStr(inv.MecefQRCode)
	cp.MecefSignature = cloneStr(inv.MecefSignature)
	cp.MecefType = cloneStr(inv.MecefType)
	cp.MecefStatus = cloneStr(inv.MecefStatus)
	cp.OriginalInvoiceID = cloneStr(inv.OriginalInvoiceID)
	if inv.FinalizedAt != nil {
		t := *inv.FinalizedAt
		cp.FinalizedAt = &t
	}
	if inv.Lines != nil {
		cp.Lines = make([]*entity.InvoiceLine, 0, len(inv.Lines))
		for _, l := range inv.Lines {
			lc := *l
			cp.Lines = append(cp.Lines, &lc)
		}
	}
	return &cp
}

func cloneTime(inv *entity.Invoice) *time.Time {
	if inv.DueDate == nil {
		return nil
	}
	t := *inv.DueDate
	return &t
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
