package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
)

// InvoiceFilter filtros de listado. Los campos vacíos no filtran.
type InvoiceFilter struct {
	CompanyID string
	ClientID  string
	Type      string
	Status    string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// InvoiceRepository define el puerto de persistencia para Invoice y sus líneas.
// Las escrituras sobre el estado son compare-and-swap: si la fila ya no está en el
// estado/versión esperados devuelven domain.ErrConflict.
type InvoiceRepository interface {
	// Create inserta la cabecera y todas sus líneas.
	Create(ctx context.Context, invoice *entity.Invoice) error
	// GetByID devuelve la factura con sus líneas ordenadas por posición; (nil, nil) si no existe.
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	List(ctx context.Context, filter InvoiceFilter) ([]*entity.Invoice, int, error)
	// UpdateDraft reemplaza cabecera y líneas de una factura todavía en DRAFT.
	UpdateDraft(ctx context.Context, invoice *entity.Invoice) error
	// Delete elimina una factura en DRAFT y sus líneas.
	Delete(ctx context.Context, id string, version int) error
	// MaxOrdinal mayor ordinal emitido para (empresa, serie, año); 0 si no hay ninguno.
	MaxOrdinal(ctx context.Context, companyID, series string, year int) (int, error)
	// Finalize persiste número, totales, estado y campos mecef* de una factura que sigue en DRAFT.
	// Una colisión de número devuelve domain.ErrDuplicate.
	Finalize(ctx context.Context, invoice *entity.Invoice) error
	// UpdateStatus cambia estado y monto pagado si la fila sigue en fromStatus y la versión coincide.
	UpdateStatus(ctx context.Context, invoice *entity.Invoice, fromStatus string) error
	// SumCreditNotes TTC de las notas de crédito ya finalizadas contra originalID.
	SumCreditNotes(ctx context.Context, originalID string) (decimal.Decimal, error)
}

// PaymentRepository define el puerto de persistencia para Payment.
type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.Payment, error)
	CountByInvoice(ctx context.Context, invoiceID string) (int, error)
}
