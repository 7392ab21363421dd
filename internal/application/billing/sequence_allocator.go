package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/domain/invoicing"
	"github.com/jhoicas/facturacion-mecef/internal/domain/repository"
)

// DefaultAllocationAttempts intentos de asignar+persistir antes de devolver ErrAllocationConflict.
const DefaultAllocationAttempts = 5

// PersistFunc persiste la factura finalizada con el ordinal recibido, dentro de la transacción abierta.
type PersistFunc func(ordinal int, invoiceRepo repository.InvoiceRepository, paymentRepo repository.PaymentRepository) error

// SequenceAllocator asigna el siguiente número legal por (empresa, serie, año).
// No hay contador en memoria: el ordinal es max+1 leído en la misma transacción que
// guarda la factura, y el índice único de la base es la barrera final ante carreras.
type SequenceAllocator struct {
	tx          BillingTxRunner
	maxAttempts int
	backoff     time.Duration
	metrics     Metrics
	log         zerolog.Logger
}

// NewSequenceAllocator construye el asignador. attempts <= 0 usa DefaultAllocationAttempts.
func NewSequenceAllocator(tx BillingTxRunner, attempts int, metrics Metrics, log zerolog.Logger) *SequenceAllocator {
	if attempts <= 0 {
		attempts = DefaultAllocationAttempts
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &SequenceAllocator{
		tx:          tx,
		maxAttempts: attempts,
		backoff:     5 * time.Millisecond,
		metrics:     metrics,
		log:         log,
	}
}

// AllocateAndPersist abre una transacción, lee el máximo ordinal, llama a persist con max+1 y confirma.
// Ante colisión del índice único (ErrDuplicate) o fallo de serialización (ErrConflict) repite
// la transacción completa con un máximo recién leído.
func (a *SequenceAllocator) AllocateAndPersist(ctx context.Context, companyID, series string, year int, persist PersistFunc) (int, error) {
	var ordinal int
	err := retryOnConflict(ctx, a.maxAttempts, a.backoff, func(attempt int, err error) {
		a.metrics.IncAllocationRetry()
		a.log.Debug().
			Str("company_id", companyID).
			Str("series", series).
			Int("year", year).
			Int("attempt", attempt).
			Err(err).
			Msg("colisión de numeración, reintentando")
	}, func() error {
		return a.tx.RunBilling(ctx, func(invoiceRepo repository.InvoiceRepository, paymentRepo repository.PaymentRepository) error {
			current, err := invoiceRepo.MaxOrdinal(ctx, companyID, series, year)
			if err != nil {
				return fmt.Errorf("max ordinal: %w", err)
			}
			ordinal = invoicing.NextOrdinal(current)
			return persist(ordinal, invoiceRepo, paymentRepo)
		})
	})
	if errors.Is(err, errRetriesExhausted) {
		return 0, fmt.Errorf("%w: %s-%d tras %d intentos", domain.ErrAllocationConflict, series, year, a.maxAttempts)
	}
	if err != nil {
		return 0, err
	}
	return ordinal, nil
}

var errRetriesExhausted = errors.New("reintentos agotados")

func isRetryable(err error) bool {
	return errors.Is(err, domain.ErrDuplicate) || errors.Is(err, domain.ErrConflict)
}

// retryOnConflict ejecuta fn hasta attempts veces mientras falle con un error reintentable.
func retryOnConflict(ctx context.Context, attempts int, backoff time.Duration, onRetry func(int, error), fn func() error) error {
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		last = fn()
		if last == nil || !isRetryable(last) {
			return last
		}
		if attempt == attempts {
			break
		}
		onRetry(attempt, last)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%w: %w", errRetriesExhausted, last)
}
