package billing

import (
	"context"

	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/internal/domain/repository"
)

// BillingTxRunner ejecuta una función dentro de una transacción con los repos de facturación.
// La implementación Postgres usa aislamiento SERIALIZABLE; un error de fn hace rollback.
type BillingTxRunner interface {
	RunBilling(ctx context.Context, fn func(
		invoiceRepo repository.InvoiceRepository,
		paymentRepo repository.PaymentRepository,
	) error) error
}

// Metrics observa el ciclo de vida; la implementación Prometheus vive en infrastructure/metrics.
type Metrics interface {
	ObserveCertification(outcome string, seconds float64)
	IncAllocationRetry()
	IncFinalize(invoiceType, outcome string)
	IncPayment(outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCertification(string, float64) {}
func (noopMetrics) IncAllocationRetry()                  {}
func (noopMetrics) IncFinalize(string, string)           {}
func (noopMetrics) IncPayment(string)                    {}

// InvoicePDFGenerator genera la representación gráfica de una factura finalizada.
type InvoicePDFGenerator interface {
	GenerateInvoicePDF(ctx context.Context, invoice *entity.Invoice, company *entity.Company, client *entity.Client) ([]byte, error)
}
