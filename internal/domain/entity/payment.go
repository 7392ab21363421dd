package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Medios de pago admitidos.
const (
	PaymentCash        = "ESPECES"
	PaymentTransfer    = "VIREMENT"
	PaymentCheque      = "CHEQUE"
	PaymentMobileMoney = "MOBILEMONEY"
	PaymentCard        = "CARTEBANCAIRE"
	PaymentCredit      = "CREDIT"
	PaymentOther       = "AUTRE"
)

// ValidPaymentMethod valida el medio de pago.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentCash, PaymentTransfer, PaymentCheque, PaymentMobileMoney, PaymentCard, PaymentCredit, PaymentOther:
		return true
	}
	return false
}

// Payment es un cobro registrado contra una factura.
type Payment struct {
	ID            string
	InvoiceID     string
	Amount        decimal.Decimal
	PaymentDate   time.Time
	PaymentMethod string
	Reference     string
	CreatedAt     time.Time
}
