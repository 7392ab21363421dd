package mecef

import (
	"context"

	"github.com/shopspring/decimal"
)

// Item es una línea enviada al dispositivo. Price es el precio unitario TTC.
type Item struct {
	Name     string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	TaxGroup string
}

// Request datos mínimos para certificar una factura o nota de crédito.
type Request struct {
	CompanyIFU  string
	ClientIFU   string // opcional
	ClientName  string // opcional
	Operator    string
	Items       []Item
	TotalAmount decimal.Decimal // TTC de la factura
	Type        string          // FV, FA, EV, EA
	Reference   string          // firma MECeF de la factura original (solo FA/EA)

	// PaymentMethod forma de pago declarada por el total (Payment*). Vacío = CREDIT.
	PaymentMethod string
}

// Result artefactos de certificación que pasan a formar parte del registro legal.
type Result struct {
	NIM       string
	Counters  string // "12/15 FV"
	DTC       string // fecha/hora del dispositivo, dd/MM/yyyy HH:mm:ss
	QRCode    string
	Signature string // codeMECeFDGI
}

// Certifier abstrae el dispositivo fiscal. Implementaciones: cliente HTTP e-MECeF y simulador.
// Certify se invoca como máximo una vez por finalización; cualquier error se trata como fallo
// de certificación y la factura permanece en DRAFT.
type Certifier interface {
	Certify(ctx context.Context, req Request) (*Result, error)
}

// CertifierFunc adapta una función a Certifier (útil en tests).
type CertifierFunc func(ctx context.Context, req Request) (*Result, error)

func (f CertifierFunc) Certify(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
