// Package mecef contiene el contrato de certificación, catálogos y validaciones
// del sistema e-MECeF de la DGI (Benín).
package mecef

import "github.com/shopspring/decimal"

// =============================================================================
// Grupos de impuesto (taxGroup) aceptados por el dispositivo.
// =============================================================================

const (
	TaxGroupA = "A" // Exonerado
	TaxGroupB = "B" // Gravado 18%
	TaxGroupC = "C" // Exportación
	TaxGroupD = "D" // Régimen de excepción 18%
	TaxGroupE = "E" // Régimen TPS
	TaxGroupF = "F" // Reservado
)

// DefaultTaxRates tasa TVA por defecto de cada grupo (porcentaje).
var DefaultTaxRates = map[string]decimal.Decimal{
	TaxGroupA: decimal.Zero,
	TaxGroupB: decimal.NewFromInt(18),
	TaxGroupC: decimal.Zero,
	TaxGroupD: decimal.NewFromInt(18),
	TaxGroupE: decimal.Zero,
	TaxGroupF: decimal.Zero,
}

// ValidTaxGroup indica si el código pertenece al catálogo A..F.
func ValidTaxGroup(g string) bool {
	_, ok := DefaultTaxRates[g]
	return ok
}

// TaxGroups devuelve los grupos en orden de catálogo.
func TaxGroups() []string {
	return []string{TaxGroupA, TaxGroupB, TaxGroupC, TaxGroupD, TaxGroupE, TaxGroupF}
}

// =============================================================================
// Tipos de documento
// =============================================================================

const (
	DocTypeInvoice          = "FV" // Factura de venta
	DocTypeCreditNote       = "FA" // Factura de avoir (nota de crédito)
	DocTypeExportInvoice    = "EV" // Factura de venta a la exportación
	DocTypeExportCreditNote = "EA" // Avoir a la exportación
)

// ValidDocType valida el código de tipo de documento.
func ValidDocType(t string) bool {
	switch t {
	case DocTypeInvoice, DocTypeCreditNote, DocTypeExportInvoice, DocTypeExportCreditNote:
		return true
	}
	return false
}

// =============================================================================
// Medios de pago (payment[].name)
// =============================================================================

const (
	PaymentEspeces       = "ESPECES"
	PaymentVirement      = "VIREMENT"
	PaymentCarteBancaire = "CARTEBANCAIRE"
	PaymentMobileMoney   = "MOBILEMONEY"
	PaymentCheques       = "CHEQUES"
	PaymentCredit        = "CREDIT"
	PaymentAutre         = "AUTRE"
)
