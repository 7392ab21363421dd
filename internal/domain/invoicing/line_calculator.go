// Package invoicing contiene las reglas puras del ciclo de vida de facturas:
// cálculo de líneas, totales, numeración legal y transiciones de estado.
package invoicing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/internal/domain/money"
	"github.com/jhoicas/facturacion-mecef/pkg/mecef"
)

// LineInput datos de una línea tal como los envía el llamador.
type LineInput struct {
	Description     string
	Quantity        decimal.Decimal
	UnitPriceHT     decimal.Decimal
	DiscountPercent decimal.Decimal
	TVARate         decimal.Decimal
	TVAGroup        string
}

// LineTotals montos derivados de una línea, ya redondeados a la escala monetaria.
type LineTotals struct {
	TotalHT  decimal.Decimal
	TotalTVA decimal.Decimal
	TotalTTC decimal.Decimal
}

// CalculateLine aplica:
//
//	baseHT   = round(cantidad × precioHT)
//	descuento = round(baseHT × descuento% / 100)
//	lineHT   = baseHT − descuento
//	lineTVA  = round(lineHT × tasa / 100)
//	lineTTC  = lineHT + lineTVA
func CalculateLine(position int, in LineInput) (LineTotals, error) {
	if err := validateLine(position, in); err != nil {
		return LineTotals{}, err
	}
	baseHT := money.MulRound(in.Quantity, in.UnitPriceHT)
	discount := money.PercentRound(baseHT, in.DiscountPercent)
	lineHT := baseHT.Sub(discount)
	lineTVA := money.PercentRound(lineHT, in.TVARate)
	return LineTotals{
		TotalHT:  lineHT,
		TotalTVA: lineTVA,
		TotalTTC: lineHT.Add(lineTVA),
	}, nil
}

func validateLine(position int, in LineInput) error {
	switch {
	case strings.TrimSpace(in.Description) == "":
		return &domain.LineInputError{Position: position, Field: "description", Reason: "no puede estar vacía"}
	case !in.Quantity.IsPositive():
		return &domain.LineInputError{Position: position, Field: "quantity", Reason: "debe ser mayor que cero"}
	case in.UnitPriceHT.IsNegative():
		return &domain.LineInputError{Position: position, Field: "unit_price_ht", Reason: "no puede ser negativo"}
	case !money.InRange(in.DiscountPercent):
		return &domain.LineInputError{Position: position, Field: "discount_percent", Reason: "debe estar entre 0 y 100"}
	case !money.InRange(in.TVARate):
		return &domain.LineInputError{Position: position, Field: "tva_rate", Reason: "debe estar entre 0 y 100"}
	case !mecef.ValidTaxGroup(in.TVAGroup):
		return &domain.LineInputError{Position: position, Field: "tva_group", Reason: "grupo desconocido (A-F)"}
	}
	return nil
}

// BuildLines valida y calcula todas las líneas, asignando posiciones 0..n-1 en el orden recibido.
// Si alguna línea es inválida no devuelve ninguna.
func BuildLines(invoiceID string, inputs []LineInput) ([]*entity.InvoiceLine, error) {
	lines := make([]*entity.InvoiceLine, 0, len(inputs))
	for i, in := range inputs {
		totals, err := CalculateLine(i, in)
		if err != nil {
			return nil, err
		}
		lines = append(lines, &entity.InvoiceLine{
			InvoiceID:       invoiceID,
			Position:        i,
			Description:     strings.TrimSpace(in.Description),
			Quantity:        in.Quantity,
			UnitPriceHT:     in.UnitPriceHT,
			DiscountPercent: in.DiscountPercent,
			TVARate:         in.TVARate,
			TVAGroup:        in.TVAGroup,
			TotalHT:         totals.TotalHT,
			TotalTVA:        totals.TotalTVA,
			TotalTTC:        totals.TotalTTC,
		})
	}
	return lines, nil
}

// RecalculateLines vuelve a derivar los totales de líneas ya persistidas (finalización).
func RecalculateLines(lines []*entity.InvoiceLine) error {
	for _, l := range lines {
		totals, err := CalculateLine(l.Position, LineInput{
			Description:     l.Description,
			Quantity:        l.Quantity,
			UnitPriceHT:     l.UnitPriceHT,
			DiscountPercent: l.DiscountPercent,
			TVARate:         l.TVARate,
			TVAGroup:        l.TVAGroup,
		})
		if err != nil {
			return err
		}
		l.TotalHT, l.TotalTVA, l.TotalTTC = totals.TotalHT, totals.TotalTVA, totals.TotalTTC
	}
	return nil
}
