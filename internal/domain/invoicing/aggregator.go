package invoicing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
)

// TaxBreakdown subtotal por grupo y tasa de TVA.
type TaxBreakdown struct {
	Group  string
	Rate   decimal.Decimal
	BaseHT decimal.Decimal
	TVA    decimal.Decimal
}

// Totals totales de la factura. TotalTTC = TotalHT + TotalTVA siempre.
type Totals struct {
	TotalHT   decimal.Decimal
	TotalTVA  decimal.Decimal
	TotalTTC  decimal.Decimal
	Breakdown []TaxBreakdown
}

// Aggregate suma los valores ya redondeados de cada línea; no vuelve a redondear.
func Aggregate(lines []*entity.InvoiceLine) Totals {
	var t Totals
	groups := map[string]*TaxBreakdown{}
	for _, l := range lines {
		t.TotalHT = t.TotalHT.Add(l.TotalHT)
		t.TotalTVA = t.TotalTVA.Add(l.TotalTVA)

		key := l.TVAGroup + "|" + l.TVARate.StringFixed(2)
		b, ok := groups[key]
		if !ok {
			b = &TaxBreakdown{Group: l.TVAGroup, Rate: l.TVARate}
			groups[key] = b
		}
		b.BaseHT = b.BaseHT.Add(l.TotalHT)
		b.TVA = b.TVA.Add(l.TotalTVA)
	}
	t.TotalTTC = t.TotalHT.Add(t.TotalTVA)

	t.Breakdown = make([]TaxBreakdown, 0, len(groups))
	for _, b := range groups {
		t.Breakdown = append(t.Breakdown, *b)
	}
	sort.Slice(t.Breakdown, func(i, j int) bool {
		if t.Breakdown[i].Group != t.Breakdown[j].Group {
			return t.Breakdown[i].Group < t.Breakdown[j].Group
		}
		return t.Breakdown[i].Rate.LessThan(t.Breakdown[j].Rate)
	})
	return t
}

// ApplyTotals copia los totales agregados de inv.Lines a la cabecera.
func ApplyTotals(inv *entity.Invoice) Totals {
	t := Aggregate(inv.Lines)
	inv.TotalHT, inv.TotalTVA, inv.TotalTTC = t.TotalHT, t.TotalTVA, t.TotalTTC
	return t
}

// CheckReconciliation verifica que la cabecera cuadre al céntimo con sus líneas.
func CheckReconciliation(inv *entity.Invoice) error {
	t := Aggregate(inv.Lines)
	switch {
	case !inv.TotalHT.Equal(t.TotalHT):
		return fmt.Errorf("%w: total HT %s distinto de la suma de líneas %s", domain.ErrInternal, inv.TotalHT, t.TotalHT)
	case !inv.TotalTVA.Equal(t.TotalTVA):
		return fmt.Errorf("%w: total TVA %s distinto de la suma de líneas %s", domain.ErrInternal, inv.TotalTVA, t.TotalTVA)
	case !inv.TotalTTC.Equal(inv.TotalHT.Add(inv.TotalTVA)):
		return fmt.Errorf("%w: total TTC %s distinto de HT + TVA", domain.ErrInternal, inv.TotalTTC)
	}
	return nil
}
