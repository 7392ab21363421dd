// Package pdf genera la representación impresa de facturas, avoirs, devis y bons de commande.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  Empresa + IFU               │  Título + N° + fechas        │
//	│  Cliente                                                    │
//	│  TABLA: Désignation | Qté | PU HT | Rem. | Grp | Total HT   │
//	│  Desglose por grupo de TVA   │  Totales HT / TVA / TTC      │
//	│  PIE MECeF: QR + NIM + contadores + firma                    │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jhoicas/facturacion-mecef/internal/application/billing"
	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/internal/domain/invoicing"
)

var (
	colorPrimary = &props.Color{Red: 0, Green: 106, Blue: 78}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

var _ billing.InvoicePDFGenerator = (*MarotoPDFGenerator)(nil)

// MarotoPDFGenerator implementa billing.InvoicePDFGenerator usando Maroto v2.
type MarotoPDFGenerator struct {
	printer *message.Printer
}

// NewMarotoPDFGenerator construye el generador con formato numérico francés.
func NewMarotoPDFGenerator() *MarotoPDFGenerator {
	return &MarotoPDFGenerator{printer: message.NewPrinter(language.French)}
}

// GenerateInvoicePDF genera el PDF y devuelve sus bytes.
func (g *MarotoPDFGenerator) GenerateInvoicePDF(
	_ context.Context,
	inv *entity.Invoice,
	company *entity.Company,
	client *entity.Client,
) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(documentTitle(inv.Type)+" "+inv.Number, true).
		WithAuthor(company.Name, true).
		Build()

	m := maroto.New(cfg)
	m.AddRows(g.headerRow(inv, company))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(clientRow(client))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	m.AddRows(g.lineRows(inv.Lines)...)
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	totals := invoicing.Aggregate(inv.Lines)
	m.AddRows(g.breakdownRows(totals.Breakdown)...)
	m.AddRows(g.totalsRow(inv))

	if inv.Notes != "" || inv.LegalMentions != "" {
		m.AddRows(row.New(10).Add(col.New(12).Add(
			text.New(strings.TrimSpace(inv.Notes+"\n"+inv.LegalMentions), props.Text{Size: 7, Color: colorGray, Top: 2}),
		)))
	}
	if inv.IsCertified() {
		m.AddRows(line.NewRow(3))
		m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
		m.AddRows(mecefFooterRows(inv)...)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

func documentTitle(invoiceType string) string {
	switch invoiceType {
	case entity.InvoiceTypeCreditNote:
		return "FACTURE D'AVOIR"
	case entity.InvoiceTypeQuote:
		return "DEVIS"
	case entity.InvoiceTypeOrder:
		return "BON DE COMMANDE"
	}
	return "FACTURE NORMALISÉE"
}

func (g *MarotoPDFGenerator) headerRow(inv *entity.Invoice, company *entity.Company) core.Row {
	dates := "Date : " + inv.IssueDate.Format("02/01/2006")
	if inv.DueDate != nil {
		label := "Échéance"
		if entity.IsCommercialDocument(inv.Type) {
			label = "Valable jusqu'au"
		}
		dates += "   " + label + " : " + inv.DueDate.Format("02/01/2006")
	}
	return row.New(22).Add(
		col.New(7).Add(
			text.New(company.Name, props.Text{Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1}),
			text.New("IFU : "+company.IFU, props.Text{Size: 9, Top: 9, Color: colorGray}),
			text.New(joinNonEmpty("   |   ", company.Address, company.Phone, company.Email), props.Text{Size: 8, Top: 14, Color: colorGray}),
		),
		col.New(5).Add(
			text.New(documentTitle(inv.Type), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Color: colorPrimary, Top: 1}),
			text.New("N° "+inv.Number, props.Text{Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7}),
			text.New(dates, props.Text{Size: 8, Align: align.Right, Top: 14, Color: colorGray}),
		),
	)
}

func clientRow(client *entity.Client) core.Row {
	ifu := "—"
	if client.IFU != "" {
		ifu = client.IFU
	}
	return row.New(16).Add(col.New(12).Add(
		text.New("CLIENT", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
		text.New(client.Name, props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
		text.New("IFU : "+ifu+"   "+joinNonEmpty("   |   ", client.Address, client.Phone, client.Email),
			props.Text{Size: 8, Top: 12, Color: colorGray}),
	))
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{Style: fontstyle.Bold, Size: 8, Align: a, Color: colorPrimary, Top: 2}))
	}
	return row.New(8).Add(
		h("Désignation", 5, align.Left),
		h("Qté", 1, align.Center),
		h("PU HT", 2, align.Right),
		h("Rem.", 1, align.Center),
		h("Grp", 1, align.Center),
		h("Total HT", 2, align.Right),
	)
}

func (g *MarotoPDFGenerator) lineRows(lines []*entity.InvoiceLine) []core.Row {
	out := make([]core.Row, 0, len(lines))
	cell := func(s string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(s, props.Text{Size: 8, Align: a, Top: 1}))
	}
	for _, l := range lines {
		discount := "—"
		if !l.DiscountPercent.IsZero() {
			discount = l.DiscountPercent.String() + "%"
		}
		out = append(out, row.New(7).Add(
			cell(l.Description, 5, align.Left),
			cell(l.Quantity.String(), 1, align.Center),
			cell(g.amount(l.UnitPriceHT), 2, align.Right),
			cell(discount, 1, align.Center),
			cell(l.TVAGroup, 1, align.Center),
			cell(g.amount(l.TotalHT), 2, align.Right),
		))
	}
	return out
}

func (g *MarotoPDFGenerator) breakdownRows(breakdown []invoicing.TaxBreakdown) []core.Row {
	out := make([]core.Row, 0, len(breakdown))
	for _, b := range breakdown {
		out = append(out, row.New(5).Add(
			col.New(6).Add(text.New(
				fmt.Sprintf("Groupe %s (%s%%) : base %s, TVA %s", b.Group, b.Rate.String(), g.amount(b.BaseHT), g.amount(b.TVA)),
				props.Text{Size: 7, Color: colorGray, Top: 1},
			)),
			col.New(6),
		))
	}
	return out
}

func (g *MarotoPDFGenerator) totalsRow(inv *entity.Invoice) core.Row {
	label := func(s string, top float64) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2, Top: top})
	}
	value := func(s string, top float64) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1, Top: top})
	}
	labels := col.New(3).Add(label("Total HT :", 0), label("TVA :", 5), label("Total TTC :", 10))
	values := col.New(3).Add(
		value(g.amount(inv.TotalHT)+" FCFA", 0),
		value(g.amount(inv.TotalTVA)+" FCFA", 5),
		text.New(g.amount(inv.TotalTTC)+" FCFA", props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right, Right: 1, Top: 10, Color: colorPrimary}),
	)
	if inv.Type == entity.InvoiceTypeInvoice && !inv.AmountPaid.IsZero() {
		labels.Add(label("Payé :", 15), label("Reste dû :", 20))
		values.Add(value(g.amount(inv.AmountPaid)+" FCFA", 15), value(g.amount(inv.Balance())+" FCFA", 20))
	}
	return row.New(28).Add(col.New(6), labels, values)
}

func mecefFooterRows(inv *entity.Invoice) []core.Row {
	info := []string{
		"Code MECeF/DGI : " + deref(inv.MecefSignature),
		"MECeF NIM : " + deref(inv.MecefNIM),
		"MECeF Compteurs : " + deref(inv.MecefCounters),
		"MECeF Heure : " + deref(inv.MecefDTC),
	}
	details := col.New(8)
	details.Add(text.New("ÉLÉMENTS DE SÉCURITÉ MECeF", props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 2, Left: 3}))
	for i, s := range info {
		details.Add(text.New(s, props.Text{Size: 8, Top: float64(9 + 6*i), Left: 3}))
	}
	qr := col.New(4)
	if inv.MecefQRCode != nil && *inv.MecefQRCode != "" {
		qr.Add(code.NewQr(*inv.MecefQRCode, props.Rect{Percent: 95, Center: true}))
	}
	return []core.Row{row.New(42).Add(qr, details)}
}

// amount formatea con separador de miles francés y, solo si hay céntimos, dos decimales.
// El separador del locale es un espacio fino no ASCII que las fuentes base del PDF no tienen.
func (g *MarotoPDFGenerator) amount(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	whole := d.Truncate(0)
	s := g.printer.Sprintf("%d", whole.IntPart())
	s = strings.Map(func(r rune) rune {
		if r == '\u202f' || r == '\u00a0' {
			return ' '
		}
		return r
	}, s)
	if cents := d.Sub(whole).Shift(2).IntPart(); cents != 0 {
		s += fmt.Sprintf(",%02d", cents)
	}
	return sign + s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}
