package entity

import "github.com/shopspring/decimal"

// InvoiceLine es una línea de la factura. TotalHT, TotalTVA y TotalTTC son derivados
// (los calcula invoicing.CalculateLine) y nunca los fija el llamador.
type InvoiceLine struct {
	ID              string
	InvoiceID       string
	Position        int // 0-based, contiguo
	Description     string
	Quantity        decimal.Decimal
	UnitPriceHT     decimal.Decimal
	DiscountPercent decimal.Decimal
	TVARate         decimal.Decimal
	TVAGroup        string // A..F
	TotalHT         decimal.Decimal
	TotalTVA        decimal.Decimal
	TotalTTC        decimal.Decimal
}
