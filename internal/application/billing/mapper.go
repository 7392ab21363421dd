package billing

import (
	"time"

	"github.com/jhoicas/facturacion-mecef/internal/application/dto"
	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/internal/domain/invoicing"
)

func toInvoiceResponse(inv *entity.Invoice, now time.Time) *dto.InvoiceResponse {
	out := &dto.InvoiceResponse{
		ID:                inv.ID,
		CompanyID:         inv.CompanyID,
		ClientID:          inv.ClientID,
		Type:              inv.Type,
		Series:            inv.Series,
		Number:            inv.Number,
		IssueDate:         inv.IssueDate.Format(dto.DateLayout),
		Status:            inv.EffectiveStatus(now),
		TotalHT:           inv.TotalHT,
		TotalTVA:          inv.TotalTVA,
		TotalTTC:          inv.TotalTTC,
		AmountPaid:        inv.AmountPaid,
		Balance:           inv.Balance(),
		MecefNIM:          inv.MecefNIM,
		MecefCounters:     inv.MecefCounters,
		MecefDTC:          inv.MecefDTC,
		MecefQRCode:       inv.MecefQRCode,
		MecefSignature:    inv.MecefSignature,
		MecefType:         inv.MecefType,
		MecefStatus:       inv.MecefStatus,
		OriginalInvoiceID: inv.OriginalInvoiceID,
		Notes:             inv.Notes,
		LegalMentions:     inv.LegalMentions,
		FinalizedAt:       inv.FinalizedAt,
		CreatedAt:         inv.CreatedAt,
		UpdatedAt:         inv.UpdatedAt,
		Lines:             make([]dto.InvoiceLineResponse, 0, len(inv.Lines)),
	}
	if inv.DueDate != nil {
		out.DueDate = inv.DueDate.Format(dto.DateLayout)
	}
	for _, l := range inv.Lines {
		out.Lines = append(out.Lines, dto.InvoiceLineResponse{
			ID:              l.ID,
			Position:        l.Position,
			Description:     l.Description,
			Quantity:        l.Quantity,
			UnitPriceHT:     l.UnitPriceHT,
			DiscountPercent: l.DiscountPercent,
			TVARate:         l.TVARate,
			TVAGroup:        l.TVAGroup,
			TotalHT:         l.TotalHT,
			TotalTVA:        l.TotalTVA,
			TotalTTC:        l.TotalTTC,
		})
	}
	totals := invoicing.Aggregate(inv.Lines)
	out.TaxBreakdown = make([]dto.TaxBreakdownResponse, 0, len(totals.Breakdown))
	for _, b := range totals.Breakdown {
		out.TaxBreakdown = append(out.TaxBreakdown, dto.TaxBreakdownResponse{
			Group:  b.Group,
			Rate:   b.Rate,
			BaseHT: b.BaseHT,
			TVA:    b.TVA,
		})
	}
	return out
}

func toPaymentResponse(p *entity.Payment) dto.PaymentResponse {
	return dto.PaymentResponse{
		ID:            p.ID,
		InvoiceID:     p.InvoiceID,
		Amount:        p.Amount,
		PaymentDate:   p.PaymentDate.Format(dto.DateLayout),
		PaymentMethod: p.PaymentMethod,
		Reference:     p.Reference,
		CreatedAt:     p.CreatedAt,
	}
}
