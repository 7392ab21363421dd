package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

const invoiceColumns = `
	id, company_id, client_id, type, series, number, fiscal_year, ordinal,
	issue_date, due_date, status, total_ht, total_tva, total_ttc, amount_paid,
	mecef_nim, mecef_counters, mecef_dtc, mecef_qr_code, mecef_signature, mecef_type, mecef_status,
	original_invoice_id, notes, legal_mentions, finalized_at, version, created_at, updated_at`

// Create persiste la cabecera y las líneas de la factura.
func (r *InvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	return inTx(ctx, r.q, func(q Querier) error {
		query := `
			INSERT INTO invoices (` + invoiceColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`
		_, err := q.Exec(ctx, query,
			inv.ID, inv.CompanyID, inv.ClientID, inv.Type, inv.Series, nullIfEmpty(inv.Number),
			nullIfZero(inv.FiscalYear), nullIfZero(inv.Ordinal),
			inv.IssueDate, inv.DueDate, inv.Status, inv.TotalHT, inv.TotalTVA, inv.TotalTTC, inv.AmountPaid,
			inv.MecefNIM, inv.MecefCounters, inv.MecefDTC, inv.MecefQRCode, inv.MecefSignature, inv.MecefType, inv.MecefStatus,
			inv.OriginalInvoiceID, inv.Notes, inv.LegalMentions, inv.FinalizedAt, inv.Version, inv.CreatedAt, inv.UpdatedAt,
		)
		if err != nil {
			return mapError("insert invoice", err)
		}
		return insertLines(ctx, q, inv)
	})
}

func insertLines(ctx context.Context, q Querier, inv *entity.Invoice) error {
	const query = `
		INSERT INTO invoice_lines (id, invoice_id, position, description, quantity, unit_price_ht,
		                           discount_percent, tva_rate, tva_group, total_ht, total_tva, total_ttc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	batch := &pgx.Batch{}
	for _, l := range inv.Lines {
		batch.Queue(query, l.ID, inv.ID, l.Position, l.Description, l.Quantity, l.UnitPriceHT,
			l.DiscountPercent, l.TVARate, l.TVAGroup, l.TotalHT, l.TotalTVA, l.TotalTTC)
	}
	if batch.Len() == 0 {
		return nil
	}
	tx, ok := q.(pgx.Tx)
	if !ok {
		return fmt.Errorf("insert invoice lines: se requiere una transacción")
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapError("insert invoice lines", err)
	}
	return nil
}

func replaceLines(ctx context.Context, q Querier, inv *entity.Invoice) error {
	if _, err := q.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, inv.ID); err != nil {
		return mapError("delete invoice lines", err)
	}
	return insertLines(ctx, q, inv)
}

// GetByID obtiene la factura con sus líneas; (nil, nil) si no existe.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	row := r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, mapError("get invoice", err)
	}
	lines, err := r.lines(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return inv, nil
}

func (r *InvoiceRepo) lines(ctx context.Context, invoiceID string) ([]*entity.InvoiceLine, error) {
	const query = `
		SELECT id, invoice_id, position, description, quantity, unit_price_ht,
		       discount_percent, tva_rate, tva_group, total_ht, total_tva, total_ttc
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY position`
	rows, err := r.q.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, mapError("list invoice lines", err)
	}
	defer rows.Close()
	var list []*entity.InvoiceLine
	for rows.Next() {
		var l entity.InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.Position, &l.Description, &l.Quantity, &l.UnitPriceHT,
			&l.DiscountPercent, &l.TVARate, &l.TVAGroup, &l.TotalHT, &l.TotalTVA, &l.TotalTTC); err != nil {
			return nil, fmt.Errorf("scan invoice line: %w", err)
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}

func scanInvoice(row pgx.Row) (*entity.Invoice, error) {
	var inv entity.Invoice
	var number *string
	var year, ordinal *int
	err := row.Scan(
		&inv.ID, &inv.CompanyID, &inv.ClientID, &inv.Type, &inv.Series, &number, &year, &ordinal,
		&inv.IssueDate, &inv.DueDate, &inv.Status, &inv.TotalHT, &inv.TotalTVA, &inv.TotalTTC, &inv.AmountPaid,
		&inv.MecefNIM, &inv.MecefCounters, &inv.MecefDTC, &inv.MecefQRCode, &inv.MecefSignature, &inv.MecefType, &inv.MecefStatus,
		&inv.OriginalInvoiceID, &inv.Notes, &inv.LegalMentions, &inv.FinalizedAt, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Number = derefStr(number)
	inv.FiscalYear = derefInt(year)
	inv.Ordinal = derefInt(ordinal)
	return &inv, nil
}

// List devuelve una página de cabeceras (sin líneas) y el total de coincidencias.
func (r *InvoiceRepo) List(ctx context.Context, f repository.InvoiceFilter) ([]*entity.Invoice, int, error) {
	where := []string{"company_id = $1"}
	args := []any{f.CompanyID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ClientID != "" {
		add("client_id = $%d", f.ClientID)
	}
	if f.Type != "" {
		add("type = $%d", f.Type)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("issue_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("issue_date <= $%d", *f.To)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, mapError("count invoices", err)
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE ` + cond + ` ORDER BY issue_date DESC, created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError("list invoices", err)
	}
	defer rows.Close()
	list := make([]*entity.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan invoice: %w", err)
		}
		list = append(list, inv)
	}
	return list, total, rows.Err()
}

// UpdateDraft reemplaza cabecera y líneas si la factura sigue en DRAFT con la misma versión.
func (r *InvoiceRepo) UpdateDraft(ctx context.Context, inv *entity.Invoice) error {
	return inTx(ctx, r.q, func(q Querier) error {
		const query = `
			UPDATE invoices
			SET client_id = $3, series = $4, issue_date = $5, due_date = $6,
			    total_ht = $7, total_tva = $8, total_ttc = $9,
			    notes = $10, legal_mentions = $11, updated_at = $12, version = version + 1
			WHERE id = $1 AND version = $2 AND status = 'DRAFT'`
		tag, err := q.Exec(ctx, query, inv.ID, inv.Version,
			inv.ClientID, inv.Series, inv.IssueDate, inv.DueDate,
			inv.TotalHT, inv.TotalTVA, inv.TotalTTC,
			inv.Notes, inv.LegalMentions, inv.UpdatedAt,
		)
		if err != nil {
			return mapError("update invoice", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update invoice %s: %w", inv.ID, domain.ErrConflict)
		}
		if err := replaceLines(ctx, q, inv); err != nil {
			return err
		}
		inv.Version++
		return nil
	})
}

// Delete elimina una factura en DRAFT; las líneas caen por ON DELETE CASCADE.
func (r *InvoiceRepo) Delete(ctx context.Context, id string, version int) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM invoices WHERE id = $1 AND version = $2 AND status = 'DRAFT'`, id, version)
	if err != nil {
		return mapError("delete invoice", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete invoice %s: %w", id, domain.ErrConflict)
	}
	return nil
}

// MaxOrdinal mayor ordinal emitido para (empresa, serie, año).
func (r *InvoiceRepo) MaxOrdinal(ctx context.Context, companyID, series string, year int) (int, error) {
	const query = `
		SELECT COALESCE(MAX(ordinal), 0) FROM invoices
		WHERE company_id = $1 AND series = $2 AND fiscal_year = $3`
	var n int
	if err := r.q.QueryRow(ctx, query, companyID, series, year).Scan(&n); err != nil {
		return 0, mapError("max ordinal", err)
	}
	return n, nil
}

// Finalize fija número, totales, estado y campos mecef*. Colisión de número: ErrDuplicate.
func (r *InvoiceRepo) Finalize(ctx context.Context, inv *entity.Invoice) error {
	return inTx(ctx, r.q, func(q Querier) error {
		const query = `
			UPDATE invoices
			SET series = $3, number = $4, fiscal_year = $5, ordinal = $6, status = $7,
			    total_ht = $8, total_tva = $9, total_ttc = $10,
			    mecef_nim = $11, mecef_counters = $12, mecef_dtc = $13, mecef_qr_code = $14,
			    mecef_signature = $15, mecef_type = $16, mecef_status = $17,
			    finalized_at = $18, updated_at = $19, issue_date = $20, due_date = $21,
			    version = version + 1
			WHERE id = $1 AND version = $2 AND status = 'DRAFT'`
		tag, err := q.Exec(ctx, query, inv.ID, inv.Version,
			inv.Series, inv.Number, inv.FiscalYear, inv.Ordinal, inv.Status,
			inv.TotalHT, inv.TotalTVA, inv.TotalTTC,
			inv.MecefNIM, inv.MecefCounters, inv.MecefDTC, inv.MecefQRCode,
			inv.MecefSignature, inv.MecefType, inv.MecefStatus,
			inv.FinalizedAt, inv.UpdatedAt, inv.IssueDate, inv.DueDate,
		)
		if err != nil {
			return mapError("finalize invoice", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("finalize invoice %s: %w", inv.ID, domain.ErrConflict)
		}
		if err := replaceLines(ctx, q, inv); err != nil {
			return err
		}
		inv.Version++
		return nil
	})
}

// UpdateStatus cambia estado y monto pagado con compare-and-swap sobre (estado, versión).
func (r *InvoiceRepo) UpdateStatus(ctx context.Context, inv *entity.Invoice, fromStatus string) error {
	const query = `
		UPDATE invoices
		SET status = $4, amount_paid = $5, updated_at = $6, version = version + 1
		WHERE id = $1 AND version = $2 AND status = $3`
	tag, err := r.q.Exec(ctx, query, inv.ID, inv.Version, fromStatus, inv.Status, inv.AmountPaid, inv.UpdatedAt)
	if err != nil {
		return mapError("update invoice status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update invoice status %s: %w", inv.ID, domain.ErrConflict)
	}
	inv.Version++
	return nil
}

// SumCreditNotes TTC de las notas de crédito emitidas contra originalID.
func (r *InvoiceRepo) SumCreditNotes(ctx context.Context, originalID string) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(total_ttc), 0) FROM invoices
		WHERE original_invoice_id = $1 AND type = 'CREDIT_NOTE' AND status NOT IN ('DRAFT', 'CANCELLED')`
	var sum decimal.Decimal
	if err := r.q.QueryRow(ctx, query, originalID).Scan(&sum); err != nil {
		return decimal.Zero, mapError("sum credit notes", err)
	}
	return sum, nil
}
