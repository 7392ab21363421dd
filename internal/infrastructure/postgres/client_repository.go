package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/internal/domain/repository"
)

var _ repository.ClientRepository = (*ClientRepo)(nil)

// ClientRepo persistencia de clientes. El IFU es opcional y único por empresa cuando existe.
type ClientRepo struct {
	q Querier
}

func NewClientRepository(q Querier) *ClientRepo {
	return &ClientRepo{q: q}
}

const clientColumns = `id, company_id, name, COALESCE(ifu, ''), email, phone, address, created_at, updated_at`

func (r *ClientRepo) Create(ctx context.Context, c *entity.Client) error {
	const query = `
		INSERT INTO clients (id, company_id, name, ifu, email, phone, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		c.ID, c.CompanyID, c.Name, nullIfEmpty(c.IFU), c.Email, c.Phone, c.Address, c.CreatedAt, c.UpdatedAt,
	)
	return mapError("insert client", err)
}

func (r *ClientRepo) GetByID(ctx context.Context, id string) (*entity.Client, error) {
	row := r.q.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	return scanClientRow(row.Scan)
}

func (r *ClientRepo) GetByCompanyAndIFU(ctx context.Context, companyID, ifu string) (*entity.Client, error) {
	row := r.q.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE company_id = $1 AND ifu = $2`, companyID, ifu)
	return scanClientRow(row.Scan)
}

// ListByCompany lista clientes por nombre. limit <= 0 devuelve todos.
func (r *ClientRepo) ListByCompany(ctx context.Context, companyID string, limit, offset int) ([]*entity.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE company_id = $1 ORDER BY name, id OFFSET $2`
	args := []any{companyID, offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("list clients", err)
	}
	defer rows.Close()
	list := make([]*entity.Client, 0)
	for rows.Next() {
		c, err := scanClientRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func scanClientRow(scan func(dest ...any) error) (*entity.Client, error) {
	var c entity.Client
	err := scan(&c.ID, &c.CompanyID, &c.Name, &c.IFU, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}
	return &c, nil
}
