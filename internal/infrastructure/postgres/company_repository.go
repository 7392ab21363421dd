package postgres

import (
	"context"

	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
	"github.com/jhoicas/facturacion-mecef/internal/domain/repository"
)

// Asegura que CompanyRepo implementa repository.CompanyRepository.
var _ repository.CompanyRepository = (*CompanyRepo)(nil)

// CompanyRepo implementación del puerto CompanyRepository sobre PostgreSQL.
type CompanyRepo struct {
	q Querier
}

// NewCompanyRepository construye el adaptador de persistencia para empresas.
func NewCompanyRepository(q Querier) *CompanyRepo {
	return &CompanyRepo{q: q}
}

// Create persiste una nueva empresa. IFU repetido: domain.ErrDuplicate.
func (r *CompanyRepo) Create(ctx context.Context, company *entity.Company) error {
	const query = `
		INSERT INTO companies (id, name, ifu, address, phone, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(ctx, query,
		company.ID, company.Name, company.IFU, company.Address,
		company.Phone, company.Email, company.CreatedAt, company.UpdatedAt,
	)
	return mapError("insert company", err)
}

// GetByID obtiene una empresa por ID.
func (r *CompanyRepo) GetByID(ctx context.Context, id string) (*entity.Company, error) {
	return r.getOne(ctx, "id", id)
}

// GetByIFU obtiene una empresa por IFU.
func (r *CompanyRepo) GetByIFU(ctx context.Context, ifu string) (*entity.Company, error) {
	return r.getOne(ctx, "ifu", ifu)
}

func (r *CompanyRepo) getOne(ctx context.Context, column, value string) (*entity.Company, error) {
	query := `
		SELECT id, name, ifu, address, phone, email, created_at, updated_at
		FROM companies WHERE ` + column + ` = $1`
	var c entity.Company
	err := r.q.QueryRow(ctx, query, value).Scan(
		&c.ID, &c.Name, &c.IFU, &c.Address, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, mapError("get company by "+column, err)
	}
	return &c, nil
}
