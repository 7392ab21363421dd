package repository

import (
	"context"

	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
)

// CompanyRepository define el puerto de persistencia para Company (DIP).
// La implementación vive en infrastructure.
type CompanyRepository interface {
	Create(ctx context.Context, company *entity.Company) error
	GetByID(ctx context.Context, id string) (*entity.Company, error)
	GetByIFU(ctx context.Context, ifu string) (*entity.Company, error)
}

// ClientRepository define el puerto de persistencia para Client (facturación).
type ClientRepository interface {
	Create(ctx context.Context, client *entity.Client) error
	GetByID(ctx context.Context, id string) (*entity.Client, error)
	GetByCompanyAndIFU(ctx context.Context, companyID, ifu string) (*entity.Client, error)
	ListByCompany(ctx context.Context, companyID string, limit, offset int) ([]*entity.Client, error)
}
