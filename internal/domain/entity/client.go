package entity

import "time"

// Client representa un cliente de la empresa (facturación).
type Client struct {
	ID        string
	CompanyID string
	Name      string
	IFU       string // opcional: clientes particulares no tienen IFU
	Email     string
	Phone     string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
