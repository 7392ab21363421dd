package entity

import "time"

// Company representa una organización/tenant emisora de facturas (Benín, régimen e-MECeF).
type Company struct {
	ID        string
	Name      string
	IFU       string // Identifiant Fiscal Unique, 13 dígitos
	Address   string
	Phone     string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
