package invoicing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/domain/entity"
)

// Series por defecto de cada tipo de documento.
var defaultSeries = map[string]string{
	entity.InvoiceTypeInvoice:    "FAC",
	entity.InvoiceTypeCreditNote: "AV",
	entity.InvoiceTypeQuote:      "DEV",
	entity.InvoiceTypeOrder:      "BC",
}

var seriesPattern = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// DefaultSeries devuelve la serie por defecto del tipo ("FAC" para facturas).
func DefaultSeries(invoiceType string) string {
	return defaultSeries[invoiceType]
}

// ValidateSeries exige mayúsculas/dígitos sin guiones (el guion separa las partes del número).
func ValidateSeries(series string) error {
	if !seriesPattern.MatchString(series) {
		return fmt.Errorf("%w: serie %q inválida (1-10 caracteres A-Z, 0-9)", domain.ErrInvalidInput, series)
	}
	return nil
}

// FormatNumber construye el número legal {serie}-{año}-{ordinal} con al menos 3 dígitos.
func FormatNumber(series string, year, ordinal int) string {
	return fmt.Sprintf("%s-%d-%03d", series, year, ordinal)
}

// ParseNumber descompone un número legal. Inverso de FormatNumber.
func ParseNumber(number string) (series string, year, ordinal int, err error) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("%w: número %q mal formado", domain.ErrInvalidInput, number)
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 4 {
		return "", 0, 0, fmt.Errorf("%w: año inválido en %q", domain.ErrInvalidInput, number)
	}
	ordinal, err = strconv.Atoi(parts[2])
	if err != nil || ordinal < 1 || len(parts[2]) < 3 {
		return "", 0, 0, fmt.Errorf("%w: ordinal inválido en %q", domain.ErrInvalidInput, number)
	}
	return parts[0], year, ordinal, nil
}

// NextOrdinal devuelve max+1 (1 si aún no hay ninguno en el año).
func NextOrdinal(currentMax int) int {
	if currentMax < 0 {
		return 1
	}
	return currentMax + 1
}
