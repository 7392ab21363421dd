package mecef

import (
	"fmt"
	"unicode"
)

// IFULength longitud del Identifiant Fiscal Unique.
const IFULength = 13

// ValidateIFU valida que el IFU (con o sin espacios/guiones) tenga exactamente 13 dígitos.
func ValidateIFU(ifu string) error {
	digits := NormalizeIFU(ifu)
	if len(digits) != IFULength {
		return fmt.Errorf("mecef: el IFU debe tener %d dígitos, se encontraron %d", IFULength, len(digits))
	}
	for _, r := range ifu {
		if !unicode.IsDigit(r) && r != ' ' && r != '-' {
			return fmt.Errorf("mecef: el IFU contiene caracteres no válidos: %q", ifu)
		}
	}
	return nil
}

// NormalizeIFU devuelve solo los dígitos del IFU.
func NormalizeIFU(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return string(out)
}
