package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")
	ErrInternal     = errors.New("error interno")

	ErrInvalidLineInput          = errors.New("línea de factura inválida")
	ErrInvalidAmount             = errors.New("monto inválido")
	ErrAllocationConflict        = errors.New("no se pudo asignar el número de factura, reintente")
	ErrCertificationFailure      = errors.New("la certificación MECeF falló")
	ErrInvalidState              = errors.New("operación no permitida en el estado actual de la factura")
	ErrPaymentExceedsBalance     = errors.New("el pago excede el saldo pendiente de la factura")
	ErrCreditNoteExceedsOriginal = errors.New("la nota de crédito excede el saldo de la factura original")
)

// LineInputError detalla qué campo de qué línea es inválido. Envuelve ErrInvalidLineInput.
type LineInputError struct {
	Position int
	Field    string
	Reason   string
}

func (e *LineInputError) Error() string {
	return fmt.Sprintf("%s: línea %d, campo %s: %s", ErrInvalidLineInput.Error(), e.Position, e.Field, e.Reason)
}

func (e *LineInputError) Unwrap() error { return ErrInvalidLineInput }

// CertificationError transporta el motivo devuelto (o inferido) del dispositivo MECeF.
type CertificationError struct {
	Reason string
	Err    error
}

func (e *CertificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrCertificationFailure.Error(), e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrCertificationFailure.Error(), e.Reason)
}

// Unwrap permite errors.Is tanto con ErrCertificationFailure como con la causa original.
func (e *CertificationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCertificationFailure, e.Err}
	}
	return []error{ErrCertificationFailure}
}

// StateError indica la operación rechazada y el estado en que estaba la factura.
type StateError struct {
	Op     string
	Status string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s no permitido desde %s", ErrInvalidState.Error(), e.Op, e.Status)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }
