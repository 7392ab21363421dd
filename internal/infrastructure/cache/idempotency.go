// Package cache guarda las respuestas de operaciones no idempotentes (finalize, pagos)
// indexadas por la cabecera Idempotency-Key.
package cache

import (
	"errors"
	"time"
)

// DefaultTTL vigencia de una clave de idempotencia.
const DefaultTTL = 24 * time.Hour

// ErrInProgress indica que otra petición con la misma clave sigue ejecutándose.
var ErrInProgress = errors.New("idempotency: petición en curso con la misma clave")

// Record respuesta almacenada. Fingerprint identifica la petición original
// (método, ruta, empresa y hash del cuerpo) para detectar claves reutilizadas.
type Record struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	Pending     bool   `json:"pending"`
}
