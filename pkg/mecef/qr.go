package mecef

import (
	"fmt"
	"strings"
	"time"
)

// QRTimeLayout formato de fecha del código QR (yyyyMMddHHmmss).
const QRTimeLayout = "20060102150405"

// BuildQRPayload construye el contenido del QR impreso en la factura certificada:
//
//	F;{NIM};{SIGNATURE};{IFU};{yyyyMMddHHmmss}
func BuildQRPayload(nim, signature, ifu string, at time.Time) string {
	return fmt.Sprintf("F;%s;%s;%s;%s", nim, signature, NormalizeIFU(ifu), at.Format(QRTimeLayout))
}

// QRPayload contenido decodificado de un QR MECeF.
type QRPayload struct {
	NIM       string
	Signature string
	IFU       string
	Time      time.Time
}

// ParseQRPayload valida y decodifica un contenido de QR.
func ParseQRPayload(s string) (QRPayload, error) {
	parts := strings.Split(s, ";")
	if len(parts) != 5 || parts[0] != "F" {
		return QRPayload{}, fmt.Errorf("mecef: QR con formato inválido: %q", s)
	}
	at, err := time.Parse(QRTimeLayout, parts[4])
	if err != nil {
		return QRPayload{}, fmt.Errorf("mecef: fecha del QR inválida: %w", err)
	}
	if err := ValidateIFU(parts[3]); err != nil {
		return QRPayload{}, err
	}
	return QRPayload{NIM: parts[1], Signature: parts[2], IFU: parts[3], Time: at}, nil
}
