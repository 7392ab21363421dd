package mecef

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/facturacion-mecef/internal/domain"
	pkgmecef "github.com/jhoicas/facturacion-mecef/pkg/mecef"
)

// Simulator certifica localmente con artefactos del mismo formato que el dispositivo real.
// Solo para ModeDev y tests: los NIM y firmas no tienen validez fiscal.
type Simulator struct {
	nim      string
	mu       sync.Mutex
	counters map[string]int // por tipo de documento
	total    int
	now      func() time.Time
	log      zerolog.Logger
}

var _ pkgmecef.Certifier = (*Simulator)(nil)

// NewSimulator construye un simulador con el NIM indicado ("" usa uno fijo de pruebas).
func NewSimulator(nim string, log zerolog.Logger) *Simulator {
	if nim == "" {
		nim = "ED04000000"
	}
	return &Simulator{
		nim:      nim,
		counters: map[string]int{},
		now:      time.Now,
		log:      log.With().Str("component", "mecef_simulator").Logger(),
	}
}

// Certify valida lo mínimo que valida el dispositivo y devuelve contadores, firma y QR.
func (s *Simulator) Certify(ctx context.Context, req pkgmecef.Request) (*pkgmecef.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pkgmecef.ValidateIFU(req.CompanyIFU); err != nil {
		return nil, &domain.CertificationError{Reason: "IFU del emisor inválido", Err: err}
	}
	if !pkgmecef.ValidDocType(req.Type) {
		return nil, &domain.CertificationError{Reason: fmt.Sprintf("tipo de documento %q desconocido", req.Type)}
	}
	if len(req.Items) == 0 {
		return nil, &domain.CertificationError{Reason: "la factura no tiene ítems"}
	}
	if (req.Type == pkgmecef.DocTypeCreditNote || req.Type == pkgmecef.DocTypeExportCreditNote) && req.Reference == "" {
		return nil, &domain.CertificationError{Reason: "la factura de avoir requiere la referencia de la factura original"}
	}
	for _, it := range req.Items {
		if !pkgmecef.ValidTaxGroup(it.TaxGroup) {
			return nil, &domain.CertificationError{Reason: fmt.Sprintf("grupo de impuesto %q desconocido", it.TaxGroup)}
		}
	}

	s.mu.Lock()
	s.counters[req.Type]++
	s.total++
	perType, total := s.counters[req.Type], s.total
	s.mu.Unlock()

	at := s.now()
	signature := randomSignature()
	res := &pkgmecef.Result{
		NIM:       s.nim,
		Counters:  fmt.Sprintf("%d/%d %s", perType, total, req.Type),
		DTC:       at.Format("02/01/2006 15:04:05"),
		QRCode:    pkgmecef.BuildQRPayload(s.nim, signature, req.CompanyIFU, at),
		Signature: signature,
	}
	s.log.Debug().Str("counters", res.Counters).Str("signature", signature).Msg("[DEV] certificación simulada")
	return res, nil
}

// randomSignature genera un código con el formato XXXX-XXXX-XXXX-XXXX-XXXX-XXXX.
func randomSignature() string {
	b := make([]byte, 15)
	_, _ = rand.Read(b)
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)
	parts := make([]string, 0, 6)
	for i := 0; i+4 <= len(enc) && len(parts) < 6; i += 4 {
		parts = append(parts, enc[i:i+4])
	}
	return strings.Join(parts, "-")
}
