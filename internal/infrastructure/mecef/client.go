// Package mecef implementa pkg/mecef.Certifier contra la API REST e-MECeF de la DGI
// y un simulador local para desarrollo.
package mecef

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/jhoicas/facturacion-mecef/internal/domain"
	pkgmecef "github.com/jhoicas/facturacion-mecef/pkg/mecef"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	ModeDev  = "dev"  // simulador local, no contacta a la DGI
	ModeTest = "test" // plataforma de pruebas
	ModeProd = "prod"

	baseURLTest = "https://developper.impots.bj/sygmef-emcf"
	baseURLProd = "https://sygmef.impots.bj/emcf"
)

// BaseURLFor devuelve la URL de la API según el modo; "" en dev.
func BaseURLFor(mode string) string {
	switch mode {
	case ModeProd:
		return baseURLProd
	case ModeTest:
		return baseURLTest
	}
	return ""
}

// ClientConfig configuración del cliente HTTP.
type ClientConfig struct {
	BaseURL      string
	Token        string // JWT emitido por la DGI para el dispositivo
	OperatorName string
	RatePerSec   float64
	Burst        int
	HTTPTimeout  time.Duration
}

// Client implementa el protocolo en dos fases: POST /api/invoice registra la factura
// y devuelve los totales calculados por el dispositivo; PUT /api/invoice/{uid}/confirm
// la sella. Si los totales no cuadran o algo falla tras el registro, se intenta
// PUT /api/invoice/{uid}/cancel para no dejar la factura pendiente en el dispositivo.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

var _ pkgmecef.Certifier = (*Client)(nil)

// NewClient construye el cliente. El limitador protege al dispositivo de ráfagas.
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:        log.With().Str("component", "mecef_client").Logger(),
	}
}

// ── Estructuras JSON ──────────────────────────────────────────────────────────

type invoiceRequestDTO struct {
	IFU       string       `json:"ifu"`
	Type      string       `json:"type"`
	Items     []itemDTO    `json:"items"`
	Client    *clientDTO   `json:"client,omitempty"`
	Operator  operatorDTO  `json:"operator"`
	Payment   []paymentDTO `json:"payment,omitempty"`
	Reference string       `json:"reference,omitempty"`
}

// number serializa un decimal como número JSON: la API no acepta montos entre comillas.
type number struct{ decimal.Decimal }

func (n number) MarshalJSON() ([]byte, error) { return []byte(n.Decimal.String()), nil }

type itemDTO struct {
	Name     string `json:"name"`
	Price    number `json:"price"`
	Quantity number `json:"quantity"`
	TaxGroup string `json:"taxGroup"`
}

type clientDTO struct {
	IFU  string `json:"ifu,omitempty"`
	Name string `json:"name,omitempty"`
}

type operatorDTO struct {
	Name string `json:"name"`
}

type paymentDTO struct {
	Name   string `json:"name"`
	Amount number `json:"amount"`
}

type invoiceResponseDTO struct {
	UID       string `json:"uid"`
	Total     number `json:"total"`
	ErrorCode string `json:"errorCode"`
	ErrorDesc string `json:"errorDesc"`
}

type securityElementsDTO struct {
	DateTime     string `json:"dateTime"`
	QRCode       string `json:"qrCode"`
	CodeMECeFDGI string `json:"codeMECeFDGI"`
	Counters     string `json:"counters"`
	NIM          string `json:"nim"`
	ErrorCode    string `json:"errorCode"`
	ErrorDesc    string `json:"errorDesc"`
}

// ── Certify ───────────────────────────────────────────────────────────────────

// Certify registra y confirma la factura. Los errores devueltos son *domain.CertificationError.
func (c *Client) Certify(ctx context.Context, req pkgmecef.Request) (*pkgmecef.Result, error) {
	body := invoiceRequestDTO{
		IFU:       req.CompanyIFU,
		Type:      req.Type,
		Operator:  operatorDTO{Name: nonEmpty(req.Operator, c.cfg.OperatorName)},
		Payment:   []paymentDTO{{Name: nonEmpty(req.PaymentMethod, pkgmecef.PaymentCredit), Amount: number{req.TotalAmount}}},
		Reference: req.Reference,
	}
	if req.ClientIFU != "" || req.ClientName != "" {
		body.Client = &clientDTO{IFU: req.ClientIFU, Name: req.ClientName}
	}
	for _, it := range req.Items {
		body.Items = append(body.Items, itemDTO{Name: it.Name, Price: number{it.Price}, Quantity: number{it.Quantity}, TaxGroup: it.TaxGroup})
	}

	var pending invoiceResponseDTO
	if err := c.do(ctx, http.MethodPost, "/api/invoice", body, &pending); err != nil {
		return nil, &domain.CertificationError{Reason: "registro de factura", Err: err}
	}
	if pending.ErrorCode != "" && pending.ErrorCode != "0" {
		return nil, &domain.CertificationError{Reason: fmt.Sprintf("dispositivo rechazó la factura (%s): %s", pending.ErrorCode, pending.ErrorDesc)}
	}
	if pending.UID == "" {
		return nil, &domain.CertificationError{Reason: "el dispositivo no devolvió uid"}
	}

	if !totalsMatch(pending.Total.Decimal, req.TotalAmount, len(req.Items)) {
		c.cancel(ctx, pending.UID)
		return nil, &domain.CertificationError{Reason: fmt.Sprintf("total del dispositivo %s distinto del total de la factura %s",
			pending.Total.StringFixed(0), req.TotalAmount.StringFixed(2))}
	}

	var sec securityElementsDTO
	if err := c.do(ctx, http.MethodPut, "/api/invoice/"+pending.UID+"/confirm", nil, &sec); err != nil {
		c.cancel(ctx, pending.UID)
		return nil, &domain.CertificationError{Reason: "confirmación", Err: err}
	}
	if sec.ErrorCode != "" && sec.ErrorCode != "0" {
		c.cancel(ctx, pending.UID)
		return nil, &domain.CertificationError{Reason: fmt.Sprintf("confirmación rechazada (%s): %s", sec.ErrorCode, sec.ErrorDesc)}
	}
	if sec.NIM == "" || sec.CodeMECeFDGI == "" {
		return nil, &domain.CertificationError{Reason: "elementos de seguridad incompletos"}
	}

	c.log.Info().Str("uid", pending.UID).Str("nim", sec.NIM).Str("counters", sec.Counters).Msg("factura certificada")
	return &pkgmecef.Result{
		NIM:       sec.NIM,
		Counters:  sec.Counters,
		DTC:       sec.DateTime,
		QRCode:    sec.QRCode,
		Signature: sec.CodeMECeFDGI,
	}, nil
}

// El dispositivo trabaja en francos enteros y redondea por ítem: se tolera 1 franco por ítem.
func totalsMatch(device, expected decimal.Decimal, items int) bool {
	tolerance := decimal.NewFromInt(int64(items))
	if tolerance.LessThan(decimal.NewFromInt(1)) {
		tolerance = decimal.NewFromInt(1)
	}
	return device.Sub(expected).Abs().LessThanOrEqual(tolerance)
}

// cancel libera una factura pendiente en el dispositivo. Usa un contexto propio para
// que la anulación se intente aunque el de la petición haya vencido.
func (c *Client) cancel(ctx context.Context, uid string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.do(cctx, http.MethodPut, "/api/invoice/"+uid+"/cancel", nil, nil); err != nil {
		c.log.Error().Err(err).Str("uid", uid).Msg("no se pudo anular la factura pendiente en el dispositivo")
		return
	}
	c.log.Warn().Str("uid", uid).Msg("factura pendiente anulada en el dispositivo")
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("construir petición: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("leer respuesta: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decodificar respuesta: %w", err)
	}
	return nil
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
