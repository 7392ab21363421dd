package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturacion-mecef/pkg/jwt"
)

// MetricsExporter lo implementa *metrics.Metrics.
type MetricsExporter interface {
	Middleware() fiber.Handler
	Handler() http.Handler
}

// RouterDeps dependencias para el router.
type RouterDeps struct {
	CompanyUC   CompanyService
	ClientUC    ClientService
	Invoices    InvoiceService
	InvoicePDF  InvoicePDFService
	Idempotency IdempotencyStore
	Metrics     MetricsExporter
	Logger      zerolog.Logger
	JWTSecret   string
	JWTIssuer   string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	if deps.Metrics != nil {
		app.Use(deps.Metrics.Middleware())
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}

	api := app.Group("/api")
	auth := AuthMiddleware(deps.JWTSecret, deps.JWTIssuer)
	writers := RequireRole(jwt.RoleAdmin, jwt.RoleAccountant)
	cashiers := RequireRole(jwt.RoleAdmin, jwt.RoleAccountant, jwt.RoleCashier)
	idempotent := Idempotency(deps.Idempotency, deps.Logger)

	// Companies: el alta es pública (los tokens se emiten fuera con el company_id resultante)
	companyHandler := NewCompanyHandler(deps.CompanyUC)
	api.Post("/companies", companyHandler.Create)
	api.Get("/companies/me", auth, companyHandler.Me)

	// Clients (protegido)
	clients := api.Group("/clients", auth)
	clientHandler := NewClientHandler(deps.ClientUC)
	clients.Post("/", writers, clientHandler.Create)
	clients.Get("/", clientHandler.List)

	// Invoices (protegido)
	invoices := api.Group("/invoices", auth)
	invoiceHandler := NewInvoiceHandler(deps.Invoices, deps.InvoicePDF)
	invoices.Post("/", writers, invoiceHandler.Create)
	invoices.Get("/", invoiceHandler.List)
	invoices.Get("/:id", invoiceHandler.GetByID)
	invoices.Put("/:id", writers, invoiceHandler.Update)
	invoices.Delete("/:id", writers, invoiceHandler.Delete)
	invoices.Post("/:id/finalize", writers, idempotent, invoiceHandler.Finalize)
	invoices.Post("/:id/cancel", writers, invoiceHandler.Cancel)
	invoices.Post("/:id/accept", writers, invoiceHandler.Accept)
	invoices.Post("/:id/reject", writers, invoiceHandler.Reject)
	invoices.Post("/:id/payments", cashiers, idempotent, invoiceHandler.RecordPayment)
	invoices.Get("/:id/payments", invoiceHandler.ListPayments)
	invoices.Get("/:id/pdf", invoiceHandler.DownloadPDF)
}
