// @title           Facturación MECeF API
// @version         1.0
// @description     Ciclo de vida de facturas certificadas e-MECeF (Benín).
// @BasePath        /
// @securityDefinitions.apikey Bearer
// @in              header
// @name            Authorization
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"

	_ "github.com/jhoicas/facturacion-mecef/docs"
	"github.com/jhoicas/facturacion-mecef/internal/application/billing"
	"github.com/jhoicas/facturacion-mecef/internal/application/usecase"
	"github.com/jhoicas/facturacion-mecef/internal/domain/repository"
	"github.com/jhoicas/facturacion-mecef/internal/infrastructure/cache"
	inframecef "github.com/jhoicas/facturacion-mecef/internal/infrastructure/mecef"
	"github.com/jhoicas/facturacion-mecef/internal/infrastructure/memory"
	"github.com/jhoicas/facturacion-mecef/internal/infrastructure/metrics"
	infrapdf "github.com/jhoicas/facturacion-mecef/internal/infrastructure/pdf"
	"github.com/jhoicas/facturacion-mecef/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/facturacion-mecef/internal/interfaces/http"
	"github.com/jhoicas/facturacion-mecef/pkg/config"
	"github.com/jhoicas/facturacion-mecef/pkg/logger"
	"github.com/jhoicas/facturacion-mecef/pkg/mecef"
)

// stores agrupa los puertos de persistencia del backend elegido.
type stores struct {
	tx        billing.BillingTxRunner
	invoices  repository.InvoiceRepository
	payments  repository.PaymentRepository
	clients   repository.ClientRepository
	companies repository.CompanyRepository
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("mecef_mode", cfg.MECeF.Mode).
		Msg("iniciando aplicación")

	ctx := context.Background()
	st := openStores(ctx, cfg, log)
	defer st.close()

	// Certificador: simulador en dev, API e-MECeF de la DGI en test/prod.
	var certifier mecef.Certifier
	if cfg.MECeF.Mode == inframecef.ModeDev {
		certifier = inframecef.NewSimulator(cfg.MECeF.SimulatorNIM, logger.Component(log, "mecef_simulator"))
		log.Warn().Msg("MECeF en modo dev: las facturas se certifican con el simulador")
	} else {
		baseURL := cfg.MECeF.BaseURL
		if baseURL == "" {
			baseURL = inframecef.BaseURLFor(cfg.MECeF.Mode)
		}
		certifier = inframecef.NewClient(inframecef.ClientConfig{
			BaseURL:      baseURL,
			Token:        cfg.MECeF.Token,
			OperatorName: cfg.MECeF.Operator,
			RatePerSec:   cfg.MECeF.RatePerSec,
			Burst:        cfg.MECeF.Burst,
			HTTPTimeout:  cfg.MECeF.Timeout,
		}, logger.Component(log, "mecef_client"))
	}

	// Idempotency-Key: Redis si está configurado, memoria del proceso si no.
	var idempotency httpRouter.IdempotencyStore
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a Redis")
		}
		redisStore := cache.NewRedisIdempotencyStore(client, cfg.Redis.TTL)
		defer redisStore.Close()
		idempotency = redisStore
	} else {
		idempotency = cache.NewInMemoryIdempotencyStore(cfg.Redis.TTL)
	}

	promMetrics := metrics.New()

	invoiceSvc := billing.NewInvoiceService(billing.InvoiceServiceDeps{
		TxRunner:  st.tx,
		Invoices:  st.invoices,
		Payments:  st.payments,
		Clients:   st.clients,
		Companies: st.companies,
		Certifier: certifier,
		Metrics:   promMetrics,
		Logger:    log,
		Config: billing.ServiceConfig{
			CertificationTimeout: cfg.MECeF.Timeout,
			AllocationAttempts:   cfg.Billing.AllocationAttempts,
			DefaultDueDays:       cfg.Billing.DefaultDueDays,
			Operator:             cfg.MECeF.Operator,
		},
	})

	// PDF: representación gráfica de la factura certificada
	pdfGenerator := infrapdf.NewMarotoPDFGenerator()
	invoicePDFUC := billing.NewPDFUseCase(st.invoices, st.companies, st.clients, pdfGenerator)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.MECeF.Timeout + time.Second*15,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(httpRouter.RequestLogger(logger.Component(log, "http")))

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Facturación MECeF API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "mecef_mode": cfg.MECeF.Mode})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		CompanyUC:   usecase.NewCompanyUseCase(st.companies),
		ClientUC:    billing.NewClientUseCase(st.clients),
		Invoices:    invoiceSvc,
		InvoicePDF:  invoicePDFUC,
		Idempotency: idempotency,
		Metrics:     promMetrics,
		Logger:      logger.Component(log, "idempotency"),
		JWTSecret:   cfg.JWT.Secret,
		JWTIssuer:   cfg.JWT.Issuer,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	// El plazo cubre una finalización en curso (certificación + persistencia).
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}

// openStores usa PostgreSQL si hay base configurada; si no, el almacenamiento en memoria.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) stores {
	if !cfg.DB.Enabled() {
		log.Warn().Msg("sin DB_HOST ni DATABASE_URL: almacenamiento en memoria, los datos no persisten")
		st := memory.NewStore()
		return stores{
			tx:        st,
			invoices:  st.Invoices(),
			payments:  st.Payments(),
			clients:   st.Clients(),
			companies: st.Companies(),
			close:     func() {},
		}
	}

	if cfg.DB.AutoMigrate {
		if err := postgres.Migrate(cfg.DB.ConnectionString(), logger.Component(log, "migrate")); err != nil {
			log.Fatal().Err(err).Msg("migraciones")
		}
	}
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	return stores{
		tx:        postgres.NewTxRunner(pool),
		invoices:  postgres.NewInvoiceRepository(pool),
		payments:  postgres.NewPaymentRepository(pool),
		clients:   postgres.NewClientRepository(pool),
		companies: postgres.NewCompanyRepository(pool),
		close:     pool.Close,
	}
}
