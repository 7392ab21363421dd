package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturacion-mecef/internal/application/dto"
	"github.com/jhoicas/facturacion-mecef/internal/infrastructure/cache"
)

// HeaderIdempotencyKey cabecera opcional en finalize y pagos.
const HeaderIdempotencyKey = "Idempotency-Key"

// IdempotencyStore lo implementan cache.RedisIdempotencyStore y cache.InMemoryIdempotencyStore.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, fingerprint string) (*cache.Record, bool, error)
	Complete(ctx context.Context, key string, rec cache.Record) error
	Release(ctx context.Context, key string) error
}

// Idempotency repite la respuesta guardada cuando llega de nuevo la misma Idempotency-Key.
// Sin cabecera la petición pasa sin cambios. Los 5xx liberan la clave para permitir el reintento.
func Idempotency(store IdempotencyStore, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(HeaderIdempotencyKey)
		if key == "" || store == nil {
			return c.Next()
		}
		companyID := GetCompanyID(c)
		scoped := companyID + ":" + key
		fp := fingerprint(c, companyID)

		ctx := c.UserContext()
		rec, acquired, err := store.Reserve(ctx, scoped, fp)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("idempotency store no disponible")
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "IDEMPOTENCY_UNAVAILABLE", Message: "no se pudo verificar la Idempotency-Key"})
		}
		if !acquired {
			switch {
			case rec.Fingerprint != fp:
				return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "IDEMPOTENCY_KEY_REUSED", Message: "la Idempotency-Key ya se usó con otra petición"})
			case rec.Pending:
				return respondError(c, cache.ErrInProgress)
			}
			c.Set("Idempotent-Replayed", "true")
			if rec.ContentType != "" {
				c.Set(fiber.HeaderContentType, rec.ContentType)
			}
			return c.Status(rec.Status).Send(rec.Body)
		}

		if err := c.Next(); err != nil {
			_ = store.Release(ctx, scoped)
			return err
		}
		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			if err := store.Release(ctx, scoped); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("no se pudo liberar la Idempotency-Key")
			}
			return nil
		}
		body := append([]byte(nil), c.Response().Body()...)
		if err := store.Complete(ctx, scoped, cache.Record{
			Fingerprint: fp,
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        body,
		}); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("no se pudo guardar la respuesta idempotente")
		}
		return nil
	}
}

func fingerprint(c *fiber.Ctx, companyID string) string {
	sum := sha256.Sum256(c.Body())
	return c.Method() + " " + c.Path() + " " + companyID + " " + hex.EncodeToString(sum[:])
}
