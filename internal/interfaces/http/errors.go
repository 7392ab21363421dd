package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/facturacion-mecef/internal/application/dto"
	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/infrastructure/cache"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// El orden importa: los errores tipados envuelven sentinels más generales.
var errorMappings = []errorMapping{
	{domain.ErrInvalidLineInput, fiber.StatusBadRequest, "INVALID_LINE"},
	{domain.ErrInvalidAmount, fiber.StatusBadRequest, "INVALID_AMOUNT"},
	{domain.ErrInvalidInput, fiber.StatusBadRequest, "VALIDATION"},
	{domain.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{domain.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN"},
	{domain.ErrInvalidState, fiber.StatusConflict, "INVALID_STATE"},
	{domain.ErrAllocationConflict, fiber.StatusConflict, "ALLOCATION_CONFLICT"},
	{domain.ErrDuplicate, fiber.StatusConflict, "DUPLICATE"},
	{domain.ErrConflict, fiber.StatusConflict, "CONFLICT"},
	{cache.ErrInProgress, fiber.StatusConflict, "DUPLICATE_REQUEST"},
	{domain.ErrPaymentExceedsBalance, fiber.StatusUnprocessableEntity, "OVERPAYMENT"},
	{domain.ErrCreditNoteExceedsOriginal, fiber.StatusUnprocessableEntity, "CREDIT_NOTE_EXCEEDS"},
	{domain.ErrCertificationFailure, fiber.StatusBadGateway, "CERTIFICATION_FAILED"},
	{context.DeadlineExceeded, fiber.StatusGatewayTimeout, "TIMEOUT"},
}

// statusFor traduce un error de dominio a (status HTTP, código).
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return fiber.StatusInternalServerError, "INTERNAL"
}

// respondError escribe el ErrorResponse del error. Los 500 no exponen el detalle.
func respondError(c *fiber.Ctx, err error) error {
	status, code := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		msg = "error interno, intente más tarde"
	}
	return c.Status(status).JSON(dto.ErrorResponse{Code: code, Message: msg})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
}
