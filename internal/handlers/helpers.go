package handlers

import (
	"errors"
	"strings"

	"github.com/giftring/backend/internal/services"
	"github.com/giftring/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// serviceError maps the service-layer taxonomy to the response envelope.
// Validation errors carry their field map so clients can render per-field
// messages.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return utils.Error(c, fiber.StatusNotFound, "not found")
	case errors.Is(err, services.ErrForbidden):
		return utils.Error(c, fiber.StatusForbidden, "forbidden")
	case errors.Is(err, services.ErrUnauthenticated):
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	case errors.Is(err, services.ErrLastAdmin):
		return utils.Error(c, fiber.StatusUnprocessableEntity, services.ErrLastAdmin.Error())
	case errors.Is(err, services.ErrAlreadyMember):
		return utils.Error(c, fiber.StatusConflict, services.ErrAlreadyMember.Error())
	}

	if ve, ok := services.AsValidationError(err); ok {
		return utils.ValidationFailed(c, ve.Fields)
	}

	return utils.Error(c, fiber.StatusInternalServerError, "internal error")
}
