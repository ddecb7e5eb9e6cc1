package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/harborkv/dsgate/pkg/bulk"
	"github.com/harborkv/dsgate/pkg/executor"
)

// ErrJobNotFound is returned when no active or historical job has the given ID
var ErrJobNotFound = fiber.NewError(fiber.StatusNotFound, "job not found")

// httpError maps a gateway failure onto a fiber error with the matching
// HTTP status.
func httpError(err error) error {
	switch {
	case errors.Is(err, bulk.ErrJobNotFound):
		return ErrJobNotFound
	case errors.Is(err, bulk.ErrNotCancellable), errors.Is(err, bulk.ErrNotRollbackable),
		errors.Is(err, bulk.ErrRollbackInvalidState), errors.Is(err, bulk.ErrNoRollbackData):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, bulk.ErrNoItems), errors.Is(err, bulk.ErrUnknownKind),
		errors.Is(err, bulk.ErrTooManyItems), errors.Is(err, bulk.ErrBatchSizeOutOfRange),
		errors.Is(err, bulk.ErrItemKeyRequired), errors.Is(err, bulk.ErrValueRequired),
		errors.Is(err, bulk.ErrDestinationRequired):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	switch executor.ClassOf(err) {
	case executor.ClassValidation:
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case executor.ClassNotFound:
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case executor.ClassBudgetExceeded, executor.ClassThrottled:
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	case executor.ClassConflict:
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case executor.ClassTransientNetwork:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case executor.ClassCancelled:
		// The client went away; 408 is the closest standard status.
		return fiber.NewError(fiber.StatusRequestTimeout, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
