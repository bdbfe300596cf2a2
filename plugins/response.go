package plugins

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/linht/tuner-hal/driver/mesonpwm"
	"github.com/linht/tuner-hal/driver/mxl608"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// SendSuccess sends a successful response
func SendSuccess(c *fiber.Ctx, data interface{}, message string) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError sends an error response
func SendError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// SendErrorMessage sends an error response with a custom message
func SendErrorMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

// SendDriverError sends a driver error: rejected requests are 400, bus and
// device failures 500
func SendDriverError(c *fiber.Ctx, err error) error {
	return SendError(c, StatusForError(err), err)
}

// StatusForError maps a driver error to an HTTP status code
func StatusForError(err error) int {
	switch {
	case errors.Is(err, mxl608.ErrConfig), errors.Is(err, mesonpwm.ErrInvalid):
		return fiber.StatusBadRequest
	case errors.Is(err, mxl608.ErrNoDevice):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
