package utils

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// NormalizeEmail lowercases and trims an email address. Email is the
// case-insensitive key for every table in the system.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetClientIP extracts the originating client address, preferring proxy headers
func GetClientIP(c *fiber.Ctx) string {
	if ip := c.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := c.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx != -1 {
			return strings.TrimSpace(ip[:idx])
		}
		return ip
	}
	return c.IP()
}

// ErrorResponse creates a standardized error response
func ErrorResponse(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// SuccessResponse writes a standardized success response merging the given fields
func SuccessResponse(c *fiber.Ctx, data fiber.Map) error {
	response := fiber.Map{"success": true}
	for k, v := range data {
		response[k] = v
	}
	return c.JSON(response)
}

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}
