package controller

import (
	"fmt"
	"time"

	"creatorbook/config"
	"creatorbook/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type SequenceController struct {
	Scheduler *utils.SequenceScheduler
	Sender    *utils.SequenceSender
	Logger    *logrus.Entry
}

func NewSequenceController(scheduler *utils.SequenceScheduler, sender *utils.SequenceSender, logger *logrus.Entry) *SequenceController {
	return &SequenceController{Scheduler: scheduler, Sender: sender, Logger: logger}
}

type AddToSequenceRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// AddToSequence enrolls (or re-enrolls) an email into the drip sequence
func (sc *SequenceController) AddToSequence(c *fiber.Ctx) error {
	var req AddToSequenceRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Email is required")
	}
	if !utils.IsValidEmail(req.Email) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid email is required")
	}

	email := utils.NormalizeEmail(req.Email)
	if _, err := sc.Scheduler.Enroll(email, optional(req.FirstName), optional(req.LastName), `["manual"]`); err != nil {
		sc.Logger.WithError(err).WithField("email", email).Error("Failed to add user to sequence")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to add user to sequence")
	}

	sc.Logger.WithFields(logrus.Fields{
		"email":     email,
		"firstName": req.FirstName,
	}).Info("User added to sequence manually")

	return utils.SuccessResponse(c, fiber.Map{
		"message":   "User added to email sequence successfully",
		"email":     email,
		"firstName": req.FirstName,
	})
}

// ProcessSequence runs one delivery pass over due scheduled emails.
// The cron worker calls the same code path on a timer; this endpoint
// exists for manual runs and operational tooling.
func (sc *SequenceController) ProcessSequence(c *fiber.Ctx) error {
	sc.Logger.Info("Processing email sequence")

	result, err := sc.Sender.ProcessPending(config.AppConfig.SequenceBatchSize)
	if err != nil {
		sc.Logger.WithError(err).Error("Email sequence processing failed")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process email sequence")
	}

	sc.Logger.WithFields(logrus.Fields{
		"processed": result.Processed,
		"sent":      result.Sent,
		"failed":    result.Failed,
	}).Info("Email sequence processing completed")

	return utils.SuccessResponse(c, fiber.Map{
		"message":   "Email sequence processed successfully",
		"processed": result.Processed,
		"sent":      result.Sent,
		"failed":    result.Failed,
		"errors":    result.Errors,
	})
}

// SequenceStats reports aggregate sequence counters
func (sc *SequenceController) SequenceStats(c *fiber.Ctx) error {
	stats, err := sc.Scheduler.Stats()
	if err != nil {
		sc.Logger.WithError(err).Error("Failed to get sequence statistics")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get sequence statistics")
	}

	return utils.SuccessResponse(c, fiber.Map{
		"stats":       stats,
		"generatedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

// Unsubscribe deactivates a subscriber and cancels their queued emails.
// Linked from email footers, so it answers with a human-readable page.
func (sc *SequenceController) Unsubscribe(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Email parameter is required")
	}
	if !utils.IsValidEmail(email) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid email is required")
	}

	email = utils.NormalizeEmail(email)
	if err := sc.Scheduler.Unsubscribe(email); err != nil {
		sc.Logger.WithError(err).WithField("email", email).Error("Failed to unsubscribe user")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to unsubscribe user")
	}

	sc.Logger.WithField("email", email).Info("User unsubscribed from sequence")

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.SendString(unsubscribePage(config.AppConfig.FrontendURL))
}

func unsubscribePage(frontendURL string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <title>Unsubscribed - Creator's Handbook</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; text-align: center; padding: 50px; }
    .container { max-width: 500px; margin: 0 auto; }
    .success { color: #22d172; font-size: 48px; margin-bottom: 20px; }
    h1 { color: #333; margin-bottom: 20px; }
    p { color: #666; line-height: 1.6; }
  </style>
</head>
<body>
  <div class="container">
    <div class="success">&#9989;</div>
    <h1>Successfully Unsubscribed</h1>
    <p>You have been unsubscribed from the Creator's Handbook email sequence.</p>
    <p>You can still access your handbook content anytime at:</p>
    <p><a href="%s">%s</a></p>
    <p>Thanks for being part of our creator community!</p>
  </div>
</body>
</html>`, frontendURL, frontendURL)
}
