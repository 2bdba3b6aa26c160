package controller

import (
	"encoding/json"
	"errors"
	"time"

	"creatorbook/config"
	"creatorbook/models"
	"creatorbook/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"
)

type EmailController struct {
	DB        *gorm.DB
	Store     *utils.SubscriberStore
	Scheduler *utils.SequenceScheduler
	Mailer    utils.MailServiceInterface
	Logger    *logrus.Entry
}

func NewEmailController(db *gorm.DB, scheduler *utils.SequenceScheduler, mailer utils.MailServiceInterface, logger *logrus.Entry) *EmailController {
	return &EmailController{
		DB:        db,
		Store:     utils.NewSubscriberStore(db),
		Scheduler: scheduler,
		Mailer:    mailer,
		Logger:    logger,
	}
}

type SignupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"omitempty,max=100"`
	LastName  string `json:"lastName" validate:"omitempty,max=100"`
}

type UnlockCodeRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"omitempty,max=100"`
	LastName  string `json:"lastName" validate:"omitempty,max=100"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

// Signup captures an email address, grants free-chapter access, issues a
// discount code and enrolls the reader in the onboarding sequence.
func (ec *EmailController) Signup(c *fiber.Ctx) error {
	var req SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if !utils.IsValidEmail(req.Email) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid email is required")
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	email := utils.NormalizeEmail(req.Email)

	existing, err := ec.Store.FindByEmail(email)
	if err == nil {
		ec.Logger.WithField("email", email).Info("User already exists, returning existing data")
		return utils.SuccessResponse(c, fiber.Map{
			"message":      "Welcome back! You already have access.",
			"user":         subscriberPayload(existing),
			"hasAccess":    existing.HasAccess,
			"discountCode": existing.DiscountCode,
		})
	}
	if !errors.Is(err, utils.ErrSubscriberNotFound) {
		return err
	}

	discountCode, err := utils.GenerateDiscountCode()
	if err != nil {
		return err
	}

	subscriber, err := ec.Store.Create(email, optional(req.FirstName), optional(req.LastName), &discountCode)
	if err != nil {
		return err
	}

	// A failed welcome send never fails the signup
	if err := ec.sendWelcomeEmail(subscriber, discountCode); err != nil {
		ec.Logger.WithError(err).WithField("email", email).Error("Failed to send welcome email")
	}

	if _, err := ec.Scheduler.Enroll(email, optional(req.FirstName), optional(req.LastName), `["signup"]`); err != nil {
		ec.Logger.WithError(err).WithField("email", email).Error("Failed to enroll subscriber in sequence")
	}

	ec.Logger.WithField("email", email).Info("User signup successful")

	return utils.SuccessResponse(c, fiber.Map{
		"message":      "Welcome! You now have access to the first 7 chapters.",
		"user":         subscriberPayload(subscriber),
		"hasAccess":    true,
		"discountCode": discountCode,
	})
}

// SendUnlockCode issues a fresh 6-digit code with a 24-hour expiry,
// creating the subscriber record when this is their first contact.
func (ec *EmailController) SendUnlockCode(c *fiber.Ctx) error {
	var req UnlockCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if !utils.IsValidEmail(req.Email) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid email is required")
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, err.Error())
	}

	email := utils.NormalizeEmail(req.Email)

	code, err := utils.GenerateUnlockCode()
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(utils.UnlockCodeExpiry)

	_, err = ec.Store.FindByEmail(email)
	switch {
	case err == nil:
		if err := ec.Store.UpdateUnlockCode(email, code, expiresAt, optional(req.FirstName), optional(req.LastName)); err != nil {
			return err
		}
		ec.Logger.WithField("email", email).Info("Unlock code updated for existing user")
	case errors.Is(err, utils.ErrSubscriberNotFound):
		if _, err := ec.Store.CreateWithUnlockCode(email, optional(req.FirstName), optional(req.LastName), code, expiresAt); err != nil {
			return err
		}
		ec.Logger.WithField("email", email).Info("New user created with unlock code")
	default:
		return err
	}

	rendered, err := utils.RenderEmail(models.EmailTypeUnlockCode, utils.TemplateData{
		FirstName:   req.FirstName,
		UnlockCode:  code,
		ExpiryHours: int(utils.UnlockCodeExpiry.Hours()),
	})
	if err != nil {
		return err
	}
	if _, err := ec.Mailer.Send(utils.Email{
		To:      email,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	}); err != nil {
		ec.Logger.WithError(err).WithField("email", email).Error("Failed to send unlock code email")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to send unlock code. Please try again.")
	}

	return utils.SuccessResponse(c, fiber.Map{
		"message":    "Unlock code sent! Check your email for the 6-digit code.",
		"codeExpiry": expiresAt.UTC().Format(time.RFC3339),
	})
}

// VerifyUnlockCode checks a caller-supplied code against the stored one.
// A matching unexpired code grants access, clears the code and enrolls the
// reader in the sequence; any other outcome rejects.
func (ec *EmailController) VerifyUnlockCode(c *fiber.Ctx) error {
	var req VerifyCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if !utils.IsValidEmail(req.Email) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid email is required")
	}
	if len(req.Code) != utils.UnlockCodeLength {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid 6-digit code is required")
	}

	email := utils.NormalizeEmail(req.Email)

	user, err := ec.Store.FindByEmail(email)
	if errors.Is(err, utils.ErrSubscriberNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Email not found. Please request a new code.")
	}
	if err != nil {
		return err
	}

	if user.UnlockCode == nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "No unlock code found. Please request a new code.")
	}
	if *user.UnlockCode != req.Code {
		ec.Logger.WithField("email", email).Warn("Invalid unlock code provided")
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid code. Please check your email and try again.")
	}
	if user.UnlockCodeExpiresAt != nil && time.Now().After(*user.UnlockCodeExpiresAt) {
		ec.Logger.WithField("email", email).Warn("Expired unlock code used")
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Code has expired. Please request a new code.")
	}

	if err := ec.Store.GrantAccess(email); err != nil {
		return err
	}

	if _, err := ec.Scheduler.Enroll(email, user.FirstName, user.LastName, `["handbook_unlock"]`); err != nil {
		ec.Logger.WithError(err).WithField("email", email).Error("Failed to enroll subscriber in sequence")
	}

	ec.Logger.WithField("email", email).Info("Access granted via unlock code verification")

	return utils.SuccessResponse(c, fiber.Map{
		"message": "Code verified! You now have access to all premium chapters.",
		"user": fiber.Map{
			"email":      user.Email,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"has_access": true,
		},
	})
}

// HandleStripeWebhook records completed checkout sessions. The signature
// check makes the raw body the source of truth, not the parsed JSON.
func (ec *EmailController) HandleStripeWebhook(c *fiber.Ctx) error {
	event, err := webhook.ConstructEvent(c.Body(), c.Get("Stripe-Signature"), config.AppConfig.StripeWebhookSecret)
	if err != nil {
		ec.Logger.WithError(err).Warn("Invalid Stripe webhook signature")
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook payload")
	}

	if event.Type != "checkout.session.completed" {
		return utils.SuccessResponse(c, fiber.Map{"message": "Event ignored"})
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid webhook payload")
	}

	if session.CustomerDetails == nil || !utils.IsValidEmail(session.CustomerDetails.Email) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid email is required")
	}
	email := utils.NormalizeEmail(session.CustomerDetails.Email)

	if err := ec.Store.MarkPurchased(email); err != nil {
		if !errors.Is(err, utils.ErrSubscriberNotFound) {
			return err
		}
		if _, err := ec.Store.Create(email, nil, nil, nil); err != nil {
			return err
		}
		if err := ec.Store.MarkPurchased(email); err != nil {
			return err
		}
		ec.Logger.WithField("email", email).Info("New user created during purchase")
	}

	if err := ec.DB.Create(&models.ContentAccessLog{
		Email:      email,
		AccessType: models.AccessTypePurchase,
	}).Error; err != nil {
		ec.Logger.WithError(err).WithField("email", email).Error("Failed to log purchase")
	}

	ec.Logger.WithFields(logrus.Fields{
		"email":      email,
		"session_id": session.ID,
	}).Info("Purchase completion processed")

	return utils.SuccessResponse(c, fiber.Map{"message": "Purchase completed successfully"})
}

func (ec *EmailController) sendWelcomeEmail(subscriber *models.Subscriber, discountCode string) error {
	rendered, err := utils.RenderEmail(models.EmailTypeWelcome, utils.TemplateData{
		FirstName:    subscriber.DisplayName(),
		DiscountCode: discountCode,
		FrontendURL:  config.AppConfig.FrontendURL,
	})
	if err != nil {
		return err
	}

	if _, err := ec.Mailer.Send(utils.Email{
		To:      subscriber.Email,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	}); err != nil {
		return err
	}

	return ec.Store.RecordEmailSent(subscriber.Email)
}

func subscriberPayload(s *models.Subscriber) fiber.Map {
	return fiber.Map{
		"email":         s.Email,
		"first_name":    s.FirstName,
		"has_access":    s.HasAccess,
		"has_purchased": s.HasPurchased,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
