package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"creatorbook/config"
	"creatorbook/models"
	"creatorbook/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Session cache entries live alongside the authoritative user_sessions rows;
// a cache miss always falls back to re-deriving from the database.
const sessionCacheTTL = utils.SessionExpiry

type AuthController struct {
	DB     *gorm.DB
	Store  *utils.SubscriberStore
	Mailer utils.MailServiceInterface
	Cache  *utils.Cache
	Logger *logrus.Entry
}

func NewAuthController(db *gorm.DB, mailer utils.MailServiceInterface, cache *utils.Cache, logger *logrus.Entry) *AuthController {
	return &AuthController{
		DB:     db,
		Store:  utils.NewSubscriberStore(db),
		Mailer: mailer,
		Cache:  cache,
		Logger: logger,
	}
}

type MagicLinkRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type cachedSession struct {
	Email        string `json:"email"`
	HasAccess    bool   `json:"has_access"`
	HasPurchased bool   `json:"has_purchased"`
	CreatedAt    int64  `json:"created_at"`
}

// MagicLink emails a short-lived login link to a known subscriber
func (ac *AuthController) MagicLink(c *fiber.Ctx) error {
	var req MagicLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if !utils.IsValidEmail(req.Email) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid email is required")
	}

	email := utils.NormalizeEmail(req.Email)

	user, err := ac.Store.FindByEmail(email)
	if errors.Is(err, utils.ErrSubscriberNotFound) {
		ac.Logger.WithField("email", email).Warn("Magic link requested for non-existent user")
		return utils.ErrorResponse(c, fiber.StatusNotFound, "User not found. Please sign up first.")
	}
	if err != nil {
		return err
	}

	token, err := utils.GenerateMagicLinkToken(email)
	if err != nil {
		return err
	}

	loginURL := fmt.Sprintf("%s/auth/verify?token=%s", config.AppConfig.FrontendURL, token)
	rendered, err := utils.RenderEmail(models.EmailTypeMagicLink, utils.TemplateData{
		FirstName: user.DisplayName(),
		LoginURL:  loginURL,
	})
	if err != nil {
		return err
	}

	if _, err := ac.Mailer.Send(utils.Email{
		To:      email,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	}); err != nil {
		ac.Logger.WithError(err).WithField("email", email).Error("Failed to send magic link email")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to send magic link. Please try again.")
	}

	ac.Logger.WithField("email", email).Info("Magic link sent")
	return utils.SuccessResponse(c, fiber.Map{
		"message": "Magic link sent to your email",
	})
}

// VerifyToken exchanges a magic-link token for a 7-day session token
func (ac *AuthController) VerifyToken(c *fiber.Ctx) error {
	var req VerifyTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Token == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Token is required")
	}

	claims, err := utils.ParseToken(req.Token)
	if err != nil {
		ac.Logger.WithError(err).Warn("Invalid or expired magic link token")
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired token")
	}
	if claims.TokenType != utils.TokenTypeMagicLink {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid token type")
	}

	user, err := ac.Store.FindByEmail(claims.Email)
	if errors.Is(err, utils.ErrSubscriberNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		return err
	}

	sessionToken, _, err := ac.createSession(c.Context(), user)
	if err != nil {
		return err
	}

	ac.Logger.WithField("email", user.Email).Info("Token verified and session created")
	return utils.SuccessResponse(c, fiber.Map{
		"token": sessionToken,
		"user": fiber.Map{
			"email":        user.Email,
			"firstName":    user.FirstName,
			"hasAccess":    user.HasAccess,
			"hasPurchased": user.HasPurchased,
		},
	})
}

// RefreshToken rotates a session token presented as a Bearer credential.
// Tokens expired less than 24 hours ago are still accepted.
func (ac *AuthController) RefreshToken(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization header required")
	}
	oldToken := strings.TrimPrefix(authHeader, "Bearer ")

	claims, err := utils.ParseToken(oldToken)
	if errors.Is(err, utils.ErrTokenExpired) {
		claims, err = utils.ParseTokenAllowExpired(oldToken)
		if err != nil {
			ac.Logger.WithError(err).Warn("Token expired beyond grace period")
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Token expired. Please login again.")
		}
	} else if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid token")
	}

	if claims.TokenType != utils.TokenTypeSession {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid token type")
	}

	user, err := ac.Store.FindByEmail(claims.Email)
	if errors.Is(err, utils.ErrSubscriberNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		return err
	}

	// Retire the old session before issuing the replacement
	if err := ac.DB.Where("session_token = ?", oldToken).
		Delete(&models.UserSession{}).Error; err != nil {
		ac.Logger.WithError(err).WithField("email", user.Email).Error("Failed to delete old session")
	}
	ac.Cache.Delete(c.Context(), sessionCacheKey(oldToken))

	sessionToken, _, err := ac.createSession(c.Context(), user)
	if err != nil {
		return err
	}

	ac.Logger.WithField("email", user.Email).Info("Session refreshed")
	return utils.SuccessResponse(c, fiber.Map{
		"token": sessionToken,
		"user": fiber.Map{
			"email":        user.Email,
			"firstName":    user.FirstName,
			"hasAccess":    user.HasAccess,
			"hasPurchased": user.HasPurchased,
		},
	})
}

func (ac *AuthController) createSession(ctx context.Context, user *models.Subscriber) (string, time.Time, error) {
	token, expiresAt, err := utils.GenerateSessionToken(user)
	if err != nil {
		return "", time.Time{}, err
	}

	session := models.UserSession{
		UserEmail:    user.Email,
		SessionToken: token,
		ExpiresAt:    expiresAt,
	}
	if err := ac.DB.Create(&session).Error; err != nil {
		// The signed token is still valid; losing the row only costs revocation
		ac.Logger.WithError(err).WithField("email", user.Email).Error("Failed to store session")
	}

	ac.Cache.SetJSON(ctx, sessionCacheKey(token), cachedSession{
		Email:        user.Email,
		HasAccess:    user.HasAccess,
		HasPurchased: user.HasPurchased,
		CreatedAt:    time.Now().Unix(),
	}, sessionCacheTTL)

	return token, expiresAt, nil
}

func sessionCacheKey(token string) string {
	return "session:" + token
}
