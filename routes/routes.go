package routes

import (
	"time"

	controller "creatorbook/controllers"
	"creatorbook/middleware"
	"creatorbook/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

// Deps carries the shared services handed to every controller
type Deps struct {
	DB        *gorm.DB
	Cache     *utils.Cache
	Mailer    utils.MailServiceInterface
	Scheduler *utils.SequenceScheduler
	Sender    *utils.SequenceSender
}

func SetupRoutes(app *fiber.App, deps Deps) {
	emailController := controller.NewEmailController(deps.DB, deps.Scheduler, deps.Mailer, utils.NewLogger("email"))
	authController := controller.NewAuthController(deps.DB, deps.Mailer, deps.Cache, utils.NewLogger("auth"))
	progressController := controller.NewProgressController(deps.DB, deps.Cache, utils.NewLogger("progress"))
	sequenceController := controller.NewSequenceController(deps.Scheduler, deps.Sender, utils.NewLogger("sequence"))

	app.Get("/health", healthHandler("creatorbook"))

	requestLogger := logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	})

	// Email capture and unlock codes
	email := app.Group("/email", requestLogger)
	email.Get("/health", healthHandler("email"))
	email.Post("/signup", middleware.SignupRateLimiter(), emailController.Signup)
	email.Post("/send-unlock-code", middleware.UnlockCodeRateLimiter(), emailController.SendUnlockCode)
	email.Post("/verify-unlock-code", middleware.VerifyCodeRateLimiter(), emailController.VerifyUnlockCode)
	email.Post("/purchase", emailController.HandleStripeWebhook)

	// Magic-link authentication
	auth := app.Group("/auth", requestLogger)
	auth.Get("/health", healthHandler("auth"))
	auth.Post("/magic-link", middleware.MagicLinkRateLimiter(), authController.MagicLink)
	auth.Post("/verify", authController.VerifyToken)
	auth.Post("/refresh", authController.RefreshToken)

	// Reading progress and analytics
	progress := app.Group("/progress", requestLogger)
	progress.Get("/health", healthHandler("progress"))
	progress.Post("/", progressController.UpdateProgress)
	progress.Get("/", progressController.GetProgress)
	progress.Get("/analytics", progressController.GetAnalytics)

	// Drip sequence management
	sequence := app.Group("/sequence", requestLogger)
	sequence.Get("/health", healthHandler("sequence"))
	sequence.Post("/add", sequenceController.AddToSequence)
	sequence.Post("/process", sequenceController.ProcessSequence)
	sequence.Get("/stats", sequenceController.SequenceStats)
	sequence.Get("/unsubscribe", sequenceController.Unsubscribe)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}

func healthHandler(worker string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"worker":    worker,
		})
	}
}
