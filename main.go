package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"creatorbook/config"
	"creatorbook/middleware"
	"creatorbook/models"
	"creatorbook/routes"
	"creatorbook/utils"
	"creatorbook/worker"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stripe/stripe-go/v76"
)

func main() {
	logger := utils.NewLogger("server")

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Fatalf("Failed to initialize Sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	stripe.Key = config.AppConfig.StripeSecretKey

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(requestid.New())
	app.Use(middleware.CORS())

	cache := utils.NewCache(config.AppConfig.Redis)
	mailer := utils.NewSMTPMailer(config.AppConfig.SMTP)
	scheduler := utils.NewSequenceScheduler(config.DB, models.DefaultSequenceSteps(), utils.NewLogger("scheduler"))
	sender := utils.NewSequenceSender(
		scheduler,
		mailer,
		utils.SequenceRenderers(config.AppConfig.FrontendURL),
		utils.NewLogger("sender"),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sequenceWorker := worker.NewSequenceWorker(
		sender,
		config.AppConfig.SequenceSchedule,
		config.AppConfig.SequenceBatchSize,
		utils.NewLogger("sequence-worker"),
	)
	go func() {
		if err := sequenceWorker.Start(ctx); err != nil {
			logger.Errorf("Sequence worker stopped: %v", err)
		}
	}()

	routes.SetupRoutes(app, routes.Deps{
		DB:        config.DB,
		Cache:     cache,
		Mailer:    mailer,
		Scheduler: scheduler,
		Sender:    sender,
	})

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down server...")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	logger.Infof("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}

// errorHandler converts uncaught handler errors into a generic JSON 500.
// Fiber errors keep their own status codes.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error. Please try again."

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	} else {
		sentry.CaptureException(err)
	}

	return c.Status(code).JSON(fiber.Map{
		"success":   false,
		"error":     message,
		"requestId": c.Locals("requestid"),
	})
}
