package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creatorbook/config"
	"creatorbook/models"
	"creatorbook/utils"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// captureMailer records outbound messages instead of dialing SMTP
type captureMailer struct {
	sent    []utils.Email
	failAll bool
}

func (m *captureMailer) Send(email utils.Email) (string, error) {
	if m.failAll {
		return "", fmt.Errorf("smtp unavailable")
	}
	m.sent = append(m.sent, email)
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

func (m *captureMailer) lastTo(t *testing.T) utils.Email {
	t.Helper()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

type testEnv struct {
	app       *fiber.App
	db        *gorm.DB
	mailer    *captureMailer
	cache     *utils.Cache
	scheduler *utils.SequenceScheduler
	sender    *utils.SequenceSender
}

// newTestEnv wires the full handler stack over an in-memory database, with
// rate limiters left out so tests can hammer endpoints freely.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	prevSecret := config.AppConfig.JWTSecret
	prevFrontend := config.AppConfig.FrontendURL
	prevWebhook := config.AppConfig.StripeWebhookSecret
	config.AppConfig.JWTSecret = "test-secret"
	config.AppConfig.FrontendURL = "https://handbook.example.com"
	config.AppConfig.StripeWebhookSecret = "whsec_test"
	t.Cleanup(func() {
		config.AppConfig.JWTSecret = prevSecret
		config.AppConfig.FrontendURL = prevFrontend
		config.AppConfig.StripeWebhookSecret = prevWebhook
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))

	mailer := &captureMailer{}
	cache := utils.NewCache(config.RedisConfig{})
	scheduler := utils.NewSequenceScheduler(db, models.DefaultSequenceSteps(), utils.NewLogger("test"))
	sender := utils.NewSequenceSender(scheduler, mailer,
		utils.SequenceRenderers(config.AppConfig.FrontendURL), utils.NewLogger("test"))

	emailController := NewEmailController(db, scheduler, mailer, utils.NewLogger("test"))
	authController := NewAuthController(db, mailer, cache, utils.NewLogger("test"))
	progressController := NewProgressController(db, cache, utils.NewLogger("test"))
	sequenceController := NewSequenceController(scheduler, sender, utils.NewLogger("test"))

	app := fiber.New()
	app.Post("/email/signup", emailController.Signup)
	app.Post("/email/send-unlock-code", emailController.SendUnlockCode)
	app.Post("/email/verify-unlock-code", emailController.VerifyUnlockCode)
	app.Post("/email/purchase", emailController.HandleStripeWebhook)
	app.Post("/auth/magic-link", authController.MagicLink)
	app.Post("/auth/verify", authController.VerifyToken)
	app.Post("/auth/refresh", authController.RefreshToken)
	app.Post("/progress", progressController.UpdateProgress)
	app.Get("/progress", progressController.GetProgress)
	app.Get("/progress/analytics", progressController.GetAnalytics)
	app.Post("/sequence/add", sequenceController.AddToSequence)
	app.Post("/sequence/process", sequenceController.ProcessSequence)
	app.Get("/sequence/stats", sequenceController.SequenceStats)
	app.Get("/sequence/unsubscribe", sequenceController.Unsubscribe)

	return &testEnv{
		app:       app,
		db:        db,
		mailer:    mailer,
		cache:     cache,
		scheduler: scheduler,
		sender:    sender,
	}
}

func (env *testEnv) request(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func (env *testEnv) findSubscriber(t *testing.T, email string) *models.Subscriber {
	t.Helper()
	var subscriber models.Subscriber
	require.NoError(t, env.db.Where("email = ?", email).First(&subscriber).Error)
	return &subscriber
}

func (env *testEnv) setUnlockCode(t *testing.T, email, code string, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, env.db.Model(&models.Subscriber{}).
		Where("email = ?", email).
		Updates(map[string]interface{}{
			"unlock_code":            code,
			"unlock_code_expires_at": expiresAt,
		}).Error)
}
