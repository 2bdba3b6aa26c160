package controller

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"creatorbook/models"
	"creatorbook/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const progressCacheTTL = 5 * time.Minute

type ProgressController struct {
	DB     *gorm.DB
	Cache  *utils.Cache
	Logger *logrus.Entry
}

func NewProgressController(db *gorm.DB, cache *utils.Cache, logger *logrus.Entry) *ProgressController {
	return &ProgressController{DB: db, Cache: cache, Logger: logger}
}

type ProgressUpdateRequest struct {
	Email         string   `json:"email" validate:"required,email"`
	ChapterNumber int      `json:"chapterNumber" validate:"required,min=1"`
	Completed     *bool    `json:"completed,omitempty"`
	TimeSpent     *int     `json:"timeSpent,omitempty"`
	VideosWatched []string `json:"videosWatched,omitempty"`
	QuizzesPassed []string `json:"quizzesPassed,omitempty"`
}

type progressEntry struct {
	ChapterNumber int       `json:"chapterNumber"`
	Completed     bool      `json:"completed"`
	TimeSpent     int       `json:"timeSpent"`
	VideosWatched int       `json:"videosWatched"`
	QuizzesPassed int       `json:"quizzesPassed"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// UpdateProgress upserts the per-chapter progress row and records a view
func (pc *ProgressController) UpdateProgress(c *fiber.Ctx) error {
	var req ProgressUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if !utils.IsValidEmail(req.Email) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid email is required")
	}
	if req.ChapterNumber < 1 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid chapter number is required")
	}

	email := utils.NormalizeEmail(req.Email)

	row := models.ReadingProgress{
		Email:         email,
		ChapterNumber: req.ChapterNumber,
	}
	if req.Completed != nil {
		row.Completed = *req.Completed
	}
	if req.TimeSpent != nil {
		row.TimeSpent = *req.TimeSpent
	}
	row.VideosWatched = encodeStringList(req.VideosWatched)
	row.QuizzesPassed = encodeStringList(req.QuizzesPassed)

	// Existing rows keep their values for fields the request omitted
	updates := map[string]interface{}{"updated_at": time.Now()}
	if req.Completed != nil {
		updates["completed"] = *req.Completed
	}
	if req.TimeSpent != nil {
		updates["time_spent"] = *req.TimeSpent
	}
	if req.VideosWatched != nil {
		updates["videos_watched"] = row.VideosWatched
	}
	if req.QuizzesPassed != nil {
		updates["quizzes_passed"] = row.QuizzesPassed
	}

	if err := pc.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}, {Name: "chapter_number"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&row).Error; err != nil {
		pc.Logger.WithError(err).WithFields(logrus.Fields{
			"email":   email,
			"chapter": req.ChapterNumber,
		}).Error("Failed to upsert reading progress")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update progress. Please try again.")
	}

	accessLog := models.ContentAccessLog{
		Email:         email,
		ChapterNumber: &req.ChapterNumber,
		AccessType:    models.AccessTypeView,
		IPAddress:     utils.GetClientIP(c),
		UserAgent:     c.Get("User-Agent"),
	}
	if err := pc.DB.Create(&accessLog).Error; err != nil {
		pc.Logger.WithError(err).WithField("email", email).Warn("Failed to write access log")
	}

	// Refresh the cached list so reads see this update immediately
	all, err := pc.loadProgress(c.Context(), email, true)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update progress. Please try again.")
	}

	var updated *models.ReadingProgress
	for i := range all {
		if all[i].ChapterNumber == req.ChapterNumber {
			updated = &all[i]
			break
		}
	}

	pc.Logger.WithFields(logrus.Fields{
		"email":   email,
		"chapter": req.ChapterNumber,
	}).Info("Progress updated")

	return utils.SuccessResponse(c, fiber.Map{
		"progress": []interface{}{toProgressEntry(updated)},
	})
}

// GetProgress returns all progress rows for an email, cache first
func (pc *ProgressController) GetProgress(c *fiber.Ctx) error {
	email := c.Query("email")
	if !utils.IsValidEmail(email) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid email is required")
	}
	email = utils.NormalizeEmail(email)

	all, err := pc.loadProgress(c.Context(), email, false)
	if err != nil {
		pc.Logger.WithError(err).WithField("email", email).Error("Failed to load progress")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve progress. Please try again.")
	}

	entries := make([]progressEntry, 0, len(all))
	for i := range all {
		entries = append(entries, *toProgressEntry(&all[i]))
	}
	return utils.SuccessResponse(c, fiber.Map{"progress": entries})
}

// GetAnalytics computes completion, engagement, and streak metrics
func (pc *ProgressController) GetAnalytics(c *fiber.Ctx) error {
	email := c.Query("email")
	if !utils.IsValidEmail(email) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Valid email is required")
	}
	email = utils.NormalizeEmail(email)

	var all []models.ReadingProgress
	if err := pc.DB.Where("email = ?", email).
		Order("chapter_number ASC").Find(&all).Error; err != nil {
		pc.Logger.WithError(err).WithField("email", email).Error("Failed to load progress for analytics")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve analytics. Please try again.")
	}

	totalChapters := len(all)
	completedChapters := 0
	totalTimeSpent := 0
	for i := range all {
		totalTimeSpent += all[i].TimeSpent
		if all[i].Completed {
			completedChapters++
		}
	}

	completionRate := 0.0
	if totalChapters > 0 {
		completionRate = float64(completedChapters) / float64(totalChapters) * 100
	}
	averageTime := 0
	if completedChapters > 0 {
		averageTime = int(math.Round(float64(totalTimeSpent) / float64(completedChapters)))
	}

	engagement, err := pc.engagementStats(email)
	if err != nil {
		pc.Logger.WithError(err).WithField("email", email).Error("Failed to load access stats")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to retrieve analytics. Please try again.")
	}
	engagement["currentStreak"] = readingStreak(all)

	entries := make([]progressEntry, 0, len(all))
	for i := range all {
		entries = append(entries, *toProgressEntry(&all[i]))
	}

	pc.Logger.WithFields(logrus.Fields{
		"email":          email,
		"completionRate": completionRate,
		"totalChapters":  totalChapters,
	}).Info("Analytics retrieved")

	return utils.SuccessResponse(c, fiber.Map{
		"completion": fiber.Map{
			"totalChapters":         totalChapters,
			"completedChapters":     completedChapters,
			"completionRate":        math.Round(completionRate*100) / 100,
			"totalTimeSpent":        totalTimeSpent,
			"averageTimePerChapter": averageTime,
		},
		"engagement": engagement,
		"progress":   entries,
	})
}

// loadProgress reads the progress list, going through the 5-minute cache.
// With refresh set, the database is read and the cache overwritten.
func (pc *ProgressController) loadProgress(ctx context.Context, email string, refresh bool) ([]models.ReadingProgress, error) {
	cacheKey := "progress:" + email

	if !refresh {
		var cached []models.ReadingProgress
		if pc.Cache.GetJSON(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	var all []models.ReadingProgress
	if err := pc.DB.Where("email = ?", email).
		Order("chapter_number ASC").Find(&all).Error; err != nil {
		return nil, err
	}

	pc.Cache.SetJSON(ctx, cacheKey, all, progressCacheTTL)
	return all, nil
}

func (pc *ProgressController) engagementStats(email string) (fiber.Map, error) {
	type counts struct {
		AccessType string
		N          int64
	}
	var rows []counts
	if err := pc.DB.Model(&models.ContentAccessLog{}).
		Select("access_type, COUNT(*) AS n").
		Where("email = ?", email).
		Group("access_type").Scan(&rows).Error; err != nil {
		return nil, err
	}

	var views, downloads, shares int64
	for _, r := range rows {
		switch r.AccessType {
		case models.AccessTypeView:
			views = r.N
		case models.AccessTypeDownload:
			downloads = r.N
		case models.AccessTypeShare:
			shares = r.N
		}
	}

	var lastAccess *time.Time
	var last models.ContentAccessLog
	err := pc.DB.Where("email = ?", email).
		Order("created_at DESC").First(&last).Error
	if err == nil {
		lastAccess = &last.CreatedAt
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	return fiber.Map{
		"totalViews":     views,
		"totalDownloads": downloads,
		"totalShares":    shares,
		"lastAccess":     lastAccess,
	}, nil
}

// readingStreak returns the longest run of consecutively completed chapters
func readingStreak(all []models.ReadingProgress) int {
	var completed []int
	for i := range all {
		if all[i].Completed {
			completed = append(completed, all[i].ChapterNumber)
		}
	}
	if len(completed) == 0 {
		return 0
	}

	maxStreak, streak := 1, 1
	for i := 1; i < len(completed); i++ {
		if completed[i] == completed[i-1]+1 {
			streak++
			if streak > maxStreak {
				maxStreak = streak
			}
		} else {
			streak = 1
		}
	}
	return maxStreak
}

func toProgressEntry(p *models.ReadingProgress) *progressEntry {
	if p == nil {
		return nil
	}
	return &progressEntry{
		ChapterNumber: p.ChapterNumber,
		Completed:     p.Completed,
		TimeSpent:     p.TimeSpent,
		VideosWatched: decodeListLen(p.VideosWatched),
		QuizzesPassed: decodeListLen(p.QuizzesPassed),
		LastUpdated:   p.UpdatedAt,
	}
}

func encodeStringList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeListLen(raw string) int {
	if raw == "" {
		return 0
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return 0
	}
	return len(items)
}
