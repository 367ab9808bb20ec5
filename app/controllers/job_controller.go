package controllers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/JobFoxHQ/JobFox/app/models"
	"github.com/JobFoxHQ/JobFox/internal/pkg/database"
	"github.com/JobFoxHQ/JobFox/internal/pkg/payments"
	"github.com/JobFoxHQ/JobFox/internal/pkg/search"
	"github.com/JobFoxHQ/JobFox/internal/pkg/usercontext"
)

// HandleCreateJob publishes a new listing. Posting costs either the pro
// plan's posting flag or one prepaid job-post credit; the credit is consumed
// with a guarded decrement so two concurrent posts cannot spend the same one.
func HandleCreateJob(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	job := models.Job{}
	if err := c.BodyParser(&job); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}
	job.ID = 0
	job.UserID = userCtx.UserID
	job.Status = models.JobStatusDraft
	job.IsFeatured = false
	job.FeaturedUntil = nil
	job.PublishedAt = nil
	if err := job.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	db := database.GetDB()
	repo := payments.NewRepository(db)

	ent, err := repo.GetEntitlement(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	if !ent.CanPostJobs {
		consumed, err := repo.ConsumeJobPostCredit(userCtx.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
		if !consumed {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "no_job_post_credits"})
		}
	}

	now := time.Now()
	job.Status = models.JobStatusActive
	job.PublishedAt = &now
	if ent.HasActiveBoost(now) {
		job.IsFeatured = true
		job.FeaturedUntil = ent.FeaturedUntil
	}

	if err := db.Create(&job).Error; err != nil {
		log.Errorf("[Jobs] creating listing for user %d failed: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	search.NewNotifier().ContentChanged(job.ID, jobPublicURL(job.ID))

	return c.Status(fiber.StatusCreated).JSON(job)
}

// HandleGetJob returns a single listing. Draft listings are only visible to
// their owner.
func HandleGetJob(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	}

	var job models.Job
	if err := database.GetDB().First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	if !job.IsPublished() && usercontext.GetUserID(c) != job.UserID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job_not_found"})
	}

	return c.JSON(job)
}

// HandleListJobs returns the active listings, featured ones first.
func HandleListJobs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 100 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	var jobs []models.Job
	err := database.GetDB().
		Where("status = ?", models.JobStatusActive).
		Order("is_featured DESC, published_at DESC").
		Limit(limit).Offset(offset).
		Find(&jobs).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.JSON(fiber.Map{"jobs": jobs, "count": len(jobs)})
}

// HandleListMyJobs returns all of the caller's listings, drafts included.
func HandleListMyJobs(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var jobs []models.Job
	err := database.GetDB().
		Where("user_id = ?", userCtx.UserID).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.JSON(fiber.Map{"jobs": jobs, "count": len(jobs)})
}

func jobPublicURL(jobID uint) string {
	cfg := payments.NewConfigFromEnv()
	if cfg.PublicDomain == "" {
		return fmt.Sprintf("/jobs/%d", jobID)
	}
	return fmt.Sprintf("%s/jobs/%d", cfg.PublicDomain, jobID)
}
