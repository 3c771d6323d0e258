package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gradelens/backend/internal/extract"
	"github.com/gradelens/backend/internal/gradestats"
	"github.com/gradelens/backend/internal/storage/sqlite"
	"github.com/gradelens/backend/pkg/logger"
)

// CourseHandler serves the boundary endpoints the frontend charts read:
// thin parameterized queries over the grade database.
type CourseHandler struct {
	db    *sqlite.Client
	stats *gradestats.Fetcher
}

func NewCourseHandler(db *sqlite.Client, stats *gradestats.Fetcher) *CourseHandler {
	return &CourseHandler{db: db, stats: stats}
}

// GetCourseStats returns per-instructor-per-term GPA aggregates for one
// course, highest average GPA first.
func (h *CourseHandler) GetCourseStats(c *fiber.Ctx) error {
	code, ok := h.resolveCourse(c)
	if !ok {
		return nil
	}

	stats, err := h.stats.FetchCourse(c.Context(), code)
	if err != nil {
		logger.Error("Failed to fetch course stats", zap.String("course", code), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch course statistics",
		})
	}

	return c.JSON(fiber.Map{
		"course":      stats.Course,
		"perTerm":     stats.PerTerm,
		"instructors": stats.Instructors,
	})
}

// GetCourseProfessors returns the course's instructors joined with their
// review-site mapping.
func (h *CourseHandler) GetCourseProfessors(c *fiber.Ctx) error {
	code, ok := h.resolveCourse(c)
	if !ok {
		return nil
	}

	stats, err := h.stats.FetchCourse(c.Context(), code)
	if err != nil {
		logger.Error("Failed to fetch course stats", zap.String("course", code), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch course professors",
		})
	}

	professors, err := h.db.ProfessorsByName(c.Context(), stats.Instructors)
	if err != nil {
		logger.Error("Failed to look up professors", zap.String("course", code), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch course professors",
		})
	}

	return c.JSON(fiber.Map{
		"course":     code,
		"professors": professors,
	})
}

// resolveCourse normalizes the :code parameter and verifies the course
// has a dataset. It writes the error response itself on failure.
func (h *CourseHandler) resolveCourse(c *fiber.Ctx) (string, bool) {
	code := extract.Normalize(c.Params("code"))

	if _, valid := sqlite.TableForCode(code); !valid {
		c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid course code",
		})
		return "", false
	}

	exists, err := h.db.CoursesExist(c.Context(), []string{code})
	if err != nil {
		logger.Error("Course existence check failed", zap.String("course", code), zap.Error(err))
		c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to check course",
		})
		return "", false
	}

	if !exists[code] {
		c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No data for this course",
		})
		return "", false
	}

	return code, true
}
