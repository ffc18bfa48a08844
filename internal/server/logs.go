package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bark-labs/sitepush/internal/model"
	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleLogList(c *fiber.Ctx) error {
	page, err := s.deps.Logs.Query(c.UserContext(), parseLogFilter(c))
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, err)
	}
	return c.JSON(model.Success("ok", page))
}

func (s *Server) handleLogCountDate(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.deps.Logs.CountByDate(c.UserContext(), c.Query("dateType", "day"), begin, end)
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, err)
	}
	return c.JSON(model.Success("ok", data))
}

func (s *Server) handleLogCountStatus(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.deps.Logs.CountByStatus(c.UserContext(), begin, end)
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, err)
	}
	return c.JSON(model.Success("ok", data))
}

func (s *Server) handleLogCountActivity(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.deps.Logs.CountByActivity(c.UserContext(), begin, end)
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, err)
	}
	return c.JSON(model.Success("ok", data))
}

func (s *Server) handleLogCountMode(c *fiber.Ctx) error {
	begin, end := parseTimeRange(c)
	data, err := s.deps.Logs.CountByMode(c.UserContext(), begin, end)
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, err)
	}
	return c.JSON(model.Success("ok", data))
}

func (s *Server) handleAdminSummary(c *fiber.Ctx) error {
	ctx := c.UserContext()
	todayStart := time.Now().UTC().Truncate(24 * time.Hour)
	byStatus, err := s.deps.Logs.CountByStatus(ctx, &todayStart, nil)
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, err)
	}
	todayTotal, todaySent, todayFallback := 0, 0, 0
	for _, row := range byStatus {
		count, _ := row["count"].(int)
		todayTotal += count
		status, _ := row["status"].(string)
		switch {
		case strings.EqualFold(status, model.DeliveryStatusSent):
			todaySent += count
		case strings.EqualFold(status, model.DeliveryStatusFallback):
			todayFallback += count
		}
	}

	recentPage, err := s.deps.Logs.Query(ctx, model.DeliveryLogFilter{PageSize: 5})
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, err)
	}
	recent := make([]fiber.Map, 0, len(recentPage.Data))
	for _, log := range recentPage.Data {
		recent = append(recent, fiber.Map{
			"title":        log.Title,
			"activityType": log.ActivityType,
			"status":       log.Status,
			"mode":         log.Mode,
			"time":         log.CreatedAt.Local().Format("01-02 15:04"),
		})
	}

	pending := 0
	if items, err := s.deps.Outbox.Pending(ctx); err == nil {
		pending = len(items)
	}
	backend := "offline"
	if s.pingBackend(ctx) {
		backend = "online"
	}
	return c.JSON(model.Success("ok", fiber.Map{
		"backend":       backend,
		"state":         s.deps.Sessions.State(),
		"todayTotal":    todayTotal,
		"todaySent":     todaySent,
		"todayFallback": todayFallback,
		"pendingLocal":  pending,
		"recentLogs":    recent,
	}))
}
