package server

import (
	"errors"
	"net/http"

	"github.com/bark-labs/sitepush/internal/model"
	"github.com/bark-labs/sitepush/internal/sanitize"
	"github.com/bark-labs/sitepush/internal/storage"
	"github.com/gofiber/fiber/v2"
)

type navigationRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

func (s *Server) handleActivity(c *fiber.Ctx) error {
	var event model.ActivityEvent
	if err := c.BodyParser(&event); err != nil {
		return s.invalid(c, "malformed request body")
	}
	// incomplete events still reach the dispatcher, which falls back locally
	res := s.deps.Notifier.SendActivityNotification(c.UserContext(), event)
	return c.JSON(model.Success("ok", res))
}

func (s *Server) handleValidateNotification(c *fiber.Ctx) error {
	var n sanitize.Notification
	if err := c.BodyParser(&n); err != nil {
		return s.invalid(c, "malformed request body")
	}
	if !sanitize.ValidateForDisplay(n) {
		return c.JSON(model.Success("rejected", fiber.Map{"display": false}))
	}
	return c.JSON(model.Success("ok", fiber.Map{
		"display": true,
		"data":    sanitize.SanitizeData(n.Data),
	}))
}

func (s *Server) handleNavigationCheck(c *fiber.Ctx) error {
	var req navigationRequest
	if err := c.BodyParser(&req); err != nil {
		return s.invalid(c, "malformed request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return s.invalid(c, err.Error())
	}
	return c.JSON(model.Success("ok", fiber.Map{
		"allowed": sanitize.SanitizeForNavigation(req.URL),
	}))
}

func (s *Server) handleLocalPending(c *fiber.Ctx) error {
	pending, err := s.deps.Outbox.Pending(c.UserContext())
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, err)
	}
	return c.JSON(model.Success("ok", pending))
}

func (s *Server) handleLocalAck(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.deps.Outbox.Ack(c.UserContext(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(http.StatusNotFound).JSON(model.Error("notification not found"))
		}
		return s.fail(c, http.StatusInternalServerError, err)
	}
	return c.JSON(model.Success("acknowledged", fiber.Map{"id": id}))
}
