package server

import (
	"errors"
	"net/http"

	"github.com/bark-labs/sitepush/internal/apiclient"
	"github.com/bark-labs/sitepush/internal/capability"
	"github.com/bark-labs/sitepush/internal/device"
	"github.com/bark-labs/sitepush/internal/logger"
	"github.com/bark-labs/sitepush/internal/model"
	"github.com/bark-labs/sitepush/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type loginRequest struct {
	model.RawUser
	AuthToken  string `json:"authToken"`
	PromptUser bool   `json:"promptUser"`
}

type deviceReportRequest struct {
	IsPhysicalDevice bool   `json:"isPhysicalDevice"`
	Runtime          string `json:"runtime" validate:"max=64"`
	Platform         string `json:"platform" validate:"max=32"`
	Permission       string `json:"permission" validate:"max=32"`
	Token            string `json:"token" validate:"max=512"`
	DeviceName       string `json:"deviceName" validate:"max=128"`
	AppVersion       string `json:"appVersion" validate:"max=32"`
}

func (r deviceReportRequest) report() device.Report {
	return device.Report{
		IsPhysicalDevice: r.IsPhysicalDevice,
		Runtime:          r.Runtime,
		Platform:         r.Platform,
		Permission:       r.Permission,
		Token:            r.Token,
		DeviceName:       r.DeviceName,
		AppVersion:       r.AppVersion,
	}
}

func (s *Server) handleDeviceReport(c *fiber.Ctx) error {
	var req deviceReportRequest
	if err := c.BodyParser(&req); err != nil {
		return s.invalid(c, "malformed request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return s.invalid(c, err.Error())
	}
	report := req.report()

	reported := capability.ParseStatus(report.Permission)
	if cached, ok := s.deps.Gate.Cached(); ok && cached != reported {
		s.deps.Gate.Refresh()
	}
	s.deps.Device.Update(report)
	s.log.WithFields(logrus.Fields{
		"platform":   report.Platform,
		"runtime":    report.Runtime,
		"permission": reported,
		"token":      logger.Mask(report.Token),
	}).Debug("device report received")

	return c.JSON(model.Success("ok", fiber.Map{
		"capability": s.deps.Gate.CheckCapability(),
	}))
}

func (s *Server) handleForeground(c *fiber.Ctx) error {
	s.deps.Gate.Refresh()
	perm := s.deps.Gate.RequestPermission(c.UserContext(), false)
	return c.JSON(model.Success("ok", perm))
}

func (s *Server) handleSessionLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return s.invalid(c, "malformed request body")
	}
	user, err := model.ResolveIdentity(req.RawUser)
	if err != nil {
		return s.invalid(c, err.Error())
	}
	s.deps.Backend.SetAuthToken(req.AuthToken)
	// a run overtaken by logout still deactivates with this session's token
	ctx := apiclient.WithAuthToken(c.UserContext(), req.AuthToken)

	res, err := s.deps.Sessions.Initialize(ctx, user, req.PromptUser)
	if res == nil {
		if err == nil {
			err = errors.New("registration produced no result")
		}
		return s.fail(c, http.StatusInternalServerError, err)
	}
	msg := "push registered"
	switch {
	case errors.Is(err, service.ErrUnsupported), errors.Is(err, service.ErrPermissionDenied):
		msg = "push unavailable"
	case errors.Is(err, service.ErrSessionEnded):
		msg = "logged out during registration"
	case err != nil:
		msg = "push registration failed"
	case res.Mode == service.ModeLocalOnly:
		msg = "backend unreachable, local notifications only"
	}
	return c.JSON(model.Success(msg, res))
}

func (s *Server) handleSessionLogout(c *fiber.Ctx) error {
	// the backend call runs detached, pin the session token before clearing it
	ctx := apiclient.WithAuthToken(c.UserContext(), s.deps.Backend.AuthToken())
	results := s.deps.Sessions.Unregister(ctx)
	s.deps.Backend.SetAuthToken("")

	cleared := make([]string, 0, len(results))
	failed := fiber.Map{}
	for _, r := range results {
		if r.Err != nil {
			failed[r.Key] = r.Err.Error()
			continue
		}
		cleared = append(cleared, r.Key)
	}
	return c.JSON(model.Success("logged out", fiber.Map{
		"cleared": cleared,
		"failed":  failed,
	}))
}

func (s *Server) handlePushStatus(c *fiber.Ctx) error {
	reg := s.deps.Sessions.Registration(c.UserContext())
	data := fiber.Map{
		"state":      s.deps.Sessions.State(),
		"registered": reg.Registered,
		"capability": s.deps.Gate.CheckCapability(),
	}
	if !reg.At.IsZero() {
		data["registeredAt"] = reg.At
	}
	if u := s.deps.Sessions.User(); u != nil {
		data["userId"] = u.UserID()
		data["role"] = u.Role()
	}
	if status, ok := s.deps.Gate.Cached(); ok {
		data["permission"] = status
	}
	return c.JSON(model.Success("ok", data))
}
