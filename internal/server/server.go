package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bark-labs/sitepush/internal/capability"
	"github.com/bark-labs/sitepush/internal/config"
	"github.com/bark-labs/sitepush/internal/device"
	"github.com/bark-labs/sitepush/internal/model"
	"github.com/bark-labs/sitepush/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var (
	errNotLoggedIn    = errors.New("not logged in")
	errSessionExpired = errors.New("session expired")
)

// Sessions is the registration lifecycle driven by login and logout.
type Sessions interface {
	Initialize(ctx context.Context, user model.UserIdentity, promptUser bool) (*service.RegistrationResult, error)
	Unregister(ctx context.Context) []service.ClearResult
	State() service.State
	User() model.UserIdentity
	Registration(ctx context.Context) service.Registration
}

// Notifier dispatches activity notifications.
type Notifier interface {
	SendActivityNotification(ctx context.Context, event model.ActivityEvent) model.DeliveryResult
}

// Outbox is the local-fallback queue polled by the host.
type Outbox interface {
	Pending(ctx context.Context) ([]*model.LocalNotification, error)
	Ack(ctx context.Context, id string) error
}

// DeliveryLogs answers log queries and statistics.
type DeliveryLogs interface {
	Query(ctx context.Context, filter model.DeliveryLogFilter) (*model.DeliveryLogPage, error)
	CountByDate(ctx context.Context, dateType string, begin, end *time.Time) ([]map[string]any, error)
	CountByStatus(ctx context.Context, begin, end *time.Time) ([]map[string]any, error)
	CountByActivity(ctx context.Context, begin, end *time.Time) ([]map[string]any, error)
	CountByMode(ctx context.Context, begin, end *time.Time) ([]map[string]any, error)
}

// Backend is the slice of the API client the bridge needs.
type Backend interface {
	Ping(ctx context.Context) error
	SetAuthToken(token string)
	AuthToken() string
}

// Deps collects the components served over the bridge.
type Deps struct {
	Device   *device.Bridge
	Gate     *capability.Gate
	Sessions Sessions
	Notifier Notifier
	Outbox   Outbox
	Logs     DeliveryLogs
	Backend  Backend
	Auth     *service.AuthService
}

// Server wires HTTP handlers.
type Server struct {
	app      *fiber.App
	cfg      *config.Config
	deps     Deps
	validate *validator.Validate
	log      logrus.FieldLogger
}

// New builds a server instance.
func New(cfg *config.Config, deps Deps, log logrus.FieldLogger) *Server {
	app := fiber.New(fiber.Config{
		IdleTimeout:           cfg.HTTP.ReadTimeout,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		AppName:               "sitepush-agent",
		DisableStartupMessage: true,
	})
	s := &Server{
		app:      app,
		cfg:      cfg,
		deps:     deps,
		validate: validator.New(),
		log:      log.WithField("component", "bridge"),
	}
	s.registerRoutes()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens and serves HTTP traffic.
func (s *Server) Start() error {
	return s.app.Listen(s.cfg.HTTP.Addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.handleHealth)

	s.app.Post("/device/report", s.handleDeviceReport)
	s.app.Post("/app/foreground", s.handleForeground)

	s.app.Post("/session/login", s.handleSessionLogin)
	s.app.Post("/session/logout", s.handleSessionLogout)
	s.app.Get("/push/status", s.handlePushStatus)

	s.app.Post("/activity", s.handleActivity)
	s.app.Post("/notifications/validate", s.handleValidateNotification)
	s.app.Post("/navigation/check", s.handleNavigationCheck)

	s.app.Get("/local/pending", s.handleLocalPending)
	s.app.Post("/local/:id/ack", s.handleLocalAck)

	s.app.Post("/auth/login", s.handleLogin)
	s.app.Get("/auth/profile", s.handleProfile)

	logGroup := s.app.Group("/api/delivery/log", s.requireAuth)
	logGroup.Get("/list", s.handleLogList)
	logGroup.Get("/count/date", s.handleLogCountDate)
	logGroup.Get("/count/status", s.handleLogCountStatus)
	logGroup.Get("/count/activity", s.handleLogCountActivity)
	logGroup.Get("/count/mode", s.handleLogCountMode)

	admin := s.app.Group("/admin", s.requireAuth)
	admin.Get("/summary", s.handleAdminSummary)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{"status": "ok"}
	if s.deps.Sessions != nil {
		resp["state"] = s.deps.Sessions.State()
	}
	if s.deps.Backend != nil {
		if s.pingBackend(c.UserContext()) {
			resp["backend"] = fiber.Map{"status": "up"}
		} else {
			resp["backend"] = fiber.Map{"status": "degraded"}
		}
	}
	return c.Status(http.StatusOK).JSON(resp)
}

func (s *Server) pingBackend(ctx context.Context) bool {
	if s.deps.Backend == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.deps.Backend.Ping(ctx); err != nil {
		s.log.WithError(err).Debug("backend ping failed")
		return false
	}
	return true
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.invalid(c, "malformed request body")
	}
	if !s.deps.Auth.Enabled() {
		return c.JSON(model.Success("login not required", fiber.Map{
			"token":    "",
			"enabled":  false,
			"username": "guest",
		}))
	}
	token, err := s.deps.Auth.Authenticate(req.Username, req.Password)
	if err != nil {
		return c.Status(http.StatusUnauthorized).JSON(model.Unauthorized(err.Error()))
	}
	return c.JSON(model.Success("login succeeded", fiber.Map{
		"token":    token,
		"enabled":  true,
		"username": s.deps.Auth.Username(),
	}))
}

func (s *Server) handleProfile(c *fiber.Ctx) error {
	if !s.deps.Auth.Enabled() {
		return c.JSON(model.Success("ok", fiber.Map{
			"enabled":  false,
			"username": "guest",
		}))
	}
	claims, err := s.authenticate(c)
	if err != nil {
		return s.unauthorized(c, err.Error())
	}
	return c.JSON(model.Success("ok", fiber.Map{
		"enabled":  true,
		"username": claims.Username,
	}))
}

func (s *Server) requireAuth(c *fiber.Ctx) error {
	if !s.deps.Auth.Enabled() {
		return c.Next()
	}
	claims, err := s.authenticate(c)
	if err != nil {
		return s.unauthorized(c, err.Error())
	}
	c.Locals("username", claims.Username)
	return c.Next()
}

func (s *Server) authenticate(c *fiber.Ctx) (*service.Claims, error) {
	token := extractBearerToken(c.Get("Authorization"))
	if token == "" {
		return nil, errNotLoggedIn
	}
	claims, err := s.deps.Auth.Validate(token)
	if err != nil {
		return nil, errSessionExpired
	}
	return claims, nil
}

func (s *Server) invalid(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusBadRequest).JSON(model.Invalid(message))
}

func (s *Server) unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusUnauthorized).JSON(model.Unauthorized(message))
}

func (s *Server) fail(c *fiber.Ctx, status int, err error) error {
	s.log.WithError(err).WithField("path", c.Path()).Warn("request failed")
	return c.Status(status).JSON(model.Error(err.Error()))
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseLogFilter(c *fiber.Ctx) model.DeliveryLogFilter {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("pageSize", "10"))
	begin, end := parseTimeRange(c)
	return model.DeliveryLogFilter{
		ActivityType: c.Query("activityType"),
		ClientID:     c.Query("clientId"),
		Status:       c.Query("status"),
		Mode:         c.Query("mode"),
		BeginTime:    begin,
		EndTime:      end,
		Page:         page,
		PageSize:     pageSize,
	}
}

func parseTimeRange(c *fiber.Ctx) (*time.Time, *time.Time) {
	begin := parseTime(c.Query("beginTime"))
	end := parseTime(c.Query("endTime"))
	return begin, end
}

func parseTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
