package capability

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bark-labs/sitepush/internal/model"
	"github.com/sirupsen/logrus"
)

// Status is the OS notification permission state.
type Status string

const (
	StatusGranted      Status = "granted"
	StatusDenied       Status = "denied"
	StatusUndetermined Status = "undetermined"
	StatusUnsupported  Status = "unsupported"
)

// ParseStatus maps host-reported strings onto Status.
func ParseStatus(value string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusGranted:
		return StatusGranted
	case StatusDenied:
		return StatusDenied
	case StatusUnsupported:
		return StatusUnsupported
	}
	return StatusUndetermined
}

// Environment describes the runtime the agent is paired with.
type Environment interface {
	IsPhysicalDevice() bool
	Runtime() string
	Platform() model.Platform
	PermissionStatus(ctx context.Context) (Status, error)
	RequestPermission(ctx context.Context) (Status, error)
}

// Capability is the result of CheckCapability.
type Capability struct {
	Supported bool   `json:"supported"`
	Reason    string `json:"reason,omitempty"`
}

// PermissionResult is the result of RequestPermission.
type PermissionResult struct {
	Granted bool   `json:"granted"`
	Status  Status `json:"status"`
}

// Gate decides whether push work may proceed at all.
type Gate struct {
	env         Environment
	unsupported map[string]struct{}
	log         logrus.FieldLogger

	mu     sync.Mutex
	cached *Status
}

// NewGate builds a Gate. unsupported entries have the form "runtime/platform".
func NewGate(env Environment, unsupported []string, log logrus.FieldLogger) *Gate {
	set := make(map[string]struct{}, len(unsupported))
	for _, entry := range unsupported {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry != "" {
			set[entry] = struct{}{}
		}
	}
	return &Gate{env: env, unsupported: set, log: log.WithField("component", "gate")}
}

// CheckCapability reports whether the environment can receive push at all.
func (g *Gate) CheckCapability() Capability {
	if g.env == nil {
		return Capability{Reason: "no environment reported"}
	}
	if !g.env.IsPhysicalDevice() {
		return Capability{Reason: "push notifications require a physical device"}
	}
	runtime := strings.ToLower(strings.TrimSpace(g.env.Runtime()))
	platform := strings.ToLower(string(g.env.Platform()))
	if _, blocked := g.unsupported[runtime+"/"+platform]; blocked {
		return Capability{Reason: fmt.Sprintf("runtime %s does not support remote push on %s", runtime, platform)}
	}
	if _, blocked := g.unsupported[runtime+"/*"]; blocked {
		return Capability{Reason: fmt.Sprintf("runtime %s does not support remote push", runtime)}
	}
	return Capability{Supported: true}
}

// RequestPermission returns the session-cached status when granted. Otherwise it
// re-reads the current status and only prompts the OS when prompt is set and the
// user has not answered yet or the caller explicitly re-prompts after denial.
func (g *Gate) RequestPermission(ctx context.Context, prompt bool) PermissionResult {
	if c := g.CheckCapability(); !c.Supported {
		return PermissionResult{Status: StatusUnsupported}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cached != nil && *g.cached == StatusGranted {
		return PermissionResult{Granted: true, Status: StatusGranted}
	}

	status, err := g.env.PermissionStatus(ctx)
	if err != nil {
		g.log.WithError(err).Warn("read permission status")
		status = StatusUndetermined
	}
	if status != StatusGranted && prompt {
		asked, err := g.env.RequestPermission(ctx)
		if err != nil {
			g.log.WithError(err).Warn("request permission")
		} else {
			status = asked
		}
	}
	g.cached = &status
	g.log.WithField("status", status).Debug("permission resolved")
	return PermissionResult{Granted: status == StatusGranted, Status: status}
}

// Cached returns the cached permission status, if any.
func (g *Gate) Cached() (Status, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cached == nil {
		return "", false
	}
	return *g.cached, true
}

// Refresh drops the cached status; called when the app returns to foreground.
func (g *Gate) Refresh() {
	g.mu.Lock()
	g.cached = nil
	g.mu.Unlock()
}
