// Package device holds the environment facts reported by the host app.
package device

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bark-labs/sitepush/internal/capability"
	"github.com/bark-labs/sitepush/internal/model"
	"github.com/bark-labs/sitepush/internal/storage"
	"github.com/google/uuid"
)

// ErrNoToken is returned while the host has not reported a provider token.
var ErrNoToken = errors.New("no push token reported by host")

// Report is what the host app posts after querying the OS.
type Report struct {
	IsPhysicalDevice bool   `json:"isPhysicalDevice"`
	Runtime          string `json:"runtime"`
	Platform         string `json:"platform"`
	Permission       string `json:"permission"`
	Token            string `json:"token"`
	DeviceName       string `json:"deviceName"`
	AppVersion       string `json:"appVersion"`
}

// Bridge implements capability.Environment, the token provider and the
// device identity provider from host reports.
type Bridge struct {
	store      storage.Store
	appVersion string
	deviceName string

	mu     sync.RWMutex
	report Report
	set    bool
}

var _ capability.Environment = (*Bridge)(nil)

// NewBridge builds a Bridge with config-level defaults for name and version.
func NewBridge(store storage.Store, appVersion, deviceName string) *Bridge {
	return &Bridge{store: store, appVersion: appVersion, deviceName: deviceName}
}

// Update replaces the reported facts. An empty token keeps the previous one.
func (b *Bridge) Update(r Report) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if strings.TrimSpace(r.Token) == "" {
		r.Token = b.report.Token
	}
	b.report = r
	b.set = true
}

// Snapshot returns the last report.
func (b *Bridge) Snapshot() (Report, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.report, b.set
}

func (b *Bridge) IsPhysicalDevice() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.set && b.report.IsPhysicalDevice
}

func (b *Bridge) Runtime() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.report.Runtime
}

func (b *Bridge) Platform() model.Platform {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return model.ParsePlatform(b.report.Platform)
}

func (b *Bridge) PermissionStatus(context.Context) (capability.Status, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return capability.ParseStatus(b.report.Permission), nil
}

// RequestPermission cannot prompt from the agent; the host prompts and
// reports back, so this returns the latest reported answer.
func (b *Bridge) RequestPermission(ctx context.Context) (capability.Status, error) {
	return b.PermissionStatus(ctx)
}

// AcquireToken returns the provider token most recently reported by the host.
func (b *Bridge) AcquireToken(context.Context) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	token := strings.TrimSpace(b.report.Token)
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// DeviceID returns the install-scoped id, creating it on first use.
func (b *Bridge) DeviceID(ctx context.Context) (string, error) {
	v, err := b.store.Get(ctx, storage.KeyDeviceID)
	if err == nil && len(v) > 0 {
		return string(v), nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	id := uuid.NewString()
	if err := b.store.Put(ctx, storage.KeyDeviceID, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}

// Identity builds the DeviceIdentity attached to registration calls.
func (b *Bridge) Identity(ctx context.Context) (model.DeviceIdentity, error) {
	id, err := b.DeviceID(ctx)
	if err != nil {
		return model.DeviceIdentity{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return model.DeviceIdentity{
		Platform:   model.ParsePlatform(b.report.Platform),
		DeviceID:   id,
		DeviceName: firstNonEmpty(b.report.DeviceName, b.deviceName, "unknown device"),
		AppVersion: firstNonEmpty(b.report.AppVersion, b.appVersion),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
