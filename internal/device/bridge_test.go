package device

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bark-labs/sitepush/internal/capability"
	"github.com/bark-labs/sitepush/internal/model"
	"github.com/bark-labs/sitepush/internal/storage/bolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBridge(t *testing.T) *Bridge {
	t.Helper()
	store, err := bolt.New(filepath.Join(t.TempDir(), "sitepush.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewBridge(store, "2.1.0", "")
}

func TestBridge_ReportDrivesEnvironment(t *testing.T) {
	b := newBridge(t)
	assert.False(t, b.IsPhysicalDevice(), "nothing reported yet")

	b.Update(Report{IsPhysicalDevice: true, Runtime: "standalone", Platform: "iOS", Permission: "granted", Token: "ExponentPushToken[abc]"})
	assert.True(t, b.IsPhysicalDevice())
	assert.Equal(t, model.PlatformIOS, b.Platform())

	status, err := b.PermissionStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, capability.StatusGranted, status)

	token, err := b.AcquireToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ExponentPushToken[abc]", token)

	// a later report without token keeps the last one
	b.Update(Report{IsPhysicalDevice: true, Platform: "android", Permission: "denied"})
	token, err = b.AcquireToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ExponentPushToken[abc]", token)
}

func TestBridge_NoToken(t *testing.T) {
	_, err := newBridge(t).AcquireToken(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestBridge_DeviceIDStable(t *testing.T) {
	ctx := context.Background()
	b := newBridge(t)

	first, err := b.DeviceID(ctx)
	require.NoError(t, err)
	second, err := b.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	id, err := b.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, id.DeviceID)
	assert.Equal(t, "2.1.0", id.AppVersion)
	assert.Equal(t, "unknown device", id.DeviceName)
	assert.Equal(t, model.PlatformOther, id.Platform)
}
