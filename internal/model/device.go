package model

import (
	"strings"
	"time"
)

// Platform identifies the device operating system.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformOther   Platform = "other"
)

// ParsePlatform maps free-form platform names onto the closed set.
func ParsePlatform(value string) Platform {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "ios", "iphone", "ipados":
		return PlatformIOS
	case "android":
		return PlatformAndroid
	}
	return PlatformOther
}

// DeviceIdentity is attached to every registration call for backend deduplication.
type DeviceIdentity struct {
	Platform   Platform `json:"platform"`
	DeviceID   string   `json:"deviceId"`
	DeviceName string   `json:"deviceName"`
	AppVersion string   `json:"appVersion"`
}

// PushToken describes the current device token. Only EncryptedValue is ever persisted.
type PushToken struct {
	RawValue       string    `json:"-"`
	EncryptedValue string    `json:"encryptedValue"`
	RegisteredAt   time.Time `json:"registeredAt"`
	IsRegistered   bool      `json:"isRegistered"`
}
