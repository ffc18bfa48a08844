package model

import "time"

// DeliveryMode records how a notification reached the user.
type DeliveryMode string

const (
	DeliveryRemote        DeliveryMode = "remote"
	DeliveryLocalFallback DeliveryMode = "local-fallback"
	DeliveryNone          DeliveryMode = "none"
)

// Recipient is a user resolved for an activity notification.
type Recipient struct {
	UserID   string `json:"userId"`
	FullName string `json:"fullName"`
	UserType Role   `json:"userType"`
	Email    string `json:"email,omitempty"`
}

// NotificationRecord is the delivered artifact.
type NotificationRecord struct {
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Data         map[string]string `json:"data"`
	DeliveryMode DeliveryMode      `json:"deliveryMode"`
}

// DeliveryResult is returned by the dispatcher for every activity event.
type DeliveryResult struct {
	Sent           int          `json:"sent"`
	Failed         int          `json:"failed"`
	UsedFallback   bool         `json:"usedFallback"`
	FallbackFailed bool         `json:"fallbackFailed,omitempty"`
	Mode           DeliveryMode `json:"mode"`
	Recipients     int          `json:"recipients"`
	Title          string       `json:"title"`
	Error          string       `json:"error,omitempty"`
}

// LocalNotification is an outbox entry shown on this device by the host app.
type LocalNotification struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
