package model

import "time"

const (
	DeliveryStatusSent     = "SENT"
	DeliveryStatusFallback = "FALLBACK"
	DeliveryStatusSkipped  = "SKIPPED"
)

// DeliveryLog tracks each dispatch attempt.
type DeliveryLog struct {
	ID           uint64       `json:"id"`
	ActivityType ActivityType `json:"activityType"`
	ClientID     string       `json:"clientId"`
	ProjectID    string       `json:"projectId,omitempty"`
	ActorID      string       `json:"actorId"`
	Title        string       `json:"title"`
	Body         string       `json:"body"`
	Recipients   int          `json:"recipients"`
	Sent         int          `json:"sent"`
	Failed       int          `json:"failed"`
	Mode         DeliveryMode `json:"mode"`
	Status       string       `json:"status"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// DeliveryLogFilter describes query parameters for log searching.
type DeliveryLogFilter struct {
	ActivityType string
	ClientID     string
	Status       string
	Mode         string
	BeginTime    *time.Time
	EndTime      *time.Time
	Page         int
	PageSize     int
}

// DeliveryLogPage is a page of delivery logs, newest first.
type DeliveryLogPage struct {
	Data     []*DeliveryLog `json:"data"`
	Total    int            `json:"total"`
	Pages    int            `json:"pages"`
	PageNum  int            `json:"pageNum"`
	PageSize int            `json:"pageSize"`
}
