package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bark-labs/sitepush/internal/model"
	"github.com/bark-labs/sitepush/internal/storage"
	"github.com/sirupsen/logrus"
)

// DeliveryLogService records dispatch outcomes and provides filtering and statistics.
type DeliveryLogService struct {
	store storage.Store
	log   logrus.FieldLogger
}

// NewDeliveryLogService builds the delivery log service.
func NewDeliveryLogService(store storage.Store, log logrus.FieldLogger) *DeliveryLogService {
	return &DeliveryLogService{store: store, log: log.WithField("component", "delivery_log")}
}

// Record appends an entry. Failures are logged, never surfaced to the dispatcher.
func (s *DeliveryLogService) Record(ctx context.Context, entry *model.DeliveryLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.store.AppendDeliveryLog(ctx, entry); err != nil {
		s.log.WithError(err).WithField("activityType", entry.ActivityType).Warn("append delivery log failed")
	}
}

// Query returns paginated logs.
func (s *DeliveryLogService) Query(ctx context.Context, filter model.DeliveryLogFilter) (*model.DeliveryLogPage, error) {
	logs, err := s.filteredLogs(ctx, filter)
	if err != nil {
		return nil, err
	}

	total := len(logs)
	if filter.PageSize <= 0 {
		filter.PageSize = 10
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	start := (filter.Page - 1) * filter.PageSize
	if start > total {
		start = total
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}

	return &model.DeliveryLogPage{
		Data:     logs[start:end],
		Total:    total,
		Pages:    (total + filter.PageSize - 1) / filter.PageSize,
		PageNum:  filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// CountByDate aggregates logs per day/month/year.
func (s *DeliveryLogService) CountByDate(ctx context.Context, dateType string, begin, end *time.Time) ([]map[string]any, error) {
	logs, err := s.filteredLogs(ctx, model.DeliveryLogFilter{BeginTime: begin, EndTime: end})
	if err != nil {
		return nil, err
	}

	layout := "2006-01-02"
	switch strings.ToLower(dateType) {
	case "year":
		layout = "2006"
	case "month":
		layout = "2006-01"
	}

	counter := make(map[string]int)
	for _, log := range logs {
		counter[log.CreatedAt.Format(layout)]++
	}
	return mapToKV(counter, "date"), nil
}

// CountByStatus aggregates by SENT / FALLBACK / SKIPPED.
func (s *DeliveryLogService) CountByStatus(ctx context.Context, begin, end *time.Time) ([]map[string]any, error) {
	return s.countBy(ctx, begin, end, "status", func(l *model.DeliveryLog) string {
		if l.Status == "" {
			return "UNKNOWN"
		}
		return l.Status
	})
}

// CountByActivity aggregates by activity type.
func (s *DeliveryLogService) CountByActivity(ctx context.Context, begin, end *time.Time) ([]map[string]any, error) {
	return s.countBy(ctx, begin, end, "activityType", func(l *model.DeliveryLog) string {
		if l.ActivityType == "" {
			return "UNKNOWN"
		}
		return string(l.ActivityType)
	})
}

// CountByMode aggregates by delivery mode.
func (s *DeliveryLogService) CountByMode(ctx context.Context, begin, end *time.Time) ([]map[string]any, error) {
	return s.countBy(ctx, begin, end, "mode", func(l *model.DeliveryLog) string {
		if l.Mode == "" {
			return string(model.DeliveryNone)
		}
		return string(l.Mode)
	})
}

// Prune drops entries older than the retention window.
func (s *DeliveryLogService) Prune(ctx context.Context, retention time.Duration) (int, error) {
	return s.store.PruneDeliveryLogs(ctx, time.Now().UTC().Add(-retention))
}

func (s *DeliveryLogService) countBy(ctx context.Context, begin, end *time.Time, key string, group func(*model.DeliveryLog) string) ([]map[string]any, error) {
	logs, err := s.filteredLogs(ctx, model.DeliveryLogFilter{BeginTime: begin, EndTime: end})
	if err != nil {
		return nil, err
	}
	counter := make(map[string]int)
	for _, log := range logs {
		counter[group(log)]++
	}
	return mapToKV(counter, key), nil
}

func (s *DeliveryLogService) filteredLogs(ctx context.Context, filter model.DeliveryLogFilter) ([]*model.DeliveryLog, error) {
	all, err := s.store.ListDeliveryLogs(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]*model.DeliveryLog, 0, len(all))
	for _, log := range all {
		if filter.ActivityType != "" && !strings.EqualFold(string(log.ActivityType), filter.ActivityType) {
			continue
		}
		if filter.ClientID != "" && log.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && !strings.EqualFold(log.Status, filter.Status) {
			continue
		}
		if filter.Mode != "" && !strings.EqualFold(string(log.Mode), filter.Mode) {
			continue
		}
		if filter.BeginTime != nil && log.CreatedAt.Before(filter.BeginTime.UTC()) {
			continue
		}
		if filter.EndTime != nil && log.CreatedAt.After(filter.EndTime.UTC()) {
			continue
		}
		matches = append(matches, log)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches, nil
}

func mapToKV(counter map[string]int, key string) []map[string]any {
	result := make([]map[string]any, 0, len(counter))
	for k, v := range counter {
		result = append(result, map[string]any{
			key:     k,
			"count": v,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i][key].(string) < result[j][key].(string)
	})
	return result
}
