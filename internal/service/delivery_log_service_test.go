package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bark-labs/sitepush/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLogs(t *testing.T, svc *DeliveryLogService) time.Time {
	t.Helper()
	base := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	entries := []model.DeliveryLog{
		{ActivityType: model.ActivityMaterialImported, ClientID: "c1", Status: model.DeliveryStatusSent, Mode: model.DeliveryRemote, CreatedAt: base},
		{ActivityType: model.ActivityMaterialImported, ClientID: "c1", Status: model.DeliveryStatusFallback, Mode: model.DeliveryLocalFallback, CreatedAt: base.Add(time.Hour)},
		{ActivityType: model.ActivityLaborAdded, ClientID: "c2", Status: model.DeliveryStatusSkipped, Mode: model.DeliveryNone, CreatedAt: base.AddDate(0, 0, 1)},
		{ActivityType: model.ActivityProjectCreated, ClientID: "c1", Status: model.DeliveryStatusSent, Mode: model.DeliveryRemote, CreatedAt: base.AddDate(0, 1, 0)},
	}
	for i := range entries {
		svc.Record(context.Background(), &entries[i])
	}
	return base
}

func TestDeliveryLog_QueryFiltersAndOrders(t *testing.T) {
	svc := NewDeliveryLogService(newMemStore(), testLogger())
	base := seedLogs(t, svc)
	ctx := context.Background()

	page, err := svc.Query(ctx, model.DeliveryLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, model.ActivityProjectCreated, page.Data[0].ActivityType, "newest first")

	page, err = svc.Query(ctx, model.DeliveryLogFilter{ClientID: "c1", Status: "sent"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = svc.Query(ctx, model.DeliveryLogFilter{Mode: "local-fallback"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	end := base.Add(2 * time.Hour)
	page, err = svc.Query(ctx, model.DeliveryLogFilter{BeginTime: &base, EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestDeliveryLog_Pagination(t *testing.T) {
	svc := NewDeliveryLogService(newMemStore(), testLogger())
	for i := 0; i < 25; i++ {
		svc.Record(context.Background(), &model.DeliveryLog{
			ActivityType: model.ActivityLaborAdded,
			Title:        fmt.Sprintf("entry %d", i),
			CreatedAt:    time.Unix(int64(1_700_000_000+i), 0).UTC(),
		})
	}
	page, err := svc.Query(context.Background(), model.DeliveryLogFilter{Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Pages)
	assert.Len(t, page.Data, 5)

	page, err = svc.Query(context.Background(), model.DeliveryLogFilter{Page: 9, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 100, page.PageSize)
	assert.Empty(t, page.Data)
}

func TestDeliveryLog_Counts(t *testing.T) {
	svc := NewDeliveryLogService(newMemStore(), testLogger())
	seedLogs(t, svc)
	ctx := context.Background()

	byDay, err := svc.CountByDate(ctx, "day", nil, nil)
	require.NoError(t, err)
	require.Len(t, byDay, 3)
	assert.Equal(t, "2026-05-10", byDay[0]["date"])
	assert.Equal(t, 2, byDay[0]["count"])

	byMonth, err := svc.CountByDate(ctx, "month", nil, nil)
	require.NoError(t, err)
	assert.Len(t, byMonth, 2)

	byStatus, err := svc.CountByStatus(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"status": "FALLBACK", "count": 1},
		{"status": "SENT", "count": 2},
		{"status": "SKIPPED", "count": 1},
	}, byStatus)

	byActivity, err := svc.CountByActivity(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, byActivity, 3)

	byMode, err := svc.CountByMode(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "local-fallback", byMode[0]["mode"])
}

func TestDeliveryLog_RecordSwallowsStoreErrors(t *testing.T) {
	store := newMemStore()
	store.appendErr = errors.New("disk full")
	svc := NewDeliveryLogService(store, testLogger())
	assert.NotPanics(t, func() {
		svc.Record(context.Background(), &model.DeliveryLog{})
	})
}

func TestDeliveryLog_Prune(t *testing.T) {
	svc := NewDeliveryLogService(newMemStore(), testLogger())
	svc.Record(context.Background(), &model.DeliveryLog{CreatedAt: time.Now().Add(-48 * time.Hour)})
	svc.Record(context.Background(), &model.DeliveryLog{CreatedAt: time.Now()})

	removed, err := svc.Prune(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
