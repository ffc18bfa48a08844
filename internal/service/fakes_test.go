package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/bark-labs/sitepush/internal/apiclient"
	"github.com/bark-labs/sitepush/internal/capability"
	"github.com/bark-labs/sitepush/internal/model"
	"github.com/bark-labs/sitepush/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	tokenA = "ExponentPushToken[aaaaaaaaaaaaaaaa]"
	tokenB = "ExponentPushToken[bbbbbbbbbbbbbbbb]"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// memStore is an in-memory storage.Store with per-key failure injection.
type memStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	logs      []*model.DeliveryLog
	outbox    map[string]*model.LocalNotification
	putErr    map[string]error
	deleteErr map[string]error
	appendErr error
}

var _ storage.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		data:      map[string][]byte{},
		outbox:    map[string]*model.LocalNotification{},
		putErr:    map[string]error{},
		deleteErr: map[string]error{},
	}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.putErr[key]; err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[key]; err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *memStore) raw(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.data[key])
}

func (m *memStore) AppendDeliveryLog(_ context.Context, log *model.DeliveryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	copied := *log
	copied.ID = uint64(len(m.logs) + 1)
	m.logs = append(m.logs, &copied)
	return nil
}

func (m *memStore) ListDeliveryLogs(context.Context) ([]*model.DeliveryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.DeliveryLog(nil), m.logs...), nil
}

func (m *memStore) PruneDeliveryLogs(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.logs[:0]
	removed := 0
	for _, l := range m.logs {
		if l.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	m.logs = kept
	return removed, nil
}

func (m *memStore) EnqueueLocal(_ context.Context, n *model.LocalNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *n
	m.outbox[n.ID] = &copied
	return nil
}

func (m *memStore) ListLocal(context.Context) ([]*model.LocalNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.LocalNotification, 0, len(m.outbox))
	for _, n := range m.outbox {
		copied := *n
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteLocal(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.outbox[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.outbox, id)
	return nil
}

func (m *memStore) PruneLocal(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, n := range m.outbox {
		if n.CreatedAt.Before(before) {
			delete(m.outbox, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memStore) Close() error { return nil }

type fakeGate struct {
	capability capability.Capability
	permission capability.PermissionResult
	prompts    []bool
}

func grantedGate() *fakeGate {
	return &fakeGate{
		capability: capability.Capability{Supported: true},
		permission: capability.PermissionResult{Granted: true, Status: capability.StatusGranted},
	}
}

func (g *fakeGate) CheckCapability() capability.Capability { return g.capability }

func (g *fakeGate) RequestPermission(_ context.Context, prompt bool) capability.PermissionResult {
	g.prompts = append(g.prompts, prompt)
	return g.permission
}

type fakeProvider struct {
	mu    sync.Mutex
	token string
	err   error
	calls int
}

func (p *fakeProvider) AcquireToken(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.token, p.err
}

func (p *fakeProvider) set(token string) {
	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
}

type fakeDevices struct{}

func (fakeDevices) Identity(context.Context) (model.DeviceIdentity, error) {
	return model.DeviceIdentity{
		Platform:   model.PlatformIOS,
		DeviceID:   "device-1",
		DeviceName: "Site iPhone",
		AppVersion: "2.4.0",
	}, nil
}

type fakeRegistrationAPI struct {
	mu            sync.Mutex
	registerErr   error
	deactivateErr error
	registered    []apiclient.RegisterRequest
	deactivated   []string
	// entered and release let a test hold a register call in flight.
	entered chan struct{}
	release chan struct{}
}

func (a *fakeRegistrationAPI) RegisterPushToken(ctx context.Context, req apiclient.RegisterRequest) (*apiclient.RegisterData, error) {
	if a.entered != nil {
		a.entered <- struct{}{}
	}
	if a.release != nil {
		<-a.release
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registered = append(a.registered, req)
	if a.registerErr != nil {
		return nil, a.registerErr
	}
	return &apiclient.RegisterData{TokenID: "tok-1", IsNew: true}, nil
}

func (a *fakeRegistrationAPI) DeactivatePushTokens(_ context.Context, userID string) error {
	if a.release != nil {
		<-a.release
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deactivated = append(a.deactivated, userID)
	return a.deactivateErr
}

func (a *fakeRegistrationAPI) registerCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.registered)
}

func (a *fakeRegistrationAPI) deactivateCalls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.deactivated...)
}

type fakeSource struct {
	recipients []model.Recipient
	err        error
	calls      int
	panics     bool
}

func (s *fakeSource) Recipients(context.Context, string, string) ([]model.Recipient, error) {
	s.calls++
	if s.panics {
		panic("source exploded")
	}
	return s.recipients, s.err
}

type fakeDelivery struct {
	resp     *apiclient.SendData
	err      error
	block    bool
	requests []apiclient.SendRequest
}

func (d *fakeDelivery) SendNotification(ctx context.Context, req apiclient.SendRequest) (*apiclient.SendData, error) {
	d.requests = append(d.requests, req)
	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return d.resp, d.err
}

type fakeScheduler struct {
	scheduled []model.LocalNotification
	err       error
}

func (s *fakeScheduler) Schedule(_ context.Context, n model.LocalNotification) error {
	if s.err != nil {
		return s.err
	}
	s.scheduled = append(s.scheduled, n)
	return nil
}

type fakeRecorder struct {
	entries []*model.DeliveryLog
}

func (r *fakeRecorder) Record(_ context.Context, entry *model.DeliveryLog) {
	r.entries = append(r.entries, entry)
}
