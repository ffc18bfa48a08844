package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bark-labs/sitepush/internal/apiclient"
	"github.com/bark-labs/sitepush/internal/capability"
	"github.com/bark-labs/sitepush/internal/logger"
	"github.com/bark-labs/sitepush/internal/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUnsupported        = errors.New("push notifications unsupported")
	ErrPermissionDenied   = errors.New("notification permission not granted")
	ErrInvalidTokenFormat = errors.New("invalid push token format")
	ErrNoToken            = errors.New("no push token available")
	ErrNotStored          = errors.New("push token could not be stored locally")
	ErrSessionEnded       = errors.New("session ended during registration")
)

// State is the registrar lifecycle state.
type State string

const (
	StateUninitialized     State = "uninitialized"
	StateCapabilityChecked State = "capability_checked"
	StatePermissionGranted State = "permission_requested"
	StateTokenAcquired     State = "token_acquired"
	StateTokenStored       State = "token_encrypted_and_stored"
	StateBackendRegistered State = "backend_registered"
	StateDegraded          State = "degraded_local_only"
)

// Mode tells the caller which delivery paths are available.
type Mode string

const (
	ModePush      Mode = "push"
	ModeLocalOnly Mode = "local_only"
	ModeNone      Mode = "none"
)

// PermissionGate is the capability/permission check used before any token work.
type PermissionGate interface {
	CheckCapability() capability.Capability
	RequestPermission(ctx context.Context, prompt bool) capability.PermissionResult
}

// TokenProvider acquires a provider-issued push token.
type TokenProvider interface {
	AcquireToken(ctx context.Context) (string, error)
}

// DeviceIdentityProvider describes this install for backend deduplication.
type DeviceIdentityProvider interface {
	Identity(ctx context.Context) (model.DeviceIdentity, error)
}

// RegistrationAPI is the backend push-token API.
type RegistrationAPI interface {
	RegisterPushToken(ctx context.Context, req apiclient.RegisterRequest) (*apiclient.RegisterData, error)
	DeactivatePushTokens(ctx context.Context, userID string) error
}

// RegistrationResult is returned by Initialize.
type RegistrationResult struct {
	Success      bool                         `json:"success"`
	State        State                        `json:"state"`
	Mode         Mode                         `json:"mode"`
	Registered   bool                         `json:"registered"`
	TokenRotated bool                         `json:"tokenRotated"`
	Reused       bool                         `json:"reused"`
	Capability   capability.Capability        `json:"capability"`
	Permission   *capability.PermissionResult `json:"permission,omitempty"`
	Error        string                       `json:"error,omitempty"`
}

// RegistrarOptions holds registrar tunables.
type RegistrarOptions struct {
	TokenPattern   string
	TokenMinLength int
	RequestTimeout time.Duration
}

// Registrar drives permission -> token -> encrypt/store -> backend registration.
type Registrar struct {
	gate     PermissionGate
	provider TokenProvider
	devices  DeviceIdentityProvider
	tokens   *TokenStore
	api      RegistrationAPI
	log      logrus.FieldLogger

	pattern   *regexp.Regexp
	minLength int
	timeout   time.Duration
	now       func() time.Time

	flight  singleflight.Group
	pending sync.WaitGroup

	// commit serialises persisted registration writes against Unregister.
	commit sync.Mutex

	mu    sync.RWMutex
	state State
	user  model.UserIdentity
	gen   uint64
}

// NewRegistrar builds a Registrar.
func NewRegistrar(gate PermissionGate, provider TokenProvider, devices DeviceIdentityProvider, tokens *TokenStore, api RegistrationAPI, opts RegistrarOptions, log logrus.FieldLogger) (*Registrar, error) {
	pattern, err := regexp.Compile(opts.TokenPattern)
	if err != nil {
		return nil, fmt.Errorf("token pattern: %w", err)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 12 * time.Second
	}
	return &Registrar{
		gate:      gate,
		provider:  provider,
		devices:   devices,
		tokens:    tokens,
		api:       api,
		log:       log.WithField("component", "registrar"),
		pattern:   pattern,
		minLength: opts.TokenMinLength,
		timeout:   opts.RequestTimeout,
		now:       time.Now,
		state:     StateUninitialized,
	}, nil
}

// State returns the current lifecycle state.
func (r *Registrar) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// User returns the identity of the last Initialize call.
func (r *Registrar) User() model.UserIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.user
}

// Registration exposes the stored registration flags.
func (r *Registrar) Registration(ctx context.Context) Registration {
	return r.tokens.Registration(ctx)
}

// Initialize runs the registration pipeline for user. Concurrent calls share
// the in-flight run instead of acquiring and registering a second token.
// A run overtaken by Unregister persists nothing and returns ErrSessionEnded.
func (r *Registrar) Initialize(ctx context.Context, user model.UserIdentity, promptUser bool) (*RegistrationResult, error) {
	if user == nil {
		return nil, model.ErrMissingUserID
	}
	ctx = context.WithoutCancel(ctx)
	gen := r.generation()
	v, err, shared := r.flight.Do(fmt.Sprintf("initialize:%d", gen), func() (any, error) {
		return r.initialize(ctx, gen, user, promptUser)
	})
	if shared {
		r.log.Debug("initialize joined in-flight registration")
	}
	res, _ := v.(*RegistrationResult)
	if res != nil {
		copied := *res
		res = &copied
	}
	return res, err
}

func (r *Registrar) initialize(ctx context.Context, gen uint64, user model.UserIdentity, promptUser bool) (*RegistrationResult, error) {
	log := r.log.WithFields(logrus.Fields{"userId": user.UserID(), "role": user.Role()})
	r.setUser(gen, user)
	res := &RegistrationResult{Mode: ModeNone}

	res.Capability = r.gate.CheckCapability()
	if !res.Capability.Supported {
		r.setState(gen, StateUninitialized)
		res.State = StateUninitialized
		res.Error = res.Capability.Reason
		log.WithField("reason", res.Capability.Reason).Info("push unsupported")
		return res, fmt.Errorf("%w: %s", ErrUnsupported, res.Capability.Reason)
	}
	r.setState(gen, StateCapabilityChecked)

	perm := r.gate.RequestPermission(ctx, promptUser)
	res.Permission = &perm
	if !perm.Granted {
		res.State = StateCapabilityChecked
		res.Error = string(perm.Status)
		log.WithField("status", perm.Status).Info("permission not granted")
		return res, fmt.Errorf("%w: %s", ErrPermissionDenied, perm.Status)
	}
	r.setState(gen, StatePermissionGranted)

	token, err := r.provider.AcquireToken(ctx)
	if err != nil {
		res.State = StatePermissionGranted
		res.Error = err.Error()
		return res, fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	if err := r.validateToken(token); err != nil {
		res.State = StatePermissionGranted
		res.Error = err.Error()
		log.WithField("token", logger.Mask(token)).Warn("rejected malformed token")
		return res, err
	}
	r.setState(gen, StateTokenAcquired)

	stored, hasStored := r.tokens.Load(ctx)
	reg := r.tokens.Registration(ctx)
	res.TokenRotated = !hasStored || stored != token
	if !res.TokenRotated && reg.Registered && reg.UserID == user.UserID() {
		r.setState(gen, StateBackendRegistered)
		res.Success, res.Registered, res.Reused = true, true, true
		res.State, res.Mode = StateBackendRegistered, ModePush
		log.Debug("token unchanged and already registered")
		return res, nil
	}

	// the flag describes the previous registration until the backend accepts this one
	storedLocally := true
	r.commit.Lock()
	if !r.current(gen) {
		r.commit.Unlock()
		return r.ended(res, log)
	}
	if err := r.tokens.ClearRegistration(ctx); err != nil {
		log.WithError(err).Warn("reset registration flag")
	}
	if res.TokenRotated {
		if err := r.tokens.Save(ctx, token); err != nil {
			storedLocally = false
			log.WithError(err).Error("persist push token")
		}
	}
	r.commit.Unlock()
	if storedLocally {
		r.setState(gen, StateTokenStored)
	}

	if err := r.register(ctx, user, token); err != nil {
		if !r.current(gen) {
			return r.ended(res, log)
		}
		log.WithError(err).Warn("backend registration failed, continuing local-only")
		res.Error = err.Error()
		if !storedLocally {
			r.setState(gen, StateDegraded)
			res.State = StateDegraded
			return res, fmt.Errorf("%w: %v", ErrNotStored, err)
		}
		r.setState(gen, StateDegraded)
		res.Success, res.State, res.Mode = true, StateDegraded, ModeLocalOnly
		return res, nil
	}

	r.commit.Lock()
	if !r.current(gen) {
		r.commit.Unlock()
		// logout's deactivate may have reached the backend first
		r.deactivate(ctx, user.UserID())
		return r.ended(res, log)
	}
	if err := r.tokens.MarkRegistered(ctx, user.UserID(), r.now()); err != nil {
		log.WithError(err).Warn("persist registration flag")
	}
	r.setState(gen, StateBackendRegistered)
	r.commit.Unlock()
	res.Success, res.Registered = true, true
	res.State, res.Mode = StateBackendRegistered, ModePush
	log.WithField("rotated", res.TokenRotated).Info("push token registered")
	return res, nil
}

func (r *Registrar) ended(res *RegistrationResult, log logrus.FieldLogger) (*RegistrationResult, error) {
	log.Info("session ended while registering, discarding result")
	res.Success, res.Registered = false, false
	res.State, res.Mode = StateUninitialized, ModeNone
	res.Error = ErrSessionEnded.Error()
	return res, ErrSessionEnded
}

func (r *Registrar) register(ctx context.Context, user model.UserIdentity, token string) error {
	identity, err := r.devices.Identity(ctx)
	if err != nil {
		return fmt.Errorf("device identity: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err = r.api.RegisterPushToken(callCtx, apiclient.RegisterRequest{
		UserID:     user.UserID(),
		UserType:   user.Role(),
		Token:      token,
		Platform:   identity.Platform,
		DeviceID:   identity.DeviceID,
		DeviceName: identity.DeviceName,
		AppVersion: identity.AppVersion,
	})
	return err
}

func (r *Registrar) validateToken(token string) error {
	if len(token) < r.minLength {
		return fmt.Errorf("%w: shorter than %d characters", ErrInvalidTokenFormat, r.minLength)
	}
	if !r.pattern.MatchString(token) {
		return fmt.Errorf("%w: unexpected envelope", ErrInvalidTokenFormat)
	}
	return nil
}

// Unregister deactivates the token on the backend without waiting for the
// result, then always clears local state.
func (r *Registrar) Unregister(ctx context.Context) []ClearResult {
	userID := ""
	if u := r.User(); u != nil {
		userID = u.UserID()
	}
	if userID == "" {
		userID = r.tokens.Registration(ctx).UserID
	}

	r.commit.Lock()
	r.mu.Lock()
	r.gen++
	r.state = StateUninitialized
	r.user = nil
	r.mu.Unlock()
	r.commit.Unlock()

	if userID != "" {
		r.deactivate(ctx, userID)
	}
	return r.tokens.Clear(ctx)
}

// deactivate calls the backend in the background, tracked by Wait.
func (r *Registrar) deactivate(ctx context.Context, userID string) {
	if r.api == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		callCtx, cancel := context.WithTimeout(detached, r.timeout)
		defer cancel()
		if err := r.api.DeactivatePushTokens(callCtx, userID); err != nil {
			r.log.WithError(err).WithField("userId", userID).Warn("backend unregister failed")
			return
		}
		r.log.WithField("userId", userID).Info("backend tokens deactivated")
	}()
}

// Wait blocks until background unregister calls finish or ctx is done.
func (r *Registrar) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registrar) generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}

func (r *Registrar) current(gen uint64) bool {
	return r.generation() == gen
}

// setState and setUser are no-ops for a run that Unregister has overtaken.
func (r *Registrar) setState(gen uint64, s State) {
	r.mu.Lock()
	if r.gen == gen {
		r.state = s
	}
	r.mu.Unlock()
}

func (r *Registrar) setUser(gen uint64, u model.UserIdentity) {
	r.mu.Lock()
	if r.gen == gen {
		r.user = u
	}
	r.mu.Unlock()
}

// MaskedToken is a helper for status output.
func MaskedToken(token string) string {
	if strings.TrimSpace(token) == "" {
		return ""
	}
	return logger.Mask(token)
}
