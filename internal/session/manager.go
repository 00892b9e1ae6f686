// Package session tracks the active identity for a connected client:
// who is signed in, what role their credential resolves to, and whether
// the initial resolution is still in flight. Consumers subscribe for
// state changes instead of polling.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/connectro/connect/internal/auth"
	"github.com/connectro/connect/internal/identity"
)

// ErrNotStarted is returned by operations that need a running manager.
var ErrNotStarted = errors.New("session manager not started")

// ErrNoSession is returned when an operation needs a signed-in identity
// and there is none.
var ErrNoSession = errors.New("no active session")

// State is a point-in-time snapshot of the session. Loading is true only
// between Start and the first resolution, mirroring the gate the UI uses
// to hold rendering until the role is known.
type State struct {
	User    *identity.User
	Role    auth.Role
	Token   string
	Loading bool
}

// SignedIn reports whether the state carries an identity.
func (s State) SignedIn() bool {
	return s.User != nil
}

// Subscription is a cancellable feed of session state changes. The
// channel coalesces: a slow reader sees the latest state, not every
// intermediate one.
type Subscription struct {
	C <-chan State

	cancelOnce sync.Once
	cancel     func()
}

// Cancel detaches the subscription and closes C. Safe to call twice.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(s.cancel)
}

// Option configures a Manager.
type Option func(*Manager)

// WithAnonymousBootstrap makes the manager create a throwaway anonymous
// identity whenever there is no session, including after sign-out and
// after a revocation-driven local sign-out.
func WithAnonymousBootstrap() Option {
	return func(m *Manager) { m.bootstrapAnonymous = true }
}

// WithRoleRefreshInterval makes the manager re-validate and reissue the
// credential on a timer, so server-side role changes surface without
// waiting for natural expiry.
func WithRoleRefreshInterval(d time.Duration) Option {
	return func(m *Manager) { m.refreshEvery = d }
}

// WithLastUIDStore persists the signed-in uid across restarts so the
// session can be restored instead of re-bootstrapped.
func WithLastUIDStore(store LastUIDStore) Option {
	return func(m *Manager) { m.persist = store }
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager resolves and tracks the active identity. All exported methods
// are safe for concurrent use.
type Manager struct {
	identities *identity.Service
	tokens     *auth.TokenService
	logger     *slog.Logger

	bootstrapAnonymous bool
	refreshEvery       time.Duration
	persist            LastUIDStore

	mu      sync.RWMutex
	state   State
	started bool
	subs    map[int]chan State
	nextID  int

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewManager creates a session manager over the identity service.
func NewManager(identities *identity.Service, tokens *auth.TokenService, opts ...Option) *Manager {
	m := &Manager{
		identities: identities,
		tokens:     tokens,
		logger:     slog.Default(),
		state:      State{Role: auth.RoleAdolescent, Loading: true},
		subs:       make(map[int]chan State),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start resolves the initial identity: a persisted session if one can be
// restored, an anonymous bootstrap if configured, or the signed-out
// state. The loading flag drops exactly once, here, regardless of which
// path resolves.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("session manager already started")
	}
	m.started = true
	m.mu.Unlock()

	if err := m.resolveInitial(ctx); err != nil {
		return err
	}

	if m.refreshEvery > 0 {
		m.wg.Add(1)
		go m.refreshLoop(ctx)
	}
	return nil
}

func (m *Manager) resolveInitial(ctx context.Context) error {
	if m.persist != nil {
		uid, err := m.persist.Load(ctx)
		if err != nil {
			m.logger.Warn("failed to load persisted session", "error", err)
		} else if uid != "" {
			if restoreErr := m.adopt(ctx, uid); restoreErr == nil {
				return nil
			} else if !errors.Is(restoreErr, identity.ErrUserNotFound) {
				return restoreErr
			}
			// Stale uid, fall through to bootstrap.
			if err := m.persist.Clear(ctx); err != nil {
				m.logger.Warn("failed to clear stale session", "error", err)
			}
		}
	}

	if m.bootstrapAnonymous {
		return m.bootstrap(ctx)
	}

	m.setState(State{Role: auth.RoleAdolescent})
	return nil
}

// Current returns the current session state.
func (m *Manager) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe registers a feed of session state changes. The current state
// is delivered immediately.
func (m *Manager) Subscribe() *Subscription {
	ch := make(chan State, 1)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	ch <- m.state
	m.mu.Unlock()

	return &Subscription{
		C: ch,
		cancel: func() {
			m.mu.Lock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
			m.mu.Unlock()
		},
	}
}

// SignInWithName signs in via the name login. On success the previous
// session, anonymous or not, is replaced.
func (m *Manager) SignInWithName(ctx context.Context, name, password string) (State, error) {
	if err := m.requireStarted(); err != nil {
		return State{}, err
	}

	u, token, err := m.identities.LoginWithName(ctx, name, password)
	if err != nil {
		return State{}, err
	}

	st := m.install(ctx, u, token)
	m.logger.Info("signed in", "user_uid", u.UID, "role", string(st.Role))
	return st, nil
}

// SignOut drops the current identity. With anonymous bootstrap enabled a
// fresh throwaway identity replaces it; otherwise the session goes empty.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.requireStarted(); err != nil {
		return err
	}

	if m.persist != nil {
		if err := m.persist.Clear(ctx); err != nil {
			m.logger.Warn("failed to clear persisted session", "error", err)
		}
	}

	if m.bootstrapAnonymous {
		return m.bootstrap(ctx)
	}
	m.setState(State{Role: auth.RoleAdolescent})
	return nil
}

// RefreshRole forces a credential refresh for the current identity and
// recomputes the role from the fresh claim set. It is how a just-promoted
// user picks up their new role without signing out.
func (m *Manager) RefreshRole(ctx context.Context) (State, error) {
	if err := m.requireStarted(); err != nil {
		return State{}, err
	}

	cur := m.Current()
	if !cur.SignedIn() {
		return State{}, ErrNoSession
	}

	u, token, err := m.identities.ReissueToken(ctx, cur.User.UID)
	if err != nil {
		return State{}, fmt.Errorf("refreshing credential: %w", err)
	}
	return m.install(ctx, u, token), nil
}

// Stop halts the refresh loop and closes all subscriptions.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()

	m.mu.Lock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()
}

func (m *Manager) requireStarted() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.started {
		return ErrNotStarted
	}
	return nil
}

// adopt restores a session for a known uid by reissuing a credential.
func (m *Manager) adopt(ctx context.Context, uid string) error {
	u, token, err := m.identities.ReissueToken(ctx, uid)
	if err != nil {
		return err
	}
	m.install(ctx, u, token)
	m.logger.Info("session restored", "user_uid", uid)
	return nil
}

func (m *Manager) bootstrap(ctx context.Context) error {
	u, token, err := m.identities.BootstrapAnonymous(ctx)
	if err != nil {
		return fmt.Errorf("bootstrapping anonymous session: %w", err)
	}
	m.install(ctx, u, token)
	return nil
}

// install makes the given identity current and notifies subscribers.
func (m *Manager) install(ctx context.Context, u *identity.User, token string) State {
	st := State{
		User:  u,
		Role:  roleFor(u),
		Token: token,
	}
	m.setState(st)

	if m.persist != nil {
		if err := m.persist.Save(ctx, u.UID); err != nil {
			m.logger.Warn("failed to persist session", "error", err)
		}
	}
	return st
}

func (m *Manager) setState(st State) {
	m.mu.Lock()
	m.state = st
	for _, ch := range m.subs {
		// Coalesce: drop the undelivered previous state, keep the latest.
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
	m.mu.Unlock()
}

// refreshLoop periodically re-validates the credential. A revoked
// credential triggers a local sign-out and, when configured, an
// anonymous re-bootstrap; the user re-authenticates to regain their
// named identity. Any other validation failure just reissues.
func (m *Manager) refreshLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refreshTick(ctx)
		}
	}
}

func (m *Manager) refreshTick(ctx context.Context) {
	cur := m.Current()
	if !cur.SignedIn() {
		return
	}

	if _, err := m.tokens.Validate(ctx, cur.Token); err != nil {
		if errors.Is(err, auth.ErrTokenRevoked) {
			m.logger.Info("credential revoked, signing out", "user_uid", cur.User.UID)
			if err := m.SignOut(ctx); err != nil {
				m.logger.Error("failed to reset session after revocation", "error", err)
			}
			return
		}
		m.logger.Debug("credential stale, reissuing", "user_uid", cur.User.UID, "error", err)
	}

	if _, err := m.RefreshRole(ctx); err != nil {
		m.logger.Warn("failed to refresh role", "user_uid", cur.User.UID, "error", err)
	}
}

// roleFor derives the session role from the account's claims. Anonymous
// and unclaimed accounts act as adolescents.
func roleFor(u *identity.User) auth.Role {
	return auth.DeriveRole(u.Claims)
}
