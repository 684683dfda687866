package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/moviescrud/backend/internal/errs"
	"github.com/moviescrud/backend/internal/logging"
	"github.com/moviescrud/backend/internal/metrics"
	"github.com/moviescrud/backend/internal/models"
)

// ErrSessionUnavailable is surfaced when a sign-in without identity could not be
// resolved by re-fetching the session.
var ErrSessionUnavailable = errors.New("session unavailable")

var (
	errStaleLoad      = errors.New("profile load superseded")
	errAlreadyRunning = errors.New("session machine already running")
)

// ProfileClient fetches and lazily creates profiles.
type ProfileClient interface {
	GetProfile(ctx context.Context, identityID string) (models.Profile, error)
	CreateProfile(ctx context.Context, identityID, username string) (models.Profile, error)
}

// SessionSource re-reads the current session from the backend.
type SessionSource interface {
	GetSession(ctx context.Context) (*models.Session, error)
}

// Options tunes retries. Zero values select the defaults.
type Options struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	InitialBackoff time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

type profileResult struct {
	generation uint64
	identityID string
	profile    models.Profile
	err        error
}

type sessionResult struct {
	epoch   uint64
	session *models.Session
	err     error
}

// Machine is the session reconciliation state machine. Every transition runs
// on the goroutine executing Run; profile loads and session re-fetches run on
// their own goroutines and report back through channels.
type Machine struct {
	store    *Store
	profiles ProfileClient
	sessions SessionSource
	opts     Options
	logger   *slog.Logger

	events   chan Event
	profileC chan profileResult
	sessionC chan sessionResult
	running  atomic.Bool

	// generation identifies the current profile load; loaders read it concurrently.
	generation atomic.Uint64
	cancelLoad context.CancelFunc

	// owned by the Run goroutine
	snap       Snapshot
	epoch      uint64
	refetching bool
}

// NewMachine builds a machine writing to store. sessions may be nil, in which
// case a sign-in without identity fails immediately.
func NewMachine(store *Store, profiles ProfileClient, sessions SessionSource, opts Options) *Machine {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 5 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 200 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		store:    store,
		profiles: profiles,
		sessions: sessions,
		opts:     opts,
		logger:   logger.With("component", "session"),
		events:   make(chan Event, 32),
		profileC: make(chan profileResult),
		sessionC: make(chan sessionResult),
	}
}

// Store returns the store written by the machine.
func (m *Machine) Store() *Store {
	return m.store
}

// Dispatch queues evt for the machine. It may be called before Run starts.
func (m *Machine) Dispatch(ctx context.Context, evt Event) error {
	select {
	case m.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx ends. It returns ctx.Err().
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	defer m.running.Store(false)
	defer m.stopLoad()

	m.snap = m.store.Snapshot()
	if m.snap.State == Uninitialized {
		m.snap.State = Initializing
		m.commit()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-m.events:
			m.handle(ctx, evt)
		case res := <-m.profileC:
			m.applyProfile(res)
		case res := <-m.sessionC:
			m.applySession(ctx, res)
		}
	}
}

func (m *Machine) handle(ctx context.Context, evt Event) {
	m.logger.Debug("auth event", "event", evt.Kind.String(), "state", m.snap.State.String(), "identityId", evt.identityID())

	switch evt.Kind {
	case InitialSession:
		if m.snap.State != Initializing {
			m.logger.Debug("ignoring duplicate initial session")
			return
		}
		if evt.Session == nil || evt.Session.Identity.ID == "" {
			m.becomeAnonymous()
			return
		}
		m.switchIdentity(ctx, evt.Session)
	case SignedOut:
		m.becomeAnonymous()
	case SignedIn:
		m.signedIn(ctx, evt.Session)
	case TokenRefreshed:
		if m.snap.State != Authenticated || evt.Session == nil || evt.Session.Identity.ID != m.snap.identityID() {
			m.logger.Debug("ignoring stale token refresh")
			return
		}
		m.replaceTokens(evt.Session)
	case ProfileInvalidated:
		if m.snap.State != Authenticated || evt.IdentityID == "" || evt.IdentityID != m.snap.identityID() {
			m.logger.Debug("ignoring profile invalidation for another identity", "identityId", evt.IdentityID)
			return
		}
		m.startLoad(ctx)
	default:
		m.logger.Warn("unknown auth event", "kind", int(evt.Kind))
	}
}

func (m *Machine) signedIn(ctx context.Context, session *models.Session) {
	if session == nil || session.Identity.ID == "" {
		m.startRefetch(ctx)
		return
	}
	if m.snap.State == Authenticated && session.Identity.ID == m.snap.identityID() {
		m.replaceTokens(session)
		return
	}
	m.switchIdentity(ctx, session)
}

// switchIdentity installs a new identity, drops the old profile and loads the new one.
func (m *Machine) switchIdentity(ctx context.Context, session *models.Session) {
	m.epoch++
	m.snap = Snapshot{State: Authenticated, Session: cloneSession(session)}
	m.startLoad(ctx)
}

func (m *Machine) replaceTokens(session *models.Session) {
	m.epoch++
	m.snap.Session = cloneSession(session)
	m.snap.SessionErr = nil
	m.commit()
}

func (m *Machine) becomeAnonymous() {
	m.stopLoad()
	m.epoch++
	m.snap = Snapshot{State: Anonymous}
	m.commit()
}

func (m *Machine) commit() {
	m.store.set(m.snap)
}

// startLoad supersedes any load in flight and fetches the profile of the
// current identity. The previous profile stays visible while loading.
func (m *Machine) startLoad(ctx context.Context) {
	m.stopLoad()
	generation := m.generation.Add(1)
	identity := m.snap.Session.Identity

	m.snap.ProfileStatus = ProfileLoading
	m.commit()

	loadCtx, cancel := context.WithCancel(ctx)
	m.cancelLoad = cancel
	go m.loadProfile(loadCtx, generation, identity)
}

func (m *Machine) stopLoad() {
	if m.cancelLoad != nil {
		m.cancelLoad()
		m.cancelLoad = nil
	}
	m.generation.Add(1)
}

// current reports whether a load issued as generation for identityID is still wanted.
func (m *Machine) current(generation uint64, identityID string) bool {
	return m.generation.Load() == generation && m.store.Snapshot().identityID() == identityID
}

func (m *Machine) loadProfile(ctx context.Context, generation uint64, identity models.Identity) {
	ctx, span := logging.StartSpan(logging.WithLogger(ctx, m.logger), "session.load_profile")
	var profile models.Profile
	attempts := 0

	operation := func() error {
		attempts++
		if !m.current(generation, identity.ID) {
			return backoff.Permanent(errStaleLoad)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, m.opts.AttemptTimeout)
		defer cancel()

		p, err := m.fetchOrCreate(attemptCtx, generation, identity)
		if err == nil {
			profile = p
			return nil
		}
		if ctx.Err() == nil && retryable(err) {
			logging.FromContext(ctx).Debug("profile load attempt failed", "attempt", attempts, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, m.policy(ctx))
	span.Fail(err)
	span.End()

	select {
	case m.profileC <- profileResult{generation: generation, identityID: identity.ID, profile: profile, err: err}:
	case <-ctx.Done():
	}
}

// fetchOrCreate reads the profile and lazily creates it when absent. When
// another client won the creation race the profile is read again.
func (m *Machine) fetchOrCreate(ctx context.Context, generation uint64, identity models.Identity) (models.Profile, error) {
	profile, err := m.profiles.GetProfile(ctx, identity.ID)
	if err == nil || !errors.Is(err, errs.ErrNotFound) {
		return profile, err
	}
	if !m.current(generation, identity.ID) {
		return models.Profile{}, errStaleLoad
	}

	profile, err = m.profiles.CreateProfile(ctx, identity.ID, identity.DefaultUsername())
	if err == nil || !errors.Is(err, errs.ErrAlreadyExists) {
		return profile, err
	}
	if !m.current(generation, identity.ID) {
		return models.Profile{}, errStaleLoad
	}
	return m.profiles.GetProfile(ctx, identity.ID)
}

func retryable(err error) bool {
	return errs.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

func (m *Machine) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = m.opts.InitialBackoff
	exp.MaxInterval = 16 * m.opts.InitialBackoff
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(m.opts.MaxAttempts-1)), ctx)
}

func (m *Machine) applyProfile(res profileResult) {
	if res.generation != m.generation.Load() || res.identityID != m.snap.identityID() || m.snap.State != Authenticated {
		m.logger.Debug("discarding stale profile load", "identityId", res.identityID)
		return
	}
	if m.cancelLoad != nil {
		m.cancelLoad()
		m.cancelLoad = nil
	}

	if res.err != nil {
		if errors.Is(res.err, errStaleLoad) {
			return
		}
		m.opts.Metrics.ProfileLoaded("failed")
		m.logger.Warn("profile load failed", "identityId", res.identityID, "error", res.err)
		m.snap.ProfileStatus = ProfileFailed
		m.snap.ProfileErr = res.err
		m.commit()
		return
	}

	m.opts.Metrics.ProfileLoaded("ready")
	profile := res.profile
	m.snap.Profile = &profile
	m.snap.ProfileStatus = ProfileReady
	m.snap.ProfileErr = nil
	m.commit()
}

// startRefetch re-reads the session with bounded retries after a sign-in that
// carried no identity. Existing state is left alone meanwhile.
func (m *Machine) startRefetch(ctx context.Context) {
	if m.refetching {
		return
	}
	if m.sessions == nil {
		m.failRefetch(fmt.Errorf("%w: no session source", ErrSessionUnavailable))
		return
	}
	m.refetching = true
	epoch := m.epoch

	go func() {
		var session *models.Session
		operation := func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, m.opts.AttemptTimeout)
			defer cancel()
			s, err := m.sessions.GetSession(attemptCtx)
			if err != nil {
				if errors.Is(err, errs.ErrUnauthorized) {
					return backoff.Permanent(err)
				}
				return err
			}
			if s == nil || s.Identity.ID == "" {
				return ErrSessionUnavailable
			}
			session = s
			return nil
		}
		err := backoff.Retry(operation, m.policy(ctx))
		select {
		case m.sessionC <- sessionResult{epoch: epoch, session: session, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (m *Machine) applySession(ctx context.Context, res sessionResult) {
	m.refetching = false
	if res.epoch != m.epoch {
		m.logger.Debug("discarding stale session re-fetch")
		return
	}
	if res.err != nil {
		m.failRefetch(res.err)
		return
	}
	m.signedIn(ctx, res.session)
}

func (m *Machine) failRefetch(err error) {
	if !errors.Is(err, ErrSessionUnavailable) {
		err = fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	m.logger.Warn("session re-fetch failed", "error", err)
	m.snap.SessionErr = err
	if m.snap.State == Initializing {
		// nothing to keep; give up on initialization
		m.snap.State = Anonymous
	}
	m.commit()
}

func cloneSession(s *models.Session) *models.Session {
	c := *s
	return &c
}
