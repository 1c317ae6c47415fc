package campus

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"DormWatch/internal/model"
	"DormWatch/internal/retry"
)

// AuthVia tags how a session was obtained.
type AuthVia int

const (
	AuthFailed AuthVia = iota
	AuthViaCache
	AuthViaPassword
)

func (a AuthVia) String() string {
	switch a {
	case AuthViaCache:
		return "cache"
	case AuthViaPassword:
		return "password"
	default:
		return "failed"
	}
}

// Rooms names the two metered rooms.
type Rooms struct {
	Light string
	AC    string
}

// Source fetches one reading per call.
type Source struct {
	client   Client
	store    CredentialStore
	account  string
	password string
	rooms    Rooms
	loc      *time.Location
	now      func() time.Time
	policy   retry.Policy
	log      zerolog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithRetryPolicy replaces the default fetch retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Source) { s.policy = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the timezone readings are stamped in.
func WithLocation(loc *time.Location) Option {
	return func(s *Source) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewSource creates a Source. store may be nil to disable credential caching.
func NewSource(client Client, store CredentialStore, account, password string, rooms Rooms, log zerolog.Logger, opts ...Option) *Source {
	s := &Source{
		client:   client,
		store:    store,
		account:  account,
		password: password,
		rooms:    rooms,
		loc:      time.Local,
		now:      time.Now,
		policy:   retry.Default(),
		log:      log.With().Str("component", "campus").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the current balances, retrying the whole login-and-query
// sequence per the configured policy. The error is an *AuthError or a
// *QueryError from the last attempt.
func (s *Source) Fetch(ctx context.Context) (model.Reading, error) {
	p := s.policy
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("balance fetch failed, retrying")
	}
	return retry.DoValue(ctx, p, s.fetchOnce)
}

func (s *Source) fetchOnce(ctx context.Context) (model.Reading, error) {
	s.log.Info().Msg("logging in to campus system")
	sess, via, err := s.authenticate(ctx)
	if err != nil {
		return model.Reading{}, &AuthError{Err: err}
	}
	s.log.Info().Stringer("via", via).Msg("login succeeded")

	r, err := s.query(ctx, sess)
	if err != nil && via == AuthViaCache && errors.Is(err, ErrNotAuthenticated) {
		// The cached session was accepted by refresh but rejected by the
		// e-card service.
		s.log.Info().Err(err).Msg("cached session rejected, discarding and logging in with password")
		s.discard()
		if sess, err = s.loginWithPassword(ctx); err != nil {
			return model.Reading{}, &AuthError{Err: err}
		}
		r, err = s.query(ctx, sess)
	}
	return r, err
}

// query reads both balances through sess and closes it. Errors are
// *QueryError.
func (s *Source) query(ctx context.Context, sess Session) (model.Reading, error) {
	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			s.log.Debug().Err(err).Msg("close session")
		}
	}()

	card, err := sess.OpenECard(ctx)
	if err != nil {
		return model.Reading{}, &QueryError{Err: err}
	}
	defer func() {
		if err := card.Close(context.WithoutCancel(ctx)); err != nil {
			s.log.Debug().Err(err).Msg("close ecard session")
		}
	}()

	light, err := card.RemainingPower(ctx, s.rooms.Light)
	if err != nil {
		return model.Reading{}, &QueryError{Room: s.rooms.Light, Err: err}
	}
	ac, err := card.RemainingPower(ctx, s.rooms.AC)
	if err != nil {
		return model.Reading{}, &QueryError{Room: s.rooms.AC, Err: err}
	}

	r := model.NewReading(s.now(), s.loc, light, ac)
	s.log.Info().Float64("light", light).Float64("ac", ac).Msg("balances fetched")
	return r, nil
}

// authenticate tries the cached credential first and falls back to the
// account password. A cached credential that fails is deleted; a fresh
// password login is cached best-effort.
func (s *Source) authenticate(ctx context.Context) (Session, AuthVia, error) {
	if sess, ok := s.resumeFromCache(ctx); ok {
		return sess, AuthViaCache, nil
	}
	sess, err := s.loginWithPassword(ctx)
	if err != nil {
		return nil, AuthFailed, err
	}
	return sess, AuthViaPassword, nil
}

func (s *Source) loginWithPassword(ctx context.Context) (Session, error) {
	sess, err := s.client.Login(ctx, s.account, s.password)
	if err != nil {
		return nil, err
	}
	s.save(sess.Credential())
	return sess, nil
}

// save caches cred best-effort.
func (s *Source) save(cred Credential) {
	if s.store == nil {
		return
	}
	cred.SavedAt = s.now()
	if err := s.store.Save(cred); err != nil {
		s.log.Warn().Err(err).Msg("could not cache credential")
		return
	}
	s.log.Debug().Msg("credential cached")
}

func (s *Source) resumeFromCache(ctx context.Context) (Session, bool) {
	if s.store == nil {
		return nil, false
	}
	cred, err := s.store.Load()
	switch {
	case errors.Is(err, ErrNoCredential):
		s.log.Debug().Msg("no cached credential")
		return nil, false
	case err != nil:
		s.log.Warn().Err(err).Msg("cached credential unreadable, discarding")
		s.discard()
		return nil, false
	case !cred.Valid():
		s.log.Warn().Msg("cached credential incomplete, discarding")
		s.discard()
		return nil, false
	}

	sess, err := s.client.Resume(ctx, cred)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			s.log.Info().Msg("cached credential expired, discarding")
		} else {
			s.log.Warn().Err(err).Msg("login with cached credential failed, discarding")
		}
		s.discard()
		return nil, false
	}
	// Refresh may rotate the token pair; the old refresh token is then spent.
	if fresh := sess.Credential(); fresh.UserToken != cred.UserToken || fresh.RefreshToken != cred.RefreshToken {
		s.log.Debug().Msg("campus rotated tokens")
		s.save(fresh)
	}
	return sess, true
}

func (s *Source) discard() {
	if err := s.store.Delete(); err != nil {
		s.log.Warn().Err(err).Msg("could not delete cached credential")
	}
}
