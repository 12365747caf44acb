package authclient

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/claims"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Phase is what a UI can observe about the session.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseAuthenticated
	PhaseAnonymous
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseAnonymous:
		return "anonymous"
	}
	return "unknown"
}

// Snapshot is one consistent view of the session. User is non-nil exactly
// when Phase is PhaseAuthenticated. Err is the last failure, kept for display.
type Snapshot struct {
	Phase Phase
	User  claims.View
	Err   error
}

func (s Snapshot) Authenticated() bool {
	return s.Phase == PhaseAuthenticated
}

// ErrSuperseded is returned by an operation whose result was discarded
// because a later operation changed the session first.
var ErrSuperseded = autherrors.New("superseded by a later session operation")

// Navigator moves the user agent to another page.
type Navigator interface {
	Navigate(url string)
}

type NavigatorFunc func(url string)

func (f NavigatorFunc) Navigate(url string) { f(url) }

// Synchronizer holds the client side session state.
//
// Every operation captures the generation current when it starts and only
// applies its result if no later operation has started a new one. Listeners
// are called in the order the state changed, one at a time; a listener must
// not call back into the Synchronizer's operations synchronously.
type Synchronizer struct {
	client    *Client
	nav       Navigator
	log       zerolog.Logger
	home      string
	refreshes singleflight.Group

	mu     sync.Mutex
	snap   Snapshot
	gen    uint64
	subs   map[int]func(Snapshot)
	nextID int

	// Notifications go out in ticket order.
	deliver   sync.Mutex
	turn      *sync.Cond
	ticket    uint64
	delivered uint64
}

// refreshTimeout bounds a shared refresh, which outlives the callers waiting on it.
const refreshTimeout = 30 * time.Second

type SyncOption func(*Synchronizer)

func WithNavigator(n Navigator) SyncOption {
	return func(s *Synchronizer) { s.nav = n }
}

func WithSyncLogger(l zerolog.Logger) SyncOption {
	return func(s *Synchronizer) { s.log = l.With().Str("component", "authclient").Logger() }
}

// WithHomePath is where a local sign out navigates to. Defaults to "/".
func WithHomePath(p string) SyncOption {
	return func(s *Synchronizer) {
		if p != "" {
			s.home = p
		}
	}
}

func NewSynchronizer(client *Client, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		client: client,
		nav:    NavigatorFunc(func(string) {}),
		log:    zerolog.Nop(),
		home:   "/",
		snap:   Snapshot{Phase: PhaseLoading},
		subs:   map[int]func(Snapshot){},
	}
	s.turn = sync.NewCond(&s.deliver)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers fn for every later state change and returns a function
// that removes it.
func (s *Synchronizer) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// begin starts a new generation, superseding every operation in flight.
func (s *Synchronizer) begin(loading bool) uint64 {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if !loading || s.snap.Phase == PhaseLoading {
		s.mu.Unlock()
		return gen
	}
	s.publishLocked(Snapshot{Phase: PhaseLoading})
	return gen
}

func (s *Synchronizer) current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// settle applies snap if gen is still current.
func (s *Synchronizer) settle(gen uint64, snap Snapshot) bool {
	if snap.Phase == PhaseAuthenticated && snap.User == nil {
		snap = Snapshot{Phase: PhaseAnonymous, Err: snap.Err}
	}
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return false
	}
	if snap.Phase == PhaseAnonymous && s.snap.Phase == PhaseAnonymous && snap.Err == nil && s.snap.Err == nil {
		s.mu.Unlock()
		return true
	}
	s.publishLocked(snap)
	return true
}

// publishLocked stores snap and notifies listeners. Called with mu held; returns with it released.
func (s *Synchronizer) publishLocked(snap Snapshot) {
	s.snap = snap
	subs := make([]func(Snapshot), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.ticket++
	ticket := s.ticket
	s.mu.Unlock()

	s.deliver.Lock()
	for s.delivered+1 != ticket {
		s.turn.Wait()
	}
	defer func() {
		s.delivered = ticket
		s.turn.Broadcast()
		s.deliver.Unlock()
	}()
	for _, fn := range subs {
		fn(snap)
	}
}

// Init resolves the initial state. Without the authenticated flag the user is
// anonymous without a round trip; otherwise the profile is fetched with one
// refresh retry, and any failure after that settles to anonymous.
func (s *Synchronizer) Init(ctx context.Context) error {
	gen := s.begin(true)

	if !s.client.HasAuthenticatedFlag() {
		s.settle(gen, Snapshot{Phase: PhaseAnonymous})
		return nil
	}

	user, err := WithRefreshRetry(ctx, s.refreshFor(gen), s.client.User)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		snap := Snapshot{Phase: PhaseAnonymous}
		if !autherrors.Is(err, ErrUnauthorized) {
			snap.Err = err
		}
		if !s.settle(gen, snap) {
			return ErrSuperseded
		}
		s.log.Debug().Err(err).Msg("session not restored")
		return nil
	}
	if !s.settle(gen, Snapshot{Phase: PhaseAuthenticated, User: user.User}) {
		return ErrSuperseded
	}
	return nil
}

// SignIn navigates to the service's sign-in route.
func (s *Synchronizer) SignIn(returnTo string) {
	s.nav.Navigate(s.client.LoginURL(returnTo))
}

// SignOut ends both the local and the provider session.
func (s *Synchronizer) SignOut(ctx context.Context) error {
	return s.SignOutSSO(ctx)
}

// SignOutLocal clears the local session and navigates home.
func (s *Synchronizer) SignOutLocal(ctx context.Context) error {
	gen := s.begin(false)
	if _, err := s.client.SignOut(ctx, false); err != nil {
		s.recordErr(gen, err)
		return err
	}
	if !s.settle(gen, Snapshot{Phase: PhaseAnonymous}) {
		return ErrSuperseded
	}
	s.nav.Navigate(s.home)
	return nil
}

// SignOutSSO clears the local session and navigates to the provider logout.
func (s *Synchronizer) SignOutSSO(ctx context.Context) error {
	gen := s.begin(false)
	redirect, err := s.client.SignOut(ctx, true)
	if err != nil {
		s.recordErr(gen, err)
		return err
	}
	if !s.settle(gen, Snapshot{Phase: PhaseAnonymous}) {
		return ErrSuperseded
	}
	if redirect != "" {
		s.nav.Navigate(redirect)
	}
	return nil
}

// Refresh rotates the tokens. Concurrent calls share one request. A
// rejected refresh settles the state to anonymous.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.refreshFor(s.current())(ctx)
}

func (s *Synchronizer) refreshFor(gen uint64) func(context.Context) error {
	return func(ctx context.Context) error {
		ch := s.refreshes.DoChan("refresh", func() (any, error) {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
			defer cancel()
			_, err := s.client.Refresh(rctx)
			return nil, err
		})
		var res singleflight.Result
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res = <-ch:
		}
		if res.Err != nil && autherrors.Is(res.Err, ErrUnauthorized) {
			s.settle(gen, Snapshot{Phase: PhaseAnonymous})
		}
		return res.Err
	}
}

// AccessToken returns a bearer token, refreshing once if the service has none.
func (s *Synchronizer) AccessToken(ctx context.Context) (string, error) {
	return WithRefreshRetry(ctx, s.refreshFor(s.current()), s.client.Token)
}

// Do sends req with a bearer token. A call refreshes at most once: either
// to obtain the token or after a 401 from the API, followed by one retry
// whose answer is returned whatever it is. Requests with a body must support
// GetBody to be retried.
func (s *Synchronizer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	gen := s.current()
	refresh := s.refreshFor(gen)
	refreshed := false
	token, err := WithRefreshRetry(ctx, func(ctx context.Context) error {
		refreshed = true
		return refresh(ctx)
	}, s.client.Token)
	if err != nil {
		return nil, err
	}
	resp, err := s.send(ctx, req, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if refreshed || (req.Body != nil && req.GetBody == nil) {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()

	if err := refresh(ctx); err != nil {
		return nil, err
	}
	token, err = s.client.Token(ctx)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, req, token)
}

func (s *Synchronizer) send(ctx context.Context, req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, autherrors.Wrapf(err, "[authclient Do] rewinding request body")
		}
		out.Body = body
	}
	out.Header.Set("Authorization", "Bearer "+token)
	return s.client.Do(out)
}

func (s *Synchronizer) recordErr(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	snap := s.snap
	snap.Err = err
	s.publishLocked(snap)
}
