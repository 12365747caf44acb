// Package session is the session lifecycle manager.
//
// It completes the authorization-code exchange, commits tokens to a
// tokenstore.Store, refreshes them on demand and reports a token-opaque
// status. The store is passed into every operation; the manager itself holds
// no per-browser state beyond in-flight call coalescing.
package session

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks . Provider

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-session/claims"
	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/jrsteele09/go-auth-session/tokens"
	"github.com/jrsteele09/go-auth-session/tokenstore"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Provider is the identity provider as the manager needs it.
type Provider interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (tokens.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (tokens.TokenSet, error)
	FetchUserInfo(ctx context.Context, accessToken string) (claims.View, error)
	Introspect(ctx context.Context, accessToken string) (bool, error)
	AuthCodeURL(state string) string
	LogoutURL(logoutURI string) string
	RedirectURI() string
}

// Store is the token store of the request being served.
type Store = tokenstore.Store

// DefaultReturnPath is where a completed sign-in lands without a usable state.
const DefaultReturnPath = "/dashboard"

// Manager runs the session lifecycle.
type Manager struct {
	provider          Provider
	ledger            CodeLedger
	exchanges         singleflight.Group
	refreshes         singleflight.Group
	rotations         *rotations
	rotationGrace     time.Duration
	defaultReturnPath string
	providerTimeout   time.Duration
	log               zerolog.Logger
	metrics           *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithCodeLedger replaces the in-memory ledger, e.g. with a RedisCodeLedger.
func WithCodeLedger(l CodeLedger) Option {
	return func(m *Manager) {
		if l != nil {
			m.ledger = l
		}
	}
}

func WithDefaultReturnPath(p string) Option {
	return func(m *Manager) {
		if p != "" {
			m.defaultReturnPath = p
		}
	}
}

// WithProviderTimeout bounds exchange and refresh calls, which run detached
// from the request that started them.
func WithProviderTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.providerTimeout = d
		}
	}
}

// WithRotationGrace sets how long a rotated refresh result is reused for
// requests still carrying the old refresh token. Zero disables reuse.
func WithRotationGrace(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.rotationGrace = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.log = l.With().Str("component", "session").Logger()
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a Manager for provider.
func NewManager(provider Provider, opts ...Option) *Manager {
	m := &Manager{
		provider:          provider,
		ledger:            NewInMemoryCodeLedger(DefaultCodeTTL),
		defaultReturnPath: DefaultReturnPath,
		providerTimeout:   15 * time.Second,
		rotationGrace:     DefaultRotationGrace,
		log:               zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.rotations = newRotations(m.rotationGrace)
	return m
}

// detached keeps the values of ctx but not its cancellation, so one caller
// giving up does not fail a provider call others are waiting on.
func (m *Manager) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.providerTimeout)
}
