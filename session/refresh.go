package session

import (
	"context"
	"errors"
	"fmt"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/jrsteele09/go-auth-session/tokens"
	"github.com/jrsteele09/go-auth-session/tokenstore"
)

// Refresh redeems the stored refresh token and rotates the session.
//
// Concurrent refreshes of one session share a single provider call, and a
// refresh token that was rotated away within the grace window resolves to
// the rotation that retired it. A caller whose ctx ends first gets
// ctx.Err() and writes nothing. Any provider failure clears the session
// (fail-closed) unless a newer session replaced it meanwhile. Errors other
// than ErrRefreshFailed and ErrNoRefreshToken come from the store.
func (m *Manager) Refresh(ctx context.Context, store Store) (tokens.TokenSet, error) {
	prev, err := store.Get(ctx)
	if err != nil {
		return tokens.TokenSet{}, autherrors.Wrapf(err, "[session Refresh] reading session")
	}
	a := m.newAttempt("refresh", stateOf(prev))

	if prev.RefreshToken == "" {
		m.metrics.IncRefresh(metrics.ResultFailure)
		if err := store.Expire(ctx, prev); err != nil {
			return tokens.TokenSet{}, autherrors.Wrapf(err, "[session Refresh] clearing session")
		}
		return tokens.TokenSet{}, autherrors.ErrNoRefreshToken
	}
	if err := a.to(StateRefreshing); err != nil {
		return tokens.TokenSet{}, err
	}

	ts, shared, err := m.redeem(ctx, prev)
	if cerr := ctx.Err(); cerr != nil {
		m.log.Debug().Msg("refresh abandoned by caller")
		return tokens.TokenSet{}, cerr
	}
	if shared {
		m.metrics.IncRefreshCoalesced()
	}

	if err != nil {
		_ = a.to(StateAnonymous)
		m.metrics.IncRefresh(metrics.ResultFailure)
		m.log.Warn().Err(err).Msg("refresh failed, signing session out")
		if err := store.Expire(ctx, prev); err != nil {
			return tokens.TokenSet{}, autherrors.Wrapf(err, "[session Refresh] clearing session")
		}
		if errors.Is(err, autherrors.ErrRefreshFailed) {
			return tokens.TokenSet{}, err
		}
		return tokens.TokenSet{}, fmt.Errorf("%w: %w", autherrors.ErrRefreshFailed, err)
	}

	current, err := store.Rotate(ctx, prev, ts)
	switch {
	case errors.Is(err, autherrors.ErrStaleSession):
		// Someone else wrote first; their session stands.
		m.metrics.IncRefresh(metrics.ResultStale)
		if !current.Authenticated() {
			_ = a.to(StateAnonymous)
			return tokens.TokenSet{}, autherrors.ErrNotAuthenticated
		}
		_ = a.to(StateAuthenticated)
		return ts, nil
	case err != nil:
		m.metrics.IncRefresh(metrics.ResultFailure)
		_ = a.to(StateAnonymous)
		if cerr := store.Expire(ctx, prev); cerr != nil {
			m.log.Err(cerr).Msg("clearing session after failed rotation")
		}
		return tokens.TokenSet{}, autherrors.Wrapf(err, "[session Refresh] storing tokens")
	}

	if err := a.to(StateAuthenticated); err != nil {
		return tokens.TokenSet{}, err
	}
	m.metrics.IncRefresh(metrics.ResultSuccess)
	return ts, nil
}

// redeem trades prev's refresh token for a new token set. The bool reports
// that the result came from another caller's provider call.
func (m *Manager) redeem(ctx context.Context, prev tokenstore.Session) (tokens.TokenSet, bool, error) {
	redeemed := digest(prev.RefreshToken)
	if ts, ok := m.rotations.get(redeemed); ok {
		m.log.Debug().Msg("refresh token already rotated, reusing its result")
		return ts, true, nil
	}

	leader := false
	ch := m.refreshes.DoChan(prev.Key, func() (any, error) {
		leader = true
		pctx, cancel := m.detached(ctx)
		defer cancel()
		ts, err := m.provider.Refresh(pctx, prev.RefreshToken)
		if err == nil && ts.HasRefreshToken() && ts.RefreshTokenValue() != prev.RefreshToken {
			m.rotations.put(redeemed, ts)
		}
		return ts, err
	})

	select {
	case <-ctx.Done():
		return tokens.TokenSet{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return tokens.TokenSet{}, !leader, res.Err
		}
		return res.Val.(tokens.TokenSet), !leader, nil
	}
}
