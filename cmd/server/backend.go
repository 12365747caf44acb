package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jrsteele09/go-auth-session/internal/config"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/tokenstore"
	"github.com/jrsteele09/go-auth-session/tokenstore/sessionrepo"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// backend is where sessions and consumed authorization codes live.
type backend struct {
	opener  tokenstore.Opener
	ledger  session.CodeLedger
	log     zerolog.Logger
	cleanup []func() (int, error)
	closers []func() error
}

func openBackend(ctx context.Context, c *config.Config, logger zerolog.Logger) (*backend, error) {
	secure, fixed := c.SecureCookies()
	opts := tokenstore.CookieOptions{Secure: secure, SecureFixed: fixed, RefreshMaxAge: c.RefreshTokenMaxAge}
	b := &backend{log: logger.With().Str("component", "backend").Str("store", c.Session.Store).Logger()}

	switch c.Session.Store {
	case config.StoreCookie:
		b.opener = tokenstore.NewCookieStoreOpener(opts)

	case config.StoreMemory:
		repo := sessionrepo.NewInMemoryRepo()
		b.opener = tokenstore.NewServerStoreOpener(repo, opts)
		b.cleanup = append(b.cleanup, func() (int, error) { return repo.Cleanup(), nil })

	case config.StoreBolt:
		if err := os.MkdirAll(filepath.Dir(c.BoltPath), 0o700); err != nil {
			return nil, autherrors.Wrapf(err, "creating bolt directory")
		}
		repo, err := sessionrepo.OpenBoltRepo(c.BoltPath)
		if err != nil {
			return nil, err
		}
		b.opener = tokenstore.NewServerStoreOpener(repo, opts)
		b.cleanup = append(b.cleanup, repo.Cleanup)
		b.closers = append(b.closers, repo.Close)

	case config.StoreRedis:
		redisOpts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, autherrors.Wrapf(autherrors.ErrConfiguration, "parsing REDIS_URL: %s", err.Error())
		}
		client := redis.NewClient(redisOpts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, autherrors.Wrapf(err, "connecting to redis")
		}
		b.opener = tokenstore.NewServerStoreOpener(sessionrepo.NewRedisRepo(client), opts)
		b.ledger = session.NewRedisCodeLedger(client, c.CodeLedgerTTL)
		b.closers = append(b.closers, client.Close)

	default:
		return nil, autherrors.Wrapf(autherrors.ErrConfiguration, "unknown session store %q", c.Session.Store)
	}

	if b.ledger == nil {
		ledger := session.NewInMemoryCodeLedger(c.CodeLedgerTTL)
		b.ledger = ledger
		b.cleanup = append(b.cleanup, func() (int, error) {
			ledger.Cleanup()
			return 0, nil
		})
	}

	b.log.Info().Msg("session backend ready")
	return b, nil
}

// janitor drops expired sessions and ledger entries until ctx ends.
func (b *backend) janitor(ctx context.Context, every time.Duration) {
	if len(b.cleanup) == 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, fn := range b.cleanup {
				n, err := fn()
				if err != nil {
					b.log.Err(err).Msg("cleaning up expired sessions")
					continue
				}
				if n > 0 {
					b.log.Debug().Int("removed", n).Msg("expired sessions removed")
				}
			}
		}
	}
}

func (b *backend) Close() error {
	var result *multierror.Error
	for _, fn := range b.closers {
		if err := fn(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
