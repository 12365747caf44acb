package authclient

import (
	"context"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// WithRefreshRetry runs call. If it fails with ErrUnauthorized, refresh runs
// once and call is retried exactly once more; whatever happens then is final.
// A failed refresh is returned instead of the first call's error.
func WithRefreshRetry[T any](ctx context.Context, refresh func(context.Context) error, call func(context.Context) (T, error)) (T, error) {
	v, err := call(ctx)
	if err == nil || !autherrors.Is(err, ErrUnauthorized) {
		return v, err
	}
	if err := refresh(ctx); err != nil {
		var zero T
		return zero, err
	}
	return call(ctx)
}
