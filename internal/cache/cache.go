package cache

import (
	"context"
	"errors"
)

// CartCache holds the rendered cart response per user so repeated GET /cart
// calls skip the product join. Values are the serialized JSON body; every cart
// mutation and the checkout clear must Delete the user's entry.
type CartCache interface {
	Get(ctx context.Context, userID string) ([]byte, error)
	Set(ctx context.Context, userID string, body []byte) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Noop is used when no Redis address is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, error) { return nil, ErrCacheMiss }

func (Noop) Set(context.Context, string, []byte) error { return nil }

func (Noop) Delete(context.Context, string) error { return nil }
