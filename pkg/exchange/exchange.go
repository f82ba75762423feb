// Package exchange holds the sessions of several venues behind one registry.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"turnstile/pkg/core"
	"turnstile/pkg/session"

	// Register the built-in venues.
	_ "turnstile/pkg/venue/binance"
	_ "turnstile/pkg/venue/bybit"
	_ "turnstile/pkg/venue/okx"
)

// Exchange is one venue session as seen by the container.
// *session.Session implements it.
type Exchange interface {
	Call(ctx context.Context, endpointID string, params core.Params) (*core.Outcome, error)
	Snapshot(ctx context.Context) (*session.Snapshot, error)
	Close() error
}

var _ Exchange = (*session.Session)(nil)

// Open creates one session per config and registers each under its exchange name.
// On failure every session created so far is closed.
func Open(configs []*core.Config, opts ...session.Option) (*Container, error) {
	c := NewContainer()
	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		if c.Exists(cfg.Exchange) {
			return nil, errors.Join(fmt.Errorf("exchange %q configured twice", cfg.Exchange), c.Close())
		}
		s, err := session.New(cfg, opts...)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("open %s: %w", cfg.Exchange, err), c.Close())
		}
		c.Register(cfg.Exchange, s)
	}
	return c, nil
}
