package exchange

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstile/pkg/core"
	"turnstile/pkg/session"
)

type mockExchange struct {
	name        string
	snapshotErr error
	closeErr    error
	calls       atomic.Int32
	closed      atomic.Bool
}

func (m *mockExchange) Call(ctx context.Context, endpointID string, params core.Params) (*core.Outcome, error) {
	m.calls.Add(1)
	return &core.Outcome{Kind: core.OutcomeSuccess, Exchange: m.name, Endpoint: endpointID, StatusCode: 200}, nil
}

func (m *mockExchange) Snapshot(ctx context.Context) (*session.Snapshot, error) {
	return &session.Snapshot{Exchange: m.name, State: "ACTIVE"}, m.snapshotErr
}

func (m *mockExchange) Close() error {
	m.closed.Store(true)
	return m.closeErr
}

func TestContainer_NewContainer(t *testing.T) {
	c := NewContainer()
	assert.NotNil(t, c)
	assert.NotNil(t, c.exchanges)
}

func TestContainer_Register(t *testing.T) {
	c := NewContainer()
	ex := &mockExchange{name: "test"}

	c.Register("test", ex)
	assert.True(t, c.Exists("test"))
	assert.False(t, c.Exists("other"))
}

func TestContainer_Get(t *testing.T) {
	c := NewContainer()
	ex := &mockExchange{name: "test"}
	c.Register("test", ex)

	got, err := c.Get("test")
	require.NoError(t, err)
	assert.Equal(t, ex, got)

	_, err = c.Get("nonexistent")
	assert.Error(t, err)
}

func TestContainer_Call(t *testing.T) {
	c := NewContainer()
	ex := &mockExchange{name: "test"}
	c.Register("test", ex)

	out, err := c.Call(context.Background(), "test", "ticker", nil)
	require.NoError(t, err)
	assert.Equal(t, "ticker", out.Endpoint)
	assert.Equal(t, int32(1), ex.calls.Load())

	_, err = c.Call(context.Background(), "missing", "ticker", nil)
	assert.Error(t, err)
}

func TestContainer_Names(t *testing.T) {
	c := NewContainer()
	c.Register("okx", &mockExchange{name: "okx"})
	c.Register("binance", &mockExchange{name: "binance"})
	c.Register("bybit", &mockExchange{name: "bybit"})

	assert.Equal(t, []string{"binance", "bybit", "okx"}, c.Names())
}

func TestContainer_Unregister(t *testing.T) {
	c := NewContainer()
	ex := &mockExchange{name: "test"}
	c.Register("test", ex)

	assert.Equal(t, ex, c.Unregister("test"))
	assert.False(t, c.Exists("test"))
	assert.False(t, ex.closed.Load())
	assert.Nil(t, c.Unregister("test"))
}

func TestContainer_Status(t *testing.T) {
	c := NewContainer()
	c.Register("binance", &mockExchange{name: "binance"})
	c.Register("bybit", &mockExchange{name: "bybit", snapshotErr: errors.New("redis down")})
	c.Register("okx", &mockExchange{name: "okx"})

	status, err := c.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bybit: redis down")
	require.Len(t, status, 3)
	assert.Equal(t, "okx", status["okx"].Exchange)
}

func TestContainer_StatusEmpty(t *testing.T) {
	status, err := NewContainer().Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestContainer_Close(t *testing.T) {
	c := NewContainer()
	a := &mockExchange{name: "a"}
	b := &mockExchange{name: "b", closeErr: errors.New("boom")}
	c.Register("a", a)
	c.Register("b", b)

	err := c.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close b: boom")
	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
	assert.Empty(t, c.Names())
}

func TestOpen(t *testing.T) {
	c, err := Open([]*core.Config{
		core.DefaultConfig("binance"),
		core.DefaultConfig("bybit"),
		core.DefaultConfig("okx"),
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, []string{"binance", "bybit", "okx"}, c.Names())

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	for name, snap := range status {
		assert.Equal(t, name, snap.Exchange)
		assert.Equal(t, "NEW", snap.State)
		assert.NotEmpty(t, snap.Windows)
	}
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open([]*core.Config{core.DefaultConfig("binance"), core.DefaultConfig("binance")})
	assert.ErrorContains(t, err, "configured twice")

	_, err = Open([]*core.Config{core.DefaultConfig("binance"), core.DefaultConfig("kraken")})
	assert.ErrorContains(t, err, "open kraken")
}
