// Package keyring rotates between several API keys for one venue account.
package keyring

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"turnstile/internal/clock"
	"turnstile/pkg/core"
)

type RotationStrategy int

const (
	// RotationNone always uses the first enabled key.
	RotationNone RotationStrategy = iota
	// RotationRoundRobin moves to the next key after every reveal.
	RotationRoundRobin
	// RotationOnFailure moves to the next key when the venue rejects the current one.
	RotationOnFailure
)

func (s RotationStrategy) String() string {
	switch s {
	case RotationRoundRobin:
		return "round_robin"
	case RotationOnFailure:
		return "on_failure"
	default:
		return "none"
	}
}

// ParseStrategy reads the config spelling of a strategy. Empty means none.
func ParseStrategy(s string) (RotationStrategy, error) {
	switch s {
	case "", "none":
		return RotationNone, nil
	case "round_robin":
		return RotationRoundRobin, nil
	case "on_failure":
		return RotationOnFailure, nil
	}
	return RotationNone, fmt.Errorf("unknown key rotation %q", s)
}

// FailureReporter is implemented by credentials that react to venue rejections.
type FailureReporter interface {
	ReportFailure(keyID string)
}

type key struct {
	id         string
	creds      *core.StaticCredentials
	disabled   bool
	lastUsed   time.Time
	errorCount int
}

// KeyStatus is a secret-free view of one key.
type KeyStatus struct {
	ID         string    `json:"id"`
	Current    bool      `json:"current"`
	Disabled   bool      `json:"disabled"`
	LastUsed   time.Time `json:"last_used"`
	ErrorCount int       `json:"error_count"`
}

type Option func(*KeyRing)

func WithLogger(logger zerolog.Logger) Option {
	return func(k *KeyRing) {
		k.logger = logger
	}
}

func WithClock(c clock.Clock) Option {
	return func(k *KeyRing) {
		k.clock = c
	}
}

// KeyRing is a core.Credentials over a set of keys. It is safe for concurrent use.
type KeyRing struct {
	mu       sync.Mutex
	keys     []*key
	current  int
	strategy RotationStrategy
	logger   zerolog.Logger
	clock    clock.Clock
}

func NewKeyRing(keys []core.APICredentials, strategy RotationStrategy, opts ...Option) *KeyRing {
	k := &KeyRing{
		keys:     make([]*key, 0, len(keys)),
		strategy: strategy,
		logger:   zerolog.Nop(),
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(k)
	}
	for _, c := range keys {
		k.add(c)
	}
	return k
}

// KeyID identifies the key the next Reveal will return.
func (k *KeyRing) KeyID() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if cur := k.active(); cur != nil {
		return cur.id
	}
	return ""
}

// Reveal returns the current key's material and applies round robin rotation.
func (k *KeyRing) Reveal() (*core.KeyMaterial, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.keys) == 0 {
		return nil, core.ErrNoCredentials
	}
	cur := k.active()
	if cur == nil {
		return nil, core.ErrNoAPIKey
	}
	km, err := cur.creds.Reveal()
	if err != nil {
		return nil, err
	}
	cur.lastUsed = k.clock.Now()
	if k.strategy == RotationRoundRobin {
		k.rotate()
	}
	return km, nil
}

// ReportFailure counts a venue rejection against keyID and rotates under
// RotationOnFailure when keyID is still the current key.
func (k *KeyRing) ReportFailure(keyID string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for i, key := range k.keys {
		if key.id != keyID {
			continue
		}
		key.errorCount++
		if k.strategy == RotationOnFailure && i == k.current {
			k.rotate()
			k.logger.Warn().
				Str("failed_key", keyID).
				Str("next_key", k.keys[k.current].id).
				Msg("rotating api key")
		}
		return
	}
}

// Rotate moves to the next enabled key.
func (k *KeyRing) Rotate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.rotate()
}

func (k *KeyRing) Disable(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, key := range k.keys {
		if key.id == id {
			key.disabled = true
			if i == k.current {
				k.rotate()
			}
			return
		}
	}
}

func (k *KeyRing) Enable(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range k.keys {
		if key.id == id {
			key.disabled = false
			key.errorCount = 0
			return
		}
	}
}

// Add appends a key unless one with the same id exists.
func (k *KeyRing) Add(c core.APICredentials) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.add(c)
}

func (k *KeyRing) Remove(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, key := range k.keys {
		if key.id == id {
			k.keys = append(k.keys[:i], k.keys[i+1:]...)
			if k.current >= len(k.keys) {
				k.current = 0
			}
			return
		}
	}
}

func (k *KeyRing) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}

// Status lists the keys without their secrets.
func (k *KeyRing) Status() []KeyStatus {
	k.mu.Lock()
	defer k.mu.Unlock()
	cur := k.active()
	out := make([]KeyStatus, len(k.keys))
	for i, key := range k.keys {
		out[i] = KeyStatus{
			ID:         key.id,
			Current:    key == cur,
			Disabled:   key.disabled,
			LastUsed:   key.lastUsed,
			ErrorCount: key.errorCount,
		}
	}
	return out
}

func (k *KeyRing) add(c core.APICredentials) {
	creds := core.NewStaticCredentials(c.APIKey, c.SecretKey, c.Passphrase)
	id := creds.KeyID()
	for _, existing := range k.keys {
		if existing.id == id {
			return
		}
	}
	k.keys = append(k.keys, &key{id: id, creds: creds})
}

// active returns the first enabled key at or after current.
func (k *KeyRing) active() *key {
	for i := range k.keys {
		idx := (k.current + i) % len(k.keys)
		if !k.keys[idx].disabled {
			k.current = idx
			return k.keys[idx]
		}
	}
	return nil
}

func (k *KeyRing) rotate() {
	n := len(k.keys)
	for i := 1; i <= n; i++ {
		idx := (k.current + i) % n
		if !k.keys[idx].disabled {
			k.current = idx
			return
		}
	}
}

var (
	_ core.Credentials = (*KeyRing)(nil)
	_ FailureReporter  = (*KeyRing)(nil)
)
