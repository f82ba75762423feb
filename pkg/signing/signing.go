// Package signing produces exchange authentication artifacts for canonical requests.
//
// Every signer reads the credential capability once per call, signs, and wipes the
// revealed key material before returning. Timestamps are taken at signing time.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"turnstile/internal/clock"
	"turnstile/pkg/core"
)

// DefaultRecvWindow is how long an exchange accepts a signed request after its timestamp.
const DefaultRecvWindow = 5 * time.Second

// Option configures a signer.
type Option func(*options)

type options struct {
	clock      clock.Clock
	recvWindow time.Duration
}

// WithClock sets the time source used for request timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithRecvWindow sets the receive window sent with signed requests.
func WithRecvWindow(d time.Duration) Option {
	return func(o *options) {
		o.recvWindow = d
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.New(), recvWindow: DefaultRecvWindow}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// reveal obtains key material and checks the parts a scheme needs are present.
func reveal(creds core.Credentials, needPassphrase bool) (*core.KeyMaterial, error) {
	if creds == nil {
		return nil, core.ErrNoCredentials
	}
	km, err := creds.Reveal()
	if err != nil {
		return nil, fmt.Errorf("reveal credentials %s: %w", creds.KeyID(), err)
	}
	switch {
	case len(km.APIKey) == 0:
		err = errors.New("api key is empty")
	case len(km.Secret) == 0:
		err = errors.New("secret key is empty")
	case needPassphrase && len(km.Passphrase) == 0:
		err = errors.New("passphrase is required")
	}
	if err != nil {
		km.Wipe()
		return nil, err
	}
	return km, nil
}

func hmacSHA256(secret []byte, message string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(message))
	return h.Sum(nil)
}

func signHex(secret []byte, message string) string {
	return hex.EncodeToString(hmacSHA256(secret, message))
}

func signBase64(secret []byte, message string) string {
	return base64.StdEncoding.EncodeToString(hmacSHA256(secret, message))
}
