package core

// Credentials is the capability a signer uses to obtain key material.
// Implementations may rotate keys or fetch them from a vault; the secret is only
// exposed through Reveal and callers must Wipe the result when done.
type Credentials interface {
	// KeyID identifies the key for logging without revealing it.
	KeyID() string
	// Reveal returns a copy of the key material.
	Reveal() (*KeyMaterial, error)
}

// KeyMaterial holds one set of secrets. String never prints the secret.
type KeyMaterial struct {
	APIKey     []byte
	Secret     []byte
	Passphrase []byte
}

// Wipe zeroes the secret bytes.
func (k *KeyMaterial) Wipe() {
	if k == nil {
		return
	}
	for _, b := range [][]byte{k.APIKey, k.Secret, k.Passphrase} {
		clear(b)
	}
}

func (k *KeyMaterial) String() string {
	if k == nil {
		return "KeyMaterial{}"
	}
	return "KeyMaterial{key=" + maskKey(string(k.APIKey)) + "}"
}

// StaticCredentials is a Credentials holding a single fixed key.
type StaticCredentials struct {
	apiKey     []byte
	secret     []byte
	passphrase []byte
}

// NewStaticCredentials copies the given strings into a StaticCredentials.
func NewStaticCredentials(apiKey, secret, passphrase string) *StaticCredentials {
	return &StaticCredentials{
		apiKey:     []byte(apiKey),
		secret:     []byte(secret),
		passphrase: []byte(passphrase),
	}
}

func (s *StaticCredentials) KeyID() string {
	return maskKey(string(s.apiKey))
}

func (s *StaticCredentials) Reveal() (*KeyMaterial, error) {
	if len(s.apiKey) == 0 || len(s.secret) == 0 {
		return nil, ErrNoCredentials
	}
	return &KeyMaterial{
		APIKey:     clone(s.apiKey),
		Secret:     clone(s.secret),
		Passphrase: clone(s.passphrase),
	}, nil
}

func (s *StaticCredentials) String() string {
	return "StaticCredentials{key=" + s.KeyID() + "}"
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
