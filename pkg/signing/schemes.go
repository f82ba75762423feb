package signing

import (
	"net/url"
	"strconv"
	"strings"

	"turnstile/pkg/core"
)

// QueryHMAC signs the encoded query string (plus body) with HMAC-SHA256 and appends
// the hex signature as the last query parameter. The key travels in a header.
// Binance and its derivatives use this scheme.
type QueryHMAC struct {
	opts options
	// KeyHeader carries the API key, e.g. X-MBX-APIKEY.
	KeyHeader string
}

// NewQueryHMAC creates a QueryHMAC signer.
func NewQueryHMAC(keyHeader string, opts ...Option) *QueryHMAC {
	return &QueryHMAC{opts: buildOptions(opts), KeyHeader: keyHeader}
}

func (s *QueryHMAC) Sign(req *core.Request, creds core.Credentials) (*core.AuthArtifacts, error) {
	km, err := reveal(creds, false)
	if err != nil {
		return nil, err
	}
	defer km.Wipe()

	now := s.opts.clock.Now()
	query := make(url.Values, len(req.Query)+2)
	for k, v := range req.Query {
		query[k] = v
	}
	query.Set("timestamp", strconv.FormatInt(now.UnixMilli(), 10))
	query.Set("recvWindow", strconv.FormatInt(s.opts.recvWindow.Milliseconds(), 10))

	payload := query.Encode()
	signature := signHex(km.Secret, payload+string(req.Body))

	return &core.AuthArtifacts{
		Headers:   map[string]string{s.KeyHeader: string(km.APIKey)},
		Query:     payload + "&signature=" + signature,
		Timestamp: now,
	}, nil
}

// HeaderHMAC signs timestamp + key + recvWindow + payload with HMAC-SHA256 and sends
// everything in headers. The payload is the query string for GET and DELETE and the
// body otherwise. Bybit v5 uses this scheme.
type HeaderHMAC struct {
	opts options
}

// NewHeaderHMAC creates a HeaderHMAC signer.
func NewHeaderHMAC(opts ...Option) *HeaderHMAC {
	return &HeaderHMAC{opts: buildOptions(opts)}
}

func (s *HeaderHMAC) Sign(req *core.Request, creds core.Credentials) (*core.AuthArtifacts, error) {
	km, err := reveal(creds, false)
	if err != nil {
		return nil, err
	}
	defer km.Wipe()

	now := s.opts.clock.Now()
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	recv := strconv.FormatInt(s.opts.recvWindow.Milliseconds(), 10)

	payload := string(req.Body)
	if req.Method == "GET" || req.Method == "DELETE" {
		payload = req.QueryString()
	}

	var sb strings.Builder
	sb.WriteString(ts)
	sb.Write(km.APIKey)
	sb.WriteString(recv)
	sb.WriteString(payload)

	return &core.AuthArtifacts{
		Headers: map[string]string{
			"X-BAPI-API-KEY":     string(km.APIKey),
			"X-BAPI-TIMESTAMP":   ts,
			"X-BAPI-RECV-WINDOW": recv,
			"X-BAPI-SIGN":        signHex(km.Secret, sb.String()),
			"X-BAPI-SIGN-TYPE":   "2",
		},
		Timestamp: now,
	}, nil
}

// PassphraseHMAC signs timestamp + method + path(with query) + body and sends a
// base64 signature together with the account passphrase. OKX uses this scheme.
type PassphraseHMAC struct {
	opts options
}

// NewPassphraseHMAC creates a PassphraseHMAC signer.
func NewPassphraseHMAC(opts ...Option) *PassphraseHMAC {
	return &PassphraseHMAC{opts: buildOptions(opts)}
}

// isoMillis is the timestamp layout OKX expects.
const isoMillis = "2006-01-02T15:04:05.000Z"

func (s *PassphraseHMAC) Sign(req *core.Request, creds core.Credentials) (*core.AuthArtifacts, error) {
	km, err := reveal(creds, true)
	if err != nil {
		return nil, err
	}
	defer km.Wipe()

	now := s.opts.clock.Now()
	ts := now.UTC().Format(isoMillis)

	path := req.Path
	if qs := req.QueryString(); qs != "" {
		path += "?" + qs
	}
	prehash := ts + strings.ToUpper(req.Method) + path + string(req.Body)

	return &core.AuthArtifacts{
		Headers: map[string]string{
			"OK-ACCESS-KEY":        string(km.APIKey),
			"OK-ACCESS-SIGN":       signBase64(km.Secret, prehash),
			"OK-ACCESS-TIMESTAMP":  ts,
			"OK-ACCESS-PASSPHRASE": string(km.Passphrase),
		},
		Timestamp: now,
	}, nil
}

var (
	_ core.Signer = (*QueryHMAC)(nil)
	_ core.Signer = (*HeaderHMAC)(nil)
	_ core.Signer = (*PassphraseHMAC)(nil)
)
