package core

import (
	"fmt"
	"maps"
	"net/url"
	"strconv"
	"time"
)

// Params carries caller parameters for one call. Values are formatted with FormatParam.
type Params map[string]any

// Request is the canonical form of one call, built from the catalog entry and the
// caller's params. Signers read it and never mutate it.
type Request struct {
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Query       url.Values        `json:"query,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequireAuth bool              `json:"require_auth"`
}

func NewRequest(method, path string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Query:   make(url.Values),
		Headers: make(map[string]string),
	}
}

func (r *Request) SetQuery(key string, value any) *Request {
	if r.Query == nil {
		r.Query = make(url.Values)
	}
	r.Query.Set(key, FormatParam(value))
	return r
}

func (r *Request) SetQueryParams(params Params) *Request {
	for k, v := range params {
		r.SetQuery(k, v)
	}
	return r
}

func (r *Request) SetBody(body []byte) *Request {
	r.Body = body
	return r
}

func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

func (r *Request) SetRequireAuth(require bool) *Request {
	r.RequireAuth = require
	return r
}

// QueryString encodes the query sorted by key.
func (r *Request) QueryString() string {
	return r.Query.Encode()
}

// Clone returns a deep copy so signing can never alter the caller's request.
func (r *Request) Clone() *Request {
	out := *r
	out.Query = make(url.Values, len(r.Query))
	for k, v := range r.Query {
		out.Query[k] = append([]string(nil), v...)
	}
	out.Headers = maps.Clone(r.Headers)
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// AuthArtifacts is what a signer adds to a request.
type AuthArtifacts struct {
	// Headers are merged over the request headers.
	Headers map[string]string
	// Query replaces the encoded query string when non-empty. Signers that put the
	// signature in the query return the exact string they signed plus the signature.
	Query string
	// Timestamp is the time the signature was produced for.
	Timestamp time.Time
}

// FormatParam renders a parameter value the way exchanges expect it on the wire.
func FormatParam(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return strconv.FormatInt(val.UnixMilli(), 10)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
