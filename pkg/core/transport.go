package core

import (
	"context"
	"net/http"
)

// Transport performs one HTTP exchange. It must not retry.
type Transport interface {
	Send(ctx context.Context, req *WireRequest) (*WireResponse, error)
}

// WireRequest is a fully signed request ready for the network.
type WireRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// WireResponse is the raw result of a Transport call.
type WireResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

func (r *WireResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Header returns the first value of the canonicalized header key.
func (r *WireResponse) Header(key string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(key)
}
