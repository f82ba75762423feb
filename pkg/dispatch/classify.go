package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"turnstile/pkg/core"
	"turnstile/pkg/venue"
)

// maxMessage bounds how much of an unparsed error body is copied into an outcome.
const maxMessage = 512

// Classify maps a transport result and the venue's own signal to an outcome.
//
// fallbackRetryAfter is used for rate limit responses that carry no wait hint,
// defaultBan for bans without one. Precedence: transport error, 418, 429, 5xx,
// venue signal, 401/403, other non-2xx, success.
func Classify(resp *core.WireResponse, err error, signal core.Signal, fallbackRetryAfter, defaultBan time.Duration) *core.Outcome {
	return classify(time.Now(), resp, err, signal, fallbackRetryAfter, defaultBan)
}

func classify(now time.Time, resp *core.WireResponse, err error, signal core.Signal, fallbackRetryAfter, defaultBan time.Duration) *core.Outcome {
	if resp == nil {
		if err == nil {
			err = errors.New("no response")
		}
		return &core.Outcome{
			Kind:          core.OutcomeTransportFailure,
			Reason:        err.Error(),
			StatusUnknown: mayHaveBeenDelivered(err),
			Err:           err,
		}
	}

	out := &core.Outcome{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
		Code:       signal.Code,
		Message:    signal.Message,
	}
	header, _ := venue.RetryAfterHeader(resp, now)

	switch {
	case resp.StatusCode == http.StatusTeapot:
		out.Kind = core.OutcomeBanned
		out.RetryAfter = firstPositive(header, signal.RetryAfter, defaultBan)
	case resp.StatusCode == http.StatusTooManyRequests:
		out.Kind = core.OutcomeRateLimited
		out.RetryAfter = firstPositive(header, signal.RetryAfter, fallbackRetryAfter)
	case resp.StatusCode >= http.StatusInternalServerError:
		out.Kind = core.OutcomeTransportFailure
		out.StatusUnknown = true
		out.Reason = fmt.Sprintf("server error: http %d", resp.StatusCode)
	case signal.Kind == core.SignalBanned:
		out.Kind = core.OutcomeBanned
		out.RetryAfter = firstPositive(header, signal.RetryAfter, defaultBan)
	case signal.Kind == core.SignalRateLimited:
		out.Kind = core.OutcomeRateLimited
		out.RetryAfter = firstPositive(header, signal.RetryAfter, fallbackRetryAfter)
	case signal.Kind == core.SignalAuthFailed:
		out.Kind = core.OutcomeAuthFailed
	case signal.Kind == core.SignalRejected:
		out.Kind = core.OutcomeRejected
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		out.Kind = core.OutcomeAuthFailed
		out.Reason = fmt.Sprintf("http %d", resp.StatusCode)
		out.Message = bodyMessage(resp)
	case !resp.IsSuccess():
		out.Kind = core.OutcomeRejected
		out.Code = strconv.Itoa(resp.StatusCode)
		out.Message = bodyMessage(resp)
	default:
		out.Kind = core.OutcomeSuccess
	}
	return out
}

// mayHaveBeenDelivered reports whether a transport error could have happened
// after the request reached the venue.
func mayHaveBeenDelivered(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func firstPositive(ds ...time.Duration) time.Duration {
	for _, d := range ds {
		if d > 0 {
			return d
		}
	}
	return 0
}

func bodyMessage(resp *core.WireResponse) string {
	if len(resp.Body) == 0 {
		return http.StatusText(resp.StatusCode)
	}
	if len(resp.Body) > maxMessage {
		return string(resp.Body[:maxMessage])
	}
	return string(resp.Body)
}
