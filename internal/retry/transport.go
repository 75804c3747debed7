package retry

import (
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

// Transport repeats round trips that Policy considers transient, waiting
// between attempts as Backoff dictates for the failed response. Requests with a body are only
// repeated when they can be rewound through GetBody.
type Transport struct {
	Base    http.RoundTripper
	Backoff Backoff
	Policy  *Policy
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	for attempt := uint(0); ; attempt++ {
		if attempt > 0 && request.Body != nil && request.Body != http.NoBody {
			body, err := request.GetBody()
			if err != nil {
				return nil, xerrors.Errorf("failed to rewind request body: %w", err)
			}
			request = request.Clone(request.Context())
			request.Body = body
		}

		response, err := t.base().RoundTrip(request)
		if !t.shouldRetry(request, response, err) {
			return response, err
		}

		delay, exhausted := t.backoff().Delay(attempt, response)
		if exhausted {
			return response, err
		}

		if response != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, 4<<10))
			_ = response.Body.Close()
		}

		if err := wait(request.Context(), delay); err != nil {
			return nil, err
		}
	}
}

func (t *Transport) shouldRetry(request *http.Request, response *http.Response, err error) bool {
	if t.Policy == nil {
		return false
	}
	if request.Body != nil && request.Body != http.NoBody && request.GetBody == nil {
		return false
	}
	if err != nil {
		return t.Policy.RetryError(err)
	}
	return t.Policy.RetryResponse(response)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) backoff() Backoff {
	if t.Backoff != nil {
		return t.Backoff
	}
	return NoRetry()
}

func wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
