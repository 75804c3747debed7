package retry

import (
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/constraints"
)

// Backoff returns how long to wait before retry attempt n, counting from
// zero, and whether the retry budget is spent. response is the reply that
// failed, or nil when the round trip itself failed.
type Backoff interface {
	Delay(attempt uint, response *http.Response) (time.Duration, bool)
}

type noRetry struct{}

func NoRetry() Backoff {
	return noRetry{}
}

func (noRetry) Delay(uint, *http.Response) (time.Duration, bool) {
	return 0, true
}

// Jitter picks a delay in [0, ceiling).
type Jitter func(ceiling int64) int64

type ExponentialConfig struct {
	// Base is the delay limit of the first retry; it doubles on every retry.
	Base time.Duration
	// Ceiling caps every delay, including one requested through Retry-After.
	Ceiling time.Duration
	// Retries is the number of round trips allowed after the first one.
	Retries uint
	// Jitter randomizes computed delays. Nil means full jitter.
	Jitter Jitter
	// Now is used to resolve HTTP-date Retry-After values. Nil means time.Now.
	Now func() time.Time
}

type exponential struct {
	config ExponentialConfig
}

// NewExponential returns a jittered exponential backoff that defers to the
// server's Retry-After header when a throttled or unavailable response
// carries one.
func NewExponential(c ExponentialConfig) Backoff {
	if c.Jitter == nil {
		c.Jitter = rand.Int63n
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &exponential{config: c}
}

func (e *exponential) Delay(attempt uint, response *http.Response) (time.Duration, bool) {
	if attempt >= e.config.Retries {
		return 0, true
	}

	ceiling := int64(e.config.Ceiling)
	if requested, ok := retryAfter(response, e.config.Now()); ok {
		return time.Duration(lesser(int64(requested), ceiling)), false
	}

	limit := ceiling
	if attempt < 63 {
		if d, err := checkedMul(int64(1)<<attempt, int64(e.config.Base)); err == nil {
			limit = lesser(d, limit)
		}
	}
	if limit <= 0 {
		return 0, false
	}

	return time.Duration(e.config.Jitter(limit)), false
}

// retryAfter reads the Retry-After header of a 429 or 503 response, given
// either as delta seconds or as an HTTP date.
func retryAfter(response *http.Response, now time.Time) (time.Duration, bool) {
	if response == nil {
		return 0, false
	}
	if response.StatusCode != http.StatusTooManyRequests && response.StatusCode != http.StatusServiceUnavailable {
		return 0, false
	}

	value := strings.TrimSpace(response.Header.Get("Retry-After"))
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}
		d, err := checkedMul(seconds, int64(time.Second))
		if err != nil {
			return time.Duration(math.MaxInt64), true
		}
		return time.Duration(d), true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	return max(at.Sub(now), 0), true
}

func lesser[T constraints.Ordered](l T, r T) T {
	if l > r {
		return r
	}
	return l
}

var ErrOverflow = errors.New("overflow")

func checkedMul(l int64, r int64) (int64, error) {
	if l == 0 || r == 0 {
		return 0, nil
	}
	if l > math.MaxInt64/r {
		return 0, ErrOverflow
	}
	return l * r, nil
}
