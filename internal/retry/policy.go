package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/xerrors"
)

// Policy decides which failed round trips are worth repeating.
type Policy struct {
	serverError     bool
	gatewayError    bool
	connectFailure  bool
	tooManyRequests bool
	statusCodes     []int
}

// DefaultPolicy retries gateway errors, throttling and broken connections.
func DefaultPolicy() *Policy {
	return &Policy{
		gatewayError:    true,
		connectFailure:  true,
		tooManyRequests: true,
	}
}

// ParsePolicy reads a comma separated list of conditions: "5xx",
// "gateway-error", "connect-failure", "too-many-requests" or a literal
// status code.
func ParsePolicy(s string) (*Policy, error) {
	p := &Policy{}
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		switch token {
		case "":
		case "5xx":
			p.serverError = true
		case "gateway-error":
			p.gatewayError = true
		case "connect-failure":
			p.connectFailure = true
		case "too-many-requests":
			p.tooManyRequests = true
		default:
			statusCode, err := strconv.Atoi(token)
			if err != nil || statusCode < 100 || statusCode > 599 {
				return nil, xerrors.Errorf("invalid retry condition: %q", token)
			}
			p.statusCodes = append(p.statusCodes, statusCode)
		}
	}
	return p, nil
}

func (p *Policy) RetryResponse(response *http.Response) bool {
	code := response.StatusCode
	switch {
	case p.serverError && code >= 500 && code < 600:
		return true
	case p.gatewayError && (code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout):
		return true
	case p.tooManyRequests && code == http.StatusTooManyRequests:
		return true
	}

	for _, c := range p.statusCodes {
		if c == code {
			return true
		}
	}
	return false
}

func (p *Policy) RetryError(err error) bool {
	if !p.connectFailure && !p.serverError {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	type temporary interface{ Temporary() bool }
	var terr temporary
	if errors.As(err, &terr) && terr.Temporary() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
