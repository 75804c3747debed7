package storage

import (
	"colordiff/internal/retry"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type httpStorage struct {
	client *http.Client
	config HTTPConfig
}

type HTTPConfig struct {
	// Timeout bounds one Get, retries included.
	Timeout time.Duration
	// MaxBytes caps the size of a downloaded image.
	MaxBytes int64
	// Transport overrides the underlying round tripper.
	Transport http.RoundTripper
	// Retries is the number of extra requests allowed for one image.
	Retries uint
	// RetryBase is the delay limit of the first retry.
	RetryBase time.Duration
	// RetryCeiling caps retry delays, including server requested ones.
	RetryCeiling time.Duration
	Policy       *retry.Policy
}

func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:      30 * time.Second,
		MaxBytes:     64 << 20,
		Retries:      3,
		RetryBase:    50 * time.Millisecond,
		RetryCeiling: 2 * time.Second,
		Policy:       retry.DefaultPolicy(),
	}
}

func (h HTTPConfig) backoff() retry.Backoff {
	if h.Retries == 0 {
		return retry.NoRetry()
	}
	return retry.NewExponential(retry.ExponentialConfig{
		Base:    h.RetryBase,
		Ceiling: h.RetryCeiling,
		Retries: h.Retries,
	})
}

// NewHTTPStorage creates a read-only backend fetching http(s) URLs.
func NewHTTPStorage(ctx context.Context, h HTTPConfig) (Storage, error) {
	base := h.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &httpStorage{
		client: &http.Client{
			Transport: &retry.Transport{
				Base:    base,
				Backoff: h.backoff(),
				Policy:  h.Policy,
			},
		},
		config: h,
	}, nil
}

func (h *httpStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	return "", fmt.Errorf("failed to upload to %s: %w", key, ErrReadOnly)
}

func (h *httpStorage) Get(ctx context.Context, url string) ([]byte, error) {
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	response, err := h.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to download %s: %s", url, response.Status)
	}

	body := io.Reader(response.Body)
	if h.config.MaxBytes > 0 {
		body = io.LimitReader(response.Body, h.config.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if h.config.MaxBytes > 0 && int64(len(data)) > h.config.MaxBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", url, h.config.MaxBytes)
	}

	return data, nil
}
