package storage

import (
	"context"
	"strings"
	"sync"
)

// Router dispatches to a backend by URL scheme: s3:// to S3, http(s):// to
// HTTP, anything else to the file backend. The S3 backend is created on
// first use so that purely local runs never load AWS configuration.
type Router struct {
	File Storage
	HTTP Storage
	// NewS3 creates the S3 backend. Defaults to NewS3Storage with an empty bucket.
	NewS3 func(ctx context.Context) (Storage, error)

	s3Once sync.Once
	s3     Storage
	s3Err  error
}

func (r *Router) backend(ctx context.Context, url string) (Storage, error) {
	switch {
	case strings.HasPrefix(url, "s3://"):
		r.s3Once.Do(func() {
			newS3 := r.NewS3
			if newS3 == nil {
				newS3 = func(ctx context.Context) (Storage, error) {
					return NewS3Storage(ctx, S3Config{})
				}
			}
			r.s3, r.s3Err = newS3(ctx)
		})
		return r.s3, r.s3Err
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		if r.HTTP == nil {
			return NewHTTPStorage(ctx, DefaultHTTPConfig())
		}
		return r.HTTP, nil
	default:
		if r.File == nil {
			return NewFileStorage(ctx, FileConfig{})
		}
		return r.File, nil
	}
}

func (r *Router) Put(ctx context.Context, key string, data []byte) (string, error) {
	s, err := r.backend(ctx, key)
	if err != nil {
		return "", err
	}
	return s.Put(ctx, key, data)
}

func (r *Router) Get(ctx context.Context, url string) ([]byte, error) {
	s, err := r.backend(ctx, url)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, url)
}
