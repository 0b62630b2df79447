package objectstore

import (
	"context"
	"errors"
	"time"
)

var ErrNoObject = errors.New("objectstore: no object")

// Store is the bucket surface the service needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns keys under prefix. With a delimiter, keys sharing the
	// next delimiter-terminated segment are rolled up into Prefixes.
	List(ctx context.Context, prefix, delimiter string) (*Listing, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignPost(ctx context.Context, key, contentType string, ttl time.Duration) (*PresignedPost, error)
}

type Listing struct {
	Prefixes []string
	Keys     []string
}

// PresignedPost is the target of a browser-style direct upload: POST a
// multipart form holding Fields followed by the file part to URL.
type PresignedPost struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}
