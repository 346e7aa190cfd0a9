package s3

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("key not found")

// Client is the subset of S3 used to archive raw captures.
type Client interface {
	Lister
	Getter
	Putter
}

type Lister interface {
	List(ctx context.Context, key string) (keys []string, err error)
}

type Getter interface {
	// Get returns ErrKeyNotFound if the given key doesn't exist.
	Get(ctx context.Context, key string) (data []byte, err error)
}

type Putter interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (err error)
}
