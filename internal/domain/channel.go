package domain

import (
	"context"
	"io"
)

// Source is the inbound side of the relay: it watches a single channel and
// publishes one InboundMessage per new post.
type Source interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
}

// MediaFetcher opens the raw bytes of a MediaRef on the source platform.
type MediaFetcher interface {
	Fetch(ctx context.Context, ref MediaRef) (io.ReadCloser, error)
}
