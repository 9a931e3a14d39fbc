// Package webclient is the HTTP transport used to talk to the Percy agent.
package webclient

import (
	"context"
)

// WebClient sends requests to the agent. Implementations must be safe for
// concurrent use.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Get issues a GET for url.
	Get(ctx context.Context, url string) (*Response, error)

	Close() error
}
