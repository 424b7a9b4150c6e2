package llm

import "context"

// Completer is the interface extraction, relationship, and graphrag
// depend on instead of *Client directly, so tests can substitute
// llm/testutil.MockCompleter without standing up an HTTP server.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

var _ Completer = (*Client)(nil)
