package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/varsilias/askdesk/internal/endpoint"
	"github.com/varsilias/askdesk/pkg/types"
)

// Engine answers a question given prior turns. Failures come back as
// endpoint.Response values of KindError, never as Go errors.
type Engine interface {
	Ask(ctx context.Context, question string, history []types.Turn) endpoint.Response
}

// EndpointEngine forwards to the inference endpoint.
type EndpointEngine struct {
	c *endpoint.Client
}

func NewEndpointEngine(c *endpoint.Client) *EndpointEngine {
	return &EndpointEngine{c: c}
}

func (e *EndpointEngine) Ask(ctx context.Context, question string, history []types.Turn) endpoint.Response {
	return e.c.Query(ctx, question, history)
}

// EchoEngine is a stand-in used when no backend is configured.
type EchoEngine struct {
	minLatency time.Duration
}

func NewEchoEngine(minLatency time.Duration) *EchoEngine { return &EchoEngine{minLatency: minLatency} }

func (e *EchoEngine) Ask(ctx context.Context, question string, history []types.Turn) endpoint.Response {
	if e.minLatency > 0 {
		t := time.NewTimer(e.minLatency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return endpoint.ErrorResponse(endpoint.ReasonCanceled, "request canceled")
		case <-t.C:
		}
	}
	return endpoint.Response{
		Kind:     endpoint.KindRawString,
		Answer:   fmt.Sprintf("(demo, %d earlier turns) you said: %s", len(history), question),
		Attempts: 1,
	}
}
