package session

import "context"

// Gateway is the boundary to the backend process/connection drivers. Every
// call may block on the backend and may fail with a transport error; none of
// them are retried by the coordinator. Implementations select the concrete
// driver by the session's kind.
type Gateway interface {
	// Create starts the backend handle for id. It must be safe to call for
	// an id that already has a live handle (return nil without side effects).
	Create(ctx context.Context, id string, params Params) error

	// Write delivers input bytes to the backend. Failures are surfaced once
	// per call and never retried.
	Write(ctx context.Context, id string, data []byte) error

	// Resize pushes new terminal dimensions. Best effort.
	Resize(ctx context.Context, id string, cols, rows int) error

	// Close destroys the backend handle. Fire and forget from the
	// coordinator's point of view.
	Close(ctx context.Context, id string) error

	// SubmitChallenge answers an outstanding keyboard-interactive challenge,
	// one response per prompt, in prompt order.
	SubmitChallenge(ctx context.Context, id string, responses []string) error

	// CancelChallenge abandons an outstanding challenge, failing the
	// authentication attempt it belongs to.
	CancelChallenge(ctx context.Context, id string) error
}
