// Package sessions holds conversation state: messages, summary, and
// the per-session debug trace. The in-memory implementation is the
// only one shipped; Store keeps the boundary pluggable.
package sessions

import (
	"context"
	"errors"

	"github.com/prismllm/prism/pkg/models"
)

// ErrNotFound is returned when a session id does not resolve.
var ErrNotFound = errors.New("session not found")

// Store is the session persistence boundary.
//
// Mutations on one session are serialized by a per-session lock, so
// concurrent callers interleave safely. Message order across two
// concurrent orchestrations on the same session is unspecified;
// callers wanting strict turn-taking must not issue concurrent calls
// for a single session.
type Store interface {
	// Create mints a session with a unique id and empty history.
	Create(ctx context.Context, agentID string) (*models.Session, error)

	// Get returns a deep copy of the session or ErrNotFound.
	Get(ctx context.Context, sessionID string) (*models.Session, error)

	// AppendMessage adds one message and refreshes updated_at.
	AppendMessage(ctx context.Context, sessionID string, msg models.Message) error

	// AppendTraceStep adds one trace step, enforcing the trace cap.
	AppendTraceStep(ctx context.Context, sessionID string, step models.TraceStep) error

	// ReplaceSummary atomically swaps the summarized prefix: the
	// session's summary becomes summary, its message list becomes
	// history, and covered more messages are counted as represented
	// by the summary.
	ReplaceSummary(ctx context.Context, sessionID string, summary string, history []models.Message, covered int) error
}
