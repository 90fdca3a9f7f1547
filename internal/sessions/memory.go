package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prismllm/prism/pkg/models"
)

// maxTraceSteps caps the per-session trace. Overflow drops the oldest
// steps, never the newest, and a one-shot trace_truncated marker is
// recorded the first time the cap fires.
const maxTraceSteps = 10000

// entry pairs a session with its own lock so concurrent mutations on
// different sessions never contend.
type entry struct {
	mu        sync.Mutex
	session   *models.Session
	truncated bool
}

// MemoryStore is the in-memory Store implementation. Process-lifetime
// only; reads return deep copies so callers can never alias internal
// state.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]*entry{}}
}

func (m *MemoryStore) Create(ctx context.Context, agentID string) (*models.Session, error) {
	now := time.Now()
	session := &models.Session{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.entries[session.ID] = &entry{session: session}
	m.mu.Unlock()

	return cloneSession(session), nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	e, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSession(e.session), nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, sessionID string, msg models.Message) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	e.session.Messages = append(e.session.Messages, cloneMessage(msg))
	e.session.MessageCount = len(e.session.Messages) + e.session.SummaryCovered
	e.session.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) AppendTraceStep(ctx context.Context, sessionID string, step models.TraceStep) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.session.Trace) >= maxTraceSteps {
		drop := len(e.session.Trace) - maxTraceSteps + 1
		if !e.truncated {
			drop++ // room for the truncation marker
		}
		e.session.Trace = e.session.Trace[drop:]
		if !e.truncated {
			e.truncated = true
			e.session.Trace = append(e.session.Trace, models.TraceStep{
				Timestamp: time.Now(),
				Component: "SessionStore",
				Event:     "trace_truncated",
				Details:   map[string]any{"cap": maxTraceSteps},
			})
		}
	}
	e.session.Trace = append(e.session.Trace, cloneTraceStep(step))
	e.session.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ReplaceSummary(ctx context.Context, sessionID string, summary string, history []models.Message, covered int) error {
	e, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	msgs := make([]models.Message, len(history))
	for i, msg := range history {
		msgs[i] = cloneMessage(msg)
	}
	e.session.Summary = summary
	e.session.Messages = msgs
	e.session.SummaryCovered += covered
	e.session.MessageCount = len(msgs) + e.session.SummaryCovered
	e.session.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) lookup(sessionID string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func cloneSession(s *models.Session) *models.Session {
	clone := *s
	clone.Messages = make([]models.Message, len(s.Messages))
	for i, msg := range s.Messages {
		clone.Messages[i] = cloneMessage(msg)
	}
	if s.Trace != nil {
		clone.Trace = make([]models.TraceStep, len(s.Trace))
		for i, step := range s.Trace {
			clone.Trace[i] = cloneTraceStep(step)
		}
	}
	return &clone
}

func cloneMessage(msg models.Message) models.Message {
	clone := msg
	if msg.ToolCalls != nil {
		clone.ToolCalls = make([]models.ToolCall, len(msg.ToolCalls))
		for i, call := range msg.ToolCalls {
			clone.ToolCalls[i] = models.ToolCall{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: deepCloneMap(call.Arguments),
			}
		}
	}
	return clone
}

func cloneTraceStep(step models.TraceStep) models.TraceStep {
	clone := step
	clone.Details = deepCloneMap(step.Details)
	return clone
}

func deepCloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case map[string]any:
			out[k] = deepCloneMap(val)
		case []any:
			list := make([]any, len(val))
			copy(list, val)
			out[k] = list
		default:
			out[k] = v
		}
	}
	return out
}
