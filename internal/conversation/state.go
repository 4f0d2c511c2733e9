// internal/conversation/state.go
package conversation

import (
	"sync"
	"time"
)

// Turn is one user message and the engine's corresponding response.
type Turn struct {
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Tables    []string  `json:"tables,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the per-conversation mutable context the planner reads. Each
// conversation owns exactly one State; resolved references accumulate
// append-only across turns and are never shared between conversations.
type State struct {
	mu sync.Mutex

	ConversationID string
	TenantID       string

	history    []Turn
	references map[string]string
}

func NewState(conversationID, tenantID string) *State {
	return &State{
		ConversationID: conversationID,
		TenantID:       tenantID,
		references:     make(map[string]string),
	}
}

// History returns a copy of the recorded turns, newest last.
func (s *State) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// AppendTurn records a completed turn.
func (s *State) AppendTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, t)
}

// References returns a snapshot of the resolved references for the planner.
func (s *State) References() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.references))
	for k, v := range s.references {
		out[k] = v
	}
	return out
}

// FoldReferences merges a plan's resolved references forward. Existing
// referents are overwritten by newer resolutions; nothing is ever removed.
func (s *State) FoldReferences(refs map[string]string) {
	if len(refs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range refs {
		s.references[k] = v
	}
}

// Store hands out per-conversation state objects. Concurrent conversations get
// independent states keyed by conversation id.
type Store struct {
	mu     sync.Mutex
	states map[string]*State
}

func NewStore() *Store {
	return &Store{states: make(map[string]*State)}
}

// Get returns the state for a conversation, creating it on first use.
func (st *Store) Get(conversationID, tenantID string) *State {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.states[conversationID]; ok {
		return s
	}
	s := NewState(conversationID, tenantID)
	st.states[conversationID] = s
	return s
}
