package domain

import "fmt"

// Kaira chat-API stream chunk types.
const (
	ChunkStreamStart    = "stream_start"
	ChunkSessionContext = "session_context"
	ChunkSessionStart   = "session_start"
	ChunkAgentResponse  = "agent_response"
	ChunkSessionEnd     = "session_end"
)

// KairaChunk is one decoded SSE frame from the chat API stream.
type KairaChunk struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	ThreadID   string `json:"thread_id,omitempty"`
	ResponseID string `json:"response_id,omitempty"`
	Intent     string `json:"intent,omitempty"`
	Message    string `json:"message,omitempty"`
}

// KairaSessionState tracks the conversation identifiers across turns.
// ApplyChunk is a pure reducer over chunk types so it can be unit-tested
// without an HTTP stub.
type KairaSessionState struct {
	UserID         string
	SessionID      string
	ThreadID       string
	ResponseID     string
	IsFirstMessage bool
}

// NewKairaSessionState starts a fresh session for the given simulated user.
func NewKairaSessionState(userID string) *KairaSessionState {
	return &KairaSessionState{UserID: userID, IsFirstMessage: true}
}

// ApplyChunk folds one stream frame into the session state. Identifier
// fields update from whichever frame carries them; the first session_context
// frame flips IsFirstMessage off.
func (s *KairaSessionState) ApplyChunk(c KairaChunk) {
	switch c.Type {
	case ChunkStreamStart, ChunkSessionContext, ChunkSessionStart, ChunkAgentResponse, ChunkSessionEnd:
		if c.SessionID != "" {
			s.SessionID = c.SessionID
		}
		if c.ThreadID != "" {
			s.ThreadID = c.ThreadID
		}
		if c.ResponseID != "" {
			s.ResponseID = c.ResponseID
		}
	}
	if c.Type == ChunkSessionContext && s.IsFirstMessage {
		s.IsFirstMessage = false
	}
}

// KairaPayload is the request body for one chat turn.
type KairaPayload struct {
	Message    string `json:"message"`
	UserID     string `json:"user_id"`
	SessionID  string `json:"session_id"`
	ThreadID   string `json:"thread_id,omitempty"`
	EndSession bool   `json:"end_session,omitempty"`
}

// BuildPayload assembles the next request from the session state. The first
// message sets session_id to the user id and requests end_session; subsequent
// messages require both session and thread ids.
func (s *KairaSessionState) BuildPayload(message string) (KairaPayload, error) {
	if s.IsFirstMessage {
		return KairaPayload{
			Message:    message,
			UserID:     s.UserID,
			SessionID:  s.UserID,
			EndSession: true,
		}, nil
	}
	if s.SessionID == "" || s.ThreadID == "" {
		return KairaPayload{}, fmt.Errorf("%w: session_id and thread_id required after first message", ErrInvalidArgument)
	}
	return KairaPayload{
		Message:   message,
		UserID:    s.UserID,
		SessionID: s.SessionID,
		ThreadID:  s.ThreadID,
	}, nil
}

// KairaStreamResponse aggregates one turn's stream into the fields the
// conversation agent cares about.
type KairaStreamResponse struct {
	FullMessage    string
	Intents        []string
	AgentResponses []string
}

// HasIntent reports whether the stream carried the given intent.
func (r KairaStreamResponse) HasIntent(intent string) bool {
	for _, i := range r.Intents {
		if i == intent {
			return true
		}
	}
	return false
}
