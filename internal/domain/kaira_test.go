package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKairaSessionState_FirstPayload(t *testing.T) {
	s := NewKairaSessionState("user-1")
	p, err := s.BuildPayload("hi")
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "user-1", p.SessionID, "first message uses the user id as session id")
	assert.True(t, p.EndSession)
	assert.Empty(t, p.ThreadID)
}

func TestKairaSessionState_ApplyChunk(t *testing.T) {
	s := NewKairaSessionState("user-1")
	s.ApplyChunk(KairaChunk{Type: ChunkStreamStart, SessionID: "sess-9"})
	assert.Equal(t, "sess-9", s.SessionID)
	assert.True(t, s.IsFirstMessage, "only session_context flips the first-message flag")

	s.ApplyChunk(KairaChunk{Type: ChunkSessionContext, ThreadID: "thr-3"})
	assert.False(t, s.IsFirstMessage)
	assert.Equal(t, "thr-3", s.ThreadID)

	// empty fields never clobber known ids
	s.ApplyChunk(KairaChunk{Type: ChunkAgentResponse, ResponseID: "resp-1"})
	assert.Equal(t, "sess-9", s.SessionID)
	assert.Equal(t, "thr-3", s.ThreadID)
	assert.Equal(t, "resp-1", s.ResponseID)

	// unknown chunk types are ignored
	s.ApplyChunk(KairaChunk{Type: "heartbeat", SessionID: "other"})
	assert.Equal(t, "sess-9", s.SessionID)
}

func TestKairaSessionState_SubsequentPayload(t *testing.T) {
	s := NewKairaSessionState("user-1")
	s.ApplyChunk(KairaChunk{Type: ChunkSessionContext, SessionID: "sess-9", ThreadID: "thr-3"})

	p, err := s.BuildPayload("again")
	require.NoError(t, err)
	assert.Equal(t, "sess-9", p.SessionID)
	assert.Equal(t, "thr-3", p.ThreadID)
	assert.False(t, p.EndSession)
}

func TestKairaSessionState_SubsequentWithoutIDs(t *testing.T) {
	s := NewKairaSessionState("user-1")
	s.IsFirstMessage = false
	_, err := s.BuildPayload("again")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestKairaStreamResponse_HasIntent(t *testing.T) {
	r := KairaStreamResponse{Intents: []string{"meal_confirmation", "nutrition_qa"}}
	assert.True(t, r.HasIntent("meal_confirmation"))
	assert.False(t, r.HasIntent("off_topic"))
}
