package testutils

import (
	"context"
	"fmt"

	"github.com/docuchatco/docuchat/pkg/llm"
)

// MockStreamer is a test streamer that plays back scripted chunk sequences,
// one sequence per StreamChat call, in order.
type MockStreamer struct {
	// Rounds holds one chunk sequence per expected model round.
	Rounds [][]llm.StreamChunk

	// Requests accumulates every request passed to StreamChat.
	Requests []*llm.ChatRequest

	next int
}

// NewMockStreamer creates a mock streamer from the given rounds.
func NewMockStreamer(rounds ...[]llm.StreamChunk) *MockStreamer {
	return &MockStreamer{Rounds: rounds}
}

func (m *MockStreamer) StreamChat(_ context.Context, req *llm.ChatRequest) (llm.Stream, error) {
	m.Requests = append(m.Requests, req)

	if m.next >= len(m.Rounds) {
		return nil, fmt.Errorf("no scripted round for request %d", m.next)
	}

	s := &mockStream{chunks: m.Rounds[m.next]}
	m.next++
	return s, nil
}

type mockStream struct {
	chunks []llm.StreamChunk
	pos    int
}

func (s *mockStream) Next() (*llm.StreamChunk, error) {
	if s.pos >= len(s.chunks) {
		return nil, nil
	}

	chunk := s.chunks[s.pos]
	s.pos++
	return &chunk, nil
}

func (s *mockStream) Close() error {
	return nil
}

// TextChunk is a convenience constructor for a text delta chunk.
func TextChunk(text string) llm.StreamChunk {
	return llm.StreamChunk{TextDelta: text}
}

// ToolChunk is a convenience constructor for a tool-call delta chunk.
func ToolChunk(name, args string) llm.StreamChunk {
	return llm.StreamChunk{ToolCall: &llm.ToolCallDelta{Name: name, Arguments: args}}
}

// FinishChunk is a convenience constructor for a terminal chunk.
func FinishChunk(reason string) llm.StreamChunk {
	return llm.StreamChunk{FinishReason: reason}
}
