package openai

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/docuchatco/docuchat/pkg/llm"
	"github.com/docuchatco/docuchat/pkg/sse"
)

// chatStream adapts the SSE response body into llm.Stream.
type chatStream struct {
	body   io.ReadCloser
	reader *sse.Reader
	done   bool
}

func newChatStream(body io.ReadCloser) *chatStream {
	return &chatStream{
		body:   body,
		reader: sse.NewReader(body),
	}
}

// Next returns the next parsed chunk, skipping empty keep-alive events.
// Returns nil, nil once the upstream emits its done sentinel or closes the
// stream.
func (s *chatStream) Next() (*llm.StreamChunk, error) {
	if s.done {
		return nil, nil
	}

	for {
		event, err := s.reader.Next()
		if err != nil {
			return nil, fmt.Errorf("reading stream: %w", err)
		}
		if event == nil {
			s.done = true
			return nil, nil
		}
		if event.Data == "" {
			continue
		}
		if event.Data == streamDoneSentinel {
			s.done = true
			return nil, nil
		}

		chunk, err := parseStreamChunk([]byte(event.Data))
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			// Chunk carried no choices (e.g. a usage-only frame); skip.
			continue
		}
		return chunk, nil
	}
}

// Close releases the underlying HTTP response body.
func (s *chatStream) Close() error {
	return s.body.Close()
}

// parseStreamChunk converts a single data payload into the internal chunk
// representation. Returns nil, nil for payloads with no choices.
func parseStreamChunk(payload []byte) (*llm.StreamChunk, error) {
	var wire wireChunk
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("parsing stream chunk: %w", err)
	}

	if len(wire.Choices) == 0 {
		return nil, nil
	}

	choice := wire.Choices[0]
	chunk := &llm.StreamChunk{
		TextDelta:    choice.Delta.Content,
		FinishReason: choice.FinishReason,
	}

	// The protocol forbids parallel tool calls, so only the first tool-call
	// delta in a chunk is meaningful.
	if len(choice.Delta.ToolCalls) > 0 {
		tc := choice.Delta.ToolCalls[0]
		chunk.ToolCall = &llm.ToolCallDelta{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}
	}

	return chunk, nil
}

var _ llm.Stream = (*chatStream)(nil)
