package llm

import "context"

// Finish reasons carried on the terminal chunk of a round.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

// ToolCallDelta is an incremental fragment of a tool-call request. Name is
// set on the first fragment of a call; Arguments fragments concatenate into
// the full JSON argument record.
type ToolCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamChunk is one incremental event from a model response stream. A chunk
// carries an optional text delta, an optional tool-call delta, and on the
// last chunk of a round a finish reason.
type StreamChunk struct {
	TextDelta    string         `json:"text_delta,omitempty"`
	ToolCall     *ToolCallDelta `json:"tool_call,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

// Stream is a finite sequence of chunks from one model round. Next returns
// the next chunk, or nil once the stream is exhausted. Streams are not
// restartable; Close releases the underlying connection.
type Stream interface {
	Next() (*StreamChunk, error)
	Close() error
}

// Streamer issues streaming chat completion requests. Implementations must
// be safe for use by concurrent sessions; each call returns an independent
// stream.
type Streamer interface {
	StreamChat(ctx context.Context, req *ChatRequest) (Stream, error)
}
