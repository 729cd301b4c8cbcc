package agent

import "errors"

var (
	// ErrToolArguments indicates the model emitted a tool call whose
	// accumulated argument text failed to parse as JSON. Fatal to the turn.
	ErrToolArguments = errors.New("malformed tool arguments")

	// ErrTooManyRounds indicates a turn exceeded the configured bound on
	// model round-trips without producing a final answer. Fatal to the turn.
	ErrTooManyRounds = errors.New("too many tool rounds")

	// ErrTruncatedStream indicates a model stream ended without reporting a
	// finish reason. Any partial text collected is not a final answer.
	// Fatal to the turn.
	ErrTruncatedStream = errors.New("model stream ended without a finish reason")
)
