package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/pkg/llm"
	"github.com/docuchatco/docuchat/pkg/tools"
)

// Orchestrator drives one logical turn against the model: stream a round,
// accumulate text and tool-call deltas, execute the requested tool, fold the
// result back into the working context, and repeat until the model stops
// with a non-empty answer.
//
// Only one tool call is accumulated and executed per round; requests are
// issued with parallel tool calls disabled so the state machine is a strict
// alternation between model round and tool round.
type Orchestrator struct {
	streamer  llm.Streamer
	registry  tools.Registry
	model     string
	maxRounds int
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator. maxRounds bounds the number of
// model round-trips in a single turn; exceeding it aborts the turn with
// ErrTooManyRounds.
func NewOrchestrator(streamer llm.Streamer, registry tools.Registry, model string, maxRounds int, logger *zap.Logger) *Orchestrator {
	if maxRounds < 1 {
		maxRounds = 1
	}

	return &Orchestrator{
		streamer:  streamer,
		registry:  registry,
		model:     model,
		maxRounds: maxRounds,
		logger:    logger,
	}
}

// Run processes one turn. messages is the working context, already ending
// with the user's message; it is never re-appended on repeat rounds. Each
// text delta is passed to emit as it arrives. Returns the final answer and
// the number of tool invocations made.
func (o *Orchestrator) Run(ctx context.Context, messages []llm.Message, descriptors []tools.Descriptor, emit func(string)) (string, int, error) {
	reqTools := make([]llm.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		reqTools = append(reqTools, llm.Tool{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}

	toolCalls := 0

	for round := 1; ; round++ {
		if round > o.maxRounds {
			return "", toolCalls, fmt.Errorf("%w: gave up after %d rounds", ErrTooManyRounds, o.maxRounds)
		}

		if err := ctx.Err(); err != nil {
			return "", toolCalls, err
		}

		text, toolName, toolArgs, finish, err := o.streamRound(ctx, messages, reqTools, emit)
		if err != nil {
			return "", toolCalls, err
		}

		// Exhaustion without a finish reason means the upstream connection
		// dropped mid-stream; the collected text is a fragment, not an answer.
		if finish == "" {
			return "", toolCalls, fmt.Errorf("%w on round %d", ErrTruncatedStream, round)
		}

		if finish == llm.FinishToolCalls {
			// Some models report a tool finish without ever emitting the
			// call deltas; there is nothing to execute, so reissue.
			if toolName == "" {
				o.logger.Debug("tool finish without an accumulated call, reissuing",
					zap.Int("round", round),
				)
				continue
			}

			toolCalls++
			messages = o.executeTool(ctx, messages, toolName, toolArgs)
			if messages == nil {
				return "", toolCalls, fmt.Errorf("%w: %s(%s)", ErrToolArguments, toolName, toolArgs)
			}
			continue
		}

		// Finish "stop": a whitespace-only answer does not end the turn.
		if strings.TrimSpace(text) == "" {
			o.logger.Debug("model stopped with empty text, reissuing",
				zap.Int("round", round),
			)
			continue
		}

		return text, toolCalls, nil
	}
}

// streamRound consumes one model stream to exhaustion, returning the
// accumulated text, the pending tool call (if any), and the finish reason.
func (o *Orchestrator) streamRound(ctx context.Context, messages []llm.Message, reqTools []llm.Tool, emit func(string)) (string, string, string, string, error) {
	req := &llm.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Tools:    reqTools,
	}

	stream, err := o.streamer.StreamChat(ctx, req)
	if err != nil {
		return "", "", "", "", fmt.Errorf("starting model stream: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	var args strings.Builder
	var toolName string
	var finish string

	for {
		chunk, err := stream.Next()
		if err != nil {
			return "", "", "", "", fmt.Errorf("reading model stream: %w", err)
		}
		if chunk == nil {
			break
		}

		if chunk.TextDelta != "" {
			text.WriteString(chunk.TextDelta)
			if emit != nil {
				emit(chunk.TextDelta)
			}
		}

		if chunk.ToolCall != nil {
			if toolName == "" && chunk.ToolCall.Name != "" {
				toolName = chunk.ToolCall.Name
			}
			args.WriteString(chunk.ToolCall.Arguments)
		}

		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}

	return text.String(), toolName, args.String(), finish, nil
}

// executeTool parses the accumulated argument text, invokes the tool, and
// appends the context entries for the next round. Returns nil when the
// arguments fail to parse, which is fatal to the turn.
func (o *Orchestrator) executeTool(ctx context.Context, messages []llm.Message, name, rawArgs string) []llm.Message {
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			o.logger.Error("tool arguments failed to parse",
				zap.String("tool", name),
				zap.String("arguments", rawArgs),
				zap.Error(err),
			)
			return nil
		}
	}

	o.logger.Debug("invoking tool",
		zap.String("tool", name),
		zap.String("arguments", rawArgs),
	)

	var result *tools.Result
	var err error
	if o.registry == nil {
		err = tools.ErrToolNotFound
	} else {
		result, err = o.registry.Call(ctx, name, args)
	}

	// Transport-level failures are folded into the context as system
	// entries so the model can recover conversationally.
	if err != nil {
		o.logger.Warn("tool invocation failed",
			zap.String("tool", name),
			zap.Error(err),
		)
		return append(messages,
			llm.SystemMessage(fmt.Sprintf("Error calling the tool %s: %v", name, err)),
		)
	}

	if result.IsError {
		messages = append(messages,
			llm.SystemMessage(fmt.Sprintf("The tool %s with arguments %s reported an error", name, rawArgs)),
		)
	} else {
		messages = append(messages,
			llm.AssistantMessage(fmt.Sprintf("I will use the tool %s with arguments %s", name, rawArgs)),
		)
	}

	return append(messages, llm.SystemMessage(result.Content))
}
