package agent_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/docuchatco/docuchat/pkg/agent"
	"github.com/docuchatco/docuchat/pkg/llm"
	"github.com/docuchatco/docuchat/pkg/logger"
	"github.com/docuchatco/docuchat/pkg/tools"
	testutils "github.com/docuchatco/docuchat/pkg/utils/test"
)

var _ = Describe("Orchestrator", func() {
	var (
		registry *testutils.MockRegistry
		log      = logger.NewLoggerWithWriters(false, GinkgoWriter)
	)

	BeforeEach(func() {
		registry = testutils.NewMockRegistry()
	})

	newOrch := func(streamer llm.Streamer) *agent.Orchestrator {
		return agent.NewOrchestrator(streamer, registry, "test-model", 8, log)
	}

	userMsg := func() []llm.Message {
		return []llm.Message{llm.UserMessage("hello")}
	}

	It("terminates in one round on a plain text stream", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.TextChunk("Hel"),
				testutils.TextChunk("lo"),
				testutils.FinishChunk(llm.FinishStop),
			},
		)

		var emitted []string
		answer, rounds, err := newOrch(streamer).Run(context.Background(), userMsg(), nil, func(d string) {
			emitted = append(emitted, d)
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("Hello"))
		Expect(rounds).To(Equal(0))
		Expect(strings.Join(emitted, "")).To(Equal("Hello"))
		Expect(registry.Calls).To(BeEmpty())
		Expect(streamer.Requests).To(HaveLen(1))
	})

	It("merges tool argument fragments and invokes the tool exactly once", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.ToolChunk("get_count", `{"database":"db1",`),
				testutils.ToolChunk("", `"container":"c1"}`),
				testutils.FinishChunk(llm.FinishToolCalls),
			},
			[]llm.StreamChunk{
				testutils.TextChunk("There are 10."),
				testutils.FinishChunk(llm.FinishStop),
			},
		)
		registry.Results["get_count"] = &tools.Result{Content: "10"}

		answer, rounds, err := newOrch(streamer).Run(context.Background(), userMsg(), nil, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("There are 10."))
		Expect(rounds).To(Equal(1))
		Expect(registry.Calls).To(HaveLen(1))
		Expect(registry.Calls[0].Name).To(Equal("get_count"))
		Expect(registry.Calls[0].Args).To(Equal(map[string]any{
			"database":  "db1",
			"container": "c1",
		}))
	})

	It("folds successful tool results into the next round's context", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.ToolChunk("get_count", `{"database":"db1"}`),
				testutils.FinishChunk(llm.FinishToolCalls),
			},
			[]llm.StreamChunk{
				testutils.TextChunk("done"),
				testutils.FinishChunk(llm.FinishStop),
			},
		)
		registry.Results["get_count"] = &tools.Result{Content: "10"}

		_, _, err := newOrch(streamer).Run(context.Background(), userMsg(), nil, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(streamer.Requests).To(HaveLen(2))
		second := streamer.Requests[1].Messages
		Expect(second).To(HaveLen(3))
		Expect(second[0].Role).To(Equal(llm.RoleUser))
		Expect(second[1].Role).To(Equal(llm.RoleAssistant))
		Expect(second[1].Content).To(ContainSubstring("get_count"))
		Expect(second[2].Role).To(Equal(llm.RoleSystem))
		Expect(second[2].Content).To(Equal("10"))
	})

	It("continues with a system error entry when the tool reports an error", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.ToolChunk("get_count", `{}`),
				testutils.FinishChunk(llm.FinishToolCalls),
			},
			[]llm.StreamChunk{
				testutils.TextChunk("recovered"),
				testutils.FinishChunk(llm.FinishStop),
			},
		)
		registry.Results["get_count"] = &tools.Result{IsError: true, Content: "boom"}

		answer, _, err := newOrch(streamer).Run(context.Background(), userMsg(), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("recovered"))

		second := streamer.Requests[1].Messages
		Expect(second).To(HaveLen(3))
		Expect(second[1].Role).To(Equal(llm.RoleSystem))
		Expect(second[1].Content).To(ContainSubstring("error"))
		Expect(second[2].Role).To(Equal(llm.RoleSystem))
		Expect(second[2].Content).To(Equal("boom"))
	})

	It("folds transport failures into context instead of aborting", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.ToolChunk("get_count", `{}`),
				testutils.FinishChunk(llm.FinishToolCalls),
			},
			[]llm.StreamChunk{
				testutils.TextChunk("recovered"),
				testutils.FinishChunk(llm.FinishStop),
			},
		)
		registry.FailCall = true

		answer, _, err := newOrch(streamer).Run(context.Background(), userMsg(), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("recovered"))

		second := streamer.Requests[1].Messages
		Expect(second).To(HaveLen(2))
		Expect(second[1].Role).To(Equal(llm.RoleSystem))
		Expect(second[1].Content).To(ContainSubstring("Error calling the tool get_count"))
	})

	It("treats malformed tool arguments as fatal", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.ToolChunk("get_count", `{"database":`),
				testutils.FinishChunk(llm.FinishToolCalls),
			},
		)

		_, _, err := newOrch(streamer).Run(context.Background(), userMsg(), nil, nil)
		Expect(err).To(MatchError(agent.ErrToolArguments))
		Expect(registry.Calls).To(BeEmpty())
	})

	It("does not terminate on a whitespace-only stop", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.TextChunk("   \n"),
				testutils.FinishChunk(llm.FinishStop),
			},
			[]llm.StreamChunk{
				testutils.TextChunk("real answer"),
				testutils.FinishChunk(llm.FinishStop),
			},
		)

		answer, _, err := newOrch(streamer).Run(context.Background(), userMsg(), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("real answer"))
		Expect(streamer.Requests).To(HaveLen(2))
	})

	It("aborts when the stream ends without a finish reason", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.TextChunk("The answer is"),
			},
		)

		answer, _, err := newOrch(streamer).Run(context.Background(), userMsg(), nil, nil)
		Expect(err).To(MatchError(agent.ErrTruncatedStream))
		Expect(answer).To(BeEmpty())
	})

	It("reissues when a tool finish carries no accumulated call", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.FinishChunk(llm.FinishToolCalls),
			},
			[]llm.StreamChunk{
				testutils.TextChunk("real answer"),
				testutils.FinishChunk(llm.FinishStop),
			},
		)

		answer, rounds, err := newOrch(streamer).Run(context.Background(), userMsg(), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("real answer"))
		Expect(rounds).To(Equal(0))
		Expect(registry.Calls).To(BeEmpty())
		Expect(streamer.Requests).To(HaveLen(2))
	})

	It("aborts with ErrTooManyRounds when the bound is exceeded", func() {
		registry.Results["ping"] = &tools.Result{Content: "pong"}

		round := []llm.StreamChunk{
			testutils.ToolChunk("ping", `{}`),
			testutils.FinishChunk(llm.FinishToolCalls),
		}
		streamer := testutils.NewMockStreamer(round, round, round)

		orch := agent.NewOrchestrator(streamer, registry, "test-model", 3, log)
		_, _, err := orch.Run(context.Background(), userMsg(), nil, nil)
		Expect(err).To(MatchError(agent.ErrTooManyRounds))
	})

	It("surfaces model stream failures", func() {
		streamer := testutils.NewMockStreamer()

		_, _, err := newOrch(streamer).Run(context.Background(), userMsg(), nil, nil)
		Expect(err).To(HaveOccurred())
	})

	It("stops issuing rounds once the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.TextChunk("never seen"),
				testutils.FinishChunk(llm.FinishStop),
			},
		)

		_, _, err := newOrch(streamer).Run(ctx, userMsg(), nil, nil)
		Expect(err).To(MatchError(context.Canceled))
		Expect(streamer.Requests).To(BeEmpty())
	})

	It("passes tool descriptors through to the model request", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.TextChunk("ok"),
				testutils.FinishChunk(llm.FinishStop),
			},
		)

		descriptors := []tools.Descriptor{
			{Name: "get_count", Description: "counts documents"},
		}

		_, _, err := newOrch(streamer).Run(context.Background(), userMsg(), descriptors, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(streamer.Requests[0].Tools).To(HaveLen(1))
		Expect(streamer.Requests[0].Tools[0].Name).To(Equal("get_count"))
	})
})
