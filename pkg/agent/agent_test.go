package agent_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/docuchatco/docuchat/pkg/agent"
	"github.com/docuchatco/docuchat/pkg/history"
	"github.com/docuchatco/docuchat/pkg/llm"
	"github.com/docuchatco/docuchat/pkg/logger"
	"github.com/docuchatco/docuchat/pkg/tools"
	testutils "github.com/docuchatco/docuchat/pkg/utils/test"
)

// consume drains an Ask channel, returning the concatenated text fragments
// and the terminal fragment.
func consume(ch <-chan agent.Fragment) (string, agent.Fragment) {
	var text strings.Builder
	var last agent.Fragment

	for f := range ch {
		if f.Text != "" {
			text.WriteString(f.Text)
		}
		if f.Final != nil || f.Err != nil {
			last = f
		}
	}

	return text.String(), last
}

var _ = Describe("Agent", func() {
	var (
		store    *testutils.MockStore
		embedder *testutils.MockEmbedder
		registry *testutils.MockRegistry
		log      = logger.NewLoggerWithWriters(false, GinkgoWriter)
	)

	BeforeEach(func() {
		store = testutils.NewMockStore()
		embedder = testutils.NewMockEmbedder()
		registry = testutils.NewMockRegistry()
	})

	newAgent := func(streamer llm.Streamer) *agent.Agent {
		a, err := agent.New(&agent.Config{
			Streamer:            streamer,
			Registry:            registry,
			Store:               store,
			Embedder:            embedder,
			Model:               "test-model",
			SimilarityThreshold: 0.95,
			TopK:                1,
			MaxToolRounds:       8,
			Logger:              log,
		})
		Expect(err).NotTo(HaveOccurred())
		return a
	}

	It("returns a cached answer without invoking the model", func() {
		store.SimilarResults = []history.ScoredTurn{
			{
				Turn:  history.Turn{ID: "t1", User: "alice", AssistantMessage: "cached answer"},
				Score: 0.98,
			},
		}

		streamer := testutils.NewMockStreamer()
		a := newAgent(streamer)

		text, last := consume(a.Ask(context.Background(), "alice", "repeat question"))
		a.Close()

		Expect(text).To(Equal("cached answer"))
		Expect(last.Final).NotTo(BeNil())
		Expect(last.Final.Cached).To(BeTrue())
		Expect(last.Final.Answer).To(Equal("cached answer"))
		Expect(streamer.Requests).To(BeEmpty())
	})

	It("persists cache hits as new turns", func() {
		store.SimilarResults = []history.ScoredTurn{
			{
				Turn:  history.Turn{ID: "t1", AssistantMessage: "cached answer"},
				Score: 0.98,
			},
		}

		a := newAgent(testutils.NewMockStreamer())
		_, _ = consume(a.Ask(context.Background(), "alice", "repeat question"))
		a.Close()

		turns := store.AppendedTurns()
		Expect(turns).To(HaveLen(1))
		Expect(turns[0].UserMessage).To(Equal("repeat question"))
		Expect(turns[0].AssistantMessage).To(Equal("cached answer"))
	})

	It("runs the orchestrator on a cache miss and persists one turn", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.TextChunk("fresh answer"),
				testutils.FinishChunk(llm.FinishStop),
			},
		)

		a := newAgent(streamer)
		text, last := consume(a.Ask(context.Background(), "alice", "novel question"))
		a.Close()

		Expect(text).To(Equal("fresh answer"))
		Expect(last.Final).NotTo(BeNil())
		Expect(last.Final.Cached).To(BeFalse())
		Expect(streamer.Requests).To(HaveLen(1))

		turns := store.AppendedTurns()
		Expect(turns).To(HaveLen(1))
		Expect(turns[0].AssistantMessage).To(Equal("fresh answer"))
		Expect(turns[0].Embedding).To(HaveLen(3))
	})

	It("offers discovered tools to the model and reports tool rounds", func() {
		registry.Tools = []tools.Descriptor{{Name: "get_count"}}
		registry.Results["get_count"] = &tools.Result{Content: "10"}

		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.ToolChunk("get_count", `{"database":"db1"}`),
				testutils.FinishChunk(llm.FinishToolCalls),
			},
			[]llm.StreamChunk{
				testutils.TextChunk("There are 10."),
				testutils.FinishChunk(llm.FinishStop),
			},
		)

		a := newAgent(streamer)
		text, last := consume(a.Ask(context.Background(), "alice", "how many?"))
		a.Close()

		Expect(text).To(Equal("There are 10."))
		Expect(last.Final.ToolRounds).To(Equal(1))
		Expect(streamer.Requests[0].Tools).To(HaveLen(1))
		Expect(store.AppendedTurns()).To(HaveLen(1))
	})

	It("surfaces fatal turn errors without persisting", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.ToolChunk("get_count", `{"broken":`),
				testutils.FinishChunk(llm.FinishToolCalls),
			},
		)

		a := newAgent(streamer)
		_, last := consume(a.Ask(context.Background(), "alice", "bad tool turn"))
		a.Close()

		Expect(last.Err).To(MatchError(agent.ErrToolArguments))
		Expect(store.AppendedTurns()).To(BeEmpty())
	})

	It("remains usable after a fatal turn error", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.ToolChunk("get_count", `{"broken":`),
				testutils.FinishChunk(llm.FinishToolCalls),
			},
			[]llm.StreamChunk{
				testutils.TextChunk("second try works"),
				testutils.FinishChunk(llm.FinishStop),
			},
		)

		a := newAgent(streamer)
		_, first := consume(a.Ask(context.Background(), "alice", "bad turn"))
		Expect(first.Err).To(HaveOccurred())

		text, second := consume(a.Ask(context.Background(), "alice", "good turn"))
		a.Close()

		Expect(second.Err).NotTo(HaveOccurred())
		Expect(text).To(Equal("second try works"))
	})

	It("prepends the system prompt to the turn context", func() {
		streamer := testutils.NewMockStreamer(
			[]llm.StreamChunk{
				testutils.TextChunk("ok"),
				testutils.FinishChunk(llm.FinishStop),
			},
		)

		a, err := agent.New(&agent.Config{
			Streamer:            streamer,
			Store:               store,
			Embedder:            embedder,
			Model:               "test-model",
			SystemPrompt:        "You are a document assistant.",
			SimilarityThreshold: 0.95,
			MaxToolRounds:       8,
			Logger:              log,
		})
		Expect(err).NotTo(HaveOccurred())

		_, _ = consume(a.Ask(context.Background(), "alice", "hello"))
		a.Close()

		msgs := streamer.Requests[0].Messages
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Role).To(Equal(llm.RoleSystem))
		Expect(msgs[1].Role).To(Equal(llm.RoleUser))
		Expect(msgs[1].Content).To(Equal("hello"))
	})

	Describe("History", func() {
		It("returns an empty slice for an unknown user", func() {
			a := newAgent(testutils.NewMockStreamer())
			defer a.Close()

			turns, err := a.History(context.Background(), "nobody")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})

		It("returns persisted turns oldest first", func() {
			streamer := testutils.NewMockStreamer(
				[]llm.StreamChunk{
					testutils.TextChunk("answer one"),
					testutils.FinishChunk(llm.FinishStop),
				},
			)

			a := newAgent(streamer)
			_, _ = consume(a.Ask(context.Background(), "alice", "question one"))
			a.Close()

			turns, err := a.History(context.Background(), "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
			Expect(turns[0].UserMessage).To(Equal("question one"))
		})
	})
})
