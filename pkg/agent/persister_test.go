package agent_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/docuchatco/docuchat/pkg/agent"
	"github.com/docuchatco/docuchat/pkg/eventstream"
	"github.com/docuchatco/docuchat/pkg/history/inmemory"
	"github.com/docuchatco/docuchat/pkg/logger"
	testutils "github.com/docuchatco/docuchat/pkg/utils/test"
)

var _ = Describe("Persister", func() {
	var (
		embedder *testutils.MockEmbedder
		log      = logger.NewLoggerWithWriters(false, GinkgoWriter)
	)

	BeforeEach(func() {
		embedder = testutils.NewMockEmbedder()
	})

	It("appends distinct records for repeated identical turns", func() {
		store := testutils.NewMockStore()
		p, err := agent.NewPersister(&agent.PersisterConfig{
			Store:    store,
			Embedder: embedder,
			Logger:   log,
		})
		Expect(err).NotTo(HaveOccurred())

		job := agent.PersistJob{
			User:             "alice",
			UserMessage:      "same question",
			AssistantMessage: "same answer",
		}
		Expect(p.Enqueue(job)).To(BeTrue())
		Expect(p.Enqueue(job)).To(BeTrue())
		p.Close()

		turns := store.AppendedTurns()
		Expect(turns).To(HaveLen(2))
		Expect(turns[0].ID).NotTo(Equal(turns[1].ID))
		Expect(turns[0].UserMessage).To(Equal("same question"))
		Expect(turns[1].AssistantMessage).To(Equal("same answer"))
	})

	It("round-trips a turn through a real store", func() {
		store := inmemory.NewStore()
		p, err := agent.NewPersister(&agent.PersisterConfig{
			Store:    store,
			Embedder: embedder,
			Logger:   log,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(p.Enqueue(agent.PersistJob{
			User:             "alice",
			UserMessage:      "how many docs?",
			AssistantMessage: "ten",
		})).To(BeTrue())
		p.Close()

		turns, err := store.All(context.Background(), "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(turns).To(HaveLen(1))
		Expect(turns[0].UserMessage).To(Equal("how many docs?"))
		Expect(turns[0].AssistantMessage).To(Equal("ten"))
		Expect(turns[0].Embedding).To(HaveLen(3))
		Expect(turns[0].ID).NotTo(BeEmpty())
		Expect(turns[0].Timestamp).NotTo(BeZero())
	})

	It("reuses a provided embedding instead of re-embedding", func() {
		store := testutils.NewMockStore()
		p, err := agent.NewPersister(&agent.PersisterConfig{
			Store:    store,
			Embedder: embedder,
			Logger:   log,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(p.Enqueue(agent.PersistJob{
			User:             "alice",
			UserMessage:      "q",
			AssistantMessage: "a",
			Embedding:        []float32{0.5, 0.5},
		})).To(BeTrue())
		p.Close()

		Expect(embedder.Calls).To(BeEmpty())
		turns := store.AppendedTurns()
		Expect(turns).To(HaveLen(1))
		Expect(turns[0].Embedding).To(Equal([]float32{0.5, 0.5}))
	})

	It("publishes a turn event after persisting", func() {
		store := testutils.NewMockStore()
		publisher := &capturingPublisher{}
		p, err := agent.NewPersister(&agent.PersisterConfig{
			Store:     store,
			Embedder:  embedder,
			Publisher: publisher,
			Model:     "test-model",
			Logger:    log,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(p.Enqueue(agent.PersistJob{
			User:             "alice",
			UserMessage:      "q",
			AssistantMessage: "a",
			Cached:           true,
			Score:            0.99,
		})).To(BeTrue())
		p.Close()

		Expect(publisher.events).To(HaveLen(1))
		Expect(publisher.events[0].TurnMeta.Cached).To(BeTrue())
		Expect(publisher.events[0].Source.Model).To(Equal("test-model"))
		Expect(publisher.events[0].Turn.User).To(Equal("alice"))
	})

	It("drops the turn when the message cannot be embedded", func() {
		store := testutils.NewMockStore()
		embedder.FailOn = "unembeddable"
		p, err := agent.NewPersister(&agent.PersisterConfig{
			Store:    store,
			Embedder: embedder,
			Logger:   log,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(p.Enqueue(agent.PersistJob{
			User:             "alice",
			UserMessage:      "unembeddable",
			AssistantMessage: "a",
		})).To(BeTrue())
		p.Close()

		Expect(embedder.Calls).To(HaveLen(1))
		Expect(store.AppendedTurns()).To(BeEmpty())
	})

	It("keeps answering when the store write fails", func() {
		store := testutils.NewMockStore()
		store.FailAppend = true
		p, err := agent.NewPersister(&agent.PersisterConfig{
			Store:    store,
			Embedder: embedder,
			Logger:   log,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(p.Enqueue(agent.PersistJob{User: "alice", UserMessage: "q", AssistantMessage: "a"})).To(BeTrue())
		p.Close()

		Expect(store.AppendedTurns()).To(BeEmpty())
	})
})

type capturingPublisher struct {
	events []*eventstream.TurnPersistedEvent
}

func (c *capturingPublisher) PublishTurn(_ context.Context, e *eventstream.TurnPersistedEvent) error {
	c.events = append(c.events, e)
	return nil
}

func (c *capturingPublisher) Close() error { return nil }
