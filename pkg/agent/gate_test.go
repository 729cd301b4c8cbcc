package agent_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/docuchatco/docuchat/pkg/agent"
	"github.com/docuchatco/docuchat/pkg/history"
	"github.com/docuchatco/docuchat/pkg/logger"
	testutils "github.com/docuchatco/docuchat/pkg/utils/test"
)

var _ = Describe("Gate", func() {
	var (
		store    *testutils.MockStore
		embedder *testutils.MockEmbedder
		log      = logger.NewLoggerWithWriters(false, GinkgoWriter)
	)

	BeforeEach(func() {
		store = testutils.NewMockStore()
		embedder = testutils.NewMockEmbedder()
	})

	newGate := func() *agent.Gate {
		return agent.NewGate(store, embedder, 0.95, 1, log)
	}

	It("hits when a prior turn scores at or above the threshold", func() {
		store.SimilarResults = []history.ScoredTurn{
			{
				Turn:  history.Turn{ID: "t1", AssistantMessage: "cached answer"},
				Score: 0.97,
			},
		}

		res := newGate().Check(context.Background(), "alice", "what is the count?")
		Expect(res.Hit).To(BeTrue())
		Expect(res.Answer).To(Equal("cached answer"))
		Expect(res.Score).To(BeNumerically("~", 0.97, 1e-6))
		Expect(res.Embedding).NotTo(BeEmpty())
	})

	It("misses when the best prior turn is below the threshold", func() {
		store.SimilarResults = []history.ScoredTurn{
			{
				Turn:  history.Turn{ID: "t1", AssistantMessage: "close but no"},
				Score: 0.90,
			},
		}

		res := newGate().Check(context.Background(), "alice", "something else")
		Expect(res.Hit).To(BeFalse())
		Expect(res.Embedding).NotTo(BeEmpty())
	})

	It("misses when the user has no history", func() {
		res := newGate().Check(context.Background(), "newcomer", "first message")
		Expect(res.Hit).To(BeFalse())
	})

	It("treats similarity query failures as misses", func() {
		store.FailSimilar = true

		res := newGate().Check(context.Background(), "alice", "anything")
		Expect(res.Hit).To(BeFalse())
		Expect(res.Embedding).NotTo(BeEmpty())
	})

	It("treats embedding failures as misses without an embedding", func() {
		embedder.FailOn = "poison"

		res := newGate().Check(context.Background(), "alice", "poison")
		Expect(res.Hit).To(BeFalse())
		Expect(res.Embedding).To(BeNil())
	})
})
