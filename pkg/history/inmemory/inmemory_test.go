package inmemory

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/docuchatco/docuchat/pkg/history"
)

func turnAt(user, message string, embedding []float32, at time.Time) *history.Turn {
	return &history.Turn{
		ID:               message,
		User:             user,
		UserMessage:      message,
		AssistantMessage: "answer to " + message,
		Embedding:        embedding,
		Timestamp:        at,
	}
}

var _ = Describe("Store", func() {
	var (
		store *Store
		ctx   context.Context
	)

	BeforeEach(func() {
		store = NewStore()
		ctx = context.Background()
	})

	Describe("All", func() {
		It("returns ErrNotFound for an unknown user", func() {
			_, err := store.All(ctx, "nobody")

			var notFound history.ErrNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.User).To(Equal("nobody"))
		})

		It("returns an empty slice for an ensured but empty user", func() {
			Expect(store.EnsureUser(ctx, "ada")).To(Succeed())

			turns, err := store.All(ctx, "ada")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})

		It("orders turns by timestamp ascending", func() {
			now := time.Now()
			Expect(store.Append(ctx, turnAt("ada", "second", nil, now.Add(time.Minute)))).To(Succeed())
			Expect(store.Append(ctx, turnAt("ada", "first", nil, now))).To(Succeed())
			Expect(store.Append(ctx, turnAt("ada", "third", nil, now.Add(2*time.Minute)))).To(Succeed())

			turns, err := store.All(ctx, "ada")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(3))
			Expect(turns[0].UserMessage).To(Equal("first"))
			Expect(turns[1].UserMessage).To(Equal("second"))
			Expect(turns[2].UserMessage).To(Equal("third"))
		})

		It("keeps partitions isolated per user", func() {
			now := time.Now()
			Expect(store.Append(ctx, turnAt("ada", "hers", nil, now))).To(Succeed())
			Expect(store.Append(ctx, turnAt("alan", "his", nil, now))).To(Succeed())

			turns, err := store.All(ctx, "ada")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
			Expect(turns[0].UserMessage).To(Equal("hers"))
		})
	})

	Describe("EnsureUser", func() {
		It("is idempotent and preserves existing turns", func() {
			Expect(store.Append(ctx, turnAt("ada", "kept", nil, time.Now()))).To(Succeed())
			Expect(store.EnsureUser(ctx, "ada")).To(Succeed())

			turns, err := store.All(ctx, "ada")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
		})
	})

	Describe("Similar", func() {
		It("returns ErrNotFound for an unknown user", func() {
			_, err := store.Similar(ctx, "nobody", []float32{1, 0}, 1)

			var notFound history.ErrNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})

		It("ranks by cosine similarity, closest first", func() {
			now := time.Now()
			Expect(store.Append(ctx, turnAt("ada", "orthogonal", []float32{0, 1}, now))).To(Succeed())
			Expect(store.Append(ctx, turnAt("ada", "aligned", []float32{1, 0}, now))).To(Succeed())
			Expect(store.Append(ctx, turnAt("ada", "diagonal", []float32{1, 1}, now))).To(Succeed())

			scored, err := store.Similar(ctx, "ada", []float32{1, 0}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(scored).To(HaveLen(3))
			Expect(scored[0].UserMessage).To(Equal("aligned"))
			Expect(scored[0].Score).To(BeNumerically("~", 1.0, 1e-6))
			Expect(scored[1].UserMessage).To(Equal("diagonal"))
			Expect(scored[2].UserMessage).To(Equal("orthogonal"))
		})

		It("truncates to k results", func() {
			now := time.Now()
			Expect(store.Append(ctx, turnAt("ada", "a", []float32{1, 0}, now))).To(Succeed())
			Expect(store.Append(ctx, turnAt("ada", "b", []float32{0, 1}, now))).To(Succeed())

			scored, err := store.Similar(ctx, "ada", []float32{1, 0}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(scored).To(HaveLen(1))
			Expect(scored[0].UserMessage).To(Equal("a"))
		})

		It("breaks score ties by recency", func() {
			now := time.Now()
			Expect(store.Append(ctx, turnAt("ada", "older", []float32{1, 0}, now))).To(Succeed())
			Expect(store.Append(ctx, turnAt("ada", "newer", []float32{1, 0}, now.Add(time.Minute)))).To(Succeed())

			scored, err := store.Similar(ctx, "ada", []float32{1, 0}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(scored[0].UserMessage).To(Equal("newer"))
		})
	})

	Describe("Cosine", func() {
		It("scores identical vectors as 1", func() {
			Expect(Cosine([]float32{0.3, 0.4}, []float32{0.3, 0.4})).To(BeNumerically("~", 1.0, 1e-6))
		})

		It("scores orthogonal vectors as 0", func() {
			Expect(Cosine([]float32{1, 0}, []float32{0, 1})).To(BeZero())
		})

		It("scores opposite vectors as -1", func() {
			Expect(Cosine([]float32{1, 0}, []float32{-1, 0})).To(BeNumerically("~", -1.0, 1e-6))
		})

		It("scores mismatched lengths as 0", func() {
			Expect(Cosine([]float32{1, 0}, []float32{1})).To(BeZero())
		})

		It("scores zero vectors as 0", func() {
			Expect(Cosine([]float32{0, 0}, []float32{1, 0})).To(BeZero())
		})
	})
})
