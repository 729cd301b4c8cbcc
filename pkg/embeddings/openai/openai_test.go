package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/docuchatco/docuchat/pkg/embeddings"
)

var _ = Describe("TruncateRunes", func() {
	It("passes short strings through unchanged", func() {
		Expect(TruncateRunes("hello", 10)).To(Equal("hello"))
	})

	It("truncates to exactly max runes", func() {
		Expect(TruncateRunes("hello world", 5)).To(Equal("hello"))
	})

	It("never splits a multi-byte rune", func() {
		Expect(TruncateRunes("héllo", 2)).To(Equal("hé"))
		Expect(TruncateRunes("日本語のテキスト", 3)).To(Equal("日本語"))
	})

	It("is deterministic for the same input", func() {
		long := strings.Repeat("a", 10000)
		Expect(TruncateRunes(long, 100)).To(Equal(TruncateRunes(long, 100)))
	})

	It("ignores a non-positive max", func() {
		Expect(TruncateRunes("hello", 0)).To(Equal("hello"))
		Expect(TruncateRunes("hello", -1)).To(Equal("hello"))
	})
})

var _ = Describe("Embedder", func() {
	var (
		received embedRequest
		server   *httptest.Server
		ctx      context.Context
	)

	BeforeEach(func() {
		received = embedRequest{}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &received)
			fmt.Fprint(w, `{"data":[{"embedding":[0.1,0.2,0.3]}]}`)
		}))
		ctx = context.Background()
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires a base URL", func() {
		_, err := NewEmbedder(Config{Model: "text-embedding-3-small"})
		Expect(err).To(HaveOccurred())
	})

	It("reports ErrUnavailable without a model", func() {
		embedder, err := NewEmbedder(Config{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = embedder.Embed(ctx, "hello")
		Expect(errors.Is(err, embeddings.ErrUnavailable)).To(BeTrue())
	})

	It("returns the embedding from the endpoint", func() {
		embedder, err := NewEmbedder(Config{BaseURL: server.URL, Model: "text-embedding-3-small"})
		Expect(err).NotTo(HaveOccurred())

		embedding, err := embedder.Embed(ctx, "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(embedding).To(Equal([]float32{0.1, 0.2, 0.3}))
		Expect(received.Model).To(Equal("text-embedding-3-small"))
		Expect(received.Input).To(Equal("hello"))
	})

	It("truncates oversized input to a deterministic prefix", func() {
		embedder, err := NewEmbedder(Config{
			BaseURL:       server.URL,
			Model:         "text-embedding-3-small",
			MaxInputRunes: 8,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = embedder.Embed(ctx, "0123456789abcdef")
		Expect(err).NotTo(HaveOccurred())
		Expect(received.Input).To(Equal("01234567"))
	})

	It("wraps endpoint failures in ErrEmbedding", func() {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer failing.Close()

		embedder, err := NewEmbedder(Config{BaseURL: failing.URL, Model: "text-embedding-3-small"})
		Expect(err).NotTo(HaveOccurred())

		_, err = embedder.Embed(ctx, "hello")
		Expect(errors.Is(err, embeddings.ErrEmbedding)).To(BeTrue())
	})

	It("errors when the endpoint returns no embeddings", func() {
		empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"data":[]}`)
		}))
		defer empty.Close()

		embedder, err := NewEmbedder(Config{BaseURL: empty.URL, Model: "text-embedding-3-small"})
		Expect(err).NotTo(HaveOccurred())

		_, err = embedder.Embed(ctx, "hello")
		Expect(errors.Is(err, embeddings.ErrEmbedding)).To(BeTrue())
	})
})
