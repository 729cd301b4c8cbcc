package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/docuchatco/docuchat/pkg/llm"
)

var _ = Describe("parseStreamChunk", func() {
	It("parses a text delta", func() {
		chunk, err := parseStreamChunk([]byte(`{"choices":[{"delta":{"content":"Hello"}}]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(chunk.TextDelta).To(Equal("Hello"))
		Expect(chunk.ToolCall).To(BeNil())
		Expect(chunk.FinishReason).To(BeEmpty())
	})

	It("parses a finish reason", func() {
		chunk, err := parseStreamChunk([]byte(`{"choices":[{"delta":{},"finish_reason":"stop"}]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(chunk.FinishReason).To(Equal(llm.FinishStop))
	})

	It("parses the first tool call fragment with its name", func() {
		payload := `{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_count","arguments":"{\"data"}}]}}]}`
		chunk, err := parseStreamChunk([]byte(payload))
		Expect(err).NotTo(HaveOccurred())
		Expect(chunk.ToolCall).NotTo(BeNil())
		Expect(chunk.ToolCall.Name).To(Equal("get_count"))
		Expect(chunk.ToolCall.Arguments).To(Equal(`{"data`))
	})

	It("parses continuation fragments without a name", func() {
		payload := `{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"base\":\"db1\"}"}}]}}]}`
		chunk, err := parseStreamChunk([]byte(payload))
		Expect(err).NotTo(HaveOccurred())
		Expect(chunk.ToolCall.Name).To(BeEmpty())
		Expect(chunk.ToolCall.Arguments).To(Equal(`base":"db1"}`))
	})

	It("returns nil for a chunk with no choices", func() {
		chunk, err := parseStreamChunk([]byte(`{"usage":{"total_tokens":42}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(chunk).To(BeNil())
	})

	It("errors on malformed JSON", func() {
		_, err := parseStreamChunk([]byte(`{not json`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Client", func() {
	Describe("NewClient", func() {
		It("requires a base URL", func() {
			_, err := NewClient(Config{})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("StreamChat", func() {
		var (
			received   *http.Request
			body       []byte
			responseFn func(w http.ResponseWriter)
			server     *httptest.Server
			ctx        context.Context
		)

		sseBody := func(payloads ...string) func(w http.ResponseWriter) {
			return func(w http.ResponseWriter) {
				w.Header().Set("Content-Type", "text/event-stream")
				for _, p := range payloads {
					fmt.Fprintf(w, "data: %s\n\n", p)
				}
				fmt.Fprint(w, "data: [DONE]\n\n")
			}
		}

		BeforeEach(func() {
			received = nil
			body = nil
			responseFn = sseBody()
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				received = r
				body, _ = io.ReadAll(r.Body)
				responseFn(w)
			}))
			ctx = context.Background()
		})

		AfterEach(func() {
			server.Close()
		})

		It("streams text chunks until the done sentinel", func() {
			responseFn = sseBody(
				`{"choices":[{"delta":{"content":"Hello"}}]}`,
				`{"choices":[{"delta":{"content":" world"}}]}`,
				`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			)

			client, err := NewClient(Config{BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			stream, err := client.StreamChat(ctx, &llm.ChatRequest{
				Model:    "test-model",
				Messages: []llm.Message{llm.UserMessage("hi")},
			})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			chunk, err := stream.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.TextDelta).To(Equal("Hello"))

			chunk, err = stream.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.TextDelta).To(Equal(" world"))

			chunk, err = stream.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.FinishReason).To(Equal(llm.FinishStop))

			chunk, err = stream.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk).To(BeNil())
		})

		It("skips usage-only frames", func() {
			responseFn = sseBody(
				`{"usage":{"total_tokens":10}}`,
				`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			)

			client, err := NewClient(Config{BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			stream, err := client.StreamChat(ctx, &llm.ChatRequest{Model: "test-model"})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			chunk, err := stream.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.FinishReason).To(Equal(llm.FinishStop))
		})

		It("defaults temperature to zero", func() {
			client, err := NewClient(Config{BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			stream, err := client.StreamChat(ctx, &llm.ChatRequest{Model: "test-model"})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			var wire map[string]any
			Expect(json.Unmarshal(body, &wire)).To(Succeed())
			Expect(wire["temperature"]).To(BeNumerically("==", 0))
			Expect(wire["stream"]).To(BeTrue())
		})

		It("disables parallel tool calls when tools are offered", func() {
			client, err := NewClient(Config{BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			stream, err := client.StreamChat(ctx, &llm.ChatRequest{
				Model: "test-model",
				Tools: []llm.Tool{{Name: "get_count", Parameters: json.RawMessage(`{"type":"object"}`)}},
			})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			var wire map[string]any
			Expect(json.Unmarshal(body, &wire)).To(Succeed())
			Expect(wire["parallel_tool_calls"]).To(BeFalse())

			tools, ok := wire["tools"].([]any)
			Expect(ok).To(BeTrue())
			Expect(tools).To(HaveLen(1))
		})

		It("omits parallel_tool_calls without tools", func() {
			client, err := NewClient(Config{BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			stream, err := client.StreamChat(ctx, &llm.ChatRequest{Model: "test-model"})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			var wire map[string]any
			Expect(json.Unmarshal(body, &wire)).To(Succeed())
			Expect(wire).NotTo(HaveKey("parallel_tool_calls"))
		})

		It("authenticates with a bearer token", func() {
			client, err := NewClient(Config{BaseURL: server.URL, APIKey: "sk-test"})
			Expect(err).NotTo(HaveOccurred())

			stream, err := client.StreamChat(ctx, &llm.ChatRequest{Model: "test-model"})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			Expect(received.Header.Get("Authorization")).To(Equal("Bearer sk-test"))
		})

		It("uses the api-key header and query parameter for Azure deployments", func() {
			client, err := NewClient(Config{BaseURL: server.URL, APIKey: "azure-key", APIVersion: "2024-02-01"})
			Expect(err).NotTo(HaveOccurred())

			stream, err := client.StreamChat(ctx, &llm.ChatRequest{Model: "test-model"})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()

			Expect(received.Header.Get("api-key")).To(Equal("azure-key"))
			Expect(received.URL.Query().Get("api-version")).To(Equal("2024-02-01"))
		})

		It("surfaces API error messages on non-200 responses", func() {
			responseFn = func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"error":{"message":"bad api key","type":"invalid_request_error"}}`)
			}

			client, err := NewClient(Config{BaseURL: server.URL})
			Expect(err).NotTo(HaveOccurred())

			_, err = client.StreamChat(ctx, &llm.ChatRequest{Model: "test-model"})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("bad api key"))
		})
	})
})
