package config

const (
	defaultChatModel     = "gpt-4o-mini"
	defaultChatUpstream  = "https://api.openai.com/v1"
	defaultMaxToolRounds = 8

	defaultSimilarityThreshold = 0.95
	defaultGateTopK            = 1

	defaultEmbeddingProvider   = "openai"
	defaultEmbeddingTarget     = "https://api.openai.com/v1"
	defaultEmbeddingModel      = "text-embedding-3-small"
	defaultEmbeddingDimensions = 1536

	defaultHistoryProvider    = "sqlite"
	defaultHistoryTarget      = "mongodb://localhost:27017"
	defaultHistoryDatabase    = "docuchat"
	defaultHistoryVectorIndex = "turns_embedding"

	defaultMCPEndpoint = "http://localhost:8081/mcp"

	defaultDocstoreTarget      = "mongodb://localhost:27017"
	defaultDocstoreVectorIndex = "docs_embedding"

	defaultEventsProvider = "none"
	defaultEventsBrokers  = "localhost:9092"
	defaultEventsTopic    = "docuchat.turns"

	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Chat: ChatConfig{
			Model:         defaultChatModel,
			Upstream:      defaultChatUpstream,
			MaxToolRounds: defaultMaxToolRounds,
		},
		Gate: GateConfig{
			SimilarityThreshold: defaultSimilarityThreshold,
			TopK:                defaultGateTopK,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		History: HistoryConfig{
			Provider:    defaultHistoryProvider,
			Target:      defaultHistoryTarget,
			Database:    defaultHistoryDatabase,
			VectorIndex: defaultHistoryVectorIndex,
		},
		Tools: ToolsConfig{
			MCPEndpoint: defaultMCPEndpoint,
		},
		Docstore: DocstoreConfig{
			Target:      defaultDocstoreTarget,
			VectorIndex: defaultDocstoreVectorIndex,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Brokers:  defaultEventsBrokers,
			Topic:    defaultEventsTopic,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
	}
}
