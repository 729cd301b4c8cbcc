package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent docuchat configuration stored as
// config.toml in the .docuchat/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Chat      ChatConfig      `toml:"chat"`
	Gate      GateConfig      `toml:"gate"`
	Embedding EmbeddingConfig `toml:"embedding"`
	History   HistoryConfig   `toml:"history"`
	Tools     ToolsConfig     `toml:"tools"`
	Docstore  DocstoreConfig  `toml:"docstore"`
	Events    EventsConfig    `toml:"events"`
	API       APIConfig       `toml:"api"`
	Client    ClientConfig    `toml:"client"`
}

// ChatConfig holds chat model settings.
type ChatConfig struct {
	// Model is the chat completion model name.
	Model string `toml:"model,omitempty"`

	// Upstream is the base URL of the OpenAI-compatible completion API.
	Upstream string `toml:"upstream,omitempty"`

	// APIKey authenticates against the upstream. Usually supplied via the
	// DOCUCHAT_CHAT_API_KEY environment variable rather than the file.
	APIKey string `toml:"api_key,omitempty"`

	// APIVersion switches authentication to Azure-style api-key headers
	// when set.
	APIVersion string `toml:"api_version,omitempty"`

	// MaxToolRounds bounds the number of tool invocations in a single turn.
	MaxToolRounds uint `toml:"max_tool_rounds,omitempty"`
}

// GateConfig holds similarity gate settings.
type GateConfig struct {
	// SimilarityThreshold is the minimum cosine similarity for a prior
	// turn's answer to be replayed instead of generating a new one.
	SimilarityThreshold float64 `toml:"similarity_threshold,omitempty"`

	// TopK is how many nearest prior turns the gate considers.
	TopK uint `toml:"top_k,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	APIVersion string `toml:"api_version,omitempty"`
}

// HistoryConfig holds conversation history store settings.
type HistoryConfig struct {
	// Provider selects the store driver: "mongo", "sqlite", or "memory".
	Provider string `toml:"provider,omitempty"`

	// Target is the driver connection string (mongo URI for "mongo").
	Target string `toml:"target,omitempty"`

	// Database is the database name used by the mongo driver.
	Database string `toml:"database,omitempty"`

	// VectorIndex is the Atlas vector search index name for the mongo driver.
	VectorIndex string `toml:"vector_index,omitempty"`

	// SQLitePath is the database file path used by the sqlite driver.
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// ToolsConfig holds settings for connecting to the tool server.
type ToolsConfig struct {
	// MCPEndpoint is the streamable HTTP endpoint of the MCP tool server.
	MCPEndpoint string `toml:"mcp_endpoint,omitempty"`
}

// DocstoreConfig holds settings for the document database the built-in MCP
// tools operate on.
type DocstoreConfig struct {
	// Target is the mongo URI of the document database.
	Target string `toml:"target,omitempty"`

	// VectorIndex is the Atlas vector search index used by the
	// vector_search tool.
	VectorIndex string `toml:"vector_index,omitempty"`
}

// EventsConfig holds event stream publisher settings.
type EventsConfig struct {
	// Provider selects the publisher: "none" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma-separated list of Kafka bootstrap brokers.
	Brokers string `toml:"brokers,omitempty"`

	// Topic is the Kafka topic turn events are published to.
	Topic string `toml:"topic,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the running
// API server (e.g. docuchat chat). Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"chat.model": {
		get: func(c *Config) string { return c.Chat.Model },
		set: func(c *Config, v string) error { c.Chat.Model = v; return nil },
	},
	"chat.upstream": {
		get: func(c *Config) string { return c.Chat.Upstream },
		set: func(c *Config, v string) error { c.Chat.Upstream = v; return nil },
	},
	"chat.api_version": {
		get: func(c *Config) string { return c.Chat.APIVersion },
		set: func(c *Config, v string) error { c.Chat.APIVersion = v; return nil },
	},
	"chat.max_tool_rounds": {
		get: func(c *Config) string {
			if c.Chat.MaxToolRounds == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Chat.MaxToolRounds), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for chat.max_tool_rounds: %w", err)
			}
			c.Chat.MaxToolRounds = uint(n)
			return nil
		},
	},
	"gate.similarity_threshold": {
		get: func(c *Config) string {
			if c.Gate.SimilarityThreshold == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Gate.SimilarityThreshold, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for gate.similarity_threshold: %w", err)
			}
			c.Gate.SimilarityThreshold = f
			return nil
		},
	},
	"gate.top_k": {
		get: func(c *Config) string {
			if c.Gate.TopK == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Gate.TopK), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for gate.top_k: %w", err)
			}
			c.Gate.TopK = uint(n)
			return nil
		},
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"history.provider": {
		get: func(c *Config) string { return c.History.Provider },
		set: func(c *Config, v string) error { c.History.Provider = v; return nil },
	},
	"history.target": {
		get: func(c *Config) string { return c.History.Target },
		set: func(c *Config, v string) error { c.History.Target = v; return nil },
	},
	"history.database": {
		get: func(c *Config) string { return c.History.Database },
		set: func(c *Config, v string) error { c.History.Database = v; return nil },
	},
	"history.vector_index": {
		get: func(c *Config) string { return c.History.VectorIndex },
		set: func(c *Config, v string) error { c.History.VectorIndex = v; return nil },
	},
	"history.sqlite_path": {
		get: func(c *Config) string { return c.History.SQLitePath },
		set: func(c *Config, v string) error { c.History.SQLitePath = v; return nil },
	},
	"tools.mcp_endpoint": {
		get: func(c *Config) string { return c.Tools.MCPEndpoint },
		set: func(c *Config, v string) error { c.Tools.MCPEndpoint = v; return nil },
	},
	"docstore.target": {
		get: func(c *Config) string { return c.Docstore.Target },
		set: func(c *Config, v string) error { c.Docstore.Target = v; return nil },
	},
	"docstore.vector_index": {
		get: func(c *Config) string { return c.Docstore.VectorIndex },
		set: func(c *Config, v string) error { c.Docstore.VectorIndex = v; return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
}
