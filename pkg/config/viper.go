package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/docuchatco/docuchat/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the DOCUCHAT_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (DOCUCHAT_API_LISTEN, DOCUCHAT_CHAT_API_KEY, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: DOCUCHAT_CHAT_MODEL, DOCUCHAT_HISTORY_TARGET, etc.
	v.SetEnvPrefix("DOCUCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Chat
	v.SetDefault("chat.model", d.Chat.Model)
	v.SetDefault("chat.upstream", d.Chat.Upstream)
	v.SetDefault("chat.api_key", d.Chat.APIKey)
	v.SetDefault("chat.api_version", d.Chat.APIVersion)
	v.SetDefault("chat.max_tool_rounds", d.Chat.MaxToolRounds)

	// Gate
	v.SetDefault("gate.similarity_threshold", d.Gate.SimilarityThreshold)
	v.SetDefault("gate.top_k", d.Gate.TopK)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.api_version", d.Embedding.APIVersion)

	// History
	v.SetDefault("history.provider", d.History.Provider)
	v.SetDefault("history.target", d.History.Target)
	v.SetDefault("history.database", d.History.Database)
	v.SetDefault("history.vector_index", d.History.VectorIndex)
	v.SetDefault("history.sqlite_path", d.History.SQLitePath)

	// Tools
	v.SetDefault("tools.mcp_endpoint", d.Tools.MCPEndpoint)

	// Docstore
	v.SetDefault("docstore.target", d.Docstore.Target)
	v.SetDefault("docstore.vector_index", d.Docstore.VectorIndex)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
}
