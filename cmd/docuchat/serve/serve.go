// Package servecmder provides the serve command for running the docuchat
// chat API server with the document tools mounted on the same listener.
package servecmder

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/api"
	toolscmder "github.com/docuchatco/docuchat/cmd/docuchat/serve/tools"
	"github.com/docuchatco/docuchat/pkg/agent"
	"github.com/docuchatco/docuchat/pkg/config"
	"github.com/docuchatco/docuchat/pkg/docstore"
	"github.com/docuchatco/docuchat/pkg/embeddings"
	embeddingutils "github.com/docuchatco/docuchat/pkg/embeddings/utils"
	"github.com/docuchatco/docuchat/pkg/eventstream"
	kafkaevents "github.com/docuchatco/docuchat/pkg/eventstream/kafka"
	"github.com/docuchatco/docuchat/pkg/eventstream/nop"
	"github.com/docuchatco/docuchat/pkg/history"
	historyutils "github.com/docuchatco/docuchat/pkg/history/utils"
	"github.com/docuchatco/docuchat/pkg/llm/openai"
	"github.com/docuchatco/docuchat/pkg/logger"
	"github.com/docuchatco/docuchat/pkg/tools"
	"github.com/docuchatco/docuchat/pkg/tools/mcptools"
)

const defaultSystemPrompt = `You are a helpful assistant that answers questions about the user's documents.
You have access to tools that can inspect and search a document database.
Use the tools to look up real data before answering. If a tool reports an
error, adjust your arguments and try again or answer from what you already know.`

type ServeCommander struct {
	debug  bool
	logger *zap.Logger
	viper  *viper.Viper

	// Flag targets. The effective values are resolved through viper in
	// resolveConfig so environment and config file layering applies.
	model               string
	upstream            string
	maxToolRounds       uint
	similarityThreshold float64
	gateTopK            uint
	embeddingProvider   string
	embeddingTarget     string
	embeddingModel      string
	embeddingDims       uint
	historyProvider     string
	historyTarget       string
	sqlitePath          string
	mcpEndpoint         string
	docstoreTarget      string
	apiListen           string

	cfg config.Config
}

const serveLongDesc string = `Run the docuchat chat API server.

The server exposes the chat endpoint, per-user history, and (when a
document store is configured) the MCP document tools on one listener.

Use the tools subcommand to run the document tools server on its own:
  docuchat serve          Run the chat API with document tools mounted
  docuchat serve tools    Run just the document tools server`

const serveShortDesc string = "Run the docuchat API server"

// serveFlags is the flag registry for the serve command.
var serveFlags = config.FlagSet{
	config.FlagChatModel: {
		Name: "model", Shorthand: "m", ViperKey: "chat.model",
		Description: "Chat completion model name",
	},
	config.FlagChatUpstream: {
		Name: "upstream", Shorthand: "u", ViperKey: "chat.upstream",
		Description: "OpenAI-compatible completion API base URL",
	},
	config.FlagMaxToolRounds: {
		Name: "max-tool-rounds", ViperKey: "chat.max_tool_rounds",
		Description: "Maximum tool invocations in a single turn",
	},
	config.FlagSimilarityThreshold: {
		Name: "similarity-threshold", ViperKey: "gate.similarity_threshold",
		Description: "Minimum cosine similarity for replaying a cached answer",
	},
	config.FlagGateTopK: {
		Name: "gate-top-k", ViperKey: "gate.top_k",
		Description: "How many nearest prior turns the similarity gate considers",
	},
	config.FlagEmbeddingProv: {
		Name: "embedding-provider", ViperKey: "embedding.provider",
		Description: "Embedding provider (openai, ollama)",
	},
	config.FlagEmbeddingTgt: {
		Name: "embedding-target", ViperKey: "embedding.target",
		Description: "Embedding provider base URL",
	},
	config.FlagEmbeddingModel: {
		Name: "embedding-model", ViperKey: "embedding.model",
		Description: "Embedding model name",
	},
	config.FlagEmbeddingDims: {
		Name: "embedding-dimensions", ViperKey: "embedding.dimensions",
		Description: "Embedding vector dimensions",
	},
	config.FlagHistoryProv: {
		Name: "history-provider", ViperKey: "history.provider",
		Description: "History store driver (sqlite, mongo, memory)",
	},
	config.FlagHistoryTgt: {
		Name: "history-target", ViperKey: "history.target",
		Description: "History store connection string (mongo URI)",
	},
	config.FlagHistorySQLite: {
		Name: "sqlite", Shorthand: "s", ViperKey: "history.sqlite_path",
		Description: "Path to the SQLite history database",
	},
	config.FlagMCPEndpoint: {
		Name: "mcp-endpoint", ViperKey: "tools.mcp_endpoint",
		Description: "MCP tool server endpoint the agent connects to",
	},
	config.FlagDocstoreTarget: {
		Name: "docstore-target", ViperKey: "docstore.target",
		Description: "Mongo URI of the document database served as tools",
	},
	config.FlagAPIListen: {
		Name: "api-listen", Shorthand: "a", ViperKey: "api.listen",
		Description: "Address for the API server to listen on",
	},
}

// serveFlagKeys is the order flags are registered and bound in.
var serveFlagKeys = []string{
	config.FlagChatModel,
	config.FlagChatUpstream,
	config.FlagMaxToolRounds,
	config.FlagSimilarityThreshold,
	config.FlagGateTopK,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagHistoryProv,
	config.FlagHistoryTgt,
	config.FlagHistorySQLite,
	config.FlagMCPEndpoint,
	config.FlagDocstoreTarget,
	config.FlagAPIListen,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			cmder.resolveConfig()
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagChatModel, &cmder.model)
	config.AddStringFlag(cmd, serveFlags, config.FlagChatUpstream, &cmder.upstream)
	config.AddUintFlag(cmd, serveFlags, config.FlagMaxToolRounds, &cmder.maxToolRounds)
	config.AddFloat64Flag(cmd, serveFlags, config.FlagSimilarityThreshold, &cmder.similarityThreshold)
	config.AddUintFlag(cmd, serveFlags, config.FlagGateTopK, &cmder.gateTopK)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingProv, &cmder.embeddingProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, serveFlags, config.FlagEmbeddingDims, &cmder.embeddingDims)
	config.AddStringFlag(cmd, serveFlags, config.FlagHistoryProv, &cmder.historyProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagHistoryTgt, &cmder.historyTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagHistorySQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagMCPEndpoint, &cmder.mcpEndpoint)
	config.AddStringFlag(cmd, serveFlags, config.FlagDocstoreTarget, &cmder.docstoreTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.apiListen)

	cmd.AddCommand(toolscmder.NewToolsCmd())

	return cmd
}

// resolveConfig reads the effective configuration out of viper after flag,
// environment, file, and default layering.
func (c *ServeCommander) resolveConfig() {
	v := c.viper

	c.cfg.Chat.Model = v.GetString("chat.model")
	c.cfg.Chat.Upstream = v.GetString("chat.upstream")
	c.cfg.Chat.APIKey = v.GetString("chat.api_key")
	c.cfg.Chat.APIVersion = v.GetString("chat.api_version")
	c.cfg.Chat.MaxToolRounds = v.GetUint("chat.max_tool_rounds")

	c.cfg.Gate.SimilarityThreshold = v.GetFloat64("gate.similarity_threshold")
	c.cfg.Gate.TopK = v.GetUint("gate.top_k")

	c.cfg.Embedding.Provider = v.GetString("embedding.provider")
	c.cfg.Embedding.Target = v.GetString("embedding.target")
	c.cfg.Embedding.Model = v.GetString("embedding.model")
	c.cfg.Embedding.Dimensions = v.GetUint("embedding.dimensions")
	c.cfg.Embedding.APIKey = v.GetString("embedding.api_key")
	c.cfg.Embedding.APIVersion = v.GetString("embedding.api_version")

	c.cfg.History.Provider = v.GetString("history.provider")
	c.cfg.History.Target = v.GetString("history.target")
	c.cfg.History.Database = v.GetString("history.database")
	c.cfg.History.VectorIndex = v.GetString("history.vector_index")
	c.cfg.History.SQLitePath = v.GetString("history.sqlite_path")

	c.cfg.Tools.MCPEndpoint = v.GetString("tools.mcp_endpoint")

	c.cfg.Docstore.Target = v.GetString("docstore.target")
	c.cfg.Docstore.VectorIndex = v.GetString("docstore.vector_index")

	c.cfg.Events.Provider = v.GetString("events.provider")
	c.cfg.Events.Brokers = v.GetString("events.brokers")
	c.cfg.Events.Topic = v.GetString("events.topic")

	c.cfg.API.Listen = v.GetString("api.listen")
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx := context.Background()

	store, err := c.newHistoryStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: c.cfg.Embedding.Provider,
		TargetURL:    c.cfg.Embedding.Target,
		APIKey:       c.cfg.Embedding.APIKey,
		APIVersion:   c.cfg.Embedding.APIVersion,
		Model:        c.cfg.Embedding.Model,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	streamer, err := openai.NewClient(openai.Config{
		BaseURL:    c.cfg.Chat.Upstream,
		APIKey:     c.cfg.Chat.APIKey,
		APIVersion: c.cfg.Chat.APIVersion,
	})
	if err != nil {
		return fmt.Errorf("creating chat client: %w", err)
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	toolHandler, docStore, err := c.newToolHandler(ctx, embedder)
	if err != nil {
		return err
	}
	if docStore != nil {
		defer docStore.Close(context.Background())
	}

	var registry tools.Registry
	if c.cfg.Tools.MCPEndpoint != "" {
		lazy := mcptools.NewLazyRegistry(mcptools.Config{
			Endpoint: c.cfg.Tools.MCPEndpoint,
			Logger:   c.logger,
		})
		defer lazy.Close()
		registry = lazy
	}

	ag, err := agent.New(&agent.Config{
		Streamer:            streamer,
		Registry:            registry,
		Store:               store,
		Embedder:            embedder,
		Publisher:           publisher,
		Model:               c.cfg.Chat.Model,
		SystemPrompt:        defaultSystemPrompt,
		SimilarityThreshold: c.cfg.Gate.SimilarityThreshold,
		TopK:                c.cfg.Gate.TopK,
		MaxToolRounds:       c.cfg.Chat.MaxToolRounds,
		Logger:              c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	defer ag.Close()

	server, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.API.Listen,
	}, ag, toolHandler, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Channel to capture errors from goroutines
	errChan := make(chan error, 1)

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}

func (c *ServeCommander) newHistoryStore(ctx context.Context) (history.Store, error) {
	target := c.cfg.History.Target
	if c.cfg.History.Provider == "sqlite" {
		target = c.cfg.History.SQLitePath
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := historyutils.NewStore(connectCtx, &historyutils.NewStoreOpts{
		ProviderType: c.cfg.History.Provider,
		TargetURI:    target,
		Database:     c.cfg.History.Database,
		VectorIndex:  c.cfg.History.VectorIndex,
		Dimensions:   c.cfg.Embedding.Dimensions,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating history store: %w", err)
	}

	c.logger.Info("history store ready",
		zap.String("provider", c.cfg.History.Provider),
	)
	return store, nil
}

func (c *ServeCommander) newPublisher() (eventstream.Publisher, error) {
	switch c.cfg.Events.Provider {
	case "kafka":
		publisher, err := kafkaevents.NewPublisher(&kafkaevents.Config{
			Brokers: strings.Split(c.cfg.Events.Brokers, ","),
			Topic:   c.cfg.Events.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		c.logger.Info("publishing turn events to kafka",
			zap.String("brokers", c.cfg.Events.Brokers),
			zap.String("topic", c.cfg.Events.Topic),
		)
		return publisher, nil

	case "", "none":
		return nop.NewPublisher(), nil

	default:
		return nil, fmt.Errorf("unsupported events provider: %s", c.cfg.Events.Provider)
	}
}

// newToolHandler builds the MCP document tools handler when a document store
// is configured. Without one the server runs chat-only.
func (c *ServeCommander) newToolHandler(ctx context.Context, embedder embeddings.Embedder) (http.Handler, *docstore.Store, error) {
	if c.cfg.Docstore.Target == "" {
		c.logger.Info("no document store configured, serving chat only")
		return nil, nil, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	docStore, err := docstore.NewStore(connectCtx, docstore.Config{
		URI:         c.cfg.Docstore.Target,
		VectorIndex: c.cfg.Docstore.VectorIndex,
	}, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to document store: %w", err)
	}

	toolServer, err := docstore.NewServer(docstore.ServerConfig{
		Store:    docStore,
		Embedder: embedder,
		Logger:   c.logger,
	})
	if err != nil {
		_ = docStore.Close(context.Background())
		return nil, nil, fmt.Errorf("creating document tools server: %w", err)
	}

	c.logger.Info("mounting document tools", zap.String("path", "/mcp"))
	return toolServer.Handler(), docStore, nil
}
