// Package toolscmder provides the command for running the document tools
// server standalone, for agents pointed at a remote MCP endpoint.
package toolscmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/pkg/config"
	"github.com/docuchatco/docuchat/pkg/docstore"
	"github.com/docuchatco/docuchat/pkg/embeddings"
	embeddingutils "github.com/docuchatco/docuchat/pkg/embeddings/utils"
	"github.com/docuchatco/docuchat/pkg/logger"
)

type toolsCommander struct {
	listen         string
	docstoreTarget string
	vectorIndex    string
	noEmbedder     bool
	debug          bool

	viper  *viper.Viper
	logger *zap.Logger
}

const toolsLongDesc string = `Run the document tools server standalone.

Exposes the MCP document tools over streamable HTTP at /mcp. Point an
agent's tools.mcp_endpoint at this server to give it document access
without running the full chat stack.

Examples:
  docuchat serve tools
  docuchat serve tools --listen :8082 --docstore-target mongodb://localhost:27017`

const toolsShortDesc string = "Run the document tools server"

func NewToolsCmd() *cobra.Command {
	cmder := &toolsCommander{}

	cmd := &cobra.Command{
		Use:   "tools",
		Short: toolsShortDesc,
		Long:  toolsLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}

			if !cmd.Flags().Changed("docstore-target") {
				cmder.docstoreTarget = v.GetString("docstore.target")
			}
			if !cmd.Flags().Changed("vector-index") {
				cmder.vectorIndex = v.GetString("docstore.vector_index")
			}
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", ":8082", "Address for the tools server to listen on")
	cmd.Flags().StringVar(&cmder.docstoreTarget, "docstore-target", defaults.Docstore.Target, "Mongo URI of the document database")
	cmd.Flags().StringVar(&cmder.vectorIndex, "vector-index", defaults.Docstore.VectorIndex, "Vector search index used by vector_search")
	cmd.Flags().BoolVar(&cmder.noEmbedder, "no-embedder", false, "Disable the vector_search tool")

	return cmd
}

func (c *toolsCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := docstore.NewStore(connectCtx, docstore.Config{
		URI:         c.docstoreTarget,
		VectorIndex: c.vectorIndex,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("connecting to document store: %w", err)
	}
	defer store.Close(context.Background())

	embedder, err := c.newEmbedder()
	if err != nil {
		return err
	}

	toolServer, err := docstore.NewServer(docstore.ServerConfig{
		Store:    store,
		Embedder: embedder,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating document tools server: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.All("/mcp", adaptor.HTTPHandler(toolServer.Handler()))
	app.All("/mcp/*", adaptor.HTTPHandler(toolServer.Handler()))

	c.logger.Info("starting document tools server",
		zap.String("listen", c.listen),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := app.Listen(c.listen); err != nil {
			errChan <- fmt.Errorf("tools server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return app.Shutdown()
	}
}

// newEmbedder builds the embedder backing vector_search, or nil when the
// tool is disabled.
func (c *toolsCommander) newEmbedder() (embeddings.Embedder, error) {
	if c.noEmbedder {
		c.logger.Info("vector_search disabled")
		return nil, nil
	}

	v := c.viper
	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		APIKey:       v.GetString("embedding.api_key"),
		APIVersion:   v.GetString("embedding.api_version"),
		Model:        v.GetString("embedding.model"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return embedder, nil
}
