// Package docuchatcmder
package docuchatcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/docuchatco/docuchat/cmd/docuchat/chat"
	configcmder "github.com/docuchatco/docuchat/cmd/docuchat/config"
	initcmder "github.com/docuchatco/docuchat/cmd/docuchat/init"
	servecmder "github.com/docuchatco/docuchat/cmd/docuchat/serve"
	versioncmder "github.com/docuchatco/docuchat/cmd/version"
)

const docuchatLongDesc string = `Docuchat is a retrieval-augmented chat assistant for your documents.

Run services using:
  docuchat serve          Run the chat API server with document tools
  docuchat serve tools    Run just the document tools server

Talk to a running server:
  docuchat chat           Start an interactive chat session`

const docuchatShortDesc string = "Docuchat - Document Chat Assistant"

func NewDocuchatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docuchat",
		Short: docuchatShortDesc,
		Long:  docuchatLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .docuchat/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
