package main

import (
	"os"

	toolscmder "github.com/docuchatco/docuchat/cmd/docuchat/serve/tools"
)

func main() {
	cmd := toolscmder.NewToolsCmd()
	cmd.Use = "docuchattools"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .docuchat/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
