package main

import (
	"os"

	servecmder "github.com/docuchatco/docuchat/cmd/docuchat/serve"
)

func main() {
	cmd := servecmder.NewServeCmd()
	cmd.Use = "docuchatapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .docuchat/ config directory")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
