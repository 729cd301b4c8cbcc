package main

import (
	"os"

	docuchatcmder "github.com/docuchatco/docuchat/cmd/docuchat"
)

func main() {
	cmd := docuchatcmder.NewDocuchatCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
