package main

import (
	"os"

	"github.com/jrsteele09/go-credential-pool/cmd/credpool/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
