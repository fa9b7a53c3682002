package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/goldstarfreight/inspectetl/cmd/inspectetl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, commands.ErrConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
