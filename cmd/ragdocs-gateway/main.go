// Package main provides the entry point for the ragdocs gateway.
package main

import (
	"fmt"
	"os"

	"github.com/telnet2/ragdocs-gateway/cmd/ragdocs-gateway/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
