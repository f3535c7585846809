// Package main is the entry point for the groupguard CLI.
package main

import (
	"fmt"
	"os"

	"github.com/KafClaw/groupguard/internal/cli"
	"github.com/fatih/color"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}
