package main

import (
	"fmt"
	"os"

	"vigil/cmd"
)

// main is the entry point.
func main() {
	rootCmd := cmd.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
