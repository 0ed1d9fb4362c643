package main

import (
	"os"

	"leave/internal/cmd"
	"leave/internal/exitcodes"
)

func main() {
	if err := cmd.NewHistoryCommand().Execute(); err != nil {
		os.Exit(exitcodes.Failure)
	}
}
