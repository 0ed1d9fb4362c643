package main

import (
	"os"

	"leave/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], cmd.Env{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getwd:  os.Getwd,
	}))
}
