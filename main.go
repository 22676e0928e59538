package main

import (
	"os"

	"github.com/mavrk/jobvine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
