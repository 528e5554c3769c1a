package main

import (
	"os"

	"github.com/brighthive/authserver/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
