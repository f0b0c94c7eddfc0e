package main

import (
	"os"

	"github.com/dsqprocess/dsqprocess/cmd/dsqprocess/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
