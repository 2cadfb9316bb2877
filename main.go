package main

import (
	"os"

	"github.com/kyleking/d3-pipeline/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
