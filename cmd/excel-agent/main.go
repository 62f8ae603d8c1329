package main

import (
	"os"

	"github.com/Dhruv1969Karnwal/excel-agent/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
