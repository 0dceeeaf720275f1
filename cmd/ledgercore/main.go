package main

import (
	"os"

	"github.com/smallbiznis/ledgercore/cmd/ledgercore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
