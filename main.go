package main

import (
	"os"

	"github.com/smallfab/smallfab/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
