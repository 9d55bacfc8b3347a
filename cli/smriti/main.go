package main

import (
	"os"

	smriticmder "github.com/localmind/smriti/cmd/smriti"
)

func main() {
	cmd := smriticmder.NewSmritiCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
