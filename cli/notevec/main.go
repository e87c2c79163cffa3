package main

import (
	"os"

	notevecmder "github.com/papercomputeco/notevec/cmd/notevec"
)

func main() {
	cmd := notevecmder.NewNotevecCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
