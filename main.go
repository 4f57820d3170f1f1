package main

import (
	"os"

	"github.com/signalnine/crucible/cmd"
	"github.com/signalnine/crucible/internal/result"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(result.ExitCode(err))
	}
}
