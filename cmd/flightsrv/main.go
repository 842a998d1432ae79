package main

import (
	"fmt"
	"os"

	"github.com/lcx/flightrpc/internal/cli"
)

func main() {
	if err := cli.NewServerCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flightsrv:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
