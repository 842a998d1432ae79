package main

import (
	"fmt"
	"os"

	"github.com/lcx/flightrpc/internal/cli"
)

func main() {
	if err := cli.NewClientCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flightcli:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
