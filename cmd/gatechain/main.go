package main

import (
	"os"

	"github.com/YoshitsuguKoike/gatechain/internal/interface/cli"
)

func main() {
	os.Exit(cli.Execute())
}
