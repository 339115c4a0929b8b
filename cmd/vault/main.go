package main

import (
	"os"

	"github.com/dpetrovs/passvault/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
