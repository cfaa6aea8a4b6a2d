package main

import (
	"os"

	"github.com/hashicorp-forge/collab/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
