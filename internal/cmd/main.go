package cmd

import (
	"bufio"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/collab/internal/version"
)

// Main runs the CLI with the given arguments and returns the exit code.
func Main(args []string) int {
	cliName := args[0]

	log := hclog.New(&hclog.LoggerOptions{
		Name:   cliName,
		Output: os.Stderr,
	})

	if len(args) == 2 &&
		(args[1] == "-version" ||
			args[1] == "-v") {
		args = []string{cliName, "version"}
	}

	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(os.Stdin),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	return run(cliName, args[1:], log, ui)
}

func run(cliName string, args []string, log hclog.Logger, ui cli.Ui) int {
	initCommands(log, ui)

	c := &cli.CLI{
		Name:       cliName,
		Args:       args,
		Version:    version.Version,
		Commands:   Commands,
		HelpWriter: uiWriter{ui},
	}

	// Run the CLI
	exitCode, err := c.Run()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	return exitCode
}

// uiWriter sends CLI help output to the UI.
type uiWriter struct {
	ui cli.Ui
}

func (w uiWriter) Write(p []byte) (int, error) {
	w.ui.Output(string(p))
	return len(p), nil
}
