package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/collab/internal/cmd/base"
	"github.com/hashicorp-forge/collab/internal/cmd/commands/operator"
	"github.com/hashicorp-forge/collab/internal/cmd/commands/replicate"
	"github.com/hashicorp-forge/collab/internal/cmd/commands/version"
)

// Commands is the mapping of all available collab commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"operator": func() (cli.Command, error) {
			return &operator.Command{Command: b}, nil
		},
		"operator compact": func() (cli.Command, error) {
			return &operator.CompactCommand{Command: b}, nil
		},
		"operator delete": func() (cli.Command, error) {
			return &operator.DeleteCommand{Command: b}, nil
		},
		"operator dump": func() (cli.Command, error) {
			return &operator.DumpCommand{Command: b}, nil
		},
		"operator inspect": func() (cli.Command, error) {
			return &operator.InspectCommand{Command: b}, nil
		},
		"operator list": func() (cli.Command, error) {
			return &operator.ListCommand{Command: b}, nil
		},
		"replicate": func() (cli.Command, error) {
			return &replicate.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
