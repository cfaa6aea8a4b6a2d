package cmd

import (
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/assert"

	"github.com/hashicorp-forge/collab/internal/version"
)

func TestRun_Version(t *testing.T) {
	ui := cli.NewMockUi()
	code := run("collab", []string{"version"}, hclog.NewNullLogger(), ui)
	assert.Equal(t, 0, code)
	assert.Equal(t, version.Version+"\n", ui.OutputWriter.String())
}

func TestRun_OperatorShowsHelp(t *testing.T) {
	ui := cli.NewMockUi()
	code := run("collab", []string{"operator"}, hclog.NewNullLogger(), ui)
	assert.Equal(t, 1, code)
	assert.Contains(t, ui.OutputWriter.String(), "collab operator <subcommand>")
	assert.Contains(t, ui.OutputWriter.String(), "inspect")
}

func TestInitCommands(t *testing.T) {
	initCommands(hclog.NewNullLogger(), cli.NewMockUi())

	for name, factory := range Commands {
		c, err := factory()
		if assert.NoError(t, err, name) {
			assert.NotEmpty(t, c.Synopsis(), name)
			assert.NotEmpty(t, c.Help(), name)
		}
	}
}
