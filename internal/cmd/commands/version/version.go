package version

import (
	"github.com/hashicorp-forge/collab/internal/cmd/base"
	buildversion "github.com/hashicorp-forge/collab/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the version of collab"
}

func (c *Command) Help() string {
	return `Usage: collab version

  This command prints the version of collab.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output(buildversion.Version)
	return 0
}
