package operator

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/cli"
	"gopkg.in/yaml.v3"

	"github.com/hashicorp-forge/collab/internal/cmd/base"
	"github.com/hashicorp-forge/collab/internal/config"
	"github.com/hashicorp-forge/collab/pkg/persistence"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Inspect and maintain persisted documents"
}

func (c *Command) Help() string {
	return `Usage: collab operator <subcommand> [options] [args]

  This command groups subcommands for operators working with the document
  store configured in the collab config file.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}

// openStore loads the config at path and opens its store. On failure the
// error is already reported to the UI.
func openStore(c *base.Command, path string) (*config.Config, persistence.DocStore, func(), bool) {
	cfg, err := c.LoadConfig(path)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error parsing config file: %v", err))
		return nil, nil, nil, false
	}

	store, closeFn, err := c.OpenStore(cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error opening document store: %v", err))
		return nil, nil, nil, false
	}
	return cfg, store, closeFn, true
}

// render formats v as indented JSON or YAML.
func render(v any, format string) (string, error) {
	switch format {
	case "json":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported format %q (supported: json, yaml)", format)
	}
}
