package operator

import (
	"flag"
	"fmt"
	"strings"

	"github.com/hashicorp-forge/collab/internal/cmd/base"
	"github.com/hashicorp-forge/collab/pkg/replica"
)

type InspectCommand struct {
	*base.Command

	flagConfig string
	flagFormat string
}

// updateInfo is one decoded entry of a document's log.
type updateInfo struct {
	Seq                int `json:"seq" yaml:"seq"`
	Bytes              int `json:"bytes" yaml:"bytes"`
	replica.UpdateInfo `yaml:",inline"`
}

func (c *InspectCommand) Synopsis() string {
	return "Decode the stored updates of a document"
}

func (c *InspectCommand) Help() string {
	return `Usage: collab operator inspect [options] <cid>

  This command replays the log of a document on a scratch copy and prints,
  for every update, the changes it carried and the values it set or
  deleted. The stored document is not modified.` +
		c.Flags().Help()
}

func (c *InspectCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("inspect", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "", "Path to collab config file",
	)
	f.StringVar(
		&c.flagFormat, "format", "text", "Output format (text, json, yaml)",
	)

	return f
}

func (c *InspectCommand) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if flags.NArg() != 1 {
		ui.Error("exactly one document id is required")
		return 1
	}
	cid := flags.Arg(0)

	_, store, closeFn, ok := openStore(c.Command, c.flagConfig)
	if !ok {
		return 1
	}
	defer closeFn()

	updates, err := store.GetUpdates(cid)
	if err != nil {
		ui.Error(fmt.Sprintf("error reading document: %v", err))
		return 1
	}

	decoded, err := replica.DecodeUpdates(updates)
	if err != nil {
		ui.Error(fmt.Sprintf("error decoding log: %v", err))
		return 1
	}
	infos := make([]updateInfo, 0, len(decoded))
	for i, info := range decoded {
		infos = append(infos, updateInfo{Seq: i + 1, Bytes: len(updates[i]), UpdateInfo: info})
	}

	if c.flagFormat != "text" {
		out, err := render(infos, c.flagFormat)
		if err != nil {
			ui.Error(err.Error())
			return 1
		}
		ui.Output(out)
		return 0
	}

	for _, info := range infos {
		ui.Output(fmt.Sprintf("update %d (%d bytes, %d changes)", info.Seq, info.Bytes, len(info.Changes)))
		for _, ch := range info.Changes {
			ui.Output("  " + formatChange(ch))
		}
		for _, v := range info.Values {
			ui.Output("    " + formatValue(v))
		}
	}
	return 0
}

func formatChange(ch replica.ChangeInfo) string {
	s := fmt.Sprintf("change %.12s actor=%s seq=%d", ch.Hash, ch.Actor, ch.Seq)
	if ch.Origin != "" {
		s += fmt.Sprintf(" origin=%s", ch.Origin)
	}
	if len(ch.Deps) > 0 {
		short := make([]string, len(ch.Deps))
		for i, d := range ch.Deps {
			short[i] = fmt.Sprintf("%.12s", d)
		}
		s += " deps=" + strings.Join(short, ",")
	}
	return s
}

func formatValue(v replica.PathChange) string {
	if v.Deleted {
		return fmt.Sprintf("del path=%q", v.Path)
	}
	return fmt.Sprintf("set path=%q value=%v", v.Path, v.Value)
}
