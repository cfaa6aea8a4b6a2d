// Package base holds the pieces shared by every collab subcommand.
package base

import (
	"bytes"
	"flag"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/collab/internal/config"
	"github.com/hashicorp-forge/collab/pkg/persistence"
	"github.com/hashicorp-forge/collab/pkg/persistence/filelog"
)

// Command is embedded by every subcommand.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui

	// Fs is the filesystem used by the file log store.
	Fs afero.Fs
}

// NewCommand returns a Command writing to ui and logging to log.
func NewCommand(log hclog.Logger, ui cli.Ui) *Command {
	return &Command{
		Log: log,
		UI:  ui,
		Fs:  afero.NewOsFs(),
	}
}

// LoadConfig loads the config at path and applies its log level.
func (c *Command) LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.Log.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	return cfg, nil
}

// OpenStore opens the document store selected by cfg. The returned func
// releases it.
func (c *Command) OpenStore(cfg *config.Config) (persistence.DocStore, func(), error) {
	switch cfg.Storage {
	case config.StorageFileLog:
		store, err := filelog.New(c.Fs, cfg.FileLog.Dir, c.Log)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	default:
		db, err := persistence.Connect(cfg.Database.ToPersistenceConfig(), c.Log)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return persistence.NewCollabKV(db, c.Log), closeFn, nil
	}
}

// FlagSet wraps flag.FlagSet to render flags in command help.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet wraps f. Flag errors are returned from Parse rather than
// printed.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	f.SetOutput(&bytes.Buffer{})
	return &FlagSet{FlagSet: f}
}

// Help renders the flags for inclusion in a command's help text.
func (f *FlagSet) Help() string {
	var b strings.Builder
	first := true
	f.VisitAll(func(fl *flag.Flag) {
		if first {
			b.WriteString("\n\nOptions:\n")
			first = false
		}
		name, usage := flag.UnquoteUsage(fl)
		if name != "" {
			fmt.Fprintf(&b, "\n  -%s=<%s>\n", fl.Name, name)
		} else {
			fmt.Fprintf(&b, "\n  -%s\n", fl.Name)
		}
		if fl.DefValue != "" && fl.DefValue != "false" {
			usage = fmt.Sprintf("%s (default: %s)", usage, fl.DefValue)
		}
		fmt.Fprintf(&b, "    %s\n", usage)
	})
	return b.String()
}
