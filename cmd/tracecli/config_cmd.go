package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	tracecliconfig "github.com/kouak/tracecli/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Get, set, and list stored configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runE(runConfigGet),
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runE(runConfigSet),
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every stored configuration value",
	Args:  cobra.NoArgs,
	RunE:  runE(runConfigList),
}

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored project aliases as TOML",
	Args:  cobra.NoArgs,
	RunE:  runE(runConfigExport),
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd, configExportCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigGet(ctx context.Context, cmd *cobra.Command, args []string) error {
	key := args[0]
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if tracecliconfig.IsYamlOnlyKey(key) {
		fmt.Println(d.cfg.Get(key))
		return nil
	}
	value, ok, err := d.store.GetDefault(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	fmt.Println(value)
	return nil
}

func runConfigSet(ctx context.Context, cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if tracecliconfig.IsYamlOnlyKey(key) {
		if err := d.cfg.Set(key, value); err != nil {
			return err
		}
		fmt.Printf("Set %s = %s (in config.yaml)\n", key, value)
		return nil
	}
	if err := d.store.SetDefault(ctx, key, value); err != nil {
		return err
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

func runConfigList(ctx context.Context, cmd *cobra.Command, args []string) error {
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	defaults, err := d.store.ListDefaults(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s = %s\n", k, defaults[k])
	}
	return nil
}

// configExport is the TOML shape tracecli config export writes: the
// project alias table, for human inspection or backup outside the store's
// own binary format. There is no matching import command.
type configExport struct {
	Aliases []aliasExportEntry `toml:"alias"`
}

type aliasExportEntry struct {
	Alias   string `toml:"alias"`
	Org     string `toml:"org"`
	Project string `toml:"project"`
}

func runConfigExport(ctx context.Context, cmd *cobra.Command, args []string) error {
	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	entries, err := d.store.ProjectAliases(ctx)
	if err != nil {
		return err
	}
	out := configExport{Aliases: make([]aliasExportEntry, 0, len(entries))}
	for _, e := range entries {
		out.Aliases = append(out.Aliases, aliasExportEntry{Alias: e.Alias, Org: e.Org, Project: e.Project})
	}
	return toml.NewEncoder(os.Stdout).Encode(out)
}
