package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func NoArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}

	if cmd.HasSubCommands() {
		return errors.New("\n" + strings.TrimRight(cmd.UsageString(), "\n"))
	}

	return fmt.Errorf("\"%s\" accepts no argument(s).\nSee '%s --help'.\n\nUsage:  %s\n\n%s",
		cmd.CommandPath(),
		cmd.CommandPath(),
		cmd.UseLine(),
		cmd.Short)
}

// bindFlags ties flags to config keys so that a flag set on the command
// line wins over the config file and the environment.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	flags := cmd.PersistentFlags()
	for name, key := range keys {
		bindFlag(flags, name, key)
	}
}

func bindFlag(flags *pflag.FlagSet, name, key string) {
	if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("unable to bind flag %q: %v", name, err))
	}
}
