package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/sshbox/config"
)

func newConfigCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printConfig(cmd.OutOrStdout(), newViper(*configFile))
		},
	}
}

func printConfig(w io.Writer, v *viper.Viper) error {
	cfg, err := config.New(v)
	if err != nil {
		return err
	}

	if used := v.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "# %s\n", used)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
