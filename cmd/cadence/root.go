package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type rootFlags struct {
	cfgFile string
	force   bool
	topic   string
	v       *viper.Viper
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "cadence",
		Short:         "Scheduled posting and engagement bot for X",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "YAML file with policy and schedule overrides (default ./cadence.yaml if present)")
	rootCmd.PersistentFlags().BoolVar(&flags.force, "force", false, "bypass quota checks for this run")
	rootCmd.PersistentFlags().StringVar(&flags.topic, "topic", "", "topic for standalone posts and threads")

	rootCmd.AddCommand(newServeCmd(flags))
	for _, spec := range actionCommands {
		rootCmd.AddCommand(newActionCmd(flags, spec))
	}
	rootCmd.AddCommand(newDeleteCmd(flags))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func (f *rootFlags) initConfig() error {
	if f.cfgFile != "" {
		f.v.SetConfigFile(f.cfgFile)
		return f.v.ReadInConfig()
	}
	f.v.AddConfigPath(".")
	f.v.SetConfigName("cadence")
	f.v.SetConfigType("yaml")
	// Ignore missing config
	_ = f.v.ReadInConfig()
	return nil
}
