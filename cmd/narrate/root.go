package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCommand(ctx *commandContext) *cobra.Command {
	var backendFlag string

	rootCmd := &cobra.Command{
		Use:           "narrate",
		Short:         "Audiobook console: submit backend jobs and follow their progress",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if backendFlag != "" {
				viper.Set("backend.base_url", backendFlag)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Backend base URL (overrides backend.base_url)")
	rootCmd.PersistentFlags().StringVar(&ctx.logFile, "log-file", "", "Write logs to this file while a watch view is open")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newAnalyzeAllCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newGenerateAllCommand(ctx))
	rootCmd.AddCommand(newAudioStatusCommand(ctx))
	rootCmd.AddCommand(newMergeCommand(ctx))

	return rootCmd
}
