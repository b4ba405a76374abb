package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/DoyleJ11/island-duel-backend/internal/config"
)

const releaseVersion = "0.1.0"

func main() {
	log.SetFlags(0)
	// .env is optional
	_ = godotenv.Load()

	cfg := &config.Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}

func newCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "island-duel",
		Short:   "Challenge and match server for two-player island duels.",
		Args:    cobra.ExactArgs(0),
		Version: releaseVersion,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ApplyEnv(cmd.Flags()); err != nil {
				return err
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}
	cfg.RegisterFlags(cmd.Flags())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd
}
