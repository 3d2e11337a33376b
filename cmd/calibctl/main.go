package main

import (
	"fmt"
	"os"

	"github.com/BearBump/CalibBox/config"
	"github.com/spf13/cobra"
)

var (
	gLab   = "Lab:"
	gSetup = "Setup:"
)

func NewCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "calibctl",
		Short: "calibctl is the operator tool of the CalibBox calibration lab",
		Long: `calibctl is the operator tool of the CalibBox calibration lab.

It initializes the database schema, prints the due list and issues
access tokens for the HTTP API.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("configPath"), "path to the YAML config")

	cmd.AddGroup(&cobra.Group{ID: gLab, Title: gLab}, &cobra.Group{ID: gSetup, Title: gSetup})

	load := func() (*config.Config, error) {
		if configPath == "" {
			return nil, fmt.Errorf("config path is required (--config or configPath env)")
		}
		return config.LoadConfig(configPath)
	}

	cmd.AddCommand(
		NewSchemaCommand(load),
		NewDueCommand(load),
		NewTokenCommand(load),
	)
	return cmd
}

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
