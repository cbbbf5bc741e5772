package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the store schema and indexes",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return abortedf("%w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(cmd.Context()); err != nil {
		return abortedf("ensure schema: %w", err)
	}
	fmt.Printf("schema ready (%s, %d dimensions)\n", cfg.Store.Driver, cfg.Store.Dimensions)
	return nil
}
