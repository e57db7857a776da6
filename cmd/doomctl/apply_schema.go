package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scrollsafe/doomscroller/config"
	"github.com/scrollsafe/doomscroller/store"
)

var applySchemaCmd = &cobra.Command{
	Use:   "apply-schema",
	Short: "Apply the embedded database schema to DATABASE_URL",
	RunE:  runApplySchema,
}

func init() {
	rootCmd.AddCommand(applySchemaCmd)
}

func runApplySchema(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := db.ApplySchema(cmd.Context()); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	fmt.Println("schema applied")
	return nil
}
