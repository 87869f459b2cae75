// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Maintain the corpus database",
}

var storeInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the corpus database and run pending migrations",
	Long: `Init opens (creating if needed) the SQLite database and applies the
schema and any pending column migrations. Opening an existing database is
safe; migrations are additive and idempotent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := pipelineConfig()
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		fmt.Fprintf(os.Stdout, "store ready at %s\n", cfg.Store.DBPath)
		return nil
	},
}

var storePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete merged-away records",
	Long: `Purge permanently removes records in status merged_away. Their data
already lives on in the surviving records; purging only drops the audit
rows left behind by dedup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := pipelineConfig()
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		n, err := s.PurgeMergedAway(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "purged %d merged-away record(s)\n", n)
		return nil
	},
}

func init() {
	storeCmd.AddCommand(storeInitCmd)
	storeCmd.AddCommand(storePurgeCmd)
	rootCmd.AddCommand(storeCmd)
}
