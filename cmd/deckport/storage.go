package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/deckport/report"
)

var (
	storagePrefix string
	storageTTL    time.Duration
	storageJSON   bool
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect the image bucket",
}

var storageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List objects with signed URLs, sizes and content types",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		ttl := storageTTL
		if ttl == 0 {
			ttl = cfg.Bucket.SignedURLTTL
		}
		entries, err := report.StorageListing(e.Bucket(), storagePrefix, ttl)
		if err != nil {
			return err
		}
		if storageJSON {
			return writeJSON(cmd.OutOrStdout(), entries)
		}
		report.NewPrinter(cmd.OutOrStdout()).Storage(entries)
		return nil
	},
}

func init() {
	storageListCmd.Flags().StringVar(&storagePrefix, "prefix", "schools/", "key prefix")
	storageListCmd.Flags().DurationVar(&storageTTL, "ttl", 0, "signed URL lifetime (default from config)")
	storageListCmd.Flags().BoolVar(&storageJSON, "json", false, "print JSON instead of text")
	storageCmd.AddCommand(storageListCmd)
	rootCmd.AddCommand(storageCmd)
}
