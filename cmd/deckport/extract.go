package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/deckport/extractor"
	"github.com/brunobiangulo/deckport/report"
)

var (
	extractOutputDir string
	extractWorkers   int
)

var extractCmd = &cobra.Command{
	Use:   "extract <deck.pptx>...",
	Short: "Extract slide text and pictures into a CourseDocument",
	Long: `Extract writes <output-dir>/<title>.json and the deck's pictures under
<output-dir>/images/. Several decks are extracted in parallel.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutputDir, "output-dir", "o", "", "output directory (default from config)")
	extractCmd.Flags().IntVarP(&extractWorkers, "workers", "w", 0, "parallel extractions (default from config)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	outputDir := extractOutputDir
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	workers := extractWorkers
	if workers == 0 {
		workers = cfg.Workers
	}
	p := report.NewPrinter(cmd.OutOrStdout())
	ex := extractor.New()

	if len(args) == 1 {
		jsonPath, err := ex.Extract(args[0], outputDir)
		if err != nil {
			return err
		}
		p.Extracted(args[0], jsonPath, nil)
		return nil
	}

	results, err := ex.ExtractAll(cmd.Context(), args, outputDir, workers)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		p.Extracted(r.Deck, r.JSONPath, r.Err)
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d decks failed", failed, len(results))
	}
	return nil
}
