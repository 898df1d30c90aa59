package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/deckport/report"
)

var (
	catalogHTML  string
	catalogJSON  string
	catalogLimit int
	viewerOut    string
	inventoryOut string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the lesson catalog, the interactive viewer or the inventory workbook",
}

var reportCatalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Write the catalog of the most recent lessons as HTML and JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if catalogHTML == "" && catalogJSON == "" {
			return errors.New("nothing to write: set --html and/or --json")
		}
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		lessons, err := report.Catalog(cmd.Context(), e.Store(), catalogLimit)
		if err != nil {
			return err
		}
		p := report.NewPrinter(cmd.ErrOrStderr())
		if catalogHTML != "" {
			if err := writeReport(cmd, catalogHTML, func(w io.Writer) error {
				return report.WriteCatalogHTML(w, lessons, time.Now())
			}); err != nil {
				return err
			}
			p.Wrote(fmt.Sprintf("catalog of %d lessons", len(lessons)), catalogHTML)
		}
		if catalogJSON != "" {
			if err := writeReport(cmd, catalogJSON, func(w io.Writer) error {
				return report.WriteCatalogJSON(w, lessons)
			}); err != nil {
				return err
			}
			p.Wrote(fmt.Sprintf("catalog of %d lessons", len(lessons)), catalogJSON)
		}
		return nil
	},
}

var reportViewerCmd = &cobra.Command{
	Use:   "viewer <lesson-id>...",
	Short: "Write an interactive single-page viewer for the given lessons",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		data, err := report.Viewer(cmd.Context(), e.Store(), args)
		if err != nil {
			return err
		}
		p := report.NewPrinter(cmd.ErrOrStderr())
		for _, w := range data.Warnings {
			p.Warning("%s", w)
		}
		if len(data.Lessons) == 0 {
			return errors.New("none of the given lessons exist")
		}
		if err := writeReport(cmd, viewerOut, func(w io.Writer) error {
			return report.WriteViewerHTML(w, data, time.Now())
		}); err != nil {
			return err
		}
		p.Wrote(fmt.Sprintf("viewer for %d lessons", len(data.Lessons)), viewerOut)
		return nil
	},
}

var reportInventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Write an XLSX workbook listing every lesson and image",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		inv, err := report.BuildInventory(cmd.Context(), e.Store(), e.Bucket())
		if err != nil {
			return err
		}
		if err := writeReport(cmd, inventoryOut, func(w io.Writer) error {
			return report.WriteInventoryXLSX(w, inv)
		}); err != nil {
			return err
		}
		report.NewPrinter(cmd.ErrOrStderr()).Wrote(
			fmt.Sprintf("inventory of %d lessons, %d images", len(inv.Lessons), len(inv.Images)), inventoryOut)
		return nil
	},
}

func init() {
	reportCatalogCmd.Flags().StringVar(&catalogHTML, "html", "lessons_catalog.html", "HTML output path (- for stdout, empty to skip)")
	reportCatalogCmd.Flags().StringVar(&catalogJSON, "json", "lessons_catalog.json", "JSON output path (- for stdout, empty to skip)")
	reportCatalogCmd.Flags().IntVar(&catalogLimit, "limit", report.CatalogLessons, "number of most recent lessons")
	reportViewerCmd.Flags().StringVarP(&viewerOut, "out", "o", "lesson_viewer.html", "output path (- for stdout)")
	reportInventoryCmd.Flags().StringVarP(&inventoryOut, "out", "o", "lesson_inventory.xlsx", "output path (- for stdout)")

	reportCmd.AddCommand(reportCatalogCmd, reportViewerCmd, reportInventoryCmd)
	rootCmd.AddCommand(reportCmd)
}
