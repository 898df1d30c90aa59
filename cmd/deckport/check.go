package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/deckport/report"
)

var (
	checkJSON        bool
	checkImageIDs    []string
	checkImageTitles []string
	checkSample      int
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Audit uploaded lessons, images, store structure and bucket",
}

var checkLessonsCmd = &cobra.Command{
	Use:   "lessons [title]...",
	Short: "List all lessons and report whether the given titles exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		r, err := report.LessonPresence(cmd.Context(), e.Store(), args)
		if err != nil {
			return err
		}
		if checkJSON {
			return writeJSON(cmd.OutOrStdout(), r)
		}
		report.NewPrinter(cmd.OutOrStdout()).Presence(r)
		return nil
	},
}

var checkImagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Check every image of the selected lessons against the bucket",
	Long: `Images selects lessons with --id or --title (the most recent lesson with
that title) and reports, per image, whether its object exists in the bucket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		r, err := report.ImageAudit(cmd.Context(), e.Store(), e.Bucket(), report.Selector{IDs: checkImageIDs, Titles: checkImageTitles})
		if err != nil {
			return err
		}
		if checkJSON {
			return writeJSON(cmd.OutOrStdout(), r)
		}
		report.NewPrinter(cmd.OutOrStdout()).ImageAudit(r)
		return nil
	},
}

var checkStructureCmd = &cobra.Command{
	Use:   "structure",
	Short: "Describe the collections in the lesson store",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		cols, err := e.Store().Structure(cmd.Context(), checkSample)
		if err != nil {
			return err
		}
		if checkJSON {
			return writeJSON(cmd.OutOrStdout(), cols)
		}
		report.NewPrinter(cmd.OutOrStdout()).Structure(cols)
		return nil
	},
}

var checkBucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Report whether the bucket exists and how many objects it holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		st := report.BucketCheck(e.Bucket())
		if checkJSON {
			return writeJSON(cmd.OutOrStdout(), st)
		}
		report.NewPrinter(cmd.OutOrStdout()).Bucket(st)
		return nil
	},
}

func init() {
	checkCmd.PersistentFlags().BoolVar(&checkJSON, "json", false, "print JSON instead of text")
	checkImagesCmd.Flags().StringSliceVar(&checkImageIDs, "id", nil, "lesson id (repeatable)")
	checkImagesCmd.Flags().StringSliceVar(&checkImageTitles, "title", nil, "lesson title (repeatable)")
	checkStructureCmd.Flags().IntVar(&checkSample, "sample", 3, "sample documents per collection")

	checkCmd.AddCommand(checkLessonsCmd, checkImagesCmd, checkStructureCmd, checkBucketCmd)
	rootCmd.AddCommand(checkCmd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
