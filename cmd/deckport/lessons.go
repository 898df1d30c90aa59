package main

import (
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/deckport/report"
)

var (
	lessonsLimit int
	lessonsJSON  bool
)

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "List, show and delete uploaded lessons",
}

var lessonsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lessons, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		lessons, err := e.ListLessons(cmd.Context(), lessonsLimit)
		if err != nil {
			return err
		}
		if lessonsJSON {
			return writeJSON(cmd.OutOrStdout(), lessons)
		}
		report.NewPrinter(cmd.OutOrStdout()).Lessons(lessons)
		return nil
	},
}

var lessonsShowCmd = &cobra.Command{
	Use:   "show <lesson-id>",
	Short: "Show a lesson with its slides",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		l, err := e.GetLesson(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if lessonsJSON {
			return writeJSON(cmd.OutOrStdout(), l)
		}
		report.NewPrinter(cmd.OutOrStdout()).Lesson(&l.Lesson, l.Slides)
		return nil
	},
}

var lessonsDeleteCmd = &cobra.Command{
	Use:   "delete <lesson-id>...",
	Short: "Delete lessons with their slides and images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		p := report.NewPrinter(cmd.OutOrStdout())
		for _, id := range args {
			if err := e.DeleteLesson(cmd.Context(), id); err != nil {
				return err
			}
			p.Deleted(id)
		}
		return nil
	},
}

func init() {
	lessonsCmd.PersistentFlags().BoolVar(&lessonsJSON, "json", false, "print JSON instead of text")
	lessonsListCmd.Flags().IntVarP(&lessonsLimit, "limit", "n", 0, "maximum lessons (0 for all)")
	lessonsCmd.AddCommand(lessonsListCmd, lessonsShowCmd, lessonsDeleteCmd)
	rootCmd.AddCommand(lessonsCmd)
}
