package main

import (
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/deckport"
	"github.com/brunobiangulo/deckport/report"
)

var (
	uploadImagesDir  string
	uploadCourseID   string
	uploadModuleID   string
	uploadSchoolCode string
	uploadSkipImages bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <document.json>",
	Short: "Upload an extracted CourseDocument as a new lesson",
	Long: `Upload stores the document's slides as a new lesson and its pictures in
the bucket. With --course and --module the lesson is appended to that module.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadImagesDir, "images-dir", "", "directory holding the document's images (default: images/ next to the JSON)")
	uploadCmd.Flags().StringVar(&uploadCourseID, "course", "", "course id")
	uploadCmd.Flags().StringVar(&uploadModuleID, "module", "", "module id to link the lesson to")
	uploadCmd.Flags().StringVar(&uploadSchoolCode, "school", "", "school code (default from config)")
	uploadCmd.Flags().BoolVar(&uploadSkipImages, "skip-images", false, "record images with placeholder URLs without uploading")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	var bar *progressbar.ProgressBar
	opts := []deckport.UploadOption{
		barProgress(&bar, cmd),
	}
	if uploadCourseID != "" || uploadModuleID != "" {
		opts = append(opts, deckport.WithModule(uploadCourseID, uploadModuleID))
	}
	if uploadSchoolCode != "" {
		opts = append(opts, deckport.WithSchoolCode(uploadSchoolCode))
	}
	if uploadSkipImages {
		opts = append(opts, deckport.WithSkipImages())
	}

	res, err := e.Upload(cmd.Context(), args[0], uploadImagesDir, opts...)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}
	report.NewPrinter(cmd.OutOrStdout()).Uploaded(res)
	return nil
}

// barProgress reports image progress on a progress bar created at the first
// callback, once the total is known.
func barProgress(bar **progressbar.ProgressBar, cmd *cobra.Command) deckport.UploadOption {
	return deckport.WithProgress(func(done, total int) {
		if *bar == nil {
			*bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("uploading images"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = (*bar).Set(done)
	})
}
