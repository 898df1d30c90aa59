package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/deckport"
)

var (
	cfgFile string
	verbose bool
	noColor bool

	// cfg is loaded once per invocation by the root command.
	cfg deckport.Config
)

var rootCmd = &cobra.Command{
	Use:   "deckport",
	Short: "Turn PowerPoint decks into course lessons",
	Long: `deckport extracts slide text and pictures from .pptx decks into a
CourseDocument (JSON plus images), uploads documents as lessons into the
lesson store and image bucket, and reports on what has been uploaded.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := deckport.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		if noColor {
			color.NoColor = true
		}
		return setupLogging(cmd.ErrOrStderr(), cfg, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// setupLogging installs the default slog handler described by the config.
func setupLogging(w io.Writer, c deckport.Config, verbose bool) error {
	level, err := c.LogLevel()
	if err != nil {
		return err
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(c.Log.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// openEngine opens the store and bucket. Callers close it.
func openEngine() (deckport.Engine, error) {
	e, err := deckport.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening engine: %w", err)
	}
	return e, nil
}

// createOutput opens path for writing, or stdout for "-".
func createOutput(cmd *cobra.Command, path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{cmd.OutOrStdout()}, nil
	}
	return os.Create(path)
}

// writeReport streams one report to path.
func writeReport(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	out, err := createOutput(cmd, path)
	if err != nil {
		return err
	}
	if err := write(out); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return out.Close()
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
