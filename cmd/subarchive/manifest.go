package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"subarchive/internal/ledger"
	"subarchive/pkg/config"
	errs "subarchive/pkg/errors"
	"subarchive/pkg/ui"
)

var (
	manifestSource string
	manifestSince  string
	manifestUntil  string
	manifestPath   string
	manifestRuns   int
)

// manifestCmd lists what earlier runs wrote
var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "List written snapshots and recent runs",
	Example: `  subarchive manifest --source golang --since 2025-01-01
  subarchive manifest --runs 5`,
	Args: cobra.NoArgs,
	RunE: runManifest,
}

func init() {
	rootCmd.AddCommand(manifestCmd)

	manifestCmd.Flags().StringVar(&manifestSource, "source", "", "only this subreddit")
	manifestCmd.Flags().StringVar(&manifestSince, "since", "", "first day, inclusive (2006-01-02)")
	manifestCmd.Flags().StringVar(&manifestUntil, "until", "", "last day, inclusive (2006-01-02)")
	manifestCmd.Flags().StringVar(&manifestPath, "manifest", "", "manifest database path")
	manifestCmd.Flags().IntVar(&manifestRuns, "runs", 0, "show the N most recent runs instead of snapshots")
}

func runManifest(cmd *cobra.Command, args []string) error {
	// The manifest needs no subreddit or range, so the config is not validated here.
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return errs.Wrap(errs.ErrorTypeConfiguration, err, "failed to load config file")
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return errs.Wrap(errs.ErrorTypeConfiguration, err, "failed to load environment variables")
	}
	path := cfg.ManifestPath()
	if manifestPath != "" {
		path = manifestPath
	}

	led, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer led.Close()

	out := cmd.OutOrStdout()
	if manifestRuns > 0 {
		runs, err := led.Runs(cmd.Context(), manifestRuns)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			finished := "-"
			if !r.FinishedAt.IsZero() {
				finished = r.FinishedAt.Format("2006-01-02 15:04")
			}
			rows = append(rows, []string{
				r.ID, r.Source, r.Start.Format(config.DateLayout) + " .. " + r.End.Format(config.DateLayout),
				r.Status, fmt.Sprint(r.Posts), fmt.Sprint(r.Comments), fmt.Sprint(r.Truncated), finished,
			})
		}
		fmt.Fprintln(out, ui.Table(out, []string{"RUN", "SOURCE", "RANGE", "STATUS", "POSTS", "COMMENTS", "TRUNCATED", "FINISHED"}, rows))
		return nil
	}

	entries, err := led.List(cmd.Context(), ledger.Filter{Source: manifestSource, Since: manifestSince, Until: manifestUntil})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		ui.NewPrinter(out).Warning("No snapshots recorded.")
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		flag := ""
		if e.Truncated {
			flag = "truncated"
		}
		rows = append(rows, []string{
			e.Day, e.Source, fmt.Sprint(e.Posts), fmt.Sprint(e.Comments), fmt.Sprint(e.Malformed),
			ui.FormatBytes(e.Bytes), shortHash(e.SHA256), flag, e.Path,
		})
	}
	fmt.Fprintln(out, ui.Table(out, []string{"DAY", "SOURCE", "POSTS", "COMMENTS", "MALFORMED", "SIZE", "SHA256", "", "PATH"}, rows))
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
