package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"subarchive/internal/ledger"
	"subarchive/pkg/auth"
	"subarchive/pkg/checkpoint"
	"subarchive/pkg/comments"
	"subarchive/pkg/config"
	errs "subarchive/pkg/errors"
	"subarchive/pkg/ingest"
	"subarchive/pkg/logger"
	"subarchive/pkg/metrics"
	"subarchive/pkg/ratelimit"
	"subarchive/pkg/reddit"
	"subarchive/pkg/retry"
	"subarchive/pkg/snapshot"
	"subarchive/pkg/ui"
	"subarchive/pkg/window"
)

// collectFlags holds the collect command's local flags
type collectFlags struct {
	start         string
	end           string
	output        string
	commentPolicy string
	ratePolicy    string
	minInterval   time.Duration
	maxRetries    int
	writeWorkers  int
	manifest      string
	metricsFile   string
	account       string
	resume        bool
	forceRestart  bool
	noCheckpoint  bool
	noManifest    bool
	notify        bool
}

var collectOpts collectFlags

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect <subreddit>",
	Short: "Collect a subreddit's posts and comments into daily snapshots",
	Long: `Collect walks [start, end) backward one UTC day at a time and writes
{output}/{subreddit}_posts_with_comments_{YYYY-MM-DD}.json for every day.

A bearer token is read from SUBARCHIVE_ACCESS_TOKEN, the config file or the
credential store ('subarchive auth login').

Interrupted runs leave a checkpoint behind. Continue with --resume or discard
it with --force-restart.`,
	Example: `  # Collect the first week of January
  subarchive collect golang --start 2025-01-01 --end 2025-01-08

  # Expand "load more" placeholders and write with two background writers
  subarchive collect golang --start 2025-01-01 --end 2025-01-08 --comment-policy resolve-all --write-workers 2

  # Continue an interrupted run
  subarchive collect golang --start 2025-01-01 --end 2025-01-08 --resume`,
	Args: cobra.ExactArgs(1),
	RunE: runCollectCmd,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	f := collectCmd.Flags()
	f.StringVar(&collectOpts.start, "start", "", "range start, inclusive (2006-01-02 or RFC3339)")
	f.StringVar(&collectOpts.end, "end", "", "range end, exclusive (2006-01-02 or RFC3339)")
	f.StringVarP(&collectOpts.output, "output", "o", "", "snapshot directory (default ./data)")
	f.StringVar(&collectOpts.commentPolicy, "comment-policy", "", "placeholder policy: drop or resolve-all")
	f.StringVar(&collectOpts.ratePolicy, "rate-policy", "", "rate limit policy: fixed, sliding or adaptive")
	f.DurationVar(&collectOpts.minInterval, "min-interval", 0, "minimum interval between upstream calls")
	f.IntVar(&collectOpts.maxRetries, "max-retries", 0, "retries per page or comment tree after the first attempt")
	f.IntVar(&collectOpts.writeWorkers, "write-workers", 0, "background snapshot writers (0 writes inline)")
	f.StringVar(&collectOpts.manifest, "manifest", "", "manifest database path (default {output}/manifest.db)")
	f.StringVar(&collectOpts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when done")
	f.StringVarP(&collectOpts.account, "account", "a", "", "use a specific stored account")
	f.BoolVar(&collectOpts.resume, "resume", false, "resume from the existing checkpoint")
	f.BoolVar(&collectOpts.forceRestart, "force-restart", false, "discard an existing checkpoint and start over")
	f.BoolVar(&collectOpts.noCheckpoint, "no-checkpoint", false, "disable checkpoints")
	f.BoolVar(&collectOpts.noManifest, "no-manifest", false, "do not record snapshots in the manifest")
	f.BoolVar(&collectOpts.notify, "notify", false, "send a desktop notification when the run ends")

	collectCmd.MarkFlagsMutuallyExclusive("resume", "force-restart")
}

// configFlags maps the command's flags onto config keys
func (f collectFlags) configFlags(subreddit string) map[string]interface{} {
	flags := globalFlags()
	flags["subreddit"] = subreddit
	flags["start"] = f.start
	flags["end"] = f.end
	flags["output"] = f.output
	flags["comment-policy"] = f.commentPolicy
	flags["rate-policy"] = f.ratePolicy
	flags["manifest"] = f.manifest
	flags["metrics-file"] = f.metricsFile
	flags["min-interval"] = f.minInterval
	flags["max-retries"] = f.maxRetries
	flags["write-workers"] = f.writeWorkers
	flags["no-checkpoint"] = f.noCheckpoint
	return flags
}

func runCollectCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, collectOpts.configFlags(args[0]))
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	logger.WithField("version", version).Info("subarchive starting")

	if err := resolveCredentials(cfg, collectOpts.account); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := collect(ctx, cfg, collectRequest{
		Resume:       collectOpts.resume,
		ForceRestart: collectOpts.forceRestart,
		NoManifest:   collectOpts.noManifest,
	}, cmd.OutOrStdout())

	if collectOpts.notify && summary != nil {
		n := ui.NewNotifier()
		if err != nil {
			n.Notify("subarchive", fmt.Sprintf("r/%s aborted after %d day(s)", summary.Source, summary.Days()))
		} else {
			n.Notify("subarchive", fmt.Sprintf("r/%s: %d day(s), %d posts", summary.Source, summary.Days(), summary.Posts))
		}
	}
	return err
}

// resolveCredentials fills in the access token from the credential store when config has none
func resolveCredentials(cfg *config.Config, accountName string) error {
	if cfg.Reddit.AccessToken != "" && accountName == "" {
		logger.Info("Using access token from configuration")
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var account *auth.Account
	if accountName != "" {
		account, err = manager.Retrieve(accountName)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeAuth, err, "account not found, see 'subarchive auth list'")
		}
	} else {
		account, err = manager.RetrieveDefault()
		if err != nil {
			logger.Warn("No access token found, requests will be unauthenticated")
			return nil
		}
	}

	cfg.Reddit.AccessToken = account.AccessToken
	if account.UserAgent != "" {
		cfg.Reddit.UserAgent = account.UserAgent
	}
	logger.WithField("account", account.Name).Info("Using stored credentials")
	return nil
}

// collectRequest carries per-invocation choices that are not configuration
type collectRequest struct {
	Resume       bool
	ForceRestart bool
	NoManifest   bool
}

// collect wires the components from cfg and runs one collection
func collect(ctx context.Context, cfg *config.Config, req collectRequest, out io.Writer) (*ingest.Summary, error) {
	subreddit := reddit.SanitizeSubreddit(cfg.Source.Subreddit)
	if !reddit.IsValidSubreddit(subreddit) {
		return nil, errs.Configuration(fmt.Sprintf("invalid subreddit name %q", cfg.Source.Subreddit))
	}
	start, end, err := cfg.Range()
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfiguration, err, "invalid range")
	}
	walker, err := window.NewWalker(start, end)
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.New(cfg.RateLimit.Policy, cfg.RateLimit.MinInterval, cfg.RateLimit.RequestsPerMinute)
	if err != nil {
		return nil, err
	}
	policy, err := comments.ParsePolicy(cfg.Comments.Policy)
	if err != nil {
		return nil, err
	}

	log := logger.GetLogger()
	collector := metrics.New()
	client := reddit.NewClient(reddit.Options{
		BaseURL:     cfg.Reddit.BaseURL,
		UserAgent:   cfg.Reddit.UserAgent,
		AccessToken: cfg.Reddit.AccessToken,
		Timeout:     cfg.Reddit.Timeout,
		PageSize:    cfg.Reddit.PageSize,
		Limiter:     limiter,
		Logger:      log,
		Metrics:     collector,
	})

	writer, err := snapshot.NewWriter(cfg.Output.Directory)
	if err != nil {
		return nil, err
	}

	opts := ingest.Options{
		Source:        client,
		Writer:        writer,
		CommentPolicy: policy,
		MaxResolves:   cfg.Comments.MaxResolves,
		Reporter:      ui.NewReporter(out, walker.Count()),
		Metrics:       collector,
		Logger:        log,
		MaxAttempts:   cfg.RateLimit.MaxRetries + 1,
		Backoff:       retry.NewErrorTypeBackoff(cfg.RateLimit.MinInterval, cfg.RateLimit.MaxBackoff),
		WriteWorkers:  cfg.Output.WriteWorkers,
	}

	if cfg.Checkpoint.Enabled {
		cp, err := checkpoint.NewManager(cfg.CheckpointDir(), subreddit)
		if err != nil {
			return nil, err
		}
		opts.Checkpoints = cp.WithLogger(log)
	}

	if !req.NoManifest {
		led, err := ledger.Open(cfg.ManifestPath())
		if err != nil {
			return nil, err
		}
		defer led.Close()
		opts.Recorder = led
	}

	engine, err := ingest.New(opts)
	if err != nil {
		return nil, err
	}

	summary, runErr := engine.Run(ctx, ingest.Params{
		Source:       subreddit,
		Start:        start,
		End:          end,
		Resume:       req.Resume,
		ForceRestart: req.ForceRestart,
	})

	if cfg.Output.MetricsFile != "" {
		if err := collector.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			log.WithError(err).Warn("failed to write metrics textfile")
		}
	}
	return summary, runErr
}
