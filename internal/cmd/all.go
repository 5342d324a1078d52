package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Trozz/get-s3-checksums/internal/pipeline"
	"github.com/Trozz/get-s3-checksums/internal/s3client"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

var (
	bucketConcurrency int
	bucketFilter      string
	maxObjects        int
	skipEmpty         bool
)

// allCmd represents the all command
var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Compute checksums across all S3 buckets in the account",
	Long: `Compute checksums of the objects in every S3 bucket of the account,
record them as object tags, and write one CSV spreadsheet. Buckets can be
filtered by a name pattern, limited to a maximum number of objects each, or
skipped when empty. Prints the name of the finished spreadsheet.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		handleCommonFlags()
		handleAllFlags()

		outPath := fmt.Sprintf("checksums.all_buckets.%s.%s.csv",
			time.Now().Format("20060102_150405"), randomSuffix())

		if profiler {
			defer profile.Start(profile.ProfilePath(".")).Stop()
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		client, err := s3client.NewClient(ctx, endpoint)
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}

		orchestrator := pipeline.NewOrchestrator(client, cfg)
		jobs, err := orchestrator.SelectBuckets(ctx)
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}

		err = orchestrator.Run(ctx, jobs, outPath)
		if err != nil {
			slog.Error(err.Error())
			if ctx.Err() == context.Canceled {
				return
			}
			os.Exit(1)
		}
		fmt.Println(outPath)
	},
}

func init() {
	defineCommonFlags(allCmd)
	allCmd.Flags().IntVar(&bucketConcurrency, "bucket-concurrency", 1, "Max number of buckets to process at once.")
	allCmd.Flags().StringVar(&bucketFilter, "bucket-filter", "", "Only process buckets matching this pattern (supports wildcards).")
	allCmd.Flags().IntVar(&maxObjects, "max-objects", 0, "Maximum number of objects to process per bucket. The value 0 means no limit.")
	allCmd.Flags().BoolVar(&skipEmpty, "skip-empty", false, "Skip buckets with no objects.")
	rootCmd.AddCommand(allCmd)
}

func handleAllFlags() {
	if bucketConcurrency < 1 {
		slog.Error("The bucket concurrency must be larger than or equal to 1.")
		os.Exit(1)
	}
	if maxObjects < 0 {
		slog.Error("The maximum number of objects must be larger than or equal to 0.")
		os.Exit(1)
	}

	cfg.BucketConcurrency = bucketConcurrency
	cfg.BucketFilter = bucketFilter
	cfg.MaxObjectsPerBucket = maxObjects
	cfg.SkipEmpty = skipEmpty
}
