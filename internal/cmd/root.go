package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Trozz/get-s3-checksums/internal/argparser"
	"github.com/Trozz/get-s3-checksums/internal/logger"
	"github.com/Trozz/get-s3-checksums/internal/pipeline"
	"github.com/Trozz/get-s3-checksums/internal/s3client"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

var (
	checksumsStr string
	concurrency  int
	force        bool
	endpoint     string
	logFormat    string
	profiler     bool

	cfg pipeline.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "get-s3-checksums s3://BUCKET[/PREFIX]",
	Short: "Compute checksums of objects in Amazon S3 and record them as tags",
	Long: `Compute checksums of the objects under an S3 prefix, record them as
object tags, and write a CSV spreadsheet with one row per object. Objects
that already carry all requested checksum tags are not recomputed unless
--force is given. Prints the name of the finished spreadsheet.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleCommonFlags()
		cfg.BucketConcurrency = 1

		bucketName, prefix, err := argparser.ParseS3URI(args[0])
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
		outPath := fmt.Sprintf("checksums.%s.%s.csv", argparser.Slug(args[0]), randomSuffix())

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

		jobs := []pipeline.BucketJob{{Name: bucketName, Prefix: prefix}}
		err = pipeline.NewOrchestrator(client, cfg).Run(ctx, jobs, outPath)
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

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	defineCommonFlags(rootCmd)
}

func defineCommonFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&checksumsStr, "checksums", "md5,sha1,sha256,sha512", "Comma-separated list of checksums to fetch.")
	cmd.Flags().IntVar(&concurrency, "concurrency", 5, "Max number of objects to fetch from S3 at once.")
	cmd.Flags().BoolVar(&force, "force", false, "Force recalculation even if tags already exist.")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "The endpoint URL and TCP port number. e.g. \"http://127.0.0.1:9000\"")
	cmd.Flags().StringVar(&logFormat, "log-format", logger.Plane, "Log format. (plane or json)")
	cmd.Flags().BoolVar(&profiler, "profiler", false, "Enable profiler.")
}

func handleCommonFlags() {
	err := logger.SetLogFormat(logFormat)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	request, err := argparser.ParseChecksums(checksumsStr)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	if concurrency < 1 {
		slog.Error("The concurrency must be larger than or equal to 1.")
		os.Exit(1)
	}

	cfg = pipeline.Config{
		Request:           request,
		ObjectConcurrency: concurrency,
		Force:             force,
	}
}

func randomSuffix() string {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	return hex.EncodeToString(b)
}
