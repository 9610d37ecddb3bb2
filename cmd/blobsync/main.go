package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openmined/blobsync/internal/blobsync"
	"github.com/openmined/blobsync/internal/blobsync/config"
	"github.com/openmined/blobsync/internal/diff"
	"github.com/openmined/blobsync/internal/remote"
	"github.com/openmined/blobsync/internal/version"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
)

var (
	green = color.New(color.FgHiGreen).SprintFunc()
	red   = color.New(color.FgHiRed).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "blobsync",
	Short:         "One-way push synchronization of a local tree to an S3-compatible store",
	Version:       version.Detailed(),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload new/changed files and delete remote-only objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		engine, err := newEngine(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			interval, _ := cmd.Flags().GetDuration("interval")
			defer slog.Info("Bye!")
			err := engine.Watch(cmd.Context(), interval)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		_, err = engine.Push(cmd.Context())
		return err
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a push would upload and delete, without touching the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		engine, err := newEngine(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		var plan *diff.Result
		if cached, _ := cmd.Flags().GetBool("cached"); cached {
			plan, err = engine.PlanCached(cmd.Context())
		} else {
			plan, err = engine.Plan(cmd.Context())
		}
		if err != nil {
			return err
		}

		printPlan(plan)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.DetailedWithApp())
	},
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ~/.blobsync/config.json)")
	rootCmd.PersistentFlags().StringP("dir", "d", ".", "base directory to sync")
	rootCmd.PersistentFlags().StringP("bucket", "b", "", "target bucket")
	rootCmd.PersistentFlags().String("region", "us-east-1", "bucket region")
	rootCmd.PersistentFlags().String("endpoint", "", "custom S3 endpoint (MinIO etc.)")
	rootCmd.PersistentFlags().StringSlice("include", nil, "glob patterns to include")
	rootCmd.PersistentFlags().StringSlice("exclude", nil, "glob patterns to exclude")
	rootCmd.PersistentFlags().IntP("concurrency", "j", config.DefaultConcurrency, "max files hashed/uploaded in parallel")
	rootCmd.PersistentFlags().String("algorithm", config.DefaultAlgorithm, "fingerprint algorithm (md5, sha1, sha256)")
	rootCmd.PersistentFlags().Bool("gzip", false, "gzip payloads on upload")
	rootCmd.PersistentFlags().String("snapshot", "", "path of the persisted fingerprint snapshot")

	pushCmd.Flags().BoolP("watch", "w", false, "keep watching the tree and push on change")
	pushCmd.Flags().Duration("interval", blobsync.DefaultWatchInterval, "full sync interval in watch mode")
	planCmd.Flags().Bool("cached", false, "plan against the snapshot instead of a live listing")

	rootCmd.AddCommand(pushCmd, planCmd, versionCmd)
}

func main() {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("blobsync", "error", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".blobsync"))
		viper.AddConfigPath(filepath.Join(home, ".config/blobsync"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("base_dir", cmd.Flags().Lookup("dir"))
	viper.BindPFlag("bucket", cmd.Flags().Lookup("bucket"))
	viper.BindPFlag("region", cmd.Flags().Lookup("region"))
	viper.BindPFlag("endpoint", cmd.Flags().Lookup("endpoint"))
	viper.BindPFlag("include", cmd.Flags().Lookup("include"))
	viper.BindPFlag("exclude", cmd.Flags().Lookup("exclude"))
	viper.BindPFlag("concurrency", cmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("algorithm", cmd.Flags().Lookup("algorithm"))
	viper.BindPFlag("gzip", cmd.Flags().Lookup("gzip"))
	viper.BindPFlag("snapshot_path", cmd.Flags().Lookup("snapshot"))

	viper.SetEnvPrefix("BLOBSYNC")
	viper.AutomaticEnv()

	return nil
}

func buildConfig() (*config.Config, error) {
	cfg := &config.Config{
		BaseDir:       viper.GetString("base_dir"),
		Include:       viper.GetStringSlice("include"),
		Exclude:       viper.GetStringSlice("exclude"),
		Bucket:        viper.GetString("bucket"),
		Region:        viper.GetString("region"),
		Endpoint:      viper.GetString("endpoint"),
		AccessKey:     viper.GetString("access_key"),
		SecretKey:     viper.GetString("secret_key"),
		UseAccelerate: viper.GetBool("use_accelerate"),
		Concurrency:   viper.GetInt("concurrency"),
		Algorithm:     viper.GetString("algorithm"),
		Gzip:          viper.GetBool("gzip"),
		SnapshotPath:  viper.GetString("snapshot_path"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newEngine(ctx context.Context, cfg *config.Config) (*blobsync.Engine, error) {
	store, err := remote.NewS3Client(ctx, &remote.S3Config{
		Bucket:        cfg.Bucket,
		Region:        cfg.Region,
		Endpoint:      cfg.Endpoint,
		AccessKey:     cfg.AccessKey,
		SecretKey:     cfg.SecretKey,
		UseAccelerate: cfg.UseAccelerate,
	})
	if err != nil {
		return nil, err
	}
	return blobsync.NewEngine(cfg, store)
}

func printPlan(plan *diff.Result) {
	uploads := make([]string, 0, len(plan.ToUpload))
	for path := range plan.ToUpload {
		uploads = append(uploads, path)
	}
	sort.Strings(uploads)

	deletes := make([]string, 0, len(plan.ToDelete))
	for path := range plan.ToDelete {
		deletes = append(deletes, path)
	}
	sort.Strings(deletes)

	for _, path := range uploads {
		fmt.Printf("%s %s\n", green("+"), path)
	}
	for _, path := range deletes {
		fmt.Printf("%s %s\n", red("-"), path)
	}

	if !plan.HasChanges() {
		fmt.Println("nothing to push")
	} else {
		fmt.Printf("\n%d to upload, %d to delete\n", len(uploads), len(deletes))
	}
}
