package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/LifeLens/internal/cache"
	"github.com/TobiSchelling/LifeLens/internal/config"
	"github.com/TobiSchelling/LifeLens/internal/database"
	"github.com/TobiSchelling/LifeLens/internal/objectstore"
	"github.com/TobiSchelling/LifeLens/internal/pipeline"
	"github.com/TobiSchelling/LifeLens/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "lifelens",
	Short:   "Journal insight pipeline",
	Long:    "LifeLens distills a dated journal corpus into weekly, monthly, and quarterly summaries and a single whole-corpus synthesis.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("lifelens", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/lifelens/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to point at your journal store and set the API key env var.")
		return nil
	},
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: extract -> weekly -> monthly -> quarterly -> synthesis",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, cleanup, err := buildCoordinator(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		start := time.Now()
		if err := coord.Run(cmd.Context()); err != nil {
			return err
		}

		status, err := coord.Status()
		if err != nil {
			return err
		}
		fmt.Printf("\nPipeline complete in %s.\n", time.Since(start).Round(time.Second))
		printStatus(status)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline state and artifact counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, cleanup, err := buildCoordinator(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		status, err := coord.Status()
		if err != nil {
			return err
		}
		printStatus(status)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear run state; artifacts and cache are preserved",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, cleanup, err := buildCoordinator(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if err := coord.Reset(); err != nil {
			return err
		}
		fmt.Println("Pipeline state cleared. Artifacts and cache were preserved.")
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local control and status server",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, cleanup, err := buildCoordinator(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(coord, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func printStatus(s *pipeline.Status) {
	fmt.Printf("Phase: %s\n", s.State.Phase)
	if s.State.CurrentTier != nil {
		fmt.Printf("Current tier: %s\n", *s.State.CurrentTier)
	}
	if s.State.TotalEntries > 0 {
		fmt.Printf("Entries: %d/%d\n", s.State.ProcessedEntries, s.State.TotalEntries)
	}
	if s.State.RunID != "" {
		fmt.Printf("Run: %s\n", s.State.RunID)
	}

	fmt.Println("\nArtifacts:")
	fmt.Printf("  Extractions: %d\n", s.Stats.Extractions)
	fmt.Printf("  Weekly summaries: %d\n", s.Stats.WeeklySummaries)
	fmt.Printf("  Monthly summaries: %d\n", s.Stats.MonthlySummaries)
	fmt.Printf("  Quarterly notepads: %d\n", s.Stats.QuarterlyNotepads)
	fmt.Printf("  Syntheses: %d\n", s.Stats.Syntheses)

	if len(s.State.Warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range s.State.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
	if len(s.DeadLetters) > 0 {
		fmt.Println("\nDead-lettered jobs:")
		for _, j := range s.DeadLetters {
			fmt.Printf("  %s (%d attempts): %s\n", j.ID, j.Attempts, j.LastError)
		}
	}
}

// buildCoordinator wires the database, cache, and object store from config.
func buildCoordinator(ctx context.Context) (*pipeline.Coordinator, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}

	c, err := cache.Open(cfg.GetCacheDir(), cfg.CacheTTL())
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	bucket, err := openBucket(ctx)
	if err != nil {
		db.Close()
		c.Close()
		return nil, nil, err
	}

	cleanup := func() {
		c.Close()
		db.Close()
	}
	return pipeline.New(cfg, db, c, bucket), cleanup, nil
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "lifelens.db")
	return database.Open(dbPath)
}

func openBucket(ctx context.Context) (objectstore.Bucket, error) {
	var bucket objectstore.Bucket
	switch cfg.Journals.Backend {
	case "dir", "":
		b, err := objectstore.NewDirBucket(cfg.Journals.Dir)
		if err != nil {
			return nil, err
		}
		bucket = b
	case "gcs":
		b, err := objectstore.NewGCSBucket(ctx, cfg.Journals.GCS.Bucket, cfg.Journals.GCS.CredentialsFile)
		if err != nil {
			return nil, err
		}
		bucket = b
	default:
		return nil, fmt.Errorf("unknown journals backend %q", cfg.Journals.Backend)
	}
	return objectstore.WithRetry(bucket, 3, 500*time.Millisecond), nil
}
