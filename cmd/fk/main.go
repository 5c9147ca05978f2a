package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fk-go/internal/app"
	"fk-go/internal/config"
	"fk-go/internal/devices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when it does not exist.
func loadConfig() (*config.Config, string, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(paths.ConfigPath, paths.Config())
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, paths.ConfigPath, nil
}

// newApp reads the config and creates an FKApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "scan", "hash").
// readOnly forces a read-only index regardless of --dry-run.
func newApp(cmd *cobra.Command, operation string, readOnly bool) (*app.FKApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	a, err := app.NewFKApp(cfg, operation, dryRun || readOnly)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "fk",
	Short:        "File keeper: index removable volumes and find duplicate files",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		if err := config.Init(paths.ConfigPath, paths.Config()); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Base Dir: %s\n", paths.BaseDir)
		fmt.Printf("Database: %s\n", paths.DataDir())
		fmt.Printf("Logs: %s\n", paths.LogDir())
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("# Configuration from %s\n\n", path)
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List mounted volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		enumerator, err := devices.NewEnumeratorFromConfig(cfg.Devices)
		if err != nil {
			return err
		}

		devs, err := enumerator.Devices()
		if err != nil {
			return fmt.Errorf("enumerating devices: %w", err)
		}
		if len(devs) == 0 {
			fmt.Println("No volumes found.")
			return nil
		}
		printDevices(os.Stdout, devs)
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan PATH",
	Short: "Index every file under PATH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minSize := int64(-1)
		if raw, _ := cmd.Flags().GetString("min-size"); raw != "" {
			n, err := humanize.ParseBytes(raw)
			if err != nil {
				return fmt.Errorf("invalid --min-size: %w", err)
			}
			minSize = int64(n)
		}

		a, err := newApp(cmd, "scan", false)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Scan(args[0], minSize)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		fmt.Printf("Scanned %s (%s) on %s\n", stats.MountPoint, stats.DeviceUUID, humanize.IBytes(uint64(stats.Bytes)))
		fmt.Printf("  new %d, changed %d, unchanged %d, missing %d\n",
			stats.New, stats.ChangedStat, stats.UnchangedStat, stats.Missing)
		fmt.Printf("  skipped: small %d, ignored %d, symlinks %d, special %d, vanished %d, errors %d\n",
			stats.SkippedSmall, stats.Ignored, stats.Symlinks, stats.Special, stats.Offline, stats.Errors)
		return nil
	},
}

// hash command
var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash unhashed files and rehash aged ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		maxAge, _ := cmd.Flags().GetString("max-age")
		dupesOnly, _ := cmd.Flags().GetBool("dupes-only")
		batchSize, _ := cmd.Flags().GetInt("batch-size")

		a, err := newApp(cmd, "hash", false)
		if err != nil {
			return err
		}
		defer a.Close()

		// Interrupting stops after the current file; committed batches stay.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stats, err := a.RefreshHashes(ctx, app.HashRequest{
			MaxAge:         maxAge,
			CandidatesOnly: dupesOnly,
			BatchSize:      batchSize,
		})
		if err != nil {
			return fmt.Errorf("hash refresh failed: %w", err)
		}

		fmt.Printf("Hashed %d of %d file(s), read %s in %s\n",
			stats.Hashed, stats.Candidates, humanize.IBytes(uint64(stats.Bytes)),
			stats.Duration.Truncate(time.Millisecond))
		if stats.Offline+stats.Deleted+stats.Errors > 0 {
			fmt.Printf("  offline %d, deleted %d, errors %d\n", stats.Offline, stats.Deleted, stats.Errors)
		}
		return nil
	},
}

// dupes command
var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "List duplicate files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "dupes", true)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.FindDuplicates()
		if err != nil {
			return err
		}
		if len(report.Groups) == 0 {
			fmt.Println("No duplicates found.")
			return nil
		}

		for _, g := range report.Groups {
			fmt.Printf("%s  %s  %d copies, %s wasted\n",
				g.Hash[:min(12, len(g.Hash))], humanize.IBytes(uint64(g.Size)),
				len(g.Copies), humanize.IBytes(uint64(g.WastedBytes())))
			for _, c := range g.Copies {
				for i, p := range c.Paths {
					marker := "  "
					if i > 0 {
						marker = "=>" // hard link to the path above
					}
					fmt.Printf("  %s %s\n", marker, p)
				}
			}
		}
		fmt.Printf("\n%d group(s), %s wasted\n", len(report.Groups), humanize.IBytes(uint64(report.WastedBytes)))
		return nil
	},
}

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "stats", true)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Summary()
		if err != nil {
			return err
		}
		fmt.Printf("Devices:  %d\n", s.Devices)
		fmt.Printf("Files:    %d (%s)\n", s.Files, humanize.IBytes(uint64(s.TotalBytes)))
		fmt.Printf("Hashed:   %d (%d stale)\n", s.Hashed, s.Stale)
		fmt.Printf("Unhashed: %d\n", s.Unhashed)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "history", true)
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-8s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Local().Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the index store",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a snapshot of the index to DEST",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "backup", true)
		if err != nil {
			return err
		}
		defer a.Close()

		dest, err := a.Backup(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Index written to %s\n", dest)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("dry-run", false, "Open the index read-only and record nothing")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbBackupCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().String("min-size", "", "Skip files smaller than this (e.g. 10MiB); default from config")
	rootCmd.AddCommand(hashCmd)
	hashCmd.Flags().String("max-age", "", "Rehash files hashed longer ago than this (e.g. 30d); default from config")
	hashCmd.Flags().Bool("dupes-only", false, "Only hash files whose size matches another file")
	hashCmd.Flags().Int("batch-size", 0, "Files per committed batch; default from config")
	rootCmd.AddCommand(dupesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(dbCmd)
}
