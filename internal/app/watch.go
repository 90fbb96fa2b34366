package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/watcher"
)

var (
	watchInterval    time.Duration
	watchIndexFirst  bool
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool

	watchCmd = &cobra.Command{
		Use:   "watch [manifest-root]",
		Short: "Keep the catalog in step with a manifest tree",
		Long: `Watch a manifest tree and apply every added, changed or deleted manifest
to the catalog. Changes are collected and applied together once per
interval.

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as a background process
  • Stop: Stop a running daemon`,
		Example: `  # Index once, then follow changes (Ctrl+C to stop)
  pkgcatalog watch ./manifests --index

  # Run as background daemon
  pkgcatalog watch ./manifests --daemon

  # Stop running daemon
  pkgcatalog watch --stop`,
		Args: cobra.MaximumNArgs(1),
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "how often to apply changes (default from config, 2s)")
	watchCmd.Flags().BoolVar(&watchIndexFirst, "index", false, "index the whole tree before watching")
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: ~/.pkgcatalog/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: ~/.pkgcatalog/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")

	watchCmd.Flags().MarkHidden("daemon-child")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchPIDFile == "" {
		p, err := getDefaultPIDFile()
		if err != nil {
			return err
		}
		watchPIDFile = p
	}
	if watchStop {
		if err := watcher.StopDaemon(watchPIDFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Watch daemon stopped")
		return nil
	}

	var root string
	if len(args) == 1 {
		root = args[0]
	}
	root = manifestRoot(root)
	if root == "" {
		return fmt.Errorf("no manifest root given and none configured")
	}

	interval := watchInterval
	if interval == 0 {
		interval = cfg.WatchInterval.Duration
	}

	if watchDaemon {
		return startWatchDaemon(cmd, root, interval)
	}

	c, err := openCatalog(catalog.ReadWrite)
	if err != nil {
		return err
	}
	defer c.Close()

	if watchIndexFirst {
		stats, err := watcher.Index(c, root, nil)
		if err != nil {
			return err
		}
		logger.Info("indexed manifest tree", "root", root, "added", stats.Added,
			"updated", stats.Updated, "failed", stats.Errors)
	}

	w, err := watcher.New(c, root, interval)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	pidFile := ""
	if watchDaemonChild {
		pidFile = watchPIDFile
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", root)
	}
	if err := w.RunDaemon(cmd.Context(), pidFile); err != nil {
		return err
	}

	stats := w.Stats()
	logger.Info("watcher stopped", "added", stats.Added, "updated", stats.Updated,
		"removed", stats.Removed, "errors", stats.Errors)
	return nil
}

// startWatchDaemon re-runs this command in the background with the same
// catalog, tree and interval.
func startWatchDaemon(cmd *cobra.Command, root string, interval time.Duration) error {
	if watchLogFile == "" {
		p, err := getDefaultLogFile()
		if err != nil {
			return err
		}
		watchLogFile = p
	}

	path, err := getDBPath()
	if err != nil {
		return err
	}
	childArgs := []string{"watch", root,
		"--db", path,
		"--interval", interval.String(),
		"--pid-file", watchPIDFile,
	}
	if watchIndexFirst {
		childArgs = append(childArgs, "--index")
	}
	if configDir != "" {
		childArgs = append(childArgs, "--config", configDir)
	}
	if verbose {
		childArgs = append(childArgs, "--verbose")
	}

	if err := watcher.StartDaemon(watchPIDFile, watchLogFile, childArgs); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Watch daemon started (log: %s)\n", watchLogFile)
	return nil
}
