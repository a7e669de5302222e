package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/artdig/artdig/internal/connectors/bulkcsv"
	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driving"
	"github.com/artdig/artdig/internal/logger"
)

// watchDebounce coalesces the burst of write events a dump download
// produces into one ingest run.
const watchDebounce = 5 * time.Second

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch bulk dump files and ingest on change",
	Long: `Watches the CSV dump files of all bulk sources and triggers an
incremental ingest run for a source whenever its dump is replaced.
Runs until interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if ingestor == nil || sourceStore == nil {
		return errors.New("ingest service not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources, err := sourceStore.List(ctx)
	if err != nil {
		return err
	}

	// Watch the parent directories: dump downloads typically replace the
	// file, which drops inode-level watches.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	watched := map[string]string{} // dump path -> source id
	for _, source := range sources {
		if source.Family != domain.FamilyBulkCSV {
			continue
		}
		path := source.Config[bulkcsv.ConfigPath]
		if path == "" {
			continue
		}
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		watched[path] = source.ID
		cmd.Printf("Watching %s for %s\n", path, source.ID)
	}
	if len(watched) == 0 {
		return errors.New("no bulk sources with a dump path configured")
	}

	pending := map[string]time.Time{} // source id -> deadline
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cmd.Println("Watch stopped.")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if sourceID, tracked := watched[event.Name]; tracked {
				logger.Debug("Dump changed for %s (%s)", sourceID, event.Op)
				pending[sourceID] = time.Now().Add(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		case now := <-ticker.C:
			for sourceID, deadline := range pending {
				if now.Before(deadline) {
					continue
				}
				delete(pending, sourceID)
				cmd.Printf("Ingesting %s after dump change...\n", sourceID)
				run, err := ingestor.Run(ctx, sourceID, driving.RunOptions{})
				if err != nil {
					logger.Warn("Ingest of %s failed: %v", sourceID, err)
				}
				if run != nil {
					printRunResult(cmd, run)
				}
			}
		}
	}
}
