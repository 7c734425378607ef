package ingest

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch re-runs ingestion whenever a CSV in dataDir is written or created.
// Blocks until ctx is done.
func (s Service) Watch(ctx context.Context, dataDir string) error {
	if dataDir == "" {
		dataDir = s.Config.DataDir
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dataDir); err != nil {
		return err
	}
	log := s.logger()
	log.Info("watching data directory", "dir", dataDir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Exports often land via rename (atomic save), so catch Create
			// alongside Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !strings.HasSuffix(strings.ToLower(event.Name), ".csv") {
				continue
			}
			log.Info("data change detected, re-ingesting", "file", event.Name)
			if _, err := s.Run(ctx, dataDir); err != nil {
				log.Error("re-ingest failed; keeping previous data where loaded", "err", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watch error", "err", err)
		}
	}
}
