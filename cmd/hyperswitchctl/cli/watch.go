package cli

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/wikimedia/hyperswitch/internal/filter/builtin"
	"github.com/wikimedia/hyperswitch/internal/log"
	"github.com/wikimedia/hyperswitch/spec"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <spec-file>",
		Short: "Reload and re-validate a spec file on every write",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(args[0], log.Default())
		},
	}
	return cmd
}

func runWatch(path string, logger log.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}

	reload(path, logger)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				reload(path, logger)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Errorf("watch %s: %v", path, err)
		}
	}
}

func reload(path string, logger log.Logger) {
	doc, err := loadDocument(path)
	if err != nil {
		logger.Errorf("reload %s: %v", path, err)
		return
	}
	result, err := spec.Load(doc, spec.Options{DisableHandlers: true, Registry: builtin.NewRegistry(nil)})
	if err != nil {
		logger.Errorf("reload %s: %v", path, err)
		return
	}
	logger.Infof("reload %s: ok (%d resource(s))", path, len(result.Resources))
}
