package target

import (
	"context"

	"github.com/fsnotify/fsnotify"
)

// WatchProjectRoot watches the resolver's project root for filesystem
// changes and invokes onChange whenever a write or rename under it could
// have altered the embedded-identifier set (a new .env file, an edited
// source file). It is plumbing for a future continuous-list mode (§1
// terminal rendering for that mode is out of scope; the watch hook itself
// is in scope as the piece such a mode would call). Returns when ctx is
// cancelled or the watcher fails to start.
func (r *Resolver) WatchProjectRoot(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	root := findProjectRoot(r.projectRoot)
	if err := watcher.Add(root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				onChange()
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}
