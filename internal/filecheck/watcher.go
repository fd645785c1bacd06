package filecheck

import (
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ChangeKind classifies what happened to a watched file.
type ChangeKind string

const (
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change is delivered to the watcher callback when a tracked file
// changes on disk.
type Change struct {
	Path string
	Kind ChangeKind
}

// Watcher observes directories holding collection files and reports
// modifications and removals, so stale checksums can be flagged without
// polling.
type Watcher struct {
	callback func(Change)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a watcher dispatching to callback.
func NewWatcher(callback func(Change)) *Watcher {
	return &Watcher{
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins delivering events for directories added with Watch.
// Call Stop to clean up.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw
	go w.loop()
	return nil
}

// Watch adds a directory to the watch set. The directory is created if
// it does not exist.
func (w *Watcher) Watch(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	log.Printf("filecheck: watching %s", dir)
	return nil
}

// Stop shuts down the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.dispatch(evt)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("filecheck: watcher error: %v", err)
		}
	}
}

func (w *Watcher) dispatch(evt fsnotify.Event) {
	if w.callback == nil {
		return
	}
	// Directory churn (editors writing swap files etc) is not
	// interesting; only report terminal states of regular files.
	switch {
	case evt.Op&(fsnotify.Write|fsnotify.Create) != 0:
		if fi, err := os.Stat(evt.Name); err == nil && !fi.IsDir() {
			w.callback(Change{Path: filepath.Clean(evt.Name), Kind: ChangeModified})
		}
	case evt.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.callback(Change{Path: filepath.Clean(evt.Name), Kind: ChangeRemoved})
	}
}
